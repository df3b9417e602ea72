package stats

import "math"

// RiskDecomposition splits the asset's daily return variance into the part
// carried by benchmark exposure and the active part.
type RiskDecomposition struct {
	Beta float64
	// Total is Var(asset).
	Total float64
	// Systematic is beta^2 * Var(benchmark).
	Systematic float64
	// Residual is TrackingError^2.
	Residual float64
	// Unexplained is max(0, Total - Systematic).
	Unexplained float64
	// BenchmarkVariance is Var(benchmark).
	BenchmarkVariance float64
}

func Decompose(asset, benchmark []float64) (RiskDecomposition, error) {
	beta, err := Beta(asset, benchmark)
	if err != nil {
		return RiskDecomposition{}, err
	}
	te, err := TrackingError(asset, benchmark)
	if err != nil {
		return RiskDecomposition{}, err
	}
	total := variance(asset)
	vb := variance(benchmark)
	systematic := beta * beta * vb
	return RiskDecomposition{
		Beta:              beta,
		Total:             total,
		Systematic:        systematic,
		Residual:          te * te,
		Unexplained:       math.Max(0, total-systematic),
		BenchmarkVariance: vb,
	}, nil
}

// AnnualizedRisk is the decomposition expressed as annual percentages.
type AnnualizedRisk struct {
	Volatility          float64
	BenchmarkVolatility float64
	Systematic          float64
	Residual            float64
	// ResidualRatio is Residual / Volatility in percent.
	ResidualRatio float64
	TrackingError float64
}

func (d RiskDecomposition) Annualized() AnnualizedRisk {
	vol := Annualize(math.Sqrt(d.Total))
	out := AnnualizedRisk{
		Volatility:          vol,
		BenchmarkVolatility: Annualize(math.Sqrt(d.BenchmarkVariance)),
		Systematic:          Annualize(math.Abs(d.Beta) * math.Sqrt(d.BenchmarkVariance)),
		Residual:            Annualize(math.Sqrt(d.Unexplained)),
		TrackingError:       Annualize(math.Sqrt(d.Residual)),
	}
	if vol > 0 {
		out.ResidualRatio = out.Residual / vol * 100
	}
	return out
}
