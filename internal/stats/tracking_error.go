package stats

import "math"

// TrackingError is the sample standard deviation of asset - benchmark.
func TrackingError(asset, benchmark []float64) (float64, error) {
	if err := checkPair(asset, benchmark); err != nil {
		return 0, err
	}
	return math.Sqrt(variance(diff(asset, benchmark, 1))), nil
}

// AnnualizedTrackingError reports tracking error as an annual percentage.
func AnnualizedTrackingError(asset, benchmark []float64) (float64, error) {
	te, err := TrackingError(asset, benchmark)
	if err != nil {
		return 0, err
	}
	return Annualize(te), nil
}

// ResidualVolatility is the standard deviation of asset - beta*benchmark, the
// part of the asset's movement the benchmark does not explain.
func ResidualVolatility(asset, benchmark []float64) (float64, error) {
	beta, err := Beta(asset, benchmark)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(variance(diff(asset, benchmark, beta))), nil
}

func diff(a, b []float64, k float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - k*b[i]
	}
	return out
}
