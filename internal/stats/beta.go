package stats

// Beta is the OLS slope of asset returns regressed on benchmark returns:
// Cov(asset, benchmark) / Var(benchmark), both with the n-1 denominator.
func Beta(asset, benchmark []float64) (float64, error) {
	if err := checkPair(asset, benchmark); err != nil {
		return 0, err
	}
	vb := variance(benchmark)
	if degenerate(vb, benchmark) {
		return 0, ErrDegenerateInput
	}
	return covariance(asset, benchmark) / vb, nil
}
