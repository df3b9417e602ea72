// Package stats computes return-based risk measures over aligned daily
// return series: beta, tracking error, volatility and a simple risk
// decomposition.
package stats

import (
	"errors"
	"fmt"
	"math"
)

// TradingDaysPerYear annualizes daily figures.
const TradingDaysPerYear = 252

// MinWindow is the smallest number of points any variance needs.
const MinWindow = 2

// relativeVarianceFloor treats a variance this small relative to the series'
// mean square as float round-off.
const relativeVarianceFloor = 1e-12

var (
	ErrDegenerateInput     = errors.New("degenerate input: zero variance")
	ErrInsufficientOverlap = errors.New("insufficient overlap between series")
	ErrLengthMismatch      = errors.New("series lengths differ")
)

func checkPair(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%d vs %d points: %w", len(a), len(b), ErrLengthMismatch)
	}
	if len(a) < MinWindow {
		return fmt.Errorf("%d points, need %d: %w", len(a), MinWindow, ErrInsufficientOverlap)
	}
	return nil
}

func mean(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// covariance is the sample covariance (n-1 denominator); callers ensure
// len(a) == len(b) >= 2.
func covariance(a, b []float64) float64 {
	ma, mb := mean(a), mean(b)
	sum := 0.0
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1)
}

func variance(x []float64) float64 {
	return covariance(x, x)
}

func meanSquare(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum / float64(len(x))
}

// degenerate reports whether v, the variance of x, is zero up to round-off.
func degenerate(v float64, x []float64) bool {
	return math.IsNaN(v) || v <= relativeVarianceFloor*meanSquare(x)
}

// Volatility is the sample standard deviation of daily returns.
func Volatility(returns []float64) (float64, error) {
	if len(returns) < MinWindow {
		return 0, fmt.Errorf("%d points, need %d: %w", len(returns), MinWindow, ErrInsufficientOverlap)
	}
	return math.Sqrt(variance(returns)), nil
}

// AnnualizedVolatility scales daily volatility by sqrt(252) and reports it as
// a percentage.
func AnnualizedVolatility(returns []float64) (float64, error) {
	v, err := Volatility(returns)
	if err != nil {
		return 0, err
	}
	return Annualize(v), nil
}

// Annualize converts a daily standard deviation into an annual percentage.
func Annualize(daily float64) float64 {
	return daily * math.Sqrt(TradingDaysPerYear) * 100
}

// Correlation is the Pearson correlation of two aligned series.
func Correlation(a, b []float64) (float64, error) {
	if err := checkPair(a, b); err != nil {
		return 0, err
	}
	va, vb := variance(a), variance(b)
	if degenerate(va, a) || degenerate(vb, b) {
		return 0, ErrDegenerateInput
	}
	return covariance(a, b) / math.Sqrt(va*vb), nil
}
