package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dyike/QuantDemo/internal/models"
)

func dateKey(t time.Time) string {
	return t.Format("20060102")
}

// Align truncates every series to the dates present in all of them, in
// chronological order. Dates where any series holds a non-finite value are
// dropped as well. Fewer than max(minWindow, MinWindow) surviving dates is an
// ErrInsufficientOverlap.
func Align(series map[string]*models.ReturnSeries, minWindow int) (*models.AlignedReturns, error) {
	if minWindow < MinWindow {
		minWindow = MinWindow
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no series to align: %w", ErrInsufficientOverlap)
	}

	type point struct {
		date  time.Time
		count int
	}
	seen := make(map[string]*point)
	index := make(map[string]map[string]int, len(series))
	for code, s := range series {
		if s == nil || len(s.Dates) != len(s.Values) {
			return nil, fmt.Errorf("series %s: %w", code, ErrLengthMismatch)
		}
		idx := make(map[string]int, len(s.Dates))
		for i, d := range s.Dates {
			k := dateKey(d)
			if _, dup := idx[k]; dup {
				continue
			}
			idx[k] = i
			p, ok := seen[k]
			if !ok {
				p = &point{date: d}
				seen[k] = p
			}
			p.count++
		}
		index[code] = idx
	}

	var common []*point
	for k, p := range seen {
		if p.count != len(series) {
			continue
		}
		finite := true
		for code, s := range series {
			v := s.Values[index[code][k]]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				finite = false
				break
			}
		}
		if finite {
			common = append(common, p)
		}
	}
	sort.Slice(common, func(i, j int) bool {
		return common[i].date.Before(common[j].date)
	})

	if len(common) < minWindow {
		return nil, fmt.Errorf("%d common dates, need %d: %w", len(common), minWindow, ErrInsufficientOverlap)
	}

	out := &models.AlignedReturns{
		Dates:  make([]time.Time, len(common)),
		Series: make(map[string]*models.ReturnSeries, len(series)),
	}
	for i, p := range common {
		out.Dates[i] = p.date
	}
	for code, s := range series {
		values := make([]float64, len(common))
		for i, p := range common {
			values[i] = s.Values[index[code][dateKey(p.date)]]
		}
		dates := make([]time.Time, len(out.Dates))
		copy(dates, out.Dates)
		out.Series[code] = &models.ReturnSeries{Code: s.Code, Dates: dates, Values: values}
	}
	return out, nil
}

// AlignPair aligns an asset against a benchmark and returns the two value
// slices ready for Beta and TrackingError.
func AlignPair(asset, benchmark *models.ReturnSeries, minWindow int) ([]float64, []float64, error) {
	if asset == nil || benchmark == nil {
		return nil, nil, fmt.Errorf("missing series: %w", ErrInsufficientOverlap)
	}
	const a, b = "asset", "benchmark"
	aligned, err := Align(map[string]*models.ReturnSeries{a: asset, b: benchmark}, minWindow)
	if err != nil {
		return nil, nil, err
	}
	return aligned.Values(a), aligned.Values(b), nil
}
