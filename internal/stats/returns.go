package stats

import (
	"fmt"
	"time"

	"github.com/dyike/QuantDemo/internal/models"
)

// Returns derives simple daily returns from a price series. The result is one
// element shorter than the input and is dated by the later close. A zero
// previous close yields a non-finite value which Align later discards.
func Returns(prices *models.PriceSeries) (*models.ReturnSeries, error) {
	if prices == nil || prices.Len() < MinWindow {
		n := 0
		if prices != nil {
			n = prices.Len()
		}
		return nil, fmt.Errorf("%d prices, need %d: %w", n, MinWindow, ErrInsufficientOverlap)
	}

	closes := prices.Closes()
	out := &models.ReturnSeries{
		Code:   prices.Code,
		Dates:  make([]time.Time, 0, len(closes)-1),
		Values: make([]float64, 0, len(closes)-1),
	}
	for i := 1; i < len(closes); i++ {
		out.Dates = append(out.Dates, prices.Bars[i].Date)
		out.Values = append(out.Values, closes[i]/closes[i-1]-1)
	}
	return out, nil
}

// ReturnsBatch converts every series, collecting per-code failures instead of
// stopping at the first one.
func ReturnsBatch(prices map[string]*models.PriceSeries) (map[string]*models.ReturnSeries, map[string]error) {
	out := make(map[string]*models.ReturnSeries, len(prices))
	var failed map[string]error
	for code, p := range prices {
		r, err := Returns(p)
		if err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[code] = err
			continue
		}
		out[code] = r
	}
	return out, failed
}
