package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dyike/QuantDemo/internal/models"
)

// YahooFinanceSource serves US tickers from the Yahoo chart API, one symbol
// per call.
type YahooFinanceSource struct{}

func NewYahooFinanceSource() *YahooFinanceSource {
	return &YahooFinanceSource{}
}

func (yf *YahooFinanceSource) Name() string {
	return "yahoo"
}

func (yf *YahooFinanceSource) BatchLimit(m Market, rows int) int {
	if m == MarketUS {
		return 1
	}
	return 0
}

func (yf *YahooFinanceSource) FetchBars(ctx context.Context, req BatchRequest) (map[string][]models.Bar, error) {
	out := make(map[string][]models.Bar, len(req.Codes))
	for _, symbol := range req.Codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start, end := req.Start, req.End.AddDate(0, 0, 1)
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)
		var bars []models.Bar
		for iter.Next() {
			bar := iter.Bar()
			ts := time.Unix(int64(bar.Timestamp), 0).UTC()
			bars = append(bars, models.Bar{
				Date:   time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: float64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
		}
		if len(bars) > 0 {
			out[symbol] = bars
		}
	}
	return out, nil
}
