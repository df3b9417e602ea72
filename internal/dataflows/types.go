package dataflows

import (
	"context"
	"time"

	"github.com/dyike/QuantDemo/internal/models"
)

// Market selects the provider endpoint family for an instrument.
type Market int

const (
	MarketAShare Market = iota
	MarketHK
	MarketIndex
	MarketUS
)

func (m Market) String() string {
	switch m {
	case MarketAShare:
		return "a-share"
	case MarketHK:
		return "hk"
	case MarketIndex:
		return "index"
	case MarketUS:
		return "us"
	default:
		return "unknown"
	}
}

// Instrument is a normalized provider code plus its market.
type Instrument struct {
	Code   string
	Market Market
}

// BatchRequest asks a source for daily bars of several instruments of the
// same market over [Start, End].
type BatchRequest struct {
	Market Market
	Codes  []string
	Start  time.Time
	End    time.Time
}

// Source is a market-data provider able to serve one or more markets.
type Source interface {
	Name() string
	// BatchLimit reports how many codes of market m fit in one call when each
	// code is expected to return about rows bars. Zero means m is unsupported.
	BatchLimit(m Market, rows int) int
	// FetchBars returns bars keyed by the codes in req. Codes the provider
	// knows nothing about are simply absent from the result.
	FetchBars(ctx context.Context, req BatchRequest) (map[string][]models.Bar, error)
}

// FetchResult holds every series that could be fetched, keyed by the
// identifier the caller asked for, plus the per-identifier failures.
type FetchResult struct {
	Series map[string]*models.PriceSeries
	Failed map[string]error
	// Calls counts provider round-trips, cache hits excluded.
	Calls int
}

func newFetchResult() *FetchResult {
	return &FetchResult{
		Series: make(map[string]*models.PriceSeries),
		Failed: make(map[string]error),
	}
}

// ReturnsResult mirrors FetchResult for derived return series.
type ReturnsResult struct {
	Series map[string]*models.ReturnSeries
	Failed map[string]error
	Calls  int
}
