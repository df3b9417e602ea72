// Package dataflows fetches daily price history from market-data providers,
// grouping instruments into as few provider calls as each endpoint allows.
package dataflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dyike/QuantDemo/internal/models"
	"github.com/dyike/QuantDemo/internal/stats"
)

// Adapter provides batched access to the configured sources
type Adapter struct {
	sources   []Source
	resolver  *Resolver
	cache     *CacheManager
	batchSize int
}

type AdapterOption func(*Adapter)

// WithCache stores each provider response so repeated runs over the same
// range are served from disk.
func WithCache(cache *CacheManager) AdapterOption {
	return func(a *Adapter) {
		a.cache = cache
	}
}

// WithIndices replaces DefaultIndices.
func WithIndices(indices []string) AdapterOption {
	return func(a *Adapter) {
		a.resolver = NewResolver(indices)
	}
}

// WithBatchSize caps the number of codes per call below the source's own limit.
func WithBatchSize(n int) AdapterOption {
	return func(a *Adapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// NewAdapter routes each market to the first source that supports it.
func NewAdapter(sources []Source, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		sources:  sources,
		resolver: NewResolver(DefaultIndices),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type group struct {
	source Source
	market Market
	codes  []string // provider codes, in request order
}

// FetchPrices returns one PriceSeries per requested identifier, keyed by the
// identifier as given. Identifiers without data land in Failed as
// DataUnavailableError; an AuthError aborts the whole fetch.
func (a *Adapter) FetchPrices(ctx context.Context, ids []string, start, end time.Time) (*FetchResult, error) {
	result := newFetchResult()
	rows := expectedRows(start, end)

	// provider code -> requested identifiers (the same code may be asked twice)
	requested := make(map[string][]string)
	groups := make(map[string]*group)
	var order []string

	for _, id := range ids {
		inst, err := a.resolver.Resolve(id)
		if err != nil {
			result.Failed[id] = unavailable(id, err)
			continue
		}
		if _, dup := requested[inst.Code]; dup {
			requested[inst.Code] = append(requested[inst.Code], id)
			continue
		}
		src := a.sourceFor(inst.Market, rows)
		if src == nil {
			result.Failed[id] = unavailable(id, fmt.Errorf("%s: %w", inst.Market, ErrUnsupportedMarket))
			continue
		}
		requested[inst.Code] = []string{id}

		key := src.Name() + "/" + inst.Market.String()
		g, ok := groups[key]
		if !ok {
			g = &group{source: src, market: inst.Market}
			groups[key] = g
			order = append(order, key)
		}
		g.codes = append(g.codes, inst.Code)
	}

	for _, key := range order {
		g := groups[key]
		size := g.source.BatchLimit(g.market, rows)
		if a.batchSize > 0 && a.batchSize < size {
			size = a.batchSize
		}

		for from := 0; from < len(g.codes); from += size {
			chunk := g.codes[from:min(from+size, len(g.codes))]
			req := BatchRequest{Market: g.market, Codes: chunk, Start: start, End: end}

			bars, fromCache, err := a.fetch(ctx, g.source, req)
			if !fromCache {
				result.Calls++
			}
			if err != nil {
				var authErr *AuthError
				if errors.As(err, &authErr) {
					return nil, err
				}
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn().Err(err).Str("source", g.source.Name()).Str("market", g.market.String()).
					Int("codes", len(chunk)).Msg("batch failed")
				for _, code := range chunk {
					for _, id := range requested[code] {
						result.Failed[id] = unavailable(id, err)
					}
				}
				continue
			}

			log.Debug().Str("source", g.source.Name()).Str("market", g.market.String()).
				Int("codes", len(chunk)).Bool("cached", fromCache).Msg("batch fetched")

			for _, code := range chunk {
				for _, id := range requested[code] {
					a.collect(result, id, code, bars[code])
				}
			}
		}
	}

	for id, err := range result.Failed {
		log.Info().Str("symbol", id).Err(err).Msg("skipping instrument")
	}
	return result, nil
}

func (a *Adapter) collect(result *FetchResult, id, code string, bars []models.Bar) {
	if len(bars) == 0 {
		result.Failed[id] = unavailable(id, nil)
		return
	}
	series, err := models.NewPriceSeries(code, bars)
	if err != nil {
		result.Failed[id] = unavailable(id, err)
		return
	}
	result.Series[id] = series
}

func (a *Adapter) fetch(ctx context.Context, src Source, req BatchRequest) (map[string][]models.Bar, bool, error) {
	key := map[string]interface{}{
		"market": req.Market.String(),
		"codes":  req.Codes,
		"start":  req.Start.Format("2006-01-02"),
		"end":    req.End.Format("2006-01-02"),
	}

	var cached map[string][]models.Bar
	if a.cache.Get(src.Name(), "daily", key, &cached) {
		return cached, true, nil
	}

	bars, err := src.FetchBars(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if err := a.cache.Set(src.Name(), "daily", key, bars); err != nil {
		log.Warn().Err(err).Msg("cache write failed")
	}
	return bars, false, nil
}

func (a *Adapter) sourceFor(m Market, rows int) Source {
	for _, src := range a.sources {
		if src.BatchLimit(m, rows) > 0 {
			return src
		}
	}
	return nil
}

// FetchSeries fetches a single instrument.
func (a *Adapter) FetchSeries(ctx context.Context, id string, start, end time.Time) (*models.PriceSeries, error) {
	result, err := a.FetchPrices(ctx, []string{id}, start, end)
	if err != nil {
		return nil, err
	}
	if err, ok := result.Failed[id]; ok {
		return nil, err
	}
	return result.Series[id], nil
}

// FetchReturns fetches prices for every identifier and converts them to daily
// returns. Series too short to produce returns are reported in Failed.
func (a *Adapter) FetchReturns(ctx context.Context, ids []string, start, end time.Time) (*ReturnsResult, error) {
	prices, err := a.FetchPrices(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}

	returns, failed := stats.ReturnsBatch(prices.Series)
	out := &ReturnsResult{
		Series: returns,
		Failed: prices.Failed,
		Calls:  prices.Calls,
	}
	for id, err := range failed {
		out.Failed[id] = unavailable(id, err)
	}
	return out, nil
}

// FailedIDs lists the identifiers in failed in sorted order.
func FailedIDs(failed map[string]error) []string {
	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
