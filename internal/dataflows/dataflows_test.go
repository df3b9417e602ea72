package dataflows

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/QuantDemo/internal/models"
)

var (
	rangeStart = time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)
)

// fakeSource answers every code with the same three bars unless it is listed
// in missing, and records each request.
type fakeSource struct {
	limit    map[Market]int
	missing  map[string]bool
	failWith error
	requests []BatchRequest
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) BatchLimit(m Market, rows int) int { return f.limit[m] }

func (f *fakeSource) FetchBars(ctx context.Context, req BatchRequest) (map[string][]models.Bar, error) {
	f.requests = append(f.requests, req)
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make(map[string][]models.Bar)
	for _, code := range req.Codes {
		if f.missing[code] {
			continue
		}
		// newest first, as the real provider returns them
		out[code] = []models.Bar{
			{Date: req.Start.AddDate(0, 0, 2), Close: decimal.NewFromFloat(11)},
			{Date: req.Start.AddDate(0, 0, 1), Close: decimal.NewFromFloat(10.5)},
			{Date: req.Start, Close: decimal.NewFromFloat(10)},
		}
	}
	return out, nil
}

func universe25() []string {
	ids := []string{
		"600519", "600036", "601318", "600276", "600887", "601012", "600848", "601888",
		"000858", "000333", "002594", "002475", "000001", "002415", "300750", "600900",
		"601166", "600009", "601398", "600030", "688981", "688041", "000002", "601127",
		"9988",
	}
	return append(ids, "000300")
}

func TestFetchPricesBatchesIntoFewCalls(t *testing.T) {
	src := NewTushareSource(testConfig("http://unused", "token"))
	fake := &fakeSource{limit: map[Market]int{
		MarketAShare: src.BatchLimit(MarketAShare, expectedRows(rangeStart, rangeEnd)),
		MarketHK:     src.BatchLimit(MarketHK, expectedRows(rangeStart, rangeEnd)),
		MarketIndex:  1,
	}}

	result, err := NewAdapter([]Source{fake}).FetchPrices(context.Background(), universe25(), rangeStart, rangeEnd)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Calls)
	assert.Len(t, fake.requests, 3)
	assert.Empty(t, result.Failed)
	assert.Len(t, result.Series, 26)

	bench := result.Series["000300"]
	require.NotNil(t, bench)
	assert.Equal(t, "000300.SH", bench.Code)
	assert.Equal(t, []float64{10, 10.5, 11}, bench.Closes())
	assert.Equal(t, "09988.HK", result.Series["9988"].Code)
}

func TestFetchPricesRespectsBatchSize(t *testing.T) {
	fake := &fakeSource{limit: map[Market]int{MarketAShare: 100}}
	ids := []string{"600519", "600036", "601318", "600276", "600887"}

	result, err := NewAdapter([]Source{fake}, WithBatchSize(2)).FetchPrices(context.Background(), ids, rangeStart, rangeEnd)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Calls)
	assert.Equal(t, []string{"600519.SH", "600036.SH"}, fake.requests[0].Codes)
	assert.Equal(t, []string{"600887.SH"}, fake.requests[2].Codes)
}

func TestFetchPricesMissingDataDoesNotAbortBatch(t *testing.T) {
	fake := &fakeSource{
		limit:   map[Market]int{MarketAShare: 10},
		missing: map[string]bool{"600036.SH": true},
	}

	result, err := NewAdapter([]Source{fake}).FetchPrices(context.Background(), []string{"600519", "600036"}, rangeStart, rangeEnd)
	require.NoError(t, err)

	assert.Contains(t, result.Series, "600519")
	require.Contains(t, result.Failed, "600036")

	var du *DataUnavailableError
	require.True(t, errors.As(result.Failed["600036"], &du))
	assert.Equal(t, "600036", du.Code)
	assert.True(t, errors.Is(result.Failed["600036"], ErrDataUnavailable))
}

func TestFetchPricesAuthErrorIsFatal(t *testing.T) {
	fake := &fakeSource{
		limit:    map[Market]int{MarketAShare: 10},
		failWith: &AuthError{Source: "fake", Msg: "bad token"},
	}

	result, err := NewAdapter([]Source{fake}).FetchPrices(context.Background(), []string{"600519"}, rangeStart, rangeEnd)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestFetchPricesTransportErrorMarksChunkUnavailable(t *testing.T) {
	fake := &fakeSource{
		limit:    map[Market]int{MarketAShare: 10},
		failWith: fmt.Errorf("connection reset"),
	}

	result, err := NewAdapter([]Source{fake}).FetchPrices(context.Background(), []string{"600519", "600036"}, rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Empty(t, result.Series)
	assert.Len(t, result.Failed, 2)
	assert.True(t, errors.Is(result.Failed["600519"], ErrDataUnavailable))
}

func TestFetchPricesUnsupportedAndInvalid(t *testing.T) {
	fake := &fakeSource{limit: map[Market]int{MarketAShare: 10}}

	result, err := NewAdapter([]Source{fake}).FetchPrices(context.Background(), []string{"AAPL", "600519.XX"}, rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Calls)
	assert.True(t, errors.Is(result.Failed["AAPL"], ErrUnsupportedMarket))
	assert.True(t, errors.Is(result.Failed["600519.XX"], ErrInvalidSymbol))
}

func TestFetchPricesDuplicateIdentifiers(t *testing.T) {
	fake := &fakeSource{limit: map[Market]int{MarketAShare: 10}}

	result, err := NewAdapter([]Source{fake}).FetchPrices(context.Background(), []string{"600848", "600848.SH"}, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)
	assert.Equal(t, []string{"600848.SH"}, fake.requests[0].Codes)
	assert.Contains(t, result.Series, "600848")
	assert.Contains(t, result.Series, "600848.SH")
}

func TestFetchPricesUsesCache(t *testing.T) {
	fake := &fakeSource{limit: map[Market]int{MarketAShare: 10}}
	cache := NewCacheManager(t.TempDir(), time.Hour, true)
	adapter := NewAdapter([]Source{fake}, WithCache(cache))

	first, err := adapter.FetchPrices(context.Background(), []string{"600519"}, rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Calls)

	second, err := adapter.FetchPrices(context.Background(), []string{"600519"}, rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Calls)
	assert.Len(t, fake.requests, 1)
	assert.Equal(t, first.Series["600519"].Closes(), second.Series["600519"].Closes())
}

func TestFetchReturns(t *testing.T) {
	fake := &fakeSource{limit: map[Market]int{MarketAShare: 10, MarketIndex: 1}}

	result, err := NewAdapter([]Source{fake}).FetchReturns(context.Background(), []string{"600519", "000300"}, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Contains(t, result.Series, "600519")
	r := result.Series["600519"]
	require.Len(t, r.Values, 2)
	assert.InDelta(t, 0.05, r.Values[0], 1e-9)
	assert.Equal(t, 2, result.Calls)
}

func TestFetchSeries(t *testing.T) {
	fake := &fakeSource{
		limit:   map[Market]int{MarketAShare: 10},
		missing: map[string]bool{"600036.SH": true},
	}
	adapter := NewAdapter([]Source{fake})

	s, err := adapter.FetchSeries(context.Background(), "600848", rangeStart, rangeEnd)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())

	_, err = adapter.FetchSeries(context.Background(), "600036", rangeStart, rangeEnd)
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestFailedIDsSorted(t *testing.T) {
	ids := FailedIDs(map[string]error{"b": nil, "a": nil, "c": nil})
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
