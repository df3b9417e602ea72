package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/QuantDemo/config"
	"github.com/dyike/QuantDemo/internal/stats"
)

func testConfig(baseURL, token string) *config.Config {
	return &config.Config{
		TushareBaseURL: baseURL,
		TushareToken:   token,
		RequestTimeout: 5 * time.Second,
		RatePerMinute:  6000,
		BatchSize:      50,
	}
}

func tushareServer(t *testing.T, handler func(req tushareRequest) interface{}) (*httptest.Server, *[]tushareRequest) {
	t.Helper()
	var seen []tushareRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tushareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		seen = append(seen, req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(req))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func dailyPayload(items ...[]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"request_id": "r1",
		"code":       0,
		"msg":        "",
		"data": map[string]interface{}{
			"fields":   []string{"ts_code", "trade_date", "open", "high", "low", "close", "vol"},
			"items":    items,
			"has_more": false,
		},
	}
}

func TestTushareFetchBarsParsesRows(t *testing.T) {
	srv, seen := tushareServer(t, func(req tushareRequest) interface{} {
		return dailyPayload(
			[]interface{}{"600848.SH", "20241009", 12.1, 12.5, 11.9, 12.34, 10500.5},
			[]interface{}{"600848.SH", "20241008", 11.8, 12.2, 11.7, 12.0, 9800.0},
			[]interface{}{"600519.SH", "20241008", 1500, 1510, 1490, 1505.55, 3000},
		)
	})

	src := NewTushareSource(testConfig(srv.URL, "secret"))
	bars, err := src.FetchBars(context.Background(), BatchRequest{
		Market: MarketAShare,
		Codes:  []string{"600848.SH", "600519.SH"},
		Start:  time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, 10, 9, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "daily", req.APIName)
	assert.Equal(t, "secret", req.Token)
	assert.Equal(t, "600848.SH,600519.SH", req.Params["ts_code"])
	assert.Equal(t, "20241007", req.Params["start_date"])
	assert.Equal(t, "20241009", req.Params["end_date"])

	require.Len(t, bars["600848.SH"], 2)
	first := bars["600848.SH"][0]
	assert.Equal(t, time.Date(2024, 10, 9, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "12.34", first.Close.String())
	assert.InDelta(t, 10500.5, first.Volume, 1e-9)
	require.Len(t, bars["600519.SH"], 1)
	assert.Equal(t, "1505.55", bars["600519.SH"][0].Close.String())
}

func TestTushareEndpointPerMarket(t *testing.T) {
	srv, seen := tushareServer(t, func(req tushareRequest) interface{} {
		return dailyPayload()
	})
	src := NewTushareSource(testConfig(srv.URL, "secret"))

	for market, api := range map[Market]string{MarketHK: "hk_daily", MarketIndex: "index_daily"} {
		_, err := src.FetchBars(context.Background(), BatchRequest{Market: market, Codes: []string{"X"}})
		require.NoError(t, err)
		assert.Equal(t, api, (*seen)[len(*seen)-1].APIName)
	}

	_, err := src.FetchBars(context.Background(), BatchRequest{Market: MarketUS, Codes: []string{"AAPL"}})
	assert.True(t, errors.Is(err, ErrUnsupportedMarket))
}

func TestTushareMissingTokenIsAuthError(t *testing.T) {
	srv, seen := tushareServer(t, func(req tushareRequest) interface{} {
		return dailyPayload()
	})

	src := NewTushareSource(testConfig(srv.URL, ""))
	_, err := src.FetchBars(context.Background(), BatchRequest{Market: MarketAShare, Codes: []string{"600848.SH"}})

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.True(t, errors.Is(err, ErrAuth))
	assert.Empty(t, *seen)
}

func TestTushareRejectedTokenIsAuthError(t *testing.T) {
	srv, _ := tushareServer(t, func(req tushareRequest) interface{} {
		return map[string]interface{}{"code": -2001, "msg": "您的token不对，请确认。", "data": nil}
	})

	src := NewTushareSource(testConfig(srv.URL, "wrong"))
	_, err := src.FetchBars(context.Background(), BatchRequest{Market: MarketAShare, Codes: []string{"600848.SH"}})
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestTushareProviderErrorIsNotAuth(t *testing.T) {
	srv, _ := tushareServer(t, func(req tushareRequest) interface{} {
		return map[string]interface{}{"code": 40203, "msg": "exceeded call limit", "data": nil}
	})

	src := NewTushareSource(testConfig(srv.URL, "ok"))
	_, err := src.FetchBars(context.Background(), BatchRequest{Market: MarketAShare, Codes: []string{"600848.SH"}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAuth))
}

func TestTushareHTTPUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewTushareSource(testConfig(srv.URL, "ok"))
	_, err := src.FetchBars(context.Background(), BatchRequest{Market: MarketAShare, Codes: []string{"600848.SH"}})
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestTushareEmptyResponse(t *testing.T) {
	srv, _ := tushareServer(t, func(req tushareRequest) interface{} {
		return map[string]interface{}{"code": 0, "msg": "", "data": map[string]interface{}{"fields": []string{}, "items": []interface{}{}}}
	})

	src := NewTushareSource(testConfig(srv.URL, "ok"))
	bars, err := src.FetchBars(context.Background(), BatchRequest{Market: MarketAShare, Codes: []string{"600848.SH"}})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestTushareSkipsRowsWithoutClose(t *testing.T) {
	srv, _ := tushareServer(t, func(req tushareRequest) interface{} {
		return dailyPayload(
			[]interface{}{"600848.SH", "20241010", 11.0, 11.2, 10.8, 11.0, 900.0},
			[]interface{}{"600848.SH", "20241009", 10.5, 10.9, 10.4, nil, 800.0},
			[]interface{}{"600848.SH", "20241008", nil, nil, nil, 10.0, nil},
			[]interface{}{"600848.SH", "20241007", 9.9, 10.1, 9.8, "n/a", 700.0},
		)
	})

	adapter := NewAdapter([]Source{NewTushareSource(testConfig(srv.URL, "ok"))})
	series, err := adapter.FetchSeries(context.Background(), "600848",
		time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC), time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 2, series.Len())
	assert.Equal(t, []float64{10, 11}, series.Closes())
	// open/high/low/vol stay lenient
	assert.True(t, series.Bars[0].Open.IsZero())

	returns, err := stats.Returns(series)
	require.NoError(t, err)
	require.Equal(t, 1, returns.Len())
	assert.InDelta(t, 0.1, returns.Values[0], 1e-12)
}

func TestToDecimal(t *testing.T) {
	d, ok := toDecimal(json.Number("12.34"))
	require.True(t, ok)
	assert.Equal(t, "12.34", d.String())

	for _, v := range []interface{}{nil, "", "abc", json.Number("x"), true} {
		_, ok := toDecimal(v)
		assert.False(t, ok, "%v", v)
	}
}

func TestTushareThroughAdapter(t *testing.T) {
	srv, seen := tushareServer(t, func(req tushareRequest) interface{} {
		if req.Params["ts_code"] == "000300.SH" {
			return dailyPayload(
				[]interface{}{"000300.SH", "20241009", 1, 1, 1, 3900.0, 1},
				[]interface{}{"000300.SH", "20241008", 1, 1, 1, 4000.0, 1},
			)
		}
		return dailyPayload(
			[]interface{}{"600848.SH", "20241009", 1, 1, 1, 12.0, 1},
			[]interface{}{"600848.SH", "20241008", 1, 1, 1, 10.0, 1},
		)
	})

	adapter := NewAdapter([]Source{NewTushareSource(testConfig(srv.URL, "ok"))})
	result, err := adapter.FetchReturns(context.Background(), []string{"600848", "600036", "000300"},
		time.Date(2024, 10, 8, 0, 0, 0, 0, time.UTC), time.Date(2024, 10, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Len(t, *seen, 2)
	assert.InDelta(t, 0.2, result.Series["600848"].Values[0], 1e-9)
	assert.InDelta(t, -0.025, result.Series["000300"].Values[0], 1e-9)
	assert.True(t, errors.Is(result.Failed["600036"], ErrDataUnavailable))
}
