package dataflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dyike/QuantDemo/config"
	"github.com/dyike/QuantDemo/internal/models"
)

const (
	// tushareRowLimit is the most rows the daily endpoints return per call.
	tushareRowLimit = 6000
	tushareFields   = "ts_code,trade_date,open,high,low,close,vol"
)

// Response codes that mean the token itself was rejected.
var tushareAuthCodes = map[int]bool{
	-2001: true,
	40101: true,
}

var tushareEndpoints = map[Market]string{
	MarketAShare: "daily",
	MarketHK:     "hk_daily",
	MarketIndex:  "index_daily",
}

// TushareSource handles Tushare Pro API operations
type TushareSource struct {
	client  *resty.Client
	limiter *rate.Limiter
	token   string
}

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	RequestID string `json:"request_id"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      *struct {
		Fields  []string        `json:"fields"`
		RawRows json.RawMessage `json:"items"`
		HasMore bool            `json:"has_more"`
	} `json:"data"`
}

// NewTushareSource creates a new Tushare client from cfg. The token is not
// checked here; FetchBars reports a missing token as an AuthError.
func NewTushareSource(cfg *config.Config) *TushareSource {
	client := resty.New()
	client.SetBaseURL(cfg.TushareBaseURL)
	client.SetTimeout(cfg.RequestTimeout)
	client.SetRetryCount(cfg.RetryCount)
	client.SetHeader("Content-Type", "application/json")

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 1
	}

	return &TushareSource{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		token:   cfg.TushareToken,
	}
}

func (ts *TushareSource) Name() string {
	return "tushare"
}

func (ts *TushareSource) BatchLimit(m Market, rows int) int {
	switch m {
	case MarketAShare, MarketHK:
		if rows < 1 {
			rows = 1
		}
		return max(1, tushareRowLimit/rows)
	case MarketIndex:
		// index_daily takes a single ts_code
		return 1
	default:
		return 0
	}
}

func (ts *TushareSource) FetchBars(ctx context.Context, req BatchRequest) (map[string][]models.Bar, error) {
	if ts.token == "" {
		return nil, &AuthError{Source: ts.Name(), Msg: "TUSHARE_TOKEN is not configured"}
	}

	endpoint, ok := tushareEndpoints[req.Market]
	if !ok {
		return nil, fmt.Errorf("%s market %s: %w", ts.Name(), req.Market, ErrUnsupportedMarket)
	}

	if err := ts.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := tushareRequest{
		APIName: endpoint,
		Token:   ts.token,
		Params: map[string]string{
			"ts_code":    strings.Join(req.Codes, ","),
			"start_date": req.Start.Format(config.DateLayout),
			"end_date":   req.End.Format(config.DateLayout),
		},
		Fields: tushareFields,
	}

	resp, err := ts.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/")
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return nil, &AuthError{Source: ts.Name(), Msg: resp.Status()}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode(), resp.String())
	}

	rows, err := ts.parse(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}

	count := 0
	for _, bars := range rows {
		count += len(bars)
	}
	if count >= tushareRowLimit {
		log.Warn().Str("endpoint", endpoint).Int("rows", count).
			Msg("response reached the provider row limit and may be truncated")
	}

	return rows, nil
}

func (ts *TushareSource) parse(body []byte) (map[string][]models.Bar, error) {
	var resp tushareResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Code != 0 {
		if tushareAuthCodes[resp.Code] || strings.Contains(strings.ToLower(resp.Msg), "token") {
			return nil, &AuthError{Source: ts.Name(), Msg: fmt.Sprintf("code %d: %s", resp.Code, resp.Msg)}
		}
		return nil, fmt.Errorf("provider error %d: %s", resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return map[string][]models.Bar{}, nil
	}

	// items mixes strings and numbers; decode numbers as json.Number so the
	// decimal conversion keeps the provider's precision.
	var items [][]interface{}
	dec := json.NewDecoder(bytes.NewReader(resp.Data.RawRows))
	dec.UseNumber()
	if len(resp.Data.RawRows) > 0 {
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("failed to parse items: %w", err)
		}
	}

	out := make(map[string][]models.Bar)
	if len(items) == 0 {
		return out, nil
	}

	col := make(map[string]int, len(resp.Data.Fields))
	for i, f := range resp.Data.Fields {
		col[f] = i
	}
	for _, f := range strings.Split(tushareFields, ",") {
		if _, ok := col[f]; !ok {
			return nil, fmt.Errorf("response missing field %q", f)
		}
	}

	for _, item := range items {
		if len(item) < len(resp.Data.Fields) {
			continue // skip malformed rows
		}
		code, _ := item[col["ts_code"]].(string)
		dateStr, _ := item[col["trade_date"]].(string)
		date, err := time.ParseInLocation(config.DateLayout, dateStr, time.UTC)
		if code == "" || err != nil {
			continue
		}
		// a null or unparseable close would read as a -100% return
		closePrice, ok := toDecimal(item[col["close"]])
		if !ok {
			log.Debug().Str("code", code).Str("date", dateStr).Msg("skipping row without close")
			continue
		}
		open, _ := toDecimal(item[col["open"]])
		high, _ := toDecimal(item[col["high"]])
		low, _ := toDecimal(item[col["low"]])
		vol, _ := toDecimal(item[col["vol"]])
		bar := models.Bar{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: vol.InexactFloat64(),
		}
		out[code] = append(out[code], bar)
	}
	return out, nil
}

// toDecimal reports false for null cells and values that are not numbers.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err == nil {
			return d, true
		}
	case float64:
		if !math.IsNaN(n) && !math.IsInf(n, 0) {
			return decimal.NewFromFloat(n), true
		}
	case string:
		d, err := decimal.NewFromString(n)
		if err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}
