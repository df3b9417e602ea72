package dataflows

import (
	"context"
	"errors"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/QuantDemo/config"
	"github.com/dyike/QuantDemo/internal/models"
)

// longportMaxCount is the most day candlesticks one request may ask for.
const longportMaxCount = 1000

// LongportSource serves HK and US daily candlesticks through the Longport
// quote API. Candlesticks are counted back from today, so ranges far in the
// past need a large count and may be cut off at longportMaxCount.
type LongportSource struct {
	quoteCtx *quote.QuoteContext
	now      func() time.Time
}

func NewLongportSource(cfg *config.Config) (*LongportSource, error) {
	if !cfg.HasLongportCredentials() {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportSource{
		quoteCtx: quoteContext,
		now:      time.Now,
	}, nil
}

func (lp *LongportSource) Name() string {
	return "longport"
}

func (lp *LongportSource) BatchLimit(m Market, rows int) int {
	if m == MarketHK || m == MarketUS {
		return 1
	}
	return 0
}

func (lp *LongportSource) FetchBars(ctx context.Context, req BatchRequest) (map[string][]models.Bar, error) {
	if lp.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}

	count := expectedRows(req.Start, lp.now()) + 10
	if count > longportMaxCount {
		count = longportMaxCount
	}

	out := make(map[string][]models.Bar, len(req.Codes))
	for _, code := range req.Codes {
		sticks, err := lp.quoteCtx.Candlesticks(ctx, longportSymbol(code, req.Market), quote.PeriodDay, int32(count), quote.AdjustTypeNo)
		if err != nil {
			return nil, err
		}
		var bars []models.Bar
		for _, s := range sticks {
			ts := time.Unix(s.Timestamp, 0).UTC()
			date := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
			if date.Before(req.Start) || date.After(req.End) {
				continue
			}
			bars = append(bars, models.Bar{
				Date:   date,
				Open:   deref(s.Open),
				High:   deref(s.High),
				Low:    deref(s.Low),
				Close:  deref(s.Close),
				Volume: float64(s.Volume),
			})
		}
		if len(bars) > 0 {
			out[code] = bars
		}
	}
	return out, nil
}

// longportSymbol maps provider codes to Longport's format: HK codes drop
// leading zeros ("00700.HK" -> "700.HK") and US tickers gain ".US".
func longportSymbol(code string, m Market) string {
	switch m {
	case MarketHK:
		base, _, _ := strings.Cut(code, ".")
		base = strings.TrimLeft(base, "0")
		if base == "" {
			base = "0"
		}
		return base + ".HK"
	case MarketUS:
		return code + ".US"
	default:
		return code
	}
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
