// Package backtest replays daily bars through a strategy with a single
// instrument, market orders and a cash broker.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/dyike/QuantDemo/internal/models"
)

var ErrNoData = errors.New("backtest: no bars to replay")

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type order struct {
	side Side
	size decimal.Decimal
}

// Trade is a filled order.
type Trade struct {
	Side       Side
	Date       time.Time
	Price      decimal.Decimal
	Size       decimal.Decimal
	Commission decimal.Decimal
}

// Strategy reacts to each bar through the Context.
type Strategy interface {
	Name() string
	// Init runs once before the first bar with the full close history
	// available for indicator precomputation.
	Init(c *Context) error
	// Next runs once per bar after pending orders have been filled.
	Next(c *Context)
}

type Engine struct {
	Cash decimal.Decimal
	// Stake is the order size used by Buy and Sell.
	Stake decimal.Decimal
	// Commission is a fraction of traded value, e.g. 0.0003.
	Commission decimal.Decimal
}

func NewEngine(cash float64) *Engine {
	return &Engine{
		Cash:       decimal.NewFromFloat(cash),
		Stake:      decimal.NewFromInt(1),
		Commission: decimal.Zero,
	}
}

type Result struct {
	Strategy   string
	Code       string
	Start      time.Time
	End        time.Time
	StartValue decimal.Decimal
	FinalValue decimal.Decimal
	Position   decimal.Decimal
	Trades     []Trade
	// Rejected counts orders the broker could not afford.
	Rejected int
}

// ReturnPct is the total return over the run in percent.
func (r *Result) ReturnPct() float64 {
	if r.StartValue.IsZero() {
		return 0
	}
	return r.FinalValue.Div(r.StartValue).Sub(decimal.NewFromInt(1)).InexactFloat64() * 100
}

// Run replays series through strategy. Orders placed on bar i fill at the
// open of bar i+1; orders still pending after the last bar are dropped.
func (e *Engine) Run(ctx context.Context, series *models.PriceSeries, strategy Strategy) (*Result, error) {
	if series == nil || series.Len() == 0 {
		return nil, ErrNoData
	}

	c := &Context{
		series: series,
		closes: series.Closes(),
		cash:   e.Cash,
		stake:  e.Stake,
	}
	if err := strategy.Init(c); err != nil {
		return nil, fmt.Errorf("init %s: %w", strategy.Name(), err)
	}

	result := &Result{
		Strategy:   strategy.Name(),
		Code:       series.Code,
		Start:      series.Bars[0].Date,
		End:        series.Bars[series.Len()-1].Date,
		StartValue: e.Cash,
	}

	for i, bar := range series.Bars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.index = i

		pending := c.pending
		c.pending = nil
		for _, o := range pending {
			trade, ok := e.fill(c, o, bar)
			if !ok {
				result.Rejected++
				log.Debug().Str("side", string(o.side)).Str("date", bar.Date.Format("2006-01-02")).
					Msg("order rejected: insufficient cash or position")
				continue
			}
			result.Trades = append(result.Trades, trade)
		}

		strategy.Next(c)
	}

	result.Position = c.position
	result.FinalValue = c.Value()
	return result, nil
}

func (e *Engine) fill(c *Context, o order, bar models.Bar) (Trade, bool) {
	price := bar.Open
	value := price.Mul(o.size)
	commission := value.Mul(e.Commission)

	switch o.side {
	case Buy:
		cost := value.Add(commission)
		if cost.GreaterThan(c.cash) {
			return Trade{}, false
		}
		c.cash = c.cash.Sub(cost)
		c.position = c.position.Add(o.size)
	case Sell:
		if o.size.GreaterThan(c.position) {
			return Trade{}, false
		}
		c.cash = c.cash.Add(value).Sub(commission)
		c.position = c.position.Sub(o.size)
	}

	return Trade{
		Side:       o.side,
		Date:       bar.Date,
		Price:      price,
		Size:       o.size,
		Commission: commission,
	}, true
}

// Context is the strategy's view of the run at the current bar.
type Context struct {
	series   *models.PriceSeries
	closes   []float64
	index    int
	cash     decimal.Decimal
	position decimal.Decimal
	stake    decimal.Decimal
	pending  []order
}

// Index is the position of the current bar in the series.
func (c *Context) Index() int { return c.index }

func (c *Context) Bar() models.Bar { return c.series.Bars[c.index] }

// Closes returns every close in the series, including future ones; only
// Init should look past Index.
func (c *Context) Closes() []float64 { return c.closes }

func (c *Context) Len() int { return len(c.closes) }

func (c *Context) Cash() decimal.Decimal { return c.cash }

func (c *Context) Position() decimal.Decimal { return c.position }

// InMarket reports whether a position is held.
func (c *Context) InMarket() bool { return c.position.IsPositive() }

// Value marks the position to the current close.
func (c *Context) Value() decimal.Decimal {
	return c.cash.Add(c.position.Mul(c.Bar().Close))
}

// Buy places a market order for one stake.
func (c *Context) Buy() {
	c.pending = append(c.pending, order{side: Buy, size: c.stake})
}

// Sell places a market order to sell one stake.
func (c *Context) Sell() {
	c.pending = append(c.pending, order{side: Sell, size: c.stake})
}
