package backtest

import (
	"fmt"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog/log"
)

// Compile-time interface check.
var _ Strategy = (*SMACross)(nil)

// SMACross buys when the fast simple moving average crosses above the slow
// one and sells the position when it crosses back below.
type SMACross struct {
	Fast int
	Slow int

	fast  []float64
	slow  []float64
	cross []int
}

func NewSMACross(fast, slow int) *SMACross {
	return &SMACross{Fast: fast, Slow: slow}
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma-cross(%d,%d)", s.Fast, s.Slow)
}

func (s *SMACross) Init(c *Context) error {
	if s.Fast <= 0 || s.Slow <= 0 || s.Fast >= s.Slow {
		return fmt.Errorf("invalid periods fast=%d slow=%d", s.Fast, s.Slow)
	}
	if c.Len() < s.Slow {
		return fmt.Errorf("need at least %d bars, have %d", s.Slow, c.Len())
	}
	s.fast = talib.Sma(c.Closes(), s.Fast)
	s.slow = talib.Sma(c.Closes(), s.Slow)
	s.cross = crossovers(s.fast, s.slow, s.Slow-1)
	return nil
}

// crossovers marks each bar where fast-slow changes sign against the last
// non-zero difference seen since bar from, so touching averages still cross.
func crossovers(fast, slow []float64, from int) []int {
	out := make([]int, len(fast))
	last := 0
	for i := from; i < len(fast); i++ {
		cur := sign(fast[i] - slow[i])
		if cur == 0 {
			continue
		}
		if last != 0 && cur != last {
			out[i] = cur
		}
		last = cur
	}
	return out
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Crossover is +1 when fast crossed above slow on bar i, -1 when it crossed
// below, 0 otherwise.
func (s *SMACross) Crossover(i int) int {
	if i < 0 || i >= len(s.cross) {
		return 0
	}
	return s.cross[i]
}

func (s *SMACross) Next(c *Context) {
	bar := c.Bar()
	switch cross := s.Crossover(c.Index()); {
	case !c.InMarket() && cross > 0:
		c.Buy()
		log.Info().Str("date", bar.Date.Format("2006-01-02")).Str("price", bar.Close.StringFixed(2)).Msg("buy signal")
	case c.InMarket() && cross < 0:
		c.Sell()
		log.Info().Str("date", bar.Date.Format("2006-01-02")).Str("price", bar.Close.StringFixed(2)).Msg("sell signal")
	}
}
