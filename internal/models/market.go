package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var ErrDuplicateDate = errors.New("duplicate bar date")

// Bar is one daily OHLCV row as delivered by a data source.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume float64         `json:"volume"`
}

// PriceSeries holds the bars of one instrument with strictly increasing dates.
// It is not modified after construction.
type PriceSeries struct {
	Code string `json:"code"`
	Bars []Bar  `json:"bars"`
}

// NewPriceSeries sorts bars ascending by date and rejects duplicates.
// Providers commonly return newest-first.
func NewPriceSeries(code string, bars []Bar) (*PriceSeries, error) {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Date.After(sorted[i-1].Date) {
			return nil, fmt.Errorf("%s on %s: %w", code, sorted[i].Date.Format("2006-01-02"), ErrDuplicateDate)
		}
	}
	return &PriceSeries{Code: code, Bars: sorted}, nil
}

func (p *PriceSeries) Len() int {
	return len(p.Bars)
}

func (p *PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(p.Bars))
	for i, b := range p.Bars {
		dates[i] = b.Date
	}
	return dates
}

// Closes returns close prices as float64 for numeric work.
func (p *PriceSeries) Closes() []float64 {
	closes := make([]float64, len(p.Bars))
	for i, b := range p.Bars {
		closes[i] = b.Close.InexactFloat64()
	}
	return closes
}

func (p *PriceSeries) First() (Bar, bool) {
	if len(p.Bars) == 0 {
		return Bar{}, false
	}
	return p.Bars[0], true
}

func (p *PriceSeries) Last() (Bar, bool) {
	if len(p.Bars) == 0 {
		return Bar{}, false
	}
	return p.Bars[len(p.Bars)-1], true
}

// ReturnSeries holds period-over-period percentage changes. Dates[i] is the
// date of the later of the two closes that produced Values[i].
type ReturnSeries struct {
	Code   string      `json:"code"`
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

func (r *ReturnSeries) Len() int {
	return len(r.Values)
}

// AlignedReturns maps instrument codes to return series that all share Dates.
type AlignedReturns struct {
	Dates  []time.Time
	Series map[string]*ReturnSeries
}

func (a *AlignedReturns) Len() int {
	return len(a.Dates)
}

// Values returns the aligned values for code, or nil when it is absent.
func (a *AlignedReturns) Values(code string) []float64 {
	s, ok := a.Series[code]
	if !ok {
		return nil
	}
	return s.Values
}
