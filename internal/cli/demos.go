package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dyike/QuantDemo/config"
	"github.com/dyike/QuantDemo/internal/backtest"
	"github.com/dyike/QuantDemo/internal/dataflows"
	"github.com/dyike/QuantDemo/internal/models"
	"github.com/dyike/QuantDemo/internal/report"
	"github.com/dyike/QuantDemo/internal/stats"
	"github.com/dyike/QuantDemo/internal/storage"
	"github.com/dyike/QuantDemo/internal/universe"
)

const (
	// minOverlap is the fewest aligned trading days a stock needs before its
	// beta is reported.
	minOverlap = 100

	backtestCash  = 100000.0
	backtestBars  = 1500
	backtestYears = 7
	smaFast       = 5
	smaSlow       = 20
)

// Env carries what every demo needs.
type Env struct {
	Config   *config.Config
	Adapter  *dataflows.Adapter
	Universe *universe.Universe
	Out      io.Writer
}

// NewEnv wires the data sources, cache and universe from cfg.
func NewEnv(cfg *config.Config, out io.Writer) (*Env, error) {
	u, err := loadUniverse(cfg)
	if err != nil {
		return nil, err
	}

	opts := []dataflows.AdapterOption{dataflows.WithBatchSize(cfg.BatchSize)}
	if cfg.CacheEnabled {
		opts = append(opts, dataflows.WithCache(dataflows.NewCacheManager(cfg.DataCacheDir, cfg.CacheTTL, true)))
	}

	return &Env{
		Config:   cfg,
		Adapter:  dataflows.NewAdapter(newSources(cfg), opts...),
		Universe: u,
		Out:      out,
	}, nil
}

func loadUniverse(cfg *config.Config) (*universe.Universe, error) {
	if cfg.UniverseFile == "" {
		return universe.Load()
	}
	log.Debug().Str("path", cfg.UniverseFile).Msg("loading universe file")
	return universe.LoadFile(cfg.UniverseFile)
}

// newSources orders the sources by preference; the adapter uses the first
// one that serves a market.
func newSources(cfg *config.Config) []dataflows.Source {
	sources := []dataflows.Source{dataflows.NewTushareSource(cfg)}
	if cfg.HasLongportCredentials() {
		lp, err := dataflows.NewLongportSource(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("longport source disabled")
		} else {
			sources = append(sources, lp)
		}
	}
	return append(sources, dataflows.NewYahooFinanceSource())
}

type Demo struct {
	Name    string
	Aliases []string
	Title   string
	Run     func(ctx context.Context, env *Env) error
}

func (d Demo) label() string {
	return fmt.Sprintf("%s - %s", d.Name, d.Title)
}

var Demos = []Demo{
	{
		Name:    "sma",
		Aliases: []string{"sma-crossover", "sma_crossover"},
		Title:   "SMA(5/20) crossover backtest",
		Run:     RunSMACrossover,
	},
	{
		Name:  "beta",
		Title: "Batch beta against the benchmark",
		Run:   RunBeta,
	},
	{
		Name:    "tracking-error",
		Aliases: []string{"tracking_error", "te"},
		Title:   "Beta, tracking error and risk decomposition",
		Run:     RunTrackingError,
	},
}

// FindDemo looks a demo up by name or alias, ignoring case.
func FindDemo(name string) (Demo, bool) {
	for _, d := range Demos {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
		for _, alias := range d.Aliases {
			if strings.EqualFold(alias, name) {
				return d, true
			}
		}
	}
	return Demo{}, false
}

func mustFindDemo(name string) Demo {
	d, ok := FindDemo(name)
	if !ok {
		panic(fmt.Sprintf("unknown demo %q", name))
	}
	return d
}

func (e *Env) recorder(ctx context.Context, demo, benchmark string) *storage.Recorder {
	return storage.NewRecorder(ctx, e.Config.DBPath, storage.RunRecord{
		Demo:      demo,
		Benchmark: benchmark,
		StartDate: e.Config.StartDate.Format(config.DateLayout),
		EndDate:   e.Config.EndDate.Format(config.DateLayout),
	})
}

// RunSMACrossover backtests the SMA crossover strategy on the universe's
// backtest instrument over its most recent bars.
func RunSMACrossover(ctx context.Context, env *Env) error {
	inst := env.Universe.Backtest
	end := env.Config.EndDate
	start := end.AddDate(-backtestYears, 0, 0)

	rec := env.recorder(ctx, "sma", "")
	defer rec.Close()

	series, err := env.Adapter.FetchSeries(ctx, inst.Code, start, end)
	if err != nil {
		rec.Finish(ctx, 0, err)
		return err
	}
	series = lastBars(series, backtestBars)
	log.Info().Str("code", series.Code).Int("bars", series.Len()).
		Str("range", dataflows.FormatDateRange(series.Bars[0].Date, series.Bars[series.Len()-1].Date)).
		Msg("loaded price history")

	result, err := backtest.NewEngine(backtestCash).Run(ctx, series, backtest.NewSMACross(smaFast, smaSlow))
	if err != nil {
		rec.Finish(ctx, 0, err)
		return err
	}

	report.Backtest(env.Out, inst.Name, result)

	rec.Metric(ctx, storage.MetricRecord{
		Code:          series.Code,
		Name:          inst.Name,
		Beta:          math.NaN(),
		Volatility:    math.NaN(),
		Correlation:   math.NaN(),
		TrackingError: math.NaN(),
		ReturnPct:     result.ReturnPct(),
		DataPoints:    series.Len(),
	})
	rec.Finish(ctx, 1, nil)
	return nil
}

func lastBars(series *models.PriceSeries, n int) *models.PriceSeries {
	if series.Len() <= n {
		return series
	}
	return &models.PriceSeries{Code: series.Code, Bars: series.Bars[series.Len()-n:]}
}

// RunBeta computes beta, volatility and correlation for every instrument in
// the universe against the benchmark.
func RunBeta(ctx context.Context, env *Env) error {
	batch, err := measureUniverse(ctx, env, "beta")
	if err != nil {
		return err
	}

	rows := make([]report.BetaRow, 0, len(batch.measured))
	for _, m := range batch.measured {
		rows = append(rows, report.BetaRow{
			Code:        m.code,
			Name:        m.name,
			Beta:        m.beta,
			Volatility:  m.risk.Volatility,
			Correlation: m.correlation,
			Points:      m.points,
		})
	}
	report.Beta(env.Out, batch.meta, rows, batch.failures)
	return nil
}

// RunTrackingError extends RunBeta with tracking error and the split of
// volatility into systematic and residual parts.
func RunTrackingError(ctx context.Context, env *Env) error {
	batch, err := measureUniverse(ctx, env, "tracking-error")
	if err != nil {
		return err
	}

	rows := make([]report.RiskRow, 0, len(batch.measured))
	for _, m := range batch.measured {
		rows = append(rows, report.RiskRow{
			Code:        m.code,
			Name:        m.name,
			Beta:        m.beta,
			Correlation: m.correlation,
			Risk:        m.risk,
			Points:      m.points,
		})
	}
	report.Risk(env.Out, batch.meta, rows, batch.failures)
	return nil
}

type measurement struct {
	code        string
	name        string
	beta        float64
	correlation float64
	risk        stats.AnnualizedRisk
	points      int
}

type batchResult struct {
	meta     report.Meta
	measured []measurement
	failures []report.Failure
}

// measureUniverse fetches the universe and benchmark in one batched call set
// and measures every instrument. Per-instrument failures are collected; only
// authentication and a missing benchmark abort the run.
func measureUniverse(ctx context.Context, env *Env, demo string) (*batchResult, error) {
	u := env.Universe
	cfg := env.Config
	bench := u.Benchmark

	rec := env.recorder(ctx, demo, bench.Code)
	defer rec.Close()

	log.Info().Int("instruments", len(u.Instruments)).Str("benchmark", bench.Code).
		Str("range", dataflows.FormatDateRange(cfg.StartDate, cfg.EndDate)).Msg("fetching returns")

	data, err := env.Adapter.FetchReturns(ctx, u.Codes(), cfg.StartDate, cfg.EndDate)
	if err != nil {
		rec.Finish(ctx, 0, err)
		return nil, err
	}

	benchReturns, ok := data.Series[bench.Code]
	if !ok {
		cause := data.Failed[bench.Code]
		if cause == nil {
			cause = &dataflows.DataUnavailableError{Code: bench.Code}
		}
		err := fmt.Errorf("benchmark: %w", cause)
		rec.Finish(ctx, data.Calls, err)
		return nil, err
	}

	out := &batchResult{
		meta: report.Meta{
			Benchmark:     bench.Code,
			BenchmarkName: bench.Name,
			Start:         cfg.StartDate,
			End:           cfg.EndDate,
			TradingDays:   benchReturns.Len(),
			Calls:         data.Calls,
		},
	}

	for i, inst := range u.Instruments {
		m, err := measure(inst, data, benchReturns)
		if err != nil {
			log.Warn().Str("code", inst.Code).Str("name", inst.Name).Err(err).
				Msgf("[%d/%d] skipped", i+1, len(u.Instruments))
			out.failures = append(out.failures, report.Failure{Code: inst.Code, Name: inst.Name, Reason: failureReason(err)})
			rec.Metric(ctx, storage.MetricRecord{
				Code: inst.Code, Name: inst.Name,
				Beta: math.NaN(), Volatility: math.NaN(), Correlation: math.NaN(), TrackingError: math.NaN(), ReturnPct: math.NaN(),
				Error: err.Error(),
			})
			continue
		}

		log.Info().Str("code", inst.Code).Float64("beta", m.beta).Float64("te", m.risk.TrackingError).
			Msgf("[%d/%d] measured", i+1, len(u.Instruments))
		out.measured = append(out.measured, m)
		rec.Metric(ctx, storage.MetricRecord{
			Code:          inst.Code,
			Name:          inst.Name,
			Beta:          m.beta,
			Volatility:    m.risk.Volatility,
			Correlation:   m.correlation,
			TrackingError: m.risk.TrackingError,
			ReturnPct:     math.NaN(),
			DataPoints:    m.points,
		})
	}

	rec.Finish(ctx, data.Calls, nil)
	return out, nil
}

func measure(inst universe.Instrument, data *dataflows.ReturnsResult, bench *models.ReturnSeries) (measurement, error) {
	if err, failed := data.Failed[inst.Code]; failed {
		return measurement{}, err
	}
	asset, ok := data.Series[inst.Code]
	if !ok {
		return measurement{}, &dataflows.DataUnavailableError{Code: inst.Code}
	}

	a, b, err := stats.AlignPair(asset, bench, minOverlap)
	if err != nil {
		return measurement{}, err
	}
	d, err := stats.Decompose(a, b)
	if err != nil {
		return measurement{}, err
	}
	corr, err := stats.Correlation(a, b)
	if err != nil {
		return measurement{}, err
	}

	return measurement{
		code:        inst.Code,
		name:        inst.Name,
		beta:        d.Beta,
		correlation: corr,
		risk:        d.Annualized(),
		points:      len(a),
	}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, dataflows.ErrInvalidSymbol):
		return "invalid symbol"
	case errors.Is(err, dataflows.ErrUnsupportedMarket):
		return "unsupported market"
	case errors.Is(err, dataflows.ErrDataUnavailable):
		return "data unavailable"
	case errors.Is(err, stats.ErrInsufficientOverlap):
		return err.Error()
	case errors.Is(err, stats.ErrDegenerateInput):
		return "degenerate input"
	default:
		return err.Error()
	}
}
