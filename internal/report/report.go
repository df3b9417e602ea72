// Package report renders demo results as styled text tables.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/QuantDemo/internal/backtest"
	"github.com/dyike/QuantDemo/internal/stats"
	"github.com/dyike/QuantDemo/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

const ruleWidth = 110

// Meta describes the run a table belongs to.
type Meta struct {
	Benchmark     string
	BenchmarkName string
	Start         time.Time
	End           time.Time
	// TradingDays is the length of the aligned benchmark index.
	TradingDays int
	Calls       int
}

type BetaRow struct {
	Code        string
	Name        string
	Beta        float64
	Volatility  float64 // annualized, percent
	Correlation float64
	Points      int
}

type RiskRow struct {
	Code        string
	Name        string
	Beta        float64
	Correlation float64
	Risk        stats.AnnualizedRisk
	Points      int
}

// Failure is an instrument that was skipped, with the reason shown to the user.
type Failure struct {
	Code   string
	Name   string
	Reason string
}

func rule(ch string) string {
	return strings.Repeat(ch, ruleWidth)
}

// pad right-pads s to width display cells; CJK names take two cells per rune.
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func writeHeader(w io.Writer, title string, meta Meta) {
	fmt.Fprintln(w, rule("="))
	fmt.Fprintln(w, titleStyle.Render(title))
	bench := meta.Benchmark
	if meta.BenchmarkName != "" {
		bench = fmt.Sprintf("%s %s", meta.Benchmark, meta.BenchmarkName)
	}
	fmt.Fprintf(w, "Benchmark: %s  Range: %s ~ %s (%d trading days)  Provider calls: %d\n",
		bench, meta.Start.Format("2006-01-02"), meta.End.Format("2006-01-02"), meta.TradingDays, meta.Calls)
	fmt.Fprintln(w, rule("="))
}

func writeFailures(w io.Writer, failures []Failure) {
	if len(failures) == 0 {
		return
	}
	sorted := append([]Failure(nil), failures...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	fmt.Fprintln(w)
	fmt.Fprintln(w, errorStyle.Render("Failed:"))
	fmt.Fprintln(w, rule("-"))
	for _, f := range sorted {
		fmt.Fprintf(w, "  %s %s %s\n", pad(f.Code, 12), pad(f.Name, 12), f.Reason)
	}
}

type summary struct {
	min, max, mean float64
}

func summarize(values []float64) summary {
	if len(values) == 0 {
		return summary{}
	}
	s := summary{min: math.Inf(1), max: math.Inf(-1)}
	var sum float64
	for _, v := range values {
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
		sum += v
	}
	s.mean = sum / float64(len(values))
	return s
}

// Beta writes the beta table sorted by beta, highest first.
func Beta(w io.Writer, meta Meta, rows []BetaRow, failures []Failure) {
	sorted := append([]BetaRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Beta > sorted[j].Beta })

	writeHeader(w, "Beta vs benchmark", meta)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%4s %-12s %s %8s %10s %8s %6s",
		"Rank", "Code", pad("Name", 12), "Beta", "Vol", "Corr", "Points")))
	fmt.Fprintln(w, rule("-"))

	betas := make([]float64, len(sorted))
	for i, r := range sorted {
		betas[i] = r.Beta
		fmt.Fprintf(w, "%4d %-12s %s %8.4f %9.2f%% %8.4f %6d\n",
			i+1, r.Code, pad(r.Name, 12), r.Beta, r.Volatility, r.Correlation, r.Points)
	}

	writeFailures(w, failures)
	fmt.Fprintln(w, rule("="))

	fmt.Fprintf(w, "Succeeded: %d  Failed: %d\n", len(sorted), len(failures))
	if len(sorted) > 0 {
		s := summarize(betas)
		fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("Beta range: [%.2f, %.2f]  mean: %.2f", s.min, s.max, s.mean)))
	}
	fmt.Fprintln(w, rule("="))
}

// Risk writes the beta and tracking-error table sorted by beta, highest first.
func Risk(w io.Writer, meta Meta, rows []RiskRow, failures []Failure) {
	sorted := append([]RiskRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Beta > sorted[j].Beta })

	writeHeader(w, "Beta and tracking error vs benchmark", meta)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%4s %-12s %s %6s %9s %9s %9s %9s %8s %9s %8s %6s",
		"Rank", "Code", pad("Name", 12), "Beta", "Vol", "BenchVol", "System", "Resid", "Resid%", "TE", "Corr", "Points")))
	fmt.Fprintln(w, rule("-"))

	var betas, vols, benchVols, systematic, residual, ratios, tes []float64
	for i, r := range sorted {
		k := r.Risk
		betas = append(betas, r.Beta)
		vols = append(vols, k.Volatility)
		benchVols = append(benchVols, k.BenchmarkVolatility)
		systematic = append(systematic, k.Systematic)
		residual = append(residual, k.Residual)
		ratios = append(ratios, k.ResidualRatio)
		tes = append(tes, k.TrackingError)

		fmt.Fprintf(w, "%4d %-12s %s %6.2f %8.2f%% %8.2f%% %8.2f%% %8.2f%% %7.1f%% %8.2f%% %8.4f %6d\n",
			i+1, r.Code, pad(r.Name, 12), r.Beta, k.Volatility, k.BenchmarkVolatility, k.Systematic,
			k.Residual, k.ResidualRatio, k.TrackingError, r.Correlation, r.Points)
	}

	writeFailures(w, failures)
	fmt.Fprintln(w, rule("="))

	fmt.Fprintf(w, "Succeeded: %d  Failed: %d\n", len(sorted), len(failures))
	if len(sorted) > 0 {
		b := summarize(betas)
		te := summarize(tes)
		fmt.Fprintf(w, "Beta range: [%.2f, %.2f]  mean: %.2f\n", b.min, b.max, b.mean)
		fmt.Fprintf(w, "Mean volatility: %.2f%%  mean benchmark volatility: %.2f%%\n",
			summarize(vols).mean, summarize(benchVols).mean)
		fmt.Fprintf(w, "Mean systematic risk: %.2f%%  mean residual risk: %.2f%%\n",
			summarize(systematic).mean, summarize(residual).mean)
		fmt.Fprintf(w, "Mean residual share: %.1f%%\n", summarize(ratios).mean)
		fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("Tracking error range: [%.2f%%, %.2f%%]  mean: %.2f%%",
			te.min, te.max, te.mean)))
	}
	fmt.Fprintln(w, rule("="))
}

// Backtest writes the run summary followed by the trade list.
func Backtest(w io.Writer, name string, r *backtest.Result) {
	fmt.Fprintln(w, rule("="))
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s %s %s", r.Strategy, r.Code, name)))
	fmt.Fprintf(w, "Range: %s ~ %s\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Fprintln(w, rule("-"))

	fmt.Fprintf(w, "Starting value: %s\n", r.StartValue.StringFixed(2))
	fmt.Fprintf(w, "Final value:    %s\n", r.FinalValue.StringFixed(2))
	ret := r.ReturnPct()
	style := positiveStyle
	if ret < 0 {
		style = negativeStyle
	}
	fmt.Fprintf(w, "Return:         %s\n", style.Render(fmt.Sprintf("%.2f%%", ret)))
	fmt.Fprintf(w, "Open position:  %s\n", r.Position.String())

	fmt.Fprintln(w, rule("-"))
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Trades (%d)", len(r.Trades))))
	for _, t := range r.Trades {
		fmt.Fprintf(w, "  %s %-4s %s @ %s\n", t.Date.Format("2006-01-02"), t.Side, t.Size.String(), t.Price.StringFixed(2))
	}
	if r.Rejected > 0 {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Rejected orders: %d", r.Rejected)))
	}
	fmt.Fprintln(w, rule("="))
}

// Runs lists recorded runs in the order given.
func Runs(w io.Writer, runs []storage.RunWithMeta) {
	fmt.Fprintln(w, rule("="))
	fmt.Fprintln(w, titleStyle.Render("Recorded runs"))
	fmt.Fprintln(w, rule("="))
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		fmt.Fprintln(w, rule("="))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%6s %-16s %-10s %-19s %-8s %6s %s",
		"ID", "Demo", "Benchmark", "Range", "Status", "Calls", "Created")))
	fmt.Fprintln(w, rule("-"))
	for _, r := range runs {
		fmt.Fprintf(w, "%6d %-16s %-10s %-19s %s %6d %s\n",
			r.ID, r.Demo, r.Benchmark, r.StartDate+"~"+r.EndDate, statusCell(r.Status), r.Calls, r.CreatedAt)
	}
	fmt.Fprintln(w, rule("="))
}

// RunMetrics writes one recorded run and its per-instrument metrics.
func RunMetrics(w io.Writer, run storage.RunWithMeta, metrics []storage.MetricRecord) {
	fmt.Fprintln(w, rule("="))
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Run %d: %s", run.ID, run.Demo)))
	fmt.Fprintf(w, "Benchmark: %s  Range: %s ~ %s  Status: %s  Provider calls: %d\n",
		run.Benchmark, run.StartDate, run.EndDate, run.Status, run.Calls)
	fmt.Fprintln(w, rule("="))
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-12s %s %8s %9s %8s %9s %9s %6s",
		"Code", pad("Name", 12), "Beta", "Vol", "Corr", "TE", "Return", "Points")))
	fmt.Fprintln(w, rule("-"))

	var failed []Failure
	for _, m := range metrics {
		if m.Error != "" {
			failed = append(failed, Failure{Code: m.Code, Name: m.Name, Reason: m.Error})
			continue
		}
		fmt.Fprintf(w, "%-12s %s %8s %9s %8s %9s %9s %6d\n",
			m.Code, pad(m.Name, 12), number(m.Beta, "%.4f"), number(m.Volatility, "%.2f%%"),
			number(m.Correlation, "%.4f"), number(m.TrackingError, "%.2f%%"), number(m.ReturnPct, "%.2f%%"), m.DataPoints)
	}
	writeFailures(w, failed)
	fmt.Fprintln(w, rule("="))
	fmt.Fprintf(w, "Instruments: %d  Failed: %d\n", len(metrics), len(failed))
	fmt.Fprintln(w, rule("="))
}

func statusCell(status string) string {
	cell := fmt.Sprintf("%-8s", status)
	if status == storage.StatusError {
		return errorStyle.Render(cell)
	}
	return cell
}

// number formats v with format, or "-" for values that were not recorded.
func number(v float64, format string) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf(format, v)
}
