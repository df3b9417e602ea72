package cli

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/QuantDemo/internal/storage"
)

func TestRootCommandLayout(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"sma", "beta", "tracking-error", "config", "runs"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	cmd, _, err := root.Find([]string{"te"})
	require.NoError(t, err)
	assert.Equal(t, "tracking-error", cmd.Name())
}

func TestConfigShow(t *testing.T) {
	t.Setenv("TUSHARE_TOKEN", "secret-token")
	t.Setenv("QUANTDEMO_START_DATE", "2024-01-02")
	t.Setenv("QUANTDEMO_DB_PATH", "")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "show"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "Tushare Token:        configured")
	assert.NotContains(t, text, "secret-token")
	assert.Contains(t, text, "20240102 ~")
	assert.Contains(t, text, "Run Database:         (disabled)")
}

func TestConfigValidateRejectsReversedRange(t *testing.T) {
	t.Setenv("QUANTDEMO_START_DATE", "20251007")
	t.Setenv("QUANTDEMO_END_DATE", "20241007")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "validate"})
	assert.ErrorContains(t, root.Execute(), "before start date")
}

func seedRuns(t *testing.T, path string) int64 {
	t.Helper()
	ctx := context.Background()
	store, err := storage.Open(path)
	require.NoError(t, err)
	defer store.Close()

	first, err := store.CreateRun(ctx, storage.RunRecord{Demo: "sma", StartDate: "20181007", EndDate: "20251007"})
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, first, storage.StatusDone, 1))

	id, err := store.CreateRun(ctx, storage.RunRecord{Demo: "beta", Benchmark: "000300.SH", StartDate: "20241007", EndDate: "20251007"})
	require.NoError(t, err)
	require.NoError(t, store.InsertMetric(ctx, storage.MetricRecord{
		RunID: id, Code: "600519", Name: "贵州茅台", Beta: 1.1234, Volatility: 22.5,
		Correlation: 0.7, TrackingError: math.NaN(), ReturnPct: math.NaN(), DataPoints: 241,
	}))
	require.NoError(t, store.InsertMetric(ctx, storage.MetricRecord{
		RunID: id, Code: "600848", Name: "上海临港", Beta: math.NaN(), Volatility: math.NaN(),
		Correlation: math.NaN(), TrackingError: math.NaN(), ReturnPct: math.NaN(), Error: "data unavailable",
	}))
	require.NoError(t, store.FinishRun(ctx, id, storage.StatusDone, 2))
	return id
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv("QUANTDEMO_DB_PATH", path)
	id := seedRuns(t, path)

	out, err := executeRoot(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded runs")
	assert.Less(t, strings.Index(out, "beta"), strings.Index(out, "sma"), "newest first")

	out, err = executeRoot(t, "runs", "--limit", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "20181007")

	out, err = executeRoot(t, "runs", strconv.FormatInt(id, 10))
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+strconv.FormatInt(id, 10)+": beta")
	assert.Contains(t, out, "1.1234")
	assert.Contains(t, out, "data unavailable")
	assert.Contains(t, out, "Instruments: 2  Failed: 1")

	_, err = executeRoot(t, "runs", "99")
	assert.ErrorContains(t, err, "run 99 not found")

	_, err = executeRoot(t, "runs", "abc")
	assert.ErrorContains(t, err, "invalid run id")
}

func TestRunsCommandNeedsDatabase(t *testing.T) {
	t.Setenv("QUANTDEMO_DB_PATH", "")
	_, err := executeRoot(t, "runs")
	assert.ErrorContains(t, err, "QUANTDEMO_DB_PATH")

	t.Setenv("QUANTDEMO_DB_PATH", filepath.Join(t.TempDir(), "missing.db"))
	_, err = executeRoot(t, "runs")
	assert.Error(t, err)
}

func TestSetupLoggingLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	var buf bytes.Buffer
	setupLoggingTo(&buf, "debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	setupLoggingTo(&buf, "not-a-level")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	setupLoggingTo(&buf, " WARN ")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
