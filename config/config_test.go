package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets keys for the duration of the test; godotenv never
// overrides variables that are already present, even when empty.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestDefaultConfigReadsDotEnv(t *testing.T) {
	clearEnv(t, "TUSHARE_TOKEN", "QUANTDEMO_START_DATE", "QUANTDEMO_END_DATE", "QUANTDEMO_BATCH_SIZE")

	dir := t.TempDir()
	env := "TUSHARE_TOKEN=abc123\nQUANTDEMO_START_DATE=20230101\nQUANTDEMO_END_DATE=2023-12-31\nQUANTDEMO_BATCH_SIZE=20\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg := DefaultConfigWithRoot(dir)

	assert.Equal(t, "abc123", cfg.TushareToken)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, filepath.Join(dir, "data", "cache"), cfg.DataCacheDir)
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigWithoutDotEnv(t *testing.T) {
	clearEnv(t, "TUSHARE_TOKEN", "QUANTDEMO_START_DATE", "QUANTDEMO_END_DATE")

	cfg := DefaultConfigWithRoot(t.TempDir())

	assert.Empty(t, cfg.TushareToken)
	assert.Equal(t, 0, cfg.RetryCount)
	require.NoError(t, cfg.Validate())
}

func TestMalformedDateFailsValidate(t *testing.T) {
	clearEnv(t, "QUANTDEMO_START_DATE", "QUANTDEMO_END_DATE")
	t.Setenv("QUANTDEMO_START_DATE", "2024/13/45")

	cfg := DefaultConfigWithRoot(t.TempDir())

	// the default is kept but the run must not start on it
	assert.Equal(t, time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUANTDEMO_START_DATE")
	assert.Contains(t, err.Error(), "2024/13/45")

	t.Setenv("QUANTDEMO_START_DATE", "")
	t.Setenv("QUANTDEMO_END_DATE", "tomorrow")
	err = DefaultConfigWithRoot(t.TempDir()).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUANTDEMO_END_DATE")
}

func TestUniverseFileFromEnv(t *testing.T) {
	clearEnv(t, "QUANTDEMO_UNIVERSE")
	assert.Empty(t, DefaultConfigWithRoot(t.TempDir()).UniverseFile)

	t.Setenv("QUANTDEMO_UNIVERSE", " /tmp/universe.yaml ")
	assert.Equal(t, "/tmp/universe.yaml", DefaultConfigWithRoot(t.TempDir()).UniverseFile)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			TushareBaseURL: "http://example.invalid",
			BatchSize:      10,
			RatePerMinute:  60,
			StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	require.NoError(t, base().Validate())

	reversed := base()
	reversed.StartDate, reversed.EndDate = reversed.EndDate, reversed.StartDate
	assert.Error(t, reversed.Validate())

	noBatch := base()
	noBatch.BatchSize = 0
	assert.Error(t, noBatch.Validate())

	noRate := base()
	noRate.RatePerMinute = 0
	assert.Error(t, noRate.Validate())

	negRetry := base()
	negRetry.RetryCount = -1
	assert.Error(t, negRetry.Validate())
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"20241007", "2024-10-07", " 20241007 "} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC), got)
	}

	_, err := ParseDate("07/10/2024")
	assert.Error(t, err)
}
