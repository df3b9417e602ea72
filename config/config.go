package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DateLayout is the compact date format used by the data provider.
const DateLayout = "20060102"

type Config struct {
	ProjectDir   string        `json:"project_dir"`
	DataCacheDir string        `json:"data_cache_dir"`
	CacheEnabled bool          `json:"cache_enabled"`
	CacheTTL     time.Duration `json:"cache_ttl"`

	// Tushare Pro API
	TushareToken   string        `json:"-"`
	TushareBaseURL string        `json:"tushare_base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RetryCount     int           `json:"retry_count"`
	RatePerMinute  int           `json:"rate_per_minute"`
	BatchSize      int           `json:"batch_size"`

	// Demo date range
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// Optional run recorder; empty disables it
	DBPath string `json:"db_path"`

	// Optional YAML universe replacing the built-in one
	UniverseFile string `json:"universe_file"`

	LogLevel string `json:"log_level"`

	// Longport API Configuration
	LongportAppKey      string `json:"-"`
	LongportAppSecret   string `json:"-"`
	LongportAccessToken string `json:"-"`

	// malformed environment values, reported by Validate
	envErrs []error
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	return DefaultConfigWithRoot(currentDir)
}

// DefaultConfigWithRoot builds the defaults relative to root and applies the
// .env file found there, followed by the process environment.
func DefaultConfigWithRoot(root string) *Config {
	cfg := &Config{
		ProjectDir:   root,
		DataCacheDir: filepath.Join(root, "data", "cache"),
		CacheEnabled: false,
		CacheTTL:     24 * time.Hour,

		TushareBaseURL: "http://api.tushare.pro",
		RequestTimeout: 30 * time.Second,
		RetryCount:     0,
		RatePerMinute:  200,
		BatchSize:      50,

		StartDate: time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC),

		LogLevel: "info",
	}

	// .env is optional; the token may come from the real environment instead.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg.loadFromEnv()

	return cfg
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("DATA_CACHE_DIR"); val != "" {
		c.DataCacheDir = val
	}
	if val := os.Getenv("CACHE_ENABLED"); val != "" {
		if cache, err := strconv.ParseBool(val); err == nil {
			c.CacheEnabled = cache
		}
	}
	if val := os.Getenv("CACHE_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			c.CacheTTL = ttl
		}
	}

	if val := os.Getenv("TUSHARE_TOKEN"); val != "" {
		c.TushareToken = strings.TrimSpace(val)
	}
	if val := os.Getenv("TUSHARE_BASE_URL"); val != "" {
		c.TushareBaseURL = val
	}
	if val := os.Getenv("QUANTDEMO_REQUEST_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RequestTimeout = d
		}
	}
	if val := os.Getenv("QUANTDEMO_RETRY_COUNT"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.RetryCount = v
		}
	}
	if val := os.Getenv("QUANTDEMO_RATE_PER_MINUTE"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.RatePerMinute = v
		}
	}
	if val := os.Getenv("QUANTDEMO_BATCH_SIZE"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.BatchSize = v
		}
	}

	if val := os.Getenv("QUANTDEMO_START_DATE"); val != "" {
		if t, err := ParseDate(val); err == nil {
			c.StartDate = t
		} else {
			c.envErrs = append(c.envErrs, fmt.Errorf("QUANTDEMO_START_DATE: %w", err))
		}
	}
	if val := os.Getenv("QUANTDEMO_END_DATE"); val != "" {
		if t, err := ParseDate(val); err == nil {
			c.EndDate = t
		} else {
			c.envErrs = append(c.envErrs, fmt.Errorf("QUANTDEMO_END_DATE: %w", err))
		}
	}

	if val := os.Getenv("QUANTDEMO_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("QUANTDEMO_UNIVERSE"); val != "" {
		c.UniverseFile = strings.TrimSpace(val)
	}
	if val := os.Getenv("QUANTDEMO_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv("LONGPORT_APP_KEY"); val != "" {
		c.LongportAppKey = val
	}
	if val := os.Getenv("LONGPORT_APP_SECRET"); val != "" {
		c.LongportAppSecret = val
	}
	if val := os.Getenv("LONGPORT_ACCESS_TOKEN"); val != "" {
		c.LongportAccessToken = val
	}
}

// Validate checks the settings every demo depends on. A missing token is not
// reported here; the data adapter surfaces it as an authentication failure.
func (c *Config) Validate() error {
	if len(c.envErrs) > 0 {
		return errors.Join(c.envErrs...)
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return errors.New("start and end dates are required")
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			c.EndDate.Format(DateLayout), c.StartDate.Format(DateLayout))
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("rate per minute must be positive, got %d", c.RatePerMinute)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative, got %d", c.RetryCount)
	}
	if strings.TrimSpace(c.TushareBaseURL) == "" {
		return errors.New("tushare base url is required")
	}
	return nil
}

func (c *Config) HasLongportCredentials() bool {
	return c.LongportAppKey != "" && c.LongportAppSecret != "" && c.LongportAccessToken != ""
}

func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.CacheEnabled {
		dirs = append(dirs, c.DataCacheDir)
	}
	if c.DBPath != "" {
		dirs = append(dirs, filepath.Dir(c.DBPath))
	}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}

// ParseDate accepts both the provider's compact layout and ISO dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}
