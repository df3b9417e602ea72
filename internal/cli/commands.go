package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dyike/QuantDemo/config"
	"github.com/dyike/QuantDemo/internal/report"
	"github.com/dyike/QuantDemo/internal/storage"
)

const version = "v0.1.0"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quantdemo",
		Short: "QuantDemo - market data, beta and backtest demos",
		Long: `QuantDemo fetches daily A-share, Hong Kong and index history from Tushare Pro
and runs small quantitative demos over it: an SMA crossover backtest, batch beta
against the CSI 300, and beta with tracking error and risk decomposition.

Run without a subcommand to pick a demo interactively.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			demo, err := PromptForDemo()
			if err != nil {
				return err
			}
			return runDemo(cmd, demo)
		},
	}

	for _, demo := range Demos {
		rootCmd.AddCommand(newDemoCmd(demo))
	}
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newRunsCmd())

	return rootCmd
}

func newDemoCmd(demo Demo) *cobra.Command {
	return &cobra.Command{
		Use:           demo.Name,
		Aliases:       demo.Aliases,
		Short:         demo.Title,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, demo)
		},
	}
}

func runDemo(cmd *cobra.Command, demo Demo) error {
	cfg := config.DefaultConfig()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	env, err := NewEnv(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := demo.Run(cmd.Context(), env); err != nil {
		return fmt.Errorf("%s: %w", demo.Name, err)
	}
	return nil
}

// newRunsCmd lists recorded runs, or shows one run's metrics when given an id.
func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "Show runs recorded in QUANTDEMO_DB_PATH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if cfg.DBPath == "" {
				return errors.New("run recording is disabled; set QUANTDEMO_DB_PATH")
			}
			if _, err := os.Stat(cfg.DBPath); err != nil {
				return fmt.Errorf("run database %s: %w", cfg.DBPath, err)
			}
			store, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, 0, limit)
				if err != nil {
					return err
				}
				report.Runs(w, runs)
				return nil
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			run, err := store.GetRun(ctx, id)
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %d not found", id)
			}
			metrics, err := store.ListMetrics(ctx, id)
			if err != nil {
				return err
			}
			report.RunMetrics(w, *run, metrics)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

// newConfigCmd creates the config command
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cmd, config.DefaultConfig())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.TushareToken == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: TUSHARE_TOKEN is not set; demos will fail to authenticate")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration ok")
			return nil
		},
	})

	return configCmd
}

func showConfig(cmd *cobra.Command, cfg *config.Config) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Current QuantDemo configuration:")
	fmt.Fprintf(w, "Project Directory:    %s\n", cfg.ProjectDir)
	fmt.Fprintf(w, "Cache Directory:      %s\n", cfg.DataCacheDir)
	fmt.Fprintf(w, "Cache Enabled:        %t (ttl %s)\n", cfg.CacheEnabled, cfg.CacheTTL)
	fmt.Fprintf(w, "Date Range:           %s ~ %s\n",
		cfg.StartDate.Format(config.DateLayout), cfg.EndDate.Format(config.DateLayout))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tushare URL:          %s\n", cfg.TushareBaseURL)
	fmt.Fprintf(w, "Tushare Token:        %s\n", configured(cfg.TushareToken != ""))
	fmt.Fprintf(w, "Request Timeout:      %s\n", cfg.RequestTimeout)
	fmt.Fprintf(w, "Retry Count:          %d\n", cfg.RetryCount)
	fmt.Fprintf(w, "Rate Per Minute:      %d\n", cfg.RatePerMinute)
	fmt.Fprintf(w, "Batch Size:           %d\n", cfg.BatchSize)
	fmt.Fprintf(w, "Longport:             %s\n", configured(cfg.HasLongportCredentials()))
	fmt.Fprintln(w)
	db := cfg.DBPath
	if db == "" {
		db = "(disabled)"
	}
	fmt.Fprintf(w, "Run Database:         %s\n", db)
	uni := cfg.UniverseFile
	if uni == "" {
		uni = "(built-in)"
	}
	fmt.Fprintf(w, "Universe:             %s\n", uni)
	fmt.Fprintf(w, "Log Level:            %s\n", cfg.LogLevel)
	if _, err := os.Stat(cfg.DataCacheDir); err != nil && cfg.CacheEnabled {
		fmt.Fprintln(w, "Cache directory does not exist yet; it is created on the first run.")
	}
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
