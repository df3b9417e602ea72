// Package cli provides the command-line interface for the QuantDemo demos
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dyike/QuantDemo/internal/dataflows"
)

// Run starts the grouped quantdemo command.
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// RunDemo runs a single demo as a standalone program with no flags.
func RunDemo(name string) {
	cmd := newDemoCmd(mustFindDemo(name))
	cmd.SetArgs([]string{})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, dataflows.ErrAuth) {
		log.Error().Err(err).Msg("authentication failed, check TUSHARE_TOKEN")
		return 2
	}
	log.Error().Err(err).Msg("run failed")
	return 1
}
