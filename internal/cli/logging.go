package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging routes the global logger to a console writer on stderr.
// Unknown levels fall back to info.
func setupLogging(level string) {
	setupLoggingTo(os.Stderr, level)
}

func setupLoggingTo(w io.Writer, level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
