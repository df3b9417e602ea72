package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dyike/QuantDemo/config"
	"github.com/dyike/QuantDemo/internal/dataflows"
)

// Fetches the configured date range for each symbol given on the command
// line and prints the bars as JSON.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx := context.Background()
	cfg := config.DefaultConfig()

	symbols := os.Args[1:]
	if len(symbols) == 0 {
		symbols = []string{"600519", "000300"}
	}

	sources := []dataflows.Source{dataflows.NewTushareSource(cfg)}
	if cfg.HasLongportCredentials() {
		longbridge, err := dataflows.NewLongportSource(cfg)
		if err != nil {
			panic(err)
		}
		sources = append(sources, longbridge)
	}
	sources = append(sources, dataflows.NewYahooFinanceSource())

	adapter := dataflows.NewAdapter(sources, dataflows.WithBatchSize(cfg.BatchSize))
	result, err := adapter.FetchPrices(ctx, symbols, cfg.StartDate, cfg.EndDate)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch failed")
	}

	for _, id := range dataflows.FailedIDs(result.Failed) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", id, result.Failed[id])
	}

	payload, _ := json.MarshalIndent(result.Series, "", "  ")
	fmt.Println(string(payload))
	log.Info().Int("calls", result.Calls).Int("series", len(result.Series)).Msg("done")
}
