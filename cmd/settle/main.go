// Command settle runs one settlement pass (game grading + card grading)
// against the configured store and exits. Useful for manual catch-up after
// an outage.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrumdog/cheddar-logic/internal/config"
	"github.com/scrumdog/cheddar-logic/internal/jobs"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/settle"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		telemetry.Errorf("Store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	oddsClient := oddsfeed.NewClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey)
	engine := settle.NewEngine(jobs.NewRunner(st), st, oddsClient, cfg)

	result, err := engine.Run(ctx, jobs.Options{})
	if err != nil {
		telemetry.Errorf("Settlement failed: %v", err)
		os.Exit(1)
	}
	telemetry.Infof("Settlement pass complete  %v", result.Counts)
}
