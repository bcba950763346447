package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrumdog/cheddar-logic/internal/api"
	"github.com/scrumdog/cheddar-logic/internal/card"
	"github.com/scrumdog/cheddar-logic/internal/config"
	"github.com/scrumdog/cheddar-logic/internal/driver"
	"github.com/scrumdog/cheddar-logic/internal/driver/market"
	"github.com/scrumdog/cheddar-logic/internal/driver/nba"
	"github.com/scrumdog/cheddar-logic/internal/driver/nhl"
	"github.com/scrumdog/cheddar-logic/internal/enrich"
	"github.com/scrumdog/cheddar-logic/internal/jobs"
	"github.com/scrumdog/cheddar-logic/internal/oddsfeed"
	"github.com/scrumdog/cheddar-logic/internal/scheduler"
	"github.com/scrumdog/cheddar-logic/internal/settle"
	"github.com/scrumdog/cheddar-logic/internal/sports"
	"github.com/scrumdog/cheddar-logic/internal/store"
	"github.com/scrumdog/cheddar-logic/internal/telemetry"
)

const settleInterval = 30 * time.Minute

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting pipeline")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		telemetry.Errorf("Store: %v", err)
		os.Exit(1)
	}
	defer st.Close()

	// ── Clients ────────────────────────────────────────────────
	oddsClient := oddsfeed.NewClient(cfg.OddsAPIBaseURL, cfg.OddsAPIKey)
	enricher := enrich.NewClient(cfg.StatsBaseURL)

	// ── Driver models ──────────────────────────────────────────
	registry := driver.NewRegistry()
	registry.Register(sports.NHL, nhl.New())
	registry.Register(sports.NBA, nba.New())
	for _, sport := range []sports.Sport{sports.NCAAM, sports.MLB, sports.NFL, sports.Soccer, sports.FPL} {
		registry.Register(sport, market.New(sport))
	}

	// ── Jobs ───────────────────────────────────────────────────
	runner := jobs.NewRunner(st)
	writer := card.NewWriter(st, cfg.Location(), cfg.ModelVersion)
	pullOdds := jobs.NewPullOdds(runner, st, oddsClient, cfg)

	models := make(map[sports.Sport]scheduler.Job, len(sports.All))
	for _, sport := range sports.All {
		if !cfg.SportEnabled(sport) {
			continue
		}
		models[sport] = jobs.NewSportModel(sport, runner, st, enricher, registry, writer, cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Settlement loop ────────────────────────────────────────
	engine := settle.NewEngine(runner, st, oddsClient, cfg)
	go engine.Start(ctx, settleInterval)

	// ── Read API ───────────────────────────────────────────────
	apiServer := api.NewServer(st, cfg.Location())
	go func() {
		if err := apiServer.Serve(ctx, cfg.APIAddr); err != nil {
			telemetry.Errorf("API server: %v", err)
		}
	}()

	// ── Scheduler ──────────────────────────────────────────────
	sched := scheduler.New(cfg, st, pullOdds, models)
	go sched.Run(ctx)

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()
	time.Sleep(500 * time.Millisecond) // let in-flight jobs observe cancellation

	if n, err := st.FailRunningJobs("cancelled"); err != nil {
		telemetry.Warnf("Shutdown cleanup: %v", err)
	} else if n > 0 {
		telemetry.Infof("Marked %d in-flight job runs failed", n)
	}

	telemetry.Infof("Shutdown complete  jobs=%d ok=%d failed=%d cards=%d settled=%d",
		telemetry.Metrics.JobsDispatched.Value(),
		telemetry.Metrics.JobsSucceeded.Value(),
		telemetry.Metrics.JobsFailed.Value(),
		telemetry.Metrics.CardsWritten.Value(),
		telemetry.Metrics.CardsSettled.Value(),
	)
}
