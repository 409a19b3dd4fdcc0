package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/swarm/config"
	"github.com/pthm-cable/swarm/game"
	"github.com/pthm-cable/swarm/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Float64("stats-window", 0, "Stats window size in seconds (0 = use config)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs, trace and config snapshot")
	trace := flag.Bool("trace", false, "Write a per-tick trace to the output directory")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	maxTicks := flag.Int("max-ticks", 0, "Stop after N ticks (0 = unlimited)")
	realtime := flag.Bool("realtime", false, "Pace ticks at physics.tick_rate")
	flockOnly := flag.Bool("flock-only", false, "Disable attacks, the turret and player contact")
	debugAddr := flag.String("debug-addr", "", "Serve /metrics, /stats and pprof on this address (empty = off)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := game.Options{
		Seed:           rngSeed,
		LogStats:       *logStats,
		StatsWindowSec: *statsWindow,
		OutputDir:      *outputDir,
		Trace:          *trace,
		Realtime:       *realtime,
		FlockOnly:      *flockOnly,
	}

	serveErr := make(chan error, 1)
	if *debugAddr != "" {
		opts.Metrics = telemetry.NewMetrics()
		opts.Latest = &telemetry.Latest{}
		router := telemetry.NewDebugRouter(opts.Metrics, opts.Latest)
		go func() {
			serveErr <- telemetry.ServeDebug(ctx, *debugAddr, router)
		}()
	}

	g, err := game.NewGame(opts)
	if err != nil {
		slog.Error("failed to create game", "error", err)
		os.Exit(1)
	}

	runErr := g.Run(ctx, int32(*maxTicks))
	if err := g.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	if runErr != nil {
		slog.Error("simulation failed", "tick", g.Tick(), "error", runErr)
		os.Exit(1)
	}

	if *debugAddr != "" {
		stop()
		if err := <-serveErr; err != nil {
			slog.Error("debug server failed", "error", err)
		}
	}
}
