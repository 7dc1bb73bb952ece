package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/sim"
)

func main() {
	cfg := sim.DefaultConfig()
	flag.StringVar(&cfg.Path, "out", cfg.Path, "agent state file to write")
	flag.Float64Var(&cfg.Speed, "speed", cfg.Speed, "agent speed in units per second")
	flag.DurationVar(&cfg.Step, "step", cfg.Step, "update interval")
	flag.Float64Var(&cfg.Bound, "bound", cfg.Bound, "turn around at this |x|")
	flag.Float64Var(&cfg.Start.Z, "altitude", cfg.Start.Z, "agent altitude")
	flag.Float64Var(&cfg.ShowDistance, "show", cfg.ShowDistance, "show regions within this distance")
	flag.Float64Var(&cfg.HideDistance, "hide", cfg.HideDistance, "hide regions within this distance, omit beyond")
	flag.BoolVar(&cfg.Atomic, "atomic", cfg.Atomic, "write through a temp file and rename")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger, err := log.New(log.Config{Level: log.ParseLevel(*level), Encoding: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	s, err := sim.New(cfg, logger)
	if err != nil {
		logger.Error("Invalid simulator config", log.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = s.Run(ctx); err != nil {
		logger.Error("Simulation failed", log.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
