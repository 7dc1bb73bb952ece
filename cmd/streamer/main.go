package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/regionstream/internal/config"
	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/injector"
)

func main() {
	configPath := flag.String("config", "regionstream.yaml", "path to the streamer config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	a, err := injector.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building streamer:", err)
		os.Exit(1)
	}
	defer func() { _ = a.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = a.Run(ctx); err != nil {
		a.Logger.Error("Streamer failed", log.Error(err))
		_ = a.Logger.Sync()
		os.Exit(1)
	}
}
