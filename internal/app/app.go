// Package app assembles the streamer: watcher, controller and status feed
// sharing one event bus.
package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/regionstream/internal/config"
	"github.com/zeusync/regionstream/internal/core/events/bus"
	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/feed"
	"github.com/zeusync/regionstream/internal/scene"
	"github.com/zeusync/regionstream/internal/stream"
	"github.com/zeusync/regionstream/internal/watch"
)

// ObserverName is the watcher observer name of the controller.
const ObserverName = "region-stream"

type App struct {
	Config     config.Config
	Logger     log.Log
	Bus        bus.EventBus
	Host       scene.Host
	Controller *stream.Controller
	Watcher    *watch.Watcher
	// Feed is nil when disabled.
	Feed *feed.Server
}

// New registers the controller with the watcher and makes sure the agent object exists.
func New(
	cfg config.Config,
	logger log.Log,
	eventBus bus.EventBus,
	host scene.Host,
	controller *stream.Controller,
	watcher *watch.Watcher,
	feedServer *feed.Server,
) (*App, error) {
	host.EnsureObject(cfg.Agent.Object)
	if err := watcher.AddObserver(ObserverName, controller.HandleChange); err != nil {
		return nil, err
	}
	return &App{
		Config:     cfg,
		Logger:     logger,
		Bus:        eventBus,
		Host:       host,
		Controller: controller,
		Watcher:    watcher,
		Feed:       feedServer,
	}, nil
}

// Run blocks until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("Region streamer starting",
		log.String("watch", a.Watcher.Path()),
		log.Int("regions", a.Controller.Table().Len()),
		log.String("agent_mode", a.Controller.Options().AgentMode.String()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Watcher.Run(ctx) })
	if a.Feed != nil {
		g.Go(func() error { return a.Feed.Run(ctx) })
	}
	err := g.Wait()
	a.Logger.Info("Region streamer stopped")
	return err
}
