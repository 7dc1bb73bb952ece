package app

import (
	"fmt"

	"github.com/google/wire"

	"github.com/zeusync/regionstream/internal/config"
	"github.com/zeusync/regionstream/internal/core/events/bus"
	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/feed"
	"github.com/zeusync/regionstream/internal/scene"
	"github.com/zeusync/regionstream/internal/stream"
	"github.com/zeusync/regionstream/internal/watch"
)

// ProviderSet builds an App from a loaded config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideBus,
	ProvideHost,
	ProvideTable,
	ProvideController,
	ProvideWatcher,
	ProvideFeed,
	New,
	wire.Bind(new(log.Log), new(*log.Logger)),
	wire.Bind(new(scene.Host), new(*scene.Memory)),
)

func ProvideLogger(cfg config.Config) (*log.Logger, error) {
	return log.New(log.Config{
		Level:    log.ParseLevel(cfg.Log.Level),
		Encoding: cfg.Log.Encoding,
	})
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

// ProvideHost returns the in-memory scene host reading YAML bundle manifests.
func ProvideHost() *scene.Memory {
	return scene.NewMemory(scene.FileBundles{})
}

func ProvideTable(cfg config.Config) (*stream.Table, error) {
	descriptors := make([]stream.Descriptor, 0, len(cfg.Regions))
	for _, r := range cfg.Regions {
		descriptors = append(descriptors, stream.Descriptor{
			ID:         r.ID,
			Bundle:     r.Bundle,
			Collection: r.Collection,
			Position:   scene.Vec3{X: r.Position[0], Y: r.Position[1], Z: r.Position[2]},
		})
	}
	return stream.NewTable(descriptors...)
}

func ProvideController(cfg config.Config, table *stream.Table, host scene.Host, eventBus bus.EventBus, logger log.Log) (*stream.Controller, error) {
	mode, err := stream.ParseAgentMode(cfg.Agent.Mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return stream.NewController(table, host, eventBus, logger, stream.Options{
		AgentMode:     mode,
		AgentObject:   cfg.Agent.Object,
		FixedAltitude: cfg.Agent.FixedAltitude,
		MetresPerUnit: cfg.Agent.MetresPerUnit,
	})
}

func ProvideWatcher(cfg config.Config, eventBus bus.EventBus, logger log.Log) (*watch.Watcher, error) {
	wc := watch.DefaultConfig()
	wc.Path = cfg.Watch.Path
	wc.Interval = cfg.Watch.Interval
	wc.Notify = cfg.Watch.Notify
	wc.SkipIdentical = cfg.Watch.SkipIdentical
	return watch.New(wc, eventBus, logger)
}

// ProvideFeed returns nil when feed.addr is empty.
func ProvideFeed(cfg config.Config, controller *stream.Controller, eventBus bus.EventBus, logger log.Log) (*feed.Server, error) {
	if cfg.Feed.Addr == "" {
		return nil, nil
	}
	fc := feed.DefaultConfig()
	fc.Addr = cfg.Feed.Addr
	return feed.NewServer(fc, controller, eventBus, logger)
}
