package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/regionstream/internal/config"
	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/stream"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAppStreamsRegionsFromFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bundles", "a.yaml"), "collections:\n  - name: RegionRoot1\n    objects: [ground]\n")
	writeFile(t, filepath.Join(dir, "bundles", "b.yaml"), "collections:\n  - name: RegionRoot2\n    objects: [ground]\n")
	writeFile(t, filepath.Join(dir, "regionstream.yaml"), `
watch:
  path: agent.json
  interval: 10ms
agent:
  mode: scroll
regions:
  - {id: A, bundle: bundles/a.yaml, collection: RegionRoot1}
  - {id: B, bundle: bundles/b.yaml, collection: RegionRoot2, position: [1170, 0, 0]}
`)
	cfg, err := config.LoadWithEnv(filepath.Join(dir, "regionstream.yaml"), map[string]string{})
	require.NoError(t, err)

	logger := log.NewNop()
	eventBus := ProvideBus()
	host := ProvideHost()
	table, err := ProvideTable(cfg)
	require.NoError(t, err)
	controller, err := ProvideController(cfg, table, host, eventBus, logger)
	require.NoError(t, err)
	watcher, err := ProvideWatcher(cfg, eventBus, logger)
	require.NoError(t, err)
	feedServer, err := ProvideFeed(cfg, controller, eventBus, logger)
	require.NoError(t, err)
	assert.Nil(t, feedServer)

	a, err := New(cfg, logger, eventBus, host, controller, watcher, feedServer)
	require.NoError(t, err)
	_, ok := host.Object("UAV")
	assert.True(t, ok)

	writeFile(t, cfg.Watch.Path, `{"regions": {"a": "hide", "b": "show"}, "uav": {"x": 200, "y": 0, "z": 150}}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, s := range controller.Snapshot() {
			if s.ID == "B" && s.State == stream.StateVisible && s.Position != nil && s.Position.X == 970 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}

	uav, _ := host.Object("UAV")
	assert.Equal(t, 150.0, uav.Location().Z)
}
