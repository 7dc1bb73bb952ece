// Package watch polls a single JSON file and hands every new revision to the
// registered observers.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/zeusync/regionstream/internal/core/events/bus"
	"github.com/zeusync/regionstream/internal/core/observability/log"
)

// EventFileChanged is published on the bus for every successfully parsed revision.
const EventFileChanged = "file.changed"

// Change is one parsed revision of the watched file.
type Change struct {
	Path    string
	ModTime time.Time
	Digest  uint64
	Raw     []byte
	Value   any
}

// Observer reacts to a Change. Returned errors are logged by the watcher.
type Observer func(Change) error

// Config holds watcher configuration
type Config struct {
	Path string
	// Interval between polls.
	Interval time.Duration
	// FirstInterval is the delay before the first poll after Start.
	FirstInterval time.Duration
	// Notify wakes the poller early on filesystem events for Path.
	Notify bool
	// SkipIdentical suppresses dispatch when a new mtime carries byte-identical content.
	SkipIdentical bool
}

// DefaultConfig returns default watcher configuration
func DefaultConfig() Config {
	return Config{
		Interval:      time.Second,
		FirstInterval: 200 * time.Millisecond,
	}
}

// Watcher is the change detector. Ticks never overlap: parse and every
// observer finish before the next tick is scheduled.
type Watcher struct {
	config Config
	bus    bus.EventBus
	logger log.Log

	running int32 // atomic bool

	stateMu sync.Mutex
	stopCh  chan struct{}

	tickMu      sync.Mutex
	lastModTime time.Time
	lastDigest  uint64
	haveDigest  bool
}

func New(config Config, eventBus bus.EventBus, logger log.Log) (*Watcher, error) {
	if config.Path == "" {
		return nil, ErrNoPath
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.FirstInterval <= 0 {
		config.FirstInterval = defaults.FirstInterval
	}
	if eventBus == nil {
		eventBus = bus.New()
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Watcher{
		config: config,
		bus:    eventBus,
		logger: logger.With(log.String("component", "watch"), log.String("path", config.Path)),
	}, nil
}

func (w *Watcher) Path() string { return w.config.Path }

// AddObserver registers fn; observers run in registration order.
func (w *Watcher) AddObserver(name string, fn Observer) error {
	if fn == nil {
		return errors.New("watch: nil observer")
	}
	_, err := w.bus.SubscribeNamed(EventFileChanged, name, func(e bus.Event) error {
		if e.Source() != w.config.Path {
			return nil
		}
		change, ok := e.Data().(Change)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Data())
		}
		return fn(change)
	})
	return err
}

func (w *Watcher) IsRunning() bool {
	return atomic.LoadInt32(&w.running) == 1
}

// Start begins polling in the background. Calling it while already running
// only logs.
func (w *Watcher) Start(ctx context.Context) {
	stop, ok := w.begin()
	if !ok {
		w.logger.Info("Already watching")
		return
	}
	go w.loop(ctx, stop)
}

// Run polls on the calling goroutine until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	stop, ok := w.begin()
	if !ok {
		return ErrAlreadyRunning
	}
	w.loop(ctx, stop)
	return nil
}

// Stop prevents the next tick. An in-flight tick runs to completion.
func (w *Watcher) Stop() {
	w.stateMu.Lock()
	if atomic.LoadInt32(&w.running) == 0 {
		w.stateMu.Unlock()
		return
	}
	atomic.StoreInt32(&w.running, 0)
	close(w.stopCh)
	w.stopCh = nil
	w.stateMu.Unlock()
	w.logger.Info("Stopped watching")
}

func (w *Watcher) begin() (chan struct{}, bool) {
	w.stateMu.Lock()
	if atomic.LoadInt32(&w.running) == 1 {
		w.stateMu.Unlock()
		return nil, false
	}
	stop := make(chan struct{})
	w.stopCh = stop
	atomic.StoreInt32(&w.running, 1)
	w.stateMu.Unlock()

	w.tickMu.Lock()
	w.lastModTime = time.Time{}
	w.haveDigest = false
	w.tickMu.Unlock()

	w.logger.Info("Started watching",
		log.Duration("interval", w.config.Interval),
		log.Bool("notify", w.config.Notify))
	return stop, true
}

// finish releases the running flag unless Stop (or a newer Start) already took over.
func (w *Watcher) finish(stop chan struct{}) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.stopCh == stop {
		close(w.stopCh)
		w.stopCh = nil
		atomic.StoreInt32(&w.running, 0)
	}
}

func (w *Watcher) loop(ctx context.Context, stop chan struct{}) {
	defer w.finish(stop)

	wake, closeNotifier := w.startNotifier(stop)
	defer closeNotifier()

	timer := time.NewTimer(w.config.FirstInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}

		if !w.IsRunning() {
			return
		}
		_, _ = w.Poll()
		timer.Reset(w.config.Interval)
	}
}

// Poll runs a single tick. It reports whether observers were invoked. Observer
// failures are logged, never returned.
func (w *Watcher) Poll() (bool, error) {
	w.tickMu.Lock()
	defer w.tickMu.Unlock()

	info, err := os.Stat(w.config.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Debug("Watched file not found")
			return false, nil
		}
		w.logger.Warn("Failed to stat watched file", log.Error(err))
		return false, err
	}

	modTime := info.ModTime()
	if !modTime.After(w.lastModTime) {
		return false, nil
	}

	raw, err := os.ReadFile(w.config.Path)
	if err != nil {
		w.logger.Warn("Failed to read watched file", log.Error(err))
		return false, err
	}

	var value any
	if err = json.Unmarshal(raw, &value); err != nil {
		// lastModTime stays put so the same revision is retried next tick.
		w.logger.Error("Failed to parse watched file", log.Error(err))
		return false, fmt.Errorf("%w: %s: %v", ErrParse, w.config.Path, err)
	}
	w.lastModTime = modTime

	digest := xxhash.Sum64(raw)
	if w.config.SkipIdentical && w.haveDigest && digest == w.lastDigest {
		w.logger.Debug("Content unchanged, skipping dispatch", log.Uint64("digest", digest))
		return false, nil
	}
	w.lastDigest, w.haveDigest = digest, true

	change := Change{
		Path:    w.config.Path,
		ModTime: modTime,
		Digest:  digest,
		Raw:     raw,
		Value:   value,
	}

	w.logger.Debug("Watched file changed",
		log.Time("mod_time", modTime),
		log.Uint64("digest", digest),
		log.Int("observers", w.bus.Subscribers(EventFileChanged)))

	err = w.bus.Publish(bus.NewEvent(EventFileChanged, w.config.Path, change, nil))
	for _, herr := range bus.HandlerErrors(err) {
		w.logger.Error("Observer failed",
			log.String("observer", herr.Name),
			log.Bool("panicked", herr.Panicked),
			log.Error(herr.Err))
	}
	return true, nil
}

func (w *Watcher) startNotifier(stop <-chan struct{}) (<-chan struct{}, func()) {
	noop := func() {}
	if !w.config.Notify {
		return nil, noop
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("Filesystem notifications unavailable, polling only", log.Error(err))
		return nil, noop
	}
	if err = fsw.Add(filepath.Dir(w.config.Path)); err != nil {
		w.logger.Warn("Failed to watch directory, polling only", log.Error(err))
		_ = fsw.Close()
		return nil, noop
	}

	target := filepath.Clean(w.config.Path)
	wake := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Filesystem notification error", log.Error(err))
			}
		}
	}()

	return wake, func() { _ = fsw.Close() }
}
