package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// simpleEvent is a basic implementation of Event.
type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
	meta    map[string]any
}

func (e simpleEvent) Type() string             { return e.typeStr }
func (e simpleEvent) Source() string           { return e.source }
func (e simpleEvent) Timestamp() time.Time     { return e.ts }
func (e simpleEvent) Data() any                { return e.data }
func (e simpleEvent) Metadata() map[string]any { return e.meta }

// NewEvent creates a simple Event implementation.
func NewEvent(typ, src string, data any, metadata map[string]any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data, meta: metadata}
}

// HandlerError identifies the subscription whose handler failed.
type HandlerError struct {
	SubscriptionID string
	Name           string
	EventType      string
	Err            error
	Panicked       bool
}

func (e *HandlerError) Error() string {
	name := e.Name
	if name == "" {
		name = e.SubscriptionID
	}
	if e.Panicked {
		return fmt.Sprintf("handler %s panicked on %s: %v", name, e.EventType, e.Err)
	}
	return fmt.Sprintf("handler %s failed on %s: %v", name, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// HandlerErrors flattens a joined Publish error back into its handler failures.
func HandlerErrors(err error) []*HandlerError {
	if err == nil {
		return nil
	}
	var out []*HandlerError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, HandlerErrors(e)...)
		}
		return out
	}
	var he *HandlerError
	if errors.As(err, &he) {
		out = append(out, he)
	}
	return out
}

// subscription implements Subscription interface.
type subscription struct {
	id        string
	name      string
	eventType string
	handler   EventHandler
	active    atomic.Bool
	cancel    func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) Name() string      { return s.name }
func (s *subscription) EventType() string { return s.eventType }
func (s *subscription) IsActive() bool    { return s.active.Load() }
func (s *subscription) Cancel() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// inMemoryBus keeps subscriptions per event type as slices so delivery follows registration order.
type inMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string][]*subscription
	metrics   EventBusMetrics
	observers map[EventBusObserver]struct{}
}

// New creates a new EventBus instance.
func New() EventBus {
	return &inMemoryBus{
		handlers:  make(map[string][]*subscription),
		observers: make(map[EventBusObserver]struct{}),
	}
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	return b.SubscribeNamed(eventType, "", handler)
}

func (b *inMemoryBus) SubscribeNamed(eventType, name string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("bus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscription{id: uuid.NewString(), name: name, eventType: eventType, handler: handler}
	s.active.Store(true)
	s.cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if !s.active.CompareAndSwap(true, false) {
			return
		}
		subs := b.handlers[eventType]
		for i, other := range subs {
			if other == s {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		b.metrics.SubscribersActive--
	}
	b.handlers[eventType] = append(b.handlers[eventType], s)
	b.metrics.SubscribersActive++
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

func (b *inMemoryBus) AddObserver(obs EventBusObserver) {
	b.mu.Lock()
	b.observers[obs] = struct{}{}
	b.mu.Unlock()
}

func (b *inMemoryBus) RemoveObserver(obs EventBusObserver) {
	b.mu.Lock()
	delete(b.observers, obs)
	b.mu.Unlock()
}

func (b *inMemoryBus) GetMetrics() EventBusMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *inMemoryBus) Publish(event Event) error {
	start := time.Now()
	etype := event.Type()

	b.mu.RLock()
	subs := append([]*subscription(nil), b.handlers[etype]...)
	observers := make([]EventBusObserver, 0, len(b.observers))
	for obs := range b.observers {
		observers = append(observers, obs)
	}
	b.mu.RUnlock()

	for _, obs := range observers {
		obs.OnPublish(etype, event)
	}

	var (
		all       error
		delivered uint64
		panics    uint64
	)
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		delivered++
		if herr := b.invoke(s, event); herr != nil {
			if herr.Panicked {
				panics++
			}
			all = errors.Join(all, herr)
		}
	}

	b.mu.Lock()
	b.metrics.Published++
	b.metrics.DeliveredHandlers += delivered
	b.metrics.Panics += panics
	if all != nil {
		b.metrics.Errors++
	}
	b.mu.Unlock()

	dur := time.Since(start)
	for _, obs := range observers {
		obs.OnDelivered(etype, int(delivered), all, dur)
	}
	return all
}

func (b *inMemoryBus) invoke(s *subscription, event Event) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HandlerError{
				SubscriptionID: s.id,
				Name:           s.name,
				EventType:      s.eventType,
				Err:            fmt.Errorf("%v", r),
				Panicked:       true,
			}
		}
	}()
	if err := s.handler(event); err != nil {
		return &HandlerError{SubscriptionID: s.id, Name: s.name, EventType: s.eventType, Err: err}
	}
	return nil
}
