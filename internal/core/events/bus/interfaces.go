package bus

import "time"

// EventBus is an in-process pub/sub bus.
//
// Key characteristics:
// - Type-based fan-out: handlers subscribe by Event.Type() string.
// - Ordered, synchronous delivery: Publish calls handlers in subscription order on the caller goroutine.
// - Isolation: a handler that returns an error or panics does not stop delivery to the handlers after it.
// - Error aggregation: handler failures are wrapped in *HandlerError and joined.
//
// All methods are safe for concurrent use.
type EventBus interface {
	// Publish delivers the event to every active subscriber of event.Type().
	Publish(event Event) error
	// Subscribe registers an anonymous handler for eventType.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// SubscribeNamed registers a handler under a human-readable name used in errors and logs.
	SubscribeNamed(eventType, name string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. Nil is ignored.
	Unsubscribe(Subscription) error
	// Subscribers returns the number of active subscriptions for eventType.
	Subscribers(eventType string) int

	// AddObserver registers an observer notified about every delivery.
	AddObserver(obs EventBusObserver)
	// RemoveObserver unregisters a previously added observer.
	RemoveObserver(obs EventBusObserver)
	// GetMetrics returns a snapshot of the delivery counters.
	GetMetrics() EventBusMetrics
}

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

type (
	// EventHandler is invoked per delivered event.
	EventHandler func(event Event) error
)

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	Name() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler from the bus. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries. Observers should return quickly.
type EventBusObserver interface {
	OnPublish(eventType string, event Event)
	OnDelivered(eventType string, handlers int, err error, duration time.Duration)
}

// EventBusMetrics is a minimal set of delivery counters.
type EventBusMetrics struct {
	Published         uint64 `json:"published"`
	DeliveredHandlers uint64 `json:"delivered_handlers"`
	Errors            uint64 `json:"errors"`
	Panics            uint64 `json:"panics"`
	SubscribersActive uint64 `json:"subscribers_active"`
}
