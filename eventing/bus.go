package eventing

import (
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/hupe1980/agentcenter/logging"
)

// Observer receives every published event. Observe is called synchronously
// on the publishing goroutine; implementations must be fast and must not
// block the engine.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ev Event)

// Observe calls the wrapped function.
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// BusOptions configures a Bus.
type BusOptions struct {
	// Logger receives observer panic reports. Defaults to no-op.
	Logger logging.Logger
}

// Bus fans events out to subscribed observers synchronously and in
// subscription order. Emission is best-effort: an observer panic is
// recovered and logged, never propagated, so the engine's correctness never
// depends on observer behavior.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
	logger    logging.Logger
}

// NewBus creates an event bus.
func NewBus(optFns ...func(o *BusOptions)) *Bus {
	opts := BusOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Bus{logger: logging.OrNoOp(opts.Logger)}
}

// Subscribe appends an observer to the fan-out list.
func (b *Bus) Subscribe(o Observer) {
	if o == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.observers = append(b.observers, o)
}

// Publish delivers the event to every observer in subscription order.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}

	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		var c panics.Catcher

		c.Try(func() { o.Observe(ev) })

		if r := c.Recovered(); r != nil {
			b.logger.Error("eventing.observer.panic", "kind", Kind(ev), "panic", r.Value)
		}
	}
}
