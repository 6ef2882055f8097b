package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zanmi-app/zanmi-go/internal/core/ports"
)

// Emitter is the in-process implementation of the auth event bus.
// Handlers are keyed by event kind; the closed AuthEventKind enum
// means a subscriber can never fat-finger an event name.
type Emitter struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[ports.AuthEventKind]map[int]func(ports.AuthEvent)
	nextID   int
}

// NewEmitter creates an empty emitter. A nil logger defaults to Nop.
func NewEmitter(logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		logger:   logger,
		handlers: make(map[ports.AuthEventKind]map[int]func(ports.AuthEvent)),
	}
}

// Subscribe registers a handler for one event kind and returns its
// unsubscribe func. Unsubscribing twice is a no-op.
func (e *Emitter) Subscribe(kind ports.AuthEventKind, handler func(ports.AuthEvent)) ports.Unsubscribe {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[int]func(ports.AuthEvent))
	}
	id := e.nextID
	e.nextID++
	e.handlers[kind][id] = handler

	return func() {
		e.mu.Lock()
		delete(e.handlers[kind], id)
		e.mu.Unlock()
	}
}

// Publish delivers the event to every handler registered for its kind.
// Handlers run synchronously on the publisher's goroutine, outside the
// emitter lock so a handler may subscribe or unsubscribe.
func (e *Emitter) Publish(event ports.AuthEvent) {
	e.mu.Lock()
	handlers := make([]func(ports.AuthEvent), 0, len(e.handlers[event.Kind]))
	for _, h := range e.handlers[event.Kind] {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	e.logger.Debug("auth event", zap.Stringer("kind", event.Kind))
	for _, h := range handlers {
		h(event)
	}
}
