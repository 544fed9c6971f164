// Package events provides the typed notification channel between the runtime
// and external observers. Handlers are registered with explicit unsubscribe
// tokens; delivery is in registration order with per-handler panic isolation
// so one misbehaving observer cannot break the rest.
package events

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Type identifies a runtime event kind.
type Type string

const (
	PluginRegistered   Type = "plugin:registered"
	PluginUnregistered Type = "plugin:unregistered"
	PluginLoaded       Type = "plugin:loaded"
	PluginUnloaded     Type = "plugin:unloaded"
	PluginEnabled      Type = "plugin:enabled"
	PluginDisabled     Type = "plugin:disabled"
	PluginExecuted     Type = "plugin:executed"
	PluginError        Type = "plugin:error"
)

// Event is one runtime notification.
type Event struct {
	Type      Type
	PluginID  string
	Payload   any
	Err       error
	Timestamp time.Time
}

// Handler consumes runtime events. Handlers must not block; long work should
// be handed off by the observer.
type Handler func(Event)

// Emitter fans events out to registered handlers.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	order    []int
	nextID   int
	log      *logrus.Logger
}

// NewEmitter creates an emitter.
func NewEmitter(log *logrus.Logger) *Emitter {
	if log == nil {
		log = logrus.New()
	}
	return &Emitter{
		handlers: make(map[int]Handler),
		log:      log,
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (e *Emitter) Subscribe(h Handler) func() {
	if h == nil {
		return func() {}
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.handlers[id] = h
	e.order = append(e.order, id)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
		for i, oid := range e.order {
			if oid == id {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
}

// Emit delivers an event to every handler in registration order. Handlers
// run outside the emitter's lock; panics are recovered and logged.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.order))
	for _, id := range e.order {
		if h, ok := e.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		e.deliver(h, ev)
	}
}

func (e *Emitter) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"event":  ev.Type,
				"plugin": ev.PluginID,
				"panic":  r,
			}).Error("event handler panicked")
		}
	}()
	h(ev)
}

// Count returns the number of registered handlers.
func (e *Emitter) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}
