package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_DeliveryOrder(t *testing.T) {
	e := NewEmitter(nil)
	var order []int

	e.Subscribe(func(Event) { order = append(order, 1) })
	e.Subscribe(func(Event) { order = append(order, 2) })
	e.Subscribe(func(Event) { order = append(order, 3) })

	e.Emit(Event{Type: PluginRegistered, PluginID: "x"})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter(nil)
	var kept, dropped int

	e.Subscribe(func(Event) { kept++ })
	unsubscribe := e.Subscribe(func(Event) { dropped++ })
	assert.Equal(t, 2, e.Count())

	e.Emit(Event{Type: PluginLoaded})
	unsubscribe()
	unsubscribe() // double unsubscribe is safe
	e.Emit(Event{Type: PluginLoaded})

	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, e.Count())
}

func TestEmitter_PanicIsolation(t *testing.T) {
	e := NewEmitter(nil)
	var reached bool

	e.Subscribe(func(Event) { panic("observer bug") })
	e.Subscribe(func(Event) { reached = true })

	e.Emit(Event{Type: PluginError, PluginID: "x"})

	assert.True(t, reached)
}

func TestEmitter_TimestampDefaulted(t *testing.T) {
	e := NewEmitter(nil)
	var got Event
	e.Subscribe(func(ev Event) { got = ev })

	e.Emit(Event{Type: PluginExecuted})

	assert.False(t, got.Timestamp.IsZero())
}

func TestEmitter_NilHandler(t *testing.T) {
	e := NewEmitter(nil)
	unsubscribe := e.Subscribe(nil)
	assert.Zero(t, e.Count())
	unsubscribe()
	e.Emit(Event{Type: PluginRegistered})
}
