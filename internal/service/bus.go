package service

import "github.com/joeblew999/geo-blink/internal/bus"

// Event represents a change clients may want to redraw for.
type Event struct {
	Resource string // "overlays", "view", "layer", "image"
	Action   string // "rendered", "updated"
	ID       string
}

// EventBus fans service events out to SSE streams.
type EventBus = bus.Bus[Event]

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return bus.New[Event](16)
}
