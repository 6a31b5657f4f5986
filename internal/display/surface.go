package display

import (
	"github.com/paulmach/orb"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/bus"
)

// EventKind distinguishes view notifications.
type EventKind int

const (
	// Panned is raised when the map center changes.
	Panned EventKind = iota + 1
	// Zoomed is raised when the map zoom changes.
	Zoomed
)

func (k EventKind) String() string {
	switch k {
	case Panned:
		return "panned"
	case Zoomed:
		return "zoomed"
	}
	return "unknown"
}

// Event is a view change notification.
type Event struct {
	Kind   EventKind
	Center orb.Point
	Zoom   float64
}

// EventBus carries view change notifications.
type EventBus = bus.Bus[Event]

// Surface is a map control that hosts overlay widgets.
type Surface interface {
	// View returns the current map view.
	View() View

	// Invoke runs fn on the surface's UI goroutine and waits for it.
	Invoke(fn func()) error

	// NewWidget creates an unregistered widget. UI goroutine only.
	NewWidget(name string, img *anim.Image) Widget
	// AddWidget registers w with the container. UI goroutine only.
	AddWidget(w Widget)
	// RemoveWidget unregisters w. UI goroutine only.
	RemoveWidget(w Widget)
	// Widgets returns the registered widgets in insertion order.
	Widgets() []Widget

	SuspendLayout()
	ResumeLayout()

	// Events publishes pan and zoom notifications.
	Events() *EventBus
}
