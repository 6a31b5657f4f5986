package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geo-blink/internal/humastar"
	"github.com/joeblew999/geo-blink/internal/logger"
	"github.com/joeblew999/geo-blink/internal/service"
)

// EventHandler streams overlay state to Datastar clients.
type EventHandler struct {
	maps *service.MapService
}

// NewEventHandler creates a new event handler.
func NewEventHandler(maps *service.MapService) *EventHandler {
	return &EventHandler{maps: maps}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/overlays/events", h.Events,
		huma.OperationTags("events"),
	)
	huma.Post(api, "/api/v1/view/pan", h.Pan,
		huma.OperationTags("events"),
	)
}

// overlaySignals is the Datastar signal payload for the overlay pool.
func overlaySignals(res service.RenderResult, view service.ViewState, cause string) map[string]any {
	return map[string]any{
		"pass":     res.Pass,
		"visible":  res.Visible,
		"overlays": res.Overlays,
		"view":     view,
		"cause":    cause,
	}
}

// Events sends the overlay pool once, then again after every render, view
// or layer change.
func (h *EventHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return humastar.Stream(func(sse humastar.SSE) {
		events := h.maps.Events()
		ch := events.Subscribe()
		defer events.Unsubscribe(ch)

		if !h.sent("connected", sse.Signals(overlaySignals(h.maps.Overlays(), h.maps.View(), "connected"))) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				cause := ev.Resource + "." + ev.Action
				if !h.sent(cause, sse.Signals(overlaySignals(h.maps.Overlays(), h.maps.View(), cause))) {
					return
				}
			}
		}
	}), nil
}

// Pan moves the view by the dx/dy signals (pixels), optionally sets a new
// zoom, renders unless the render signal is false and answers with the
// resulting signals.
func (h *EventHandler) Pan(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	return humastar.Stream(func(sse humastar.SSE) {
		v := h.maps.View()
		v.CenterX += signals.Float("dx") * v.Resolution
		v.CenterY -= signals.Float("dy") * v.Resolution
		if signals.Has("zoom") {
			zoom := signals.Float("zoom")
			if zoom <= 0 {
				h.sent("pan error", sse.Error("zoom must be positive"))
				return
			}
			v.Resolution = zoom / float64(v.Width)
		}
		if _, err := h.maps.SetView(v); err != nil {
			h.sent("pan error", sse.Error(err.Error()))
			return
		}

		res := h.maps.Overlays()
		if !signals.Has("render") || signals.Bool("render") {
			if res, err = h.maps.Render(ctx); err != nil {
				h.sent("pan error", sse.Error(err.Error()))
				return
			}
		}
		if !h.sent("pan signals", sse.Signals(overlaySignals(res, h.maps.View(), "pan"))) {
			return
		}
		if !h.sent("pan status", sse.Patch(fmt.Sprintf("%d of %d overlays visible", res.Visible, len(res.Overlays)), "#overlay-status")) {
			return
		}
		h.sent("pan success", sse.Success(fmt.Sprintf("pass %d", res.Pass)))
	}), nil
}

// sent logs a failed SSE write and reports whether the stream is still
// usable.
func (h *EventHandler) sent(what string, err error) bool {
	if err != nil {
		logger.L().Debug("sse write failed", "event", what, "error", err)
		return false
	}
	return true
}
