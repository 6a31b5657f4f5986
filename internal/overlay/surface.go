package overlay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/display"
)

// SetSurface attaches the layer to s, detaching it from the previous
// surface first. SetSurface(nil) detaches. Setting the current surface again
// does nothing.
//
// SurfaceChanging handlers run before anything is touched and may cancel
// the change, in which case changed is false and subscriptions and widget
// registrations are left intact. Pool entries survive every change; only
// their registration moves.
func (l *Layer) SetSurface(s display.Surface) (changed bool, err error) {
	old := l.Surface()
	if old == s {
		return false, nil
	}

	_, changing, after := l.hooks()
	ev := &SurfaceChange{Old: old, New: s}
	for _, fn := range changing {
		fn(l, ev)
	}
	if ev.Cancel {
		l.log.Debug("surface change cancelled")
		return false, nil
	}

	if err := l.swapSurface(s); err != nil {
		return true, err
	}

	for _, fn := range after {
		fn(l)
	}
	return true, nil
}

func (l *Layer) swapSurface(s display.Surface) error {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	old := l.Surface()
	widgets := l.widgets()

	if old != nil {
		l.unsubscribe()
		err := old.Invoke(func() {
			for _, w := range widgets {
				old.RemoveWidget(w)
			}
		})
		if err != nil {
			// The old surface is gone together with its container.
			l.log.Warn("detach from dead surface", "error", err)
		}
		l.mu.Lock()
		l.surface = nil
		l.mu.Unlock()
	}
	if s == nil {
		return nil
	}

	err := s.Invoke(func() {
		for _, w := range widgets {
			s.AddWidget(w)
		}
	})
	if err != nil {
		return dispatchErr("attach", err)
	}
	l.mu.Lock()
	l.surface = s
	l.mu.Unlock()
	l.subscribe(s)
	return nil
}

// subscribe hides every overlay whenever s pans or zooms. Callers hold
// renderMu.
func (l *Layer) subscribe(s display.Surface) {
	events := s.Events()
	if events == nil {
		return
	}
	sub := &subscription{events: events, ch: events.Subscribe(), done: make(chan struct{})}
	l.mu.Lock()
	l.sub = sub
	l.mu.Unlock()

	go func() {
		defer close(sub.done)
		for ev := range sub.ch {
			if err := l.hideAll(s); err != nil {
				l.log.Warn("hide overlays", "event", ev.Kind.String(), "error", err)
				continue
			}
			l.log.Debug("view changed, overlays hidden", "event", ev.Kind.String())
		}
	}()
}

func (l *Layer) unsubscribe() {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()
	if sub == nil {
		return
	}
	sub.events.Unsubscribe(sub.ch)
	<-sub.done
}

// SetAnimatedImage replaces the shared marker image and gives every overlay
// widget on the surface a fresh clone of it. On error nothing changes.
func (l *Layer) SetAnimatedImage(img *anim.Image) error {
	if img == nil {
		return fmt.Errorf("%w: animated image", ErrNullArgument)
	}
	if !img.CanAnimate() {
		return fmt.Errorf("%w: image has %d frame(s)", ErrInvalidArgument, img.FrameCount())
	}

	if err := l.replaceImage(img); err != nil {
		return err
	}

	images, _, _ := l.hooks()
	for _, fn := range images {
		fn(l)
	}
	return nil
}

func (l *Layer) replaceImage(img *anim.Image) error {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	surface := l.Surface()
	if surface == nil {
		l.setImage(img)
		broadcastImage(l.widgets(), img)
		return nil
	}

	err := surface.Invoke(func() {
		broadcastImage(surface.Widgets(), img)
	})
	if err != nil {
		return dispatchErr("set animated image", err)
	}
	l.setImage(img)
	return nil
}

func (l *Layer) setImage(img *anim.Image) {
	l.mu.Lock()
	l.image = img
	l.mu.Unlock()
}

// broadcastImage swaps the content of every overlay widget in widgets for a
// clone of img.
func broadcastImage(widgets []display.Widget, img *anim.Image) {
	for _, w := range widgets {
		if !strings.HasPrefix(w.Name(), WidgetPrefix) {
			continue
		}
		old := w.Image()
		next := img.Clone()
		w.SetImage(next)
		old.Dispose()
		w.SetVisible(next != nil)
	}
}

// Close destroys every overlay widget, clears the pool and drops the
// surface subscription. It is safe to call without a surface and more than
// once.
func (l *Layer) Close() error {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	l.unsubscribe()

	l.poolMu.Lock()
	widgets := make([]display.Widget, 0, len(l.pool))
	for _, e := range l.pool {
		widgets = append(widgets, e.widget)
	}
	clear(l.pool)
	l.poolMu.Unlock()

	surface := l.Surface()
	l.mu.Lock()
	l.surface = nil
	l.mu.Unlock()

	if surface == nil {
		removeAll(nil, widgets)
		return nil
	}
	err := surface.Invoke(func() { removeAll(surface, widgets) })
	if errors.Is(err, display.ErrDispatcherClosed) {
		// no UI goroutine left to race with
		removeAll(surface, widgets)
		return nil
	}
	if err != nil {
		return dispatchErr("close", err)
	}
	l.log.Debug("layer closed", "overlays", len(widgets))
	return nil
}
