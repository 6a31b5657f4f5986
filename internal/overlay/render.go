package overlay

import (
	"context"
	"errors"
	"image"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"

	"github.com/joeblew999/geo-blink/internal/display"
	"github.com/joeblew999/geo-blink/internal/provider"
)

type placement struct {
	id  provider.FeatureID
	pos image.Point
}

// ScreenPosition returns the top-left corner of an overlay of the given size
// anchored at world point pt.
func ScreenPosition(view display.View, pt orb.Point, size image.Point) image.Point {
	s := view.WorldToScreen(pt)
	return image.Pt(int(math.Floor(s[0])), int(math.Floor(s[1]))).Sub(size)
}

// Render runs one reconciliation pass for view. Static first-frame snapshots
// are drawn into dst (which may be nil). Widgets are created, moved and
// shown for the features in view and hidden for every other pooled feature.
//
// The provider is opened and closed exactly once per pass, unless the layer
// is disabled or outside its visibility range, in which case every widget is
// hidden and the provider is left alone.
func (l *Layer) Render(ctx context.Context, dst draw.Image, view display.View) (err error) {
	l.mu.RLock()
	visible := l.visibleAt(view)
	l.mu.RUnlock()

	if !visible {
		return l.hideAll(l.Surface())
	}

	env := l.transform.BoundToSource(view.Envelope())

	// Close is attempted even when Open fails; a provider that never opened
	// answers ErrNotOpen, which is not a failure of its own.
	defer func() {
		if cerr := l.provider.Close(); cerr != nil && !errors.Is(cerr, provider.ErrNotOpen) {
			err = errors.Join(err, providerErr("close", cerr))
		}
	}()
	if err := l.provider.Open(ctx); err != nil {
		return providerErr("open", err)
	}

	ids, err := l.provider.ObjectIDsInView(ctx, env)
	if err != nil {
		return providerErr("object ids in view", err)
	}

	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	l.mu.RLock()
	img, surface := l.image, l.surface
	l.mu.RUnlock()

	size := img.Size()
	places := make([]placement, 0, len(ids))
	touched := make(map[provider.FeatureID]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := touched[id]; dup {
			continue
		}
		geom, err := l.provider.GeometryByID(ctx, id)
		if errors.Is(err, provider.ErrNotFound) {
			l.log.Debug("feature vanished during pass", "id", id)
			continue
		}
		if err != nil {
			return providerErr("geometry by id", err)
		}
		pt, ok := provider.Anchor(l.transform.ToTarget(geom))
		if !ok {
			l.log.Debug("feature has no anchor point", "id", id)
			continue
		}
		pos := ScreenPosition(view, pt, size)

		if img != nil && dst != nil {
			snap := img.Clone()
			_ = snap.SelectFrame(0)
			snap.Draw(dst, image.Rectangle{Min: pos, Max: pos.Add(size)})
		}

		places = append(places, placement{id: id, pos: pos})
		touched[id] = struct{}{}
	}

	if surface == nil {
		l.log.Debug("no surface attached, drew snapshots only", "features", len(places))
		return nil
	}

	created := make(map[provider.FeatureID]display.Widget)
	apply := func() {
		surface.SuspendLayout()
		defer surface.ResumeLayout()

		for _, p := range places {
			w := l.lookup(p.id, created)
			if w == nil {
				w = surface.NewWidget(WidgetName(p.id), img.Clone())
				surface.AddWidget(w)
				created[p.id] = w
			}
			w.SetLocation(p.pos)
			w.SetVisible(w.Image() != nil)
		}
		for id, e := range l.pool {
			if _, ok := touched[id]; !ok {
				e.widget.SetVisible(false)
			}
		}
	}
	if err := surface.Invoke(apply); err != nil {
		return dispatchErr("render", err)
	}

	evicted := l.commit(created, touched)
	if len(evicted) > 0 {
		if err := surface.Invoke(func() { removeAll(surface, evicted) }); err != nil {
			return dispatchErr("evict", err)
		}
		l.log.Debug("evicted idle overlays", "count", len(evicted))
	}

	l.log.Debug("render pass", "features", len(places), "created", len(created), "pool", len(l.pool))
	return nil
}

// lookup finds the widget for id among pooled and freshly created widgets.
// Callers hold renderMu.
func (l *Layer) lookup(id provider.FeatureID, created map[provider.FeatureID]display.Widget) display.Widget {
	if e, ok := l.pool[id]; ok {
		return e.widget
	}
	return created[id]
}

// commit inserts new widgets, stamps touched entries with the pass number
// and drops idle entries. It returns the dropped widgets. Callers hold
// renderMu.
func (l *Layer) commit(created map[provider.FeatureID]display.Widget, touched map[provider.FeatureID]struct{}) []display.Widget {
	l.poolMu.Lock()
	defer l.poolMu.Unlock()

	l.pass++
	for id, w := range created {
		l.pool[id] = &entry{widget: w}
	}
	for id := range touched {
		l.pool[id].lastPass = l.pass
	}

	if l.maxIdle == 0 {
		return nil
	}
	var evicted []display.Widget
	for id, e := range l.pool {
		if l.pass-e.lastPass > l.maxIdle {
			evicted = append(evicted, e.widget)
			delete(l.pool, id)
		}
	}
	return evicted
}

// removeAll unregisters and disposes widgets. UI goroutine only.
func removeAll(surface display.Surface, widgets []display.Widget) {
	for _, w := range widgets {
		if surface != nil {
			surface.RemoveWidget(w)
		}
		w.Dispose()
	}
}
