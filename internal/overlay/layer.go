// Package overlay keeps animated marker widgets in sync with the point
// features a provider reports inside the map view.
//
// A Layer owns a pool of widgets keyed by feature id. Each render pass asks
// the provider for the ids in view, creates widgets for new ids, moves and
// shows the ones in view, and hides the rest. Widgets are reused across
// passes and only destroyed when the layer is closed.
package overlay

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/display"
	"github.com/joeblew999/geo-blink/internal/logger"
	"github.com/joeblew999/geo-blink/internal/proj"
	"github.com/joeblew999/geo-blink/internal/provider"
)

// WidgetPrefix starts the name of every widget the layer creates.
const WidgetPrefix = "smpic"

// WidgetName returns the widget name for a feature.
func WidgetName(id provider.FeatureID) string {
	return WidgetPrefix + strconv.FormatUint(uint64(id), 10)
}

// VisibilityUnits selects what the visibility thresholds are compared to.
type VisibilityUnits int

const (
	// ZoomLevel compares against the view width in world units.
	ZoomLevel VisibilityUnits = iota
	// MapScale compares against the map scale denominator.
	MapScale
)

func (u VisibilityUnits) String() string {
	if u == MapScale {
		return "scale"
	}
	return "zoom"
}

// ParseVisibilityUnits accepts "zoom" and "scale".
func ParseVisibilityUnits(s string) (VisibilityUnits, error) {
	switch strings.ToLower(s) {
	case "", "zoom":
		return ZoomLevel, nil
	case "scale":
		return MapScale, nil
	}
	return ZoomLevel, fmt.Errorf("%w: visibility units %q", ErrInvalidArgument, s)
}

// SurfaceChange is passed to SurfaceChanging handlers. Setting Cancel
// vetoes the change.
type SurfaceChange struct {
	Old    display.Surface
	New    display.Surface
	Cancel bool
}

// OverlayState is a snapshot of one pooled widget.
type OverlayState struct {
	ID       provider.FeatureID `json:"id"`
	Name     string             `json:"name"`
	X        int                `json:"x"`
	Y        int                `json:"y"`
	Visible  bool               `json:"visible"`
	LastPass uint64             `json:"lastPass"`
}

type entry struct {
	widget   display.Widget
	lastPass uint64
}

type subscription struct {
	events *display.EventBus
	ch     chan display.Event
	done   chan struct{}
}

// Layer is the overlay reconciler.
type Layer struct {
	name      string
	provider  provider.Provider
	transform *proj.Transform
	log       *slog.Logger
	maxIdle   uint64

	// renderMu serialises pool mutation: render passes, image broadcasts,
	// surface changes and teardown.
	renderMu sync.Mutex

	poolMu sync.RWMutex
	pool   map[provider.FeatureID]*entry
	pass   uint64

	mu           sync.RWMutex
	image        *anim.Image
	surface      display.Surface
	sub          *subscription
	enabled      bool
	queryEnabled bool
	minVisible   float64
	maxVisible   float64
	units        VisibilityUnits

	hooksMu         sync.Mutex
	imageChanged    []func(*Layer)
	surfaceChanging []func(*Layer, *SurfaceChange)
	surfaceChanged  []func(*Layer)
}

// Option configures a Layer.
type Option func(*Layer)

// WithTransform sets the provider-to-display transform.
func WithTransform(t *proj.Transform) Option {
	return func(l *Layer) { l.transform = t }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Layer) { l.log = log }
}

// WithImage replaces the built-in marker. nil leaves the layer without an
// image: nothing is drawn and widgets stay hidden.
func WithImage(img *anim.Image) Option {
	return func(l *Layer) { l.image = img }
}

// WithMaxIdlePasses disposes widgets whose feature has not been in view for
// more than n passes. Zero keeps every widget until Close.
func WithMaxIdlePasses(n uint64) Option {
	return func(l *Layer) { l.maxIdle = n }
}

// New creates an enabled layer over p using the built-in marker image.
func New(name string, p provider.Provider, opts ...Option) (*Layer, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: provider", ErrNullArgument)
	}
	l := &Layer{
		name:         name,
		provider:     p,
		log:          logger.L(),
		pool:         make(map[provider.FeatureID]*entry),
		image:        anim.Default(),
		enabled:      true,
		queryEnabled: true,
		maxVisible:   math.MaxFloat64,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.image != nil && !l.image.CanAnimate() {
		return nil, fmt.Errorf("%w: image has %d frame(s)", ErrInvalidArgument, l.image.FrameCount())
	}
	l.log = l.log.With("layer", name)
	return l, nil
}

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// Provider returns the data source.
func (l *Layer) Provider() provider.Provider { return l.provider }

// Transform returns the provider-to-display transform (nil is identity).
func (l *Layer) Transform() *proj.Transform { return l.transform }

// AnimatedImage returns the shared marker image.
func (l *Layer) AnimatedImage() *anim.Image {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.image
}

// Surface returns the attached surface, or nil.
func (l *Layer) Surface() display.Surface {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.surface
}

// Enabled reports whether the layer renders.
func (l *Layer) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// QueryEnabled reports whether intersection queries are served.
func (l *Layer) QueryEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.queryEnabled
}

// SetQueryEnabled turns intersection queries on or off.
func (l *Layer) SetQueryEnabled(v bool) {
	l.mu.Lock()
	l.queryEnabled = v
	l.mu.Unlock()
}

// Visibility returns the thresholds and their units.
func (l *Layer) Visibility() (min, max float64, units VisibilityUnits) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minVisible, l.maxVisible, l.units
}

// SetEnabled turns rendering on or off.
func (l *Layer) SetEnabled(v bool) error {
	l.mu.Lock()
	l.enabled = v
	l.mu.Unlock()
	return l.styleChanged()
}

// SetVisibility sets the range (min, max] in which the layer is shown.
func (l *Layer) SetVisibility(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) || min < 0 || max <= min {
		return fmt.Errorf("%w: visibility range (%v, %v]", ErrInvalidArgument, min, max)
	}
	l.mu.Lock()
	l.minVisible, l.maxVisible = min, max
	l.mu.Unlock()
	return l.styleChanged()
}

// SetVisibilityUnits selects zoom or scale thresholds.
func (l *Layer) SetVisibilityUnits(u VisibilityUnits) error {
	if u != ZoomLevel && u != MapScale {
		return fmt.Errorf("%w: visibility units %d", ErrInvalidArgument, u)
	}
	l.mu.Lock()
	l.units = u
	l.mu.Unlock()
	return l.styleChanged()
}

// visibleAt reports whether the layer should draw in v. Callers hold l.mu.
func (l *Layer) visibleAt(v display.View) bool {
	if !l.enabled {
		return false
	}
	compare := v.Zoom()
	if l.units == MapScale {
		compare = v.Scale()
	}
	return l.maxVisible >= compare && l.minVisible < compare
}

// styleChanged hides every widget when the layer is no longer visible at
// the surface's current view. Widgets are shown again by the next pass.
func (l *Layer) styleChanged() error {
	l.mu.RLock()
	surface := l.surface
	visible := surface != nil && l.visibleAt(surface.View())
	l.mu.RUnlock()

	if surface == nil || visible {
		return nil
	}
	return l.hideAll(surface)
}

// OnAnimatedImageChanged registers a handler run after the image changed.
func (l *Layer) OnAnimatedImageChanged(fn func(*Layer)) {
	l.hooksMu.Lock()
	l.imageChanged = append(l.imageChanged, fn)
	l.hooksMu.Unlock()
}

// OnSurfaceChanging registers a handler that may veto a surface change.
func (l *Layer) OnSurfaceChanging(fn func(*Layer, *SurfaceChange)) {
	l.hooksMu.Lock()
	l.surfaceChanging = append(l.surfaceChanging, fn)
	l.hooksMu.Unlock()
}

// OnSurfaceChanged registers a handler run after a surface change.
func (l *Layer) OnSurfaceChanged(fn func(*Layer)) {
	l.hooksMu.Lock()
	l.surfaceChanged = append(l.surfaceChanged, fn)
	l.hooksMu.Unlock()
}

func (l *Layer) hooks() (image []func(*Layer), changing []func(*Layer, *SurfaceChange), changed []func(*Layer)) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	return append([]func(*Layer){}, l.imageChanged...),
		append([]func(*Layer, *SurfaceChange){}, l.surfaceChanging...),
		append([]func(*Layer){}, l.surfaceChanged...)
}

// Overlays returns a snapshot of the pool ordered by feature id.
func (l *Layer) Overlays() []OverlayState {
	l.poolMu.RLock()
	out := make([]OverlayState, 0, len(l.pool))
	for id, e := range l.pool {
		loc := e.widget.Location()
		out = append(out, OverlayState{
			ID:       id,
			Name:     e.widget.Name(),
			X:        loc.X,
			Y:        loc.Y,
			Visible:  e.widget.Visible(),
			LastPass: e.lastPass,
		})
	}
	l.poolMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Passes returns the number of completed reconciliation passes.
func (l *Layer) Passes() uint64 {
	l.poolMu.RLock()
	defer l.poolMu.RUnlock()
	return l.pass
}

// widgets snapshots the pooled widgets.
func (l *Layer) widgets() []display.Widget {
	l.poolMu.RLock()
	defer l.poolMu.RUnlock()
	out := make([]display.Widget, 0, len(l.pool))
	for _, e := range l.pool {
		out = append(out, e.widget)
	}
	return out
}

// hideAll hides every pooled widget. It does not take renderMu, so a pan or
// zoom can hide widgets while a pass is running; the next pass restores
// them.
func (l *Layer) hideAll(surface display.Surface) error {
	widgets := l.widgets()
	if len(widgets) == 0 {
		return nil
	}
	hide := func() {
		for _, w := range widgets {
			w.SetVisible(false)
		}
	}
	if surface == nil {
		hide()
		return nil
	}
	if err := surface.Invoke(hide); err != nil {
		return dispatchErr("hide overlays", err)
	}
	return nil
}
