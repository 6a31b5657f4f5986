package display

import (
	"image"
	"image/color"
	"image/gif"
	"io"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/bus"
)

// Canvas is a headless map surface. It keeps the last rendered map image
// and composes overlay sprites on top of it, frame by frame.
type Canvas struct {
	*Dispatcher

	mu         sync.RWMutex
	view       View
	widgets    []Widget
	mapImage   *image.RGBA
	background color.Color
	suspended  int
	layouts    int

	events *EventBus
}

// NewCanvas creates a canvas for the given view and starts its dispatcher.
func NewCanvas(v View) *Canvas {
	return &Canvas{
		Dispatcher: NewDispatcher(0),
		view:       v,
		background: color.RGBA{R: 0xf2, G: 0xef, B: 0xe9, A: 0xff},
		events:     bus.New[Event](32),
	}
}

// View returns the current view.
func (c *Canvas) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// SetView replaces the view and publishes Panned and/or Zoomed.
func (c *Canvas) SetView(v View) error {
	if err := v.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	old := c.view
	c.view = v
	c.mu.Unlock()

	if old.Center != v.Center {
		c.events.Publish(Event{Kind: Panned, Center: v.Center, Zoom: v.Zoom()})
	}
	if old.Zoom() != v.Zoom() {
		c.events.Publish(Event{Kind: Zoomed, Center: v.Center, Zoom: v.Zoom()})
	}
	return nil
}

// Pan moves the view by dx, dy pixels.
func (c *Canvas) Pan(dx, dy float64) error {
	return c.SetView(c.View().Pan(dx, dy))
}

// ZoomTo sets the view width in world units.
func (c *Canvas) ZoomTo(zoom float64) error {
	v, err := c.View().WithZoom(zoom)
	if err != nil {
		return err
	}
	return c.SetView(v)
}

// Events returns the pan/zoom notification bus.
func (c *Canvas) Events() *EventBus {
	return c.events
}

func (c *Canvas) NewWidget(name string, img *anim.Image) Widget {
	return NewSprite(name, img)
}

func (c *Canvas) AddWidget(w Widget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.widgets {
		if existing == w {
			return
		}
	}
	c.widgets = append(c.widgets, w)
}

func (c *Canvas) RemoveWidget(w Widget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.widgets {
		if existing == w {
			c.widgets = append(c.widgets[:i], c.widgets[i+1:]...)
			return
		}
	}
}

func (c *Canvas) Widgets() []Widget {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Widget, len(c.widgets))
	copy(out, c.widgets)
	return out
}

// SuspendLayout defers layout until the matching ResumeLayout.
func (c *Canvas) SuspendLayout() {
	c.mu.Lock()
	c.suspended++
	c.mu.Unlock()
}

// ResumeLayout ends a suspension; the outermost one counts as a layout pass.
func (c *Canvas) ResumeLayout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.suspended == 0 {
		return
	}
	c.suspended--
	if c.suspended == 0 {
		c.layouts++
	}
}

// LayoutSuspended reports whether a suspension is in progress.
func (c *Canvas) LayoutSuspended() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suspended > 0
}

// LayoutPasses counts completed suspend/resume batches.
func (c *Canvas) LayoutPasses() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layouts
}

// NewMapImage returns a blank map image matching the current view.
func (c *Canvas) NewMapImage() *image.RGBA {
	c.mu.RLock()
	size, bg := c.view.Size, c.background
	c.mu.RUnlock()
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return img
}

// SetMapImage stores the latest rendered map image.
func (c *Canvas) SetMapImage(img *image.RGBA) {
	c.mu.Lock()
	c.mapImage = img
	c.mu.Unlock()
}

// MapImage returns the latest rendered map image, or nil.
func (c *Canvas) MapImage() *image.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapImage
}

// Compose draws the map image with every visible widget on top, each
// showing the frame that is current elapsed after the animation started.
func (c *Canvas) Compose(elapsed time.Duration) *image.RGBA {
	base := c.MapImage()
	if base == nil {
		base = c.NewMapImage()
	}
	out := image.NewRGBA(base.Bounds())
	draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)

	type snapshot struct {
		img *anim.Image
		loc image.Point
	}
	var shots []snapshot
	collect := func() {
		for _, w := range c.Widgets() {
			if img := w.Image(); w.Visible() && img != nil {
				shots = append(shots, snapshot{img: img.Clone(), loc: w.Location()})
			}
		}
	}
	// widget images are only read on the UI goroutine while it is alive.
	if err := c.Invoke(collect); err != nil {
		shots = nil
		collect()
	}

	for _, s := range shots {
		s.img.Advance(elapsed)
		s.img.Draw(out, image.Rectangle{Min: s.loc, Max: s.loc.Add(s.img.Size())})
	}
	return out
}

// Animate writes frames snapshots taken step apart as an animated GIF.
func (c *Canvas) Animate(w io.Writer, frames int, step time.Duration) error {
	if frames <= 0 {
		frames = 1
	}
	if step <= 0 {
		step = 100 * time.Millisecond
	}
	out := &gif.GIF{}
	for i := 0; i < frames; i++ {
		out.Image = append(out.Image, anim.Paletted(c.Compose(time.Duration(i)*step)))
		out.Delay = append(out.Delay, int(step/(10*time.Millisecond)))
	}
	return gif.EncodeAll(w, out)
}

// Close stops the UI goroutine.
func (c *Canvas) Close() error {
	c.Stop()
	return nil
}

var _ Surface = (*Canvas)(nil)
