package overlay

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/display"
	"github.com/joeblew999/geo-blink/internal/proj"
	"github.com/joeblew999/geo-blink/internal/provider"
)

// scripted is a provider whose answers are set by the test.
type scripted struct {
	mu        sync.Mutex
	ids       []provider.FeatureID
	geoms     map[provider.FeatureID]orb.Geometry
	open      bool
	opens     int
	closes    int
	lastView  orb.Bound
	failOpen  error
	failIDs   error
	failClose error
}

func newScripted() *scripted {
	return &scripted{geoms: make(map[provider.FeatureID]orb.Geometry)}
}

func (s *scripted) set(ids ...provider.FeatureID) {
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
}

func (s *scripted) place(id provider.FeatureID, g orb.Geometry) {
	s.mu.Lock()
	s.geoms[id] = g
	s.mu.Unlock()
}

func (s *scripted) sessions() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}

func (s *scripted) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.failOpen != nil {
		return s.failOpen
	}
	s.open = true
	return nil
}

func (s *scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if !s.open {
		return provider.ErrNotOpen
	}
	s.open = false
	return s.failClose
}

func (s *scripted) ObjectIDsInView(_ context.Context, b orb.Bound) ([]provider.FeatureID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, provider.ErrNotOpen
	}
	s.lastView = b
	if s.failIDs != nil {
		return nil, s.failIDs
	}
	return append([]provider.FeatureID(nil), s.ids...), nil
}

func (s *scripted) GeometryByID(_ context.Context, id provider.FeatureID) (orb.Geometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil, provider.ErrNotOpen
	}
	g, ok := s.geoms[id]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return g, nil
}

func (s *scripted) Extent(context.Context) (orb.Bound, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b orb.Bound
	first := true
	for _, g := range s.geoms {
		if first {
			b, first = g.Bound(), false
			continue
		}
		b = b.Union(g.Bound())
	}
	return b, nil
}

func (s *scripted) QueryBound(context.Context, orb.Bound, *provider.ResultSet) error {
	return errors.New("not supported")
}

func (s *scripted) QueryGeometry(context.Context, orb.Geometry, *provider.ResultSet) error {
	return errors.New("not supported")
}

func (s *scripted) SRID() proj.SRID { return proj.Unknown }

// testView is 100x100 pixels over world (0,0)-(100,100); screen y is
// flipped, so world (x, y) lands on pixel (x, 100-y).
func testView() display.View {
	return display.View{Center: orb.Point{50, 50}, Resolution: 1, Size: image.Pt(100, 100)}
}

func newCanvas(t *testing.T) *display.Canvas {
	t.Helper()
	c := display.NewCanvas(testView())
	t.Cleanup(func() { c.Close() })
	return c
}

func newLayer(t *testing.T, p provider.Provider, opts ...Option) *Layer {
	t.Helper()
	l, err := New("blink", p, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func attach(t *testing.T, l *Layer, s display.Surface) {
	t.Helper()
	changed, err := l.SetSurface(s)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("surface not changed")
	}
}

func render(t *testing.T, l *Layer, s *display.Canvas) *image.RGBA {
	t.Helper()
	dst := s.NewMapImage()
	if err := l.Render(context.Background(), dst, s.View()); err != nil {
		t.Fatal(err)
	}
	return dst
}

func singleFrame(t *testing.T) *anim.Image {
	t.Helper()
	p := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	img, err := anim.New(&gif.GIF{Image: []*image.Paletted{p}, Delay: []int{10}})
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func widgetsByName(s display.Surface) map[string]display.Widget {
	out := make(map[string]display.Widget)
	for _, w := range s.Widgets() {
		out[w.Name()] = w
	}
	return out
}

func states(l *Layer) map[provider.FeatureID]OverlayState {
	out := make(map[provider.FeatureID]OverlayState)
	for _, st := range l.Overlays() {
		out[st.ID] = st
	}
	return out
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
