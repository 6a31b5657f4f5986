package display

import (
	"bytes"
	"image"
	"image/gif"
	"testing"
	"time"

	"github.com/joeblew999/geo-blink/internal/anim"
)

func newTestCanvas(t *testing.T) *Canvas {
	t.Helper()
	c := NewCanvas(testView())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCanvasWidgetContainer(t *testing.T) {
	c := newTestCanvas(t)
	w := c.NewWidget("smpic1", anim.Default())

	c.AddWidget(w)
	c.AddWidget(w)
	if n := len(c.Widgets()); n != 1 {
		t.Fatalf("widgets=%d, want 1 after duplicate add", n)
	}
	if w.Visible() {
		t.Fatal("new widgets start hidden")
	}

	c.RemoveWidget(w)
	if n := len(c.Widgets()); n != 0 {
		t.Fatalf("widgets=%d, want 0", n)
	}
	c.RemoveWidget(w)
}

func TestCanvasLayoutSuspension(t *testing.T) {
	c := newTestCanvas(t)
	c.SuspendLayout()
	c.SuspendLayout()
	c.ResumeLayout()
	if !c.LayoutSuspended() {
		t.Fatal("nested suspension ended early")
	}
	c.ResumeLayout()
	c.ResumeLayout()
	if c.LayoutSuspended() {
		t.Fatal("still suspended")
	}
	if c.LayoutPasses() != 1 {
		t.Fatalf("LayoutPasses=%d, want 1", c.LayoutPasses())
	}
}

func TestCanvasPublishesViewEvents(t *testing.T) {
	c := newTestCanvas(t)
	ch := c.Events().Subscribe()
	defer c.Events().Unsubscribe(ch)

	if err := c.Pan(10, 0); err != nil {
		t.Fatal(err)
	}
	if ev := <-ch; ev.Kind != Panned {
		t.Fatalf("got %v, want panned", ev.Kind)
	}

	if err := c.ZoomTo(1000); err != nil {
		t.Fatal(err)
	}
	if ev := <-ch; ev.Kind != Zoomed || ev.Zoom != 1000 {
		t.Fatalf("got %+v, want zoomed to 1000", ev)
	}

	if err := c.SetView(c.View()); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unchanged view published %v", ev.Kind)
	default:
	}
}

func TestCanvasRejectsInvalidView(t *testing.T) {
	c := newTestCanvas(t)
	v := c.View()
	v.Resolution = -1
	if err := c.SetView(v); err == nil {
		t.Fatal("expected error")
	}
}

func TestComposeDrawsVisibleWidgetsOnly(t *testing.T) {
	c := newTestCanvas(t)
	shown := c.NewWidget("smpic1", anim.Default())
	hidden := c.NewWidget("smpic2", anim.Default())
	shown.SetLocation(image.Pt(10, 10))
	shown.SetVisible(true)
	hidden.SetLocation(image.Pt(50, 50))
	c.AddWidget(shown)
	c.AddWidget(hidden)

	out := c.Compose(0)
	bg := c.NewMapImage().At(0, 0)
	if out.At(18, 18) == bg {
		t.Fatal("visible widget not drawn")
	}
	if out.At(58, 58) != bg {
		t.Fatal("hidden widget drawn")
	}
}

func TestAnimate(t *testing.T) {
	c := newTestCanvas(t)
	w := c.NewWidget("smpic1", anim.Default())
	w.SetVisible(true)
	c.AddWidget(w)

	var buf bytes.Buffer
	if err := c.Animate(&buf, 4, 250*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 4 || g.Delay[0] != 25 {
		t.Fatalf("frames=%d delay=%d", len(g.Image), g.Delay[0])
	}
}

func TestSpriteDispose(t *testing.T) {
	s := NewSprite("smpic9", anim.Default())
	s.SetVisible(true)
	s.Dispose()
	if s.Visible() || s.Image() != nil || !s.Disposed() {
		t.Fatal("Dispose should hide the sprite and drop its image")
	}
	if s.Size() != (image.Point{}) {
		t.Fatalf("Size=%v after dispose", s.Size())
	}
}
