package service

import (
	"bytes"
	"context"
	"errors"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/config"
	"github.com/joeblew999/geo-blink/internal/overlay"
	"github.com/joeblew999/geo-blink/internal/proj"
)

const stations = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [6.08, 50.77]}, "properties": {"name": "Aachen"}},
    {"type": "Feature", "id": 2, "geometry": {"type": "Point", "coordinates": [6.96, 50.94]}, "properties": {"name": "Koeln"}},
    {"type": "Feature", "id": 3, "geometry": {"type": "Point", "coordinates": [7.10, 50.73]}, "properties": {"name": "Bonn"}}
  ]
}`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.geojson")
	if err := os.WriteFile(path, []byte(stations), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Source.Path = path
	cfg.Display.Width, cfg.Display.Height = 320, 240
	return cfg
}

func newMap(t *testing.T) *MapService {
	t.Helper()
	m, err := NewMapService(context.Background(), testConfig(t), MapOptions{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMapRenderShowsEveryStation(t *testing.T) {
	m := newMap(t)
	ch := m.Events().Subscribe()
	defer m.Events().Unsubscribe(ch)

	res, err := m.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Pass != 1 || res.Visible != 3 || len(res.Overlays) != 3 {
		t.Fatalf("result=%+v", res)
	}
	for _, st := range res.Overlays {
		if st.X < -16 || st.Y < -16 || st.X > 320 || st.Y > 240 {
			t.Errorf("overlay %d off screen at (%d,%d)", st.ID, st.X, st.Y)
		}
	}

	select {
	case ev := <-ch:
		if ev.Resource != "overlays" || ev.Action != "rendered" {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no render event")
	}
}

func TestMapFrameAndAnimation(t *testing.T) {
	m := newMap(t)
	if _, err := m.Render(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := m.FramePNG(0)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Fatalf("frame bounds %v", b)
	}

	var buf bytes.Buffer
	if err := m.Animate(&buf, 4, 250*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 4 {
		t.Fatalf("frames=%d, want 4", len(g.Image))
	}
}

func TestMapSetViewHidesUntilRender(t *testing.T) {
	m := newMap(t)
	if _, err := m.Render(context.Background()); err != nil {
		t.Fatal(err)
	}

	v := m.View()
	v.Resolution *= 2
	got, err := m.SetView(v)
	if err != nil {
		t.Fatal(err)
	}
	if got.Zoom != v.Resolution*float64(v.Width) {
		t.Fatalf("zoom=%v", got.Zoom)
	}

	deadline := time.Now().Add(time.Second)
	for m.Overlays().Visible != 0 {
		if time.Now().After(deadline) {
			t.Fatal("overlays still visible after zoom")
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := m.Render(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Visible != 3 {
		t.Fatalf("visible=%d after re-render", res.Visible)
	}
}

func TestMapSetViewRejectsInvalid(t *testing.T) {
	m := newMap(t)
	v := m.View()
	v.Width = 0
	if _, err := m.SetView(v); !errors.Is(err, overlay.ErrInvalidArgument) {
		t.Fatalf("err=%v", err)
	}
}

func TestMapQuery(t *testing.T) {
	m := newMap(t)
	ext, err := m.Extent(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	hits, err := m.Query(context.Background(), QueryRequest{BBox: []float64{ext.MinX - 100, ext.MinY - 100, ext.MaxX + 100, ext.MaxY + 100}})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 3 {
		t.Fatalf("hits=%d, want 3", len(hits))
	}

	tr, err := proj.New(proj.WGS84, proj.WebMercator)
	if err != nil {
		t.Fatal(err)
	}
	a := tr.PointToTarget(orb.Point{6.08, 50.77})
	ring := [][2]float64{{a[0] - 1000, a[1] - 1000}, {a[0] + 1000, a[1] - 1000}, {a[0], a[1] + 1000}, {a[0] - 1000, a[1] - 1000}}
	hits, err = m.Query(context.Background(), QueryRequest{Polygon: ring})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Fatalf("polygon hits=%+v, want Aachen", hits)
	}

	for _, bad := range []QueryRequest{{}, {BBox: []float64{1, 1, 0, 0}}, {Polygon: [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}} {
		if _, err := m.Query(context.Background(), bad); !errors.Is(err, overlay.ErrInvalidArgument) {
			t.Errorf("query %+v: err=%v", bad, err)
		}
	}
}

func TestMapSetImage(t *testing.T) {
	m := newMap(t)
	if _, err := m.Render(context.Background()); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := anim.Default().EncodeGIF(&buf); err != nil {
		t.Fatal(err)
	}
	if err := m.SetImage(&buf); err != nil {
		t.Fatal(err)
	}
	if err := m.SetImage(bytes.NewReader([]byte("not a gif"))); !errors.Is(err, overlay.ErrInvalidArgument) {
		t.Fatalf("err=%v", err)
	}
}

func TestNewMapServiceRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Path = filepath.Join(t.TempDir(), "missing.geojson")
	if _, err := NewMapService(context.Background(), cfg, MapOptions{}); err == nil {
		t.Fatal("missing source accepted")
	}

	cfg = testConfig(t)
	cfg.Image = filepath.Join(t.TempDir(), "missing.gif")
	if _, err := NewMapService(context.Background(), cfg, MapOptions{}); err == nil {
		t.Fatal("missing image accepted")
	}
}
