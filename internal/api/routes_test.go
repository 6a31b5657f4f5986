package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/gif"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/config"
	"github.com/joeblew999/geo-blink/internal/service"
)

const stations = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [6.08, 50.77]}, "properties": {"name": "Aachen"}},
    {"type": "Feature", "id": 2, "geometry": {"type": "Point", "coordinates": [6.96, 50.94]}, "properties": {"name": "Koeln"}}
  ]
}`

func newTestAPI(t *testing.T) (humatest.TestAPI, *Services) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "sources", "stations.geojson")
	if err := os.WriteFile(src, []byte(stations), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Source.Path = src
	cfg.Display.Width, cfg.Display.Height = 200, 150

	m, err := service.NewMapService(context.Background(), cfg, service.MapOptions{DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	layers, err := service.NewLayerService(dir, m.Layer(), m.Events())
	if err != nil {
		t.Fatal(err)
	}
	svc := &Services{Map: m, Layer: layers, Source: service.NewSourceService(dir)}

	humaConfig := huma.DefaultConfig("geo-blink test", Version)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, LinkTransformer())
	api := humatest.Wrap(t, humago.New(http.NewServeMux(), humaConfig))
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(dir, cfg.Source.Kind, false).RegisterRoutes(api)
	NewDBHandler(nil).RegisterRoutes(api)
	NewEventHandler(m).RegisterRoutes(api)
	return api, svc
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decoding %s: %v", body, err)
	}
	return v
}

func TestHealthLinks(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/health")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	if got := decode[HealthBody](t, resp.Body.Bytes()); got.Status != "ok" {
		t.Fatalf("body=%+v", got)
	}
	if links := resp.Header().Values("Link"); len(links) != 4 {
		t.Fatalf("links=%v", links)
	}
}

func TestInfo(t *testing.T) {
	api, _ := newTestAPI(t)
	got := decode[InfoBody](t, api.Get("/api/v1/info").Body.Bytes())
	if got.Name != "geo-blink" || got.Source != "geojson" || got.DB {
		t.Fatalf("info=%+v", got)
	}
}

func TestRenderAndOverlays(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Post("/api/v1/render")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}
	res := decode[service.RenderResult](t, resp.Body.Bytes())
	if res.Pass != 1 || res.Visible != 2 {
		t.Fatalf("render=%+v", res)
	}

	res = decode[service.RenderResult](t, api.Get("/api/v1/overlays").Body.Bytes())
	if len(res.Overlays) != 2 || res.Overlays[0].Name != "smpic1" {
		t.Fatalf("overlays=%+v", res.Overlays)
	}
}

func TestFrameAndAnimation(t *testing.T) {
	api, _ := newTestAPI(t)
	api.Post("/api/v1/render")

	resp := api.Get("/api/v1/frame.png?t=250")
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status=%d type=%q", resp.Code, resp.Header().Get("Content-Type"))
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatal(err)
	}

	resp = api.Get("/api/v1/overlays.gif?frames=3&step=100")
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d", resp.Code)
	}
	g, err := gif.DecodeAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 3 {
		t.Fatalf("frames=%d", len(g.Image))
	}
}

func TestLayerSettings(t *testing.T) {
	api, svc := newTestAPI(t)

	got := decode[service.LayerSettings](t, api.Get("/api/v1/layer").Body.Bytes())
	if got.Name != "blink" || !got.Enabled {
		t.Fatalf("layer=%+v", got)
	}

	resp := api.Put("/api/v1/layer", map[string]any{
		"enabled": false, "queryEnabled": true, "minVisible": 0, "units": "zoom",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}
	if svc.Map.Layer().Enabled() {
		t.Fatal("layer still enabled")
	}

	resp = api.Put("/api/v1/layer", map[string]any{
		"enabled": true, "queryEnabled": true, "minVisible": 10, "maxVisible": 5, "units": "zoom",
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("inverted range: status=%d", resp.Code)
	}

	resp = api.Put("/api/v1/layer", map[string]any{
		"enabled": true, "queryEnabled": true, "minVisible": 0, "units": "meters",
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad units: status=%d", resp.Code)
	}
}

func TestViewRoundTrip(t *testing.T) {
	api, _ := newTestAPI(t)

	v := decode[service.ViewState](t, api.Get("/api/v1/view").Body.Bytes())
	if v.Width != 200 || v.Height != 150 || v.SRID != 3857 {
		t.Fatalf("view=%+v", v)
	}

	v.Resolution *= 2
	resp := api.Put("/api/v1/view", map[string]any{
		"centerX": v.CenterX, "centerY": v.CenterY, "resolution": v.Resolution, "width": v.Width, "height": v.Height,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}
	if got := decode[service.ViewState](t, resp.Body.Bytes()); got.Resolution != v.Resolution {
		t.Fatalf("resolution=%v, want %v", got.Resolution, v.Resolution)
	}

	resp = api.Put("/api/v1/view", map[string]any{
		"centerX": 0, "centerY": 0, "resolution": 0, "width": 10, "height": 10,
	})
	if resp.Code < 400 {
		t.Fatalf("zero resolution accepted: %d", resp.Code)
	}
}

func TestQueryAndExtent(t *testing.T) {
	api, _ := newTestAPI(t)

	ext := decode[service.Extent](t, api.Get("/api/v1/extent").Body.Bytes())
	if ext.MinX >= ext.MaxX || ext.MinY >= ext.MaxY {
		t.Fatalf("extent=%+v", ext)
	}

	resp := api.Post("/api/v1/query", map[string]any{
		"bbox": []float64{ext.MinX - 10, ext.MinY - 10, ext.MaxX + 10, ext.MaxY + 10},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}
	type hit struct {
		ID       uint32 `json:"id"`
		Geometry struct {
			Type string `json:"type"`
		} `json:"geometry"`
	}
	out := decode[struct {
		Features []hit `json:"features"`
		Count    int   `json:"count"`
	}](t, resp.Body.Bytes())
	if out.Count != 2 || out.Features[0].Geometry.Type != "Point" {
		t.Fatalf("query=%+v", out)
	}

	if resp := api.Post("/api/v1/query", map[string]any{}); resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty query: status=%d", resp.Code)
	}
}

func TestPutImage(t *testing.T) {
	api, _ := newTestAPI(t)

	var buf bytes.Buffer
	if err := anim.Default().EncodeGIF(&buf); err != nil {
		t.Fatal(err)
	}
	resp := api.Put("/api/v1/image", "Content-Type: image/gif", &buf)
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}

	resp = api.Put("/api/v1/image", "Content-Type: image/gif", strings.NewReader("GIF89a"))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("broken gif: status=%d", resp.Code)
	}
}

func TestTablesWithoutDatabase(t *testing.T) {
	api, _ := newTestAPI(t)
	if resp := api.Get("/api/v1/tables"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", resp.Code)
	}
}

func TestSources(t *testing.T) {
	api, _ := newTestAPI(t)
	files := decode[[]service.SourceFile](t, api.Get("/api/v1/sources").Body.Bytes())
	if len(files) != 1 || files[0].Name != "stations.geojson" {
		t.Fatalf("sources=%+v", files)
	}
}

func TestPanStreamsSignals(t *testing.T) {
	api, svc := newTestAPI(t)
	before := svc.Map.View()

	resp := api.Post("/api/v1/view/pan", map[string]any{"dx": 1, "dy": 0})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}
	body := resp.Body.String()
	for _, want := range []string{"datastar-patch-signals", `"cause":"pan"`, "datastar-patch-elements", "#overlay-status", "of 2 overlays visible"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %s", want, body)
		}
	}
	if after := svc.Map.View(); after.CenterX != before.CenterX+before.Resolution {
		t.Fatalf("center %v -> %v", before.CenterX, after.CenterX)
	}
}

func TestPanRejectsNonPositiveZoom(t *testing.T) {
	api, svc := newTestAPI(t)
	before := svc.Map.View()

	resp := api.Post("/api/v1/view/pan", map[string]any{"dx": 5, "zoom": 0})
	body := resp.Body.String()
	if !strings.Contains(body, "zoom must be positive") {
		t.Fatalf("body=%s", body)
	}
	if after := svc.Map.View(); after.CenterX != before.CenterX {
		t.Fatalf("view moved on rejected zoom: %v -> %v", before.CenterX, after.CenterX)
	}
}

func TestPanWithoutRender(t *testing.T) {
	api, svc := newTestAPI(t)

	resp := api.Post("/api/v1/view/pan", map[string]any{"dx": 1, "render": false})
	if resp.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.Code, resp.Body)
	}
	if !strings.Contains(resp.Body.String(), `"pass":0`) {
		t.Fatalf("body=%s", resp.Body)
	}
	if got := svc.Map.Overlays().Pass; got != 0 {
		t.Fatalf("pass=%d, want 0", got)
	}
}
