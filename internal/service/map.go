package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/geo-blink/internal/anim"
	"github.com/joeblew999/geo-blink/internal/config"
	"github.com/joeblew999/geo-blink/internal/db"
	"github.com/joeblew999/geo-blink/internal/display"
	"github.com/joeblew999/geo-blink/internal/overlay"
	"github.com/joeblew999/geo-blink/internal/proj"
	"github.com/joeblew999/geo-blink/internal/provider"
	"github.com/joeblew999/geo-blink/internal/provider/duckdb"
	"github.com/joeblew999/geo-blink/internal/provider/memory"
)

// MapOptions are the runtime dependencies of a MapService.
type MapOptions struct {
	DataDir string
	Logger  *slog.Logger
	Events  *EventBus
}

// MapService owns the headless map canvas and the overlay layer drawn on
// it.
type MapService struct {
	log    *slog.Logger
	events *EventBus
	canvas *display.Canvas
	layer  *overlay.Layer
	db     *sql.DB
}

// NewMapService builds the provider, layer and canvas described by cfg and
// attaches the layer to the canvas.
func NewMapService(ctx context.Context, cfg config.Config, opts MapOptions) (*MapService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	events := opts.Events
	if events == nil {
		events = NewEventBus()
	}
	s := &MapService{log: log, events: events}

	p, err := s.openProvider(ctx, cfg, opts.DataDir)
	if err != nil {
		s.Close()
		return nil, err
	}

	layerOpts, err := layerOptions(cfg, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.layer, err = overlay.New(cfg.Layer.Name, p, layerOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := ApplySettings(s.layer, LayerSettings{
		Enabled:      cfg.Layer.Enabled,
		QueryEnabled: cfg.Layer.Query,
		MinVisible:   cfg.Layer.MinVisible,
		MaxVisible:   cfg.Layer.MaxVisible,
		Units:        cfg.Layer.Units,
	}); err != nil {
		s.Close()
		return nil, err
	}
	s.layer.OnAnimatedImageChanged(func(l *overlay.Layer) {
		s.events.Publish(Event{Resource: "image", Action: "updated", ID: l.Name()})
	})

	view, err := s.initialView(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.canvas = display.NewCanvas(view)
	if _, err := s.layer.SetSurface(s.canvas); err != nil {
		s.Close()
		return nil, err
	}

	log.Info("map ready", "layer", cfg.Layer.Name, "source", cfg.Source.Kind,
		"srid", cfg.Display.SRID, "width", view.Size.X, "height", view.Size.Y)
	return s, nil
}

func (s *MapService) openProvider(ctx context.Context, cfg config.Config, dataDir string) (provider.Provider, error) {
	srid := proj.SRID(cfg.Source.SRID)
	switch cfg.Source.Kind {
	case config.SourceGeoJSON:
		return memory.LoadGeoJSON(cfg.Source.Path, srid)
	case config.SourceDuckDB:
		conn, err := db.Open(db.Config{DataDir: dataDir, DBName: cfg.Source.Database})
		if err != nil {
			return nil, err
		}
		s.db = conn
		if cfg.Source.Path != "" {
			if err := duckdb.ImportGeoJSON(ctx, conn, cfg.Source.Table, cfg.Source.Path); err != nil {
				return nil, err
			}
			s.log.Info("imported source", "path", cfg.Source.Path, "table", cfg.Source.Table)
		}
		return duckdb.New(conn, duckdb.Config{
			Table:      cfg.Source.Table,
			IDColumn:   cfg.Source.IDColumn,
			GeomColumn: cfg.Source.GeomColumn,
			SRID:       srid,
		})
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

func layerOptions(cfg config.Config, log *slog.Logger) ([]overlay.Option, error) {
	tr, err := cfg.Transform()
	if err != nil {
		return nil, err
	}
	opts := []overlay.Option{
		overlay.WithTransform(tr),
		overlay.WithLogger(log),
		overlay.WithMaxIdlePasses(cfg.Layer.MaxIdlePasses),
	}
	if cfg.Image != "" {
		img, err := anim.Load(cfg.Image)
		if err != nil {
			return nil, fmt.Errorf("loading image: %w", err)
		}
		opts = append(opts, overlay.WithImage(img))
	}
	return opts, nil
}

func (s *MapService) initialView(ctx context.Context, cfg config.Config) (display.View, error) {
	size := image.Pt(cfg.Display.Width, cfg.Display.Height)
	srid := proj.SRID(cfg.Display.SRID)
	if c := cfg.Display.Center; c != nil {
		v := display.View{Center: orb.Point{c[0], c[1]}, Resolution: cfg.Display.Resolution, Size: size, SRID: srid}
		return v, v.Validate()
	}

	ext, err := s.layer.Extent(ctx)
	if err != nil {
		return display.View{}, err
	}
	pad := math.Max(ext.Max[0]-ext.Min[0], ext.Max[1]-ext.Min[1]) * 0.05
	if pad == 0 {
		pad = 1000
	}
	return display.FitBound(ext.Pad(pad), size, srid), nil
}

// Layer returns the overlay layer.
func (s *MapService) Layer() *overlay.Layer { return s.layer }

// Canvas returns the map surface.
func (s *MapService) Canvas() *display.Canvas { return s.canvas }

// Events returns the bus render and view changes are published on.
func (s *MapService) Events() *EventBus { return s.events }

// DB returns the DuckDB handle for duckdb sources, or nil.
func (s *MapService) DB() *sql.DB { return s.db }

// Render runs a render pass over a fresh map image and keeps the image for
// Frame and Animate.
func (s *MapService) Render(ctx context.Context) (RenderResult, error) {
	img := s.canvas.NewMapImage()
	start := time.Now()
	if err := s.layer.Render(ctx, img, s.canvas.View()); err != nil {
		return RenderResult{}, err
	}
	s.canvas.SetMapImage(img)

	res := s.result()
	s.log.Debug("rendered", "pass", res.Pass, "visible", res.Visible, "took", time.Since(start))
	s.events.Publish(Event{Resource: "overlays", Action: "rendered", ID: s.layer.Name()})
	return res, nil
}

func (s *MapService) result() RenderResult {
	states := s.layer.Overlays()
	res := RenderResult{Pass: s.layer.Passes(), Overlays: states}
	for _, st := range states {
		if st.Visible {
			res.Visible++
		}
	}
	return res
}

// Overlays returns the pool without rendering.
func (s *MapService) Overlays() RenderResult {
	return s.result()
}

// FramePNG composes the map with the overlays as they look elapsed after
// the animation started.
func (s *MapService) FramePNG(elapsed time.Duration) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.canvas.Compose(elapsed)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Animate writes the composed map as an animated GIF.
func (s *MapService) Animate(w io.Writer, frames int, step time.Duration) error {
	return s.canvas.Animate(w, frames, step)
}

// View returns the current view.
func (s *MapService) View() ViewState {
	return viewState(s.canvas.View())
}

// SetView moves the map. Pan and zoom notifications hide the overlays until
// the next render.
func (s *MapService) SetView(v ViewState) (ViewState, error) {
	view := display.View{
		Center:     orb.Point{v.CenterX, v.CenterY},
		Resolution: v.Resolution,
		Size:       image.Pt(v.Width, v.Height),
		SRID:       s.canvas.View().SRID,
	}
	if err := s.canvas.SetView(view); err != nil {
		return ViewState{}, fmt.Errorf("%w: %w", overlay.ErrInvalidArgument, err)
	}
	s.events.Publish(Event{Resource: "view", Action: "updated"})
	return viewState(view), nil
}

func viewState(v display.View) ViewState {
	return ViewState{
		CenterX:    v.Center[0],
		CenterY:    v.Center[1],
		Resolution: v.Resolution,
		Width:      v.Size.X,
		Height:     v.Size.Y,
		SRID:       int(v.SRID),
		Zoom:       v.Zoom(),
		Scale:      v.Scale(),
	}
}

// Extent returns the feature extent in display coordinates.
func (s *MapService) Extent(ctx context.Context) (Extent, error) {
	b, err := s.layer.Extent(ctx)
	if err != nil {
		return Extent{}, err
	}
	return Extent{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]}, nil
}

// Query runs an intersection query with a box or polygon.
func (s *MapService) Query(ctx context.Context, req QueryRequest) ([]QueryFeature, error) {
	rs := &provider.ResultSet{}
	switch {
	case len(req.BBox) == 4:
		box := orb.Bound{Min: orb.Point{req.BBox[0], req.BBox[1]}, Max: orb.Point{req.BBox[2], req.BBox[3]}}
		if box.Min[0] > box.Max[0] || box.Min[1] > box.Max[1] {
			return nil, fmt.Errorf("%w: bbox min exceeds max", overlay.ErrInvalidArgument)
		}
		if err := s.layer.ExecuteIntersectionQuery(ctx, box, rs); err != nil {
			return nil, err
		}
	case len(req.Polygon) >= 4:
		ring := make(orb.Ring, len(req.Polygon))
		for i, p := range req.Polygon {
			ring[i] = orb.Point(p)
		}
		if !ring.Closed() {
			return nil, fmt.Errorf("%w: polygon ring is not closed", overlay.ErrInvalidArgument)
		}
		if err := s.layer.ExecuteGeometryQuery(ctx, orb.Polygon{ring}, rs); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: bbox or polygon is required", overlay.ErrInvalidArgument)
	}

	out := []QueryFeature{}
	for _, t := range rs.Tables {
		for _, f := range t.Features {
			out = append(out, QueryFeature{
				Table:      t.Name,
				ID:         uint32(f.ID),
				Geometry:   geojson.NewGeometry(f.Geometry),
				Properties: f.Properties,
			})
		}
	}
	return out, nil
}

// SetImage decodes an animated GIF and makes it the layer's marker.
func (s *MapService) SetImage(r io.Reader) error {
	img, err := anim.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: %w", overlay.ErrInvalidArgument, err)
	}
	return s.layer.SetAnimatedImage(img)
}

// Close tears the layer down and releases the canvas and database.
func (s *MapService) Close() error {
	var errs []error
	if s.layer != nil {
		errs = append(errs, s.layer.Close())
	}
	if s.canvas != nil {
		errs = append(errs, s.canvas.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}
