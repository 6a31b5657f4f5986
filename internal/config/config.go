// Package config reads the YAML file describing the overlay layer, its
// data source and the map view.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/geo-blink/internal/proj"
)

// Source kinds.
const (
	SourceGeoJSON = "geojson"
	SourceDuckDB  = "duckdb"
)

// Config is the root of a layer file.
type Config struct {
	Layer   Layer   `yaml:"layer"`
	Source  Source  `yaml:"source"`
	Display Display `yaml:"display"`
	// Image is an animated GIF used instead of the built-in marker.
	Image string `yaml:"image,omitempty"`
}

// Layer holds the overlay layer settings.
type Layer struct {
	Name          string  `yaml:"name"`
	Enabled       bool    `yaml:"enabled"`
	Query         bool    `yaml:"query"`
	MinVisible    float64 `yaml:"min_visible"`
	MaxVisible    float64 `yaml:"max_visible"` // 0 means unlimited
	Units         string  `yaml:"units"`       // zoom or scale
	MaxIdlePasses uint64  `yaml:"max_idle_passes"`
}

// Source describes where features come from.
type Source struct {
	Kind string `yaml:"kind"`
	// Path is a GeoJSON file. For duckdb sources it is imported into Table
	// when set.
	Path       string `yaml:"path,omitempty"`
	Table      string `yaml:"table,omitempty"`
	IDColumn   string `yaml:"id_column,omitempty"`
	GeomColumn string `yaml:"geom_column,omitempty"`
	Database   string `yaml:"database,omitempty"` // empty is in-memory
	SRID       int    `yaml:"srid"`
}

// Display is the map the layer is drawn on.
type Display struct {
	SRID       int         `yaml:"srid"`
	Width      int         `yaml:"width"`
	Height     int         `yaml:"height"`
	Center     *[2]float64 `yaml:"center,omitempty"` // nil fits the source extent
	Resolution float64     `yaml:"resolution,omitempty"`
}

// Default returns a GeoJSON layer in WGS84 drawn on a Web Mercator map.
func Default() Config {
	return Config{
		Layer: Layer{
			Name:    "blink",
			Enabled: true,
			Query:   true,
			Units:   "zoom",
		},
		Source: Source{
			Kind: SourceGeoJSON,
			Path: "sources/points.geojson",
			SRID: int(proj.WGS84),
		},
		Display: Display{
			SRID:   int(proj.WebMercator),
			Width:  800,
			Height: 600,
		},
	}
}

// Load reads path on top of Default. Relative source and image paths are
// resolved against the file's directory.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Resolve makes relative source and image paths relative to dir.
func (c *Config) Resolve(dir string) {
	if c.Source.Path != "" && !filepath.IsAbs(c.Source.Path) {
		c.Source.Path = filepath.Join(dir, c.Source.Path)
	}
	if c.Image != "" && !filepath.IsAbs(c.Image) {
		c.Image = filepath.Join(dir, c.Image)
	}
}

// Validate reports every problem in the configuration.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Layer.Name) == "" {
		errs = append(errs, errors.New("layer.name is required"))
	}
	switch strings.ToLower(c.Layer.Units) {
	case "", "zoom", "scale":
	default:
		errs = append(errs, fmt.Errorf("layer.units must be zoom or scale, got %q", c.Layer.Units))
	}
	if c.Layer.MinVisible < 0 {
		errs = append(errs, errors.New("layer.min_visible must not be negative"))
	}
	if c.Layer.MaxVisible != 0 && c.Layer.MaxVisible <= c.Layer.MinVisible {
		errs = append(errs, errors.New("layer.max_visible must exceed layer.min_visible"))
	}

	switch c.Source.Kind {
	case SourceGeoJSON:
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source.path is required for geojson sources"))
		}
	case SourceDuckDB:
		if c.Source.Table == "" {
			errs = append(errs, errors.New("source.table is required for duckdb sources"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %s or %s, got %q", SourceGeoJSON, SourceDuckDB, c.Source.Kind))
	}

	if _, err := proj.New(proj.SRID(c.Source.SRID), proj.SRID(c.Display.SRID)); err != nil {
		errs = append(errs, fmt.Errorf("source.srid/display.srid: %w", err))
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		errs = append(errs, fmt.Errorf("display size %dx%d is invalid", c.Display.Width, c.Display.Height))
	}
	if c.Display.Resolution < 0 {
		errs = append(errs, errors.New("display.resolution must not be negative"))
	}
	if c.Display.Center != nil && c.Display.Resolution == 0 {
		errs = append(errs, errors.New("display.resolution is required with display.center"))
	}
	return errors.Join(errs...)
}

// Transform returns the source-to-display transform.
func (c Config) Transform() (*proj.Transform, error) {
	return proj.New(proj.SRID(c.Source.SRID), proj.SRID(c.Display.SRID))
}
