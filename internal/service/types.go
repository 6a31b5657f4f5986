// Package service contains the business logic behind the geo-blink API:
// the map and its overlay layer, persisted layer settings and source files.
package service

import (
	"github.com/joeblew999/geo-blink/internal/overlay"
)

// LayerSettings is the user-editable part of the overlay layer.
// Huma reads the tags for OpenAPI and validation.
type LayerSettings struct {
	Name         string  `json:"name,omitempty" readOnly:"true" doc:"Layer name" example:"blink"`
	Enabled      bool    `json:"enabled" doc:"Whether the layer renders" example:"true"`
	QueryEnabled bool    `json:"queryEnabled" doc:"Whether intersection queries are answered" example:"true"`
	MinVisible   float64 `json:"minVisible" minimum:"0" doc:"Lower visibility threshold (exclusive)" example:"0"`
	MaxVisible   float64 `json:"maxVisible,omitempty" minimum:"0" doc:"Upper visibility threshold (inclusive); 0 is unlimited" example:"5000000"`
	Units        string  `json:"units" enum:"zoom,scale" default:"zoom" doc:"What the thresholds are compared to"`
}

// ViewState is the map view exchanged with clients.
type ViewState struct {
	CenterX    float64 `json:"centerX" doc:"View center, display x" example:"750000"`
	CenterY    float64 `json:"centerY" doc:"View center, display y" example:"6600000"`
	Resolution float64 `json:"resolution" exclusiveMinimum:"0" doc:"World units per pixel" example:"150"`
	Width      int     `json:"width" minimum:"1" maximum:"8192" doc:"Map width in pixels" example:"800"`
	Height     int     `json:"height" minimum:"1" maximum:"8192" doc:"Map height in pixels" example:"600"`
	SRID       int     `json:"srid,omitempty" readOnly:"true" doc:"Display spatial reference" example:"3857"`
	Zoom       float64 `json:"zoom,omitempty" readOnly:"true" doc:"View width in world units"`
	Scale      float64 `json:"scale,omitempty" readOnly:"true" doc:"Map scale denominator"`
}

// RenderResult summarises one render pass.
type RenderResult struct {
	Pass     uint64                 `json:"pass" doc:"Number of completed passes"`
	Visible  int                    `json:"visible" doc:"Overlays shown after the pass"`
	Overlays []overlay.OverlayState `json:"overlays" doc:"Every pooled overlay"`
}

// Extent is a bounding box in display coordinates.
type Extent struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// QueryRequest selects features by box or polygon, in display coordinates.
type QueryRequest struct {
	BBox    []float64    `json:"bbox,omitempty" minItems:"4" maxItems:"4" doc:"minX, minY, maxX, maxY"`
	Polygon [][2]float64 `json:"polygon,omitempty" minItems:"4" doc:"Closed outer ring"`
}

// QueryFeature is one intersection hit. Geometry is GeoJSON.
type QueryFeature struct {
	Table      string         `json:"table" doc:"Provider table that produced the hit"`
	ID         uint32         `json:"id" doc:"Feature id"`
	Geometry   any            `json:"geometry" doc:"GeoJSON geometry in display coordinates"`
	Properties map[string]any `json:"properties,omitempty" doc:"Feature attributes"`
}

// SourceFile represents a source data file (GeoJSON, etc.).
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"stations.geojson"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type: GeoJSON or GeoParquet" example:"GeoJSON"`
}
