// Package provider defines the spatial data source the overlay layer
// queries on every render pass.
package provider

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/joeblew999/geo-blink/internal/proj"
)

var (
	// ErrNotOpen is returned when a session call is made on a closed provider.
	ErrNotOpen = errors.New("provider: not open")
	// ErrNotFound is returned for an unknown feature id.
	ErrNotFound = errors.New("provider: feature not found")
)

// FeatureID identifies a feature within a provider. It is stable across
// render passes for the same underlying feature.
type FeatureID uint32

// Feature is a row returned by an intersection query.
type Feature struct {
	ID         FeatureID      `json:"id"`
	Geometry   orb.Geometry   `json:"-"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Table is one provider answer appended to a ResultSet.
type Table struct {
	Name     string
	Features []Feature
}

// ResultSet collects the tables produced by intersection queries.
type ResultSet struct {
	Tables []*Table
}

// Add appends a table.
func (rs *ResultSet) Add(t *Table) {
	rs.Tables = append(rs.Tables, t)
}

// Len returns the total number of features over all tables.
func (rs *ResultSet) Len() int {
	n := 0
	for _, t := range rs.Tables {
		n += len(t.Features)
	}
	return n
}

// Provider is a spatial data source. A provider is opened and closed once
// per render pass and is not shared between concurrent passes.
type Provider interface {
	// Open starts a session.
	Open(ctx context.Context) error
	// Close ends the session started by Open.
	Close() error

	// ObjectIDsInView returns the ids of features whose geometry intersects
	// bound, in the provider's order.
	ObjectIDsInView(ctx context.Context, bound orb.Bound) ([]FeatureID, error)
	// GeometryByID returns the geometry of a single feature.
	GeometryByID(ctx context.Context, id FeatureID) (orb.Geometry, error)
	// Extent returns the envelope of all features.
	Extent(ctx context.Context) (orb.Bound, error)

	// QueryBound appends a table of the features intersecting bound.
	QueryBound(ctx context.Context, bound orb.Bound, rs *ResultSet) error
	// QueryGeometry appends a table of the features intersecting g.
	QueryGeometry(ctx context.Context, g orb.Geometry, rs *ResultSet) error

	// SRID is the spatial reference of the provider's geometries.
	SRID() proj.SRID
}

// Anchor returns the point an overlay is pinned to: the point itself, or
// the center of the geometry's bound for anything else.
func Anchor(g orb.Geometry) (orb.Point, bool) {
	switch v := g.(type) {
	case nil:
		return orb.Point{}, false
	case orb.Point:
		return v, true
	}
	if isEmptyGeometry(g) {
		return orb.Point{}, false
	}
	return g.Bound().Center(), true
}

func isEmptyGeometry(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0
	case orb.MultiPolygon:
		return len(v) == 0
	case orb.Collection:
		return len(v) == 0
	}
	return false
}
