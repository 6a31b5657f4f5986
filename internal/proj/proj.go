// Package proj moves geometries between a data source's spatial reference
// and the spatial reference the map is displayed in.
//
// Uses paulmach/orb/project for the WGS84 <-> Web Mercator pair. A nil
// *Transform is valid and behaves as the identity.
package proj

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRID identifies a spatial reference system by its EPSG code.
type SRID int

const (
	Unknown     SRID = 0
	WGS84       SRID = 4326
	WebMercator SRID = 3857
)

// maxMercatorLat is where Web Mercator is clipped.
const maxMercatorLat = 85.05112878

// ErrUnsupported is returned when no transform exists between two references.
var ErrUnsupported = errors.New("unsupported coordinate transform")

func (s SRID) String() string {
	if s == Unknown {
		return "unknown"
	}
	return "EPSG:" + strconv.Itoa(int(s))
}

// ParseSRID accepts "EPSG:4326", "4326" and the aliases "wgs84",
// "mercator" and "webmercator". The empty string is Unknown.
func ParseSRID(s string) (SRID, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "":
		return Unknown, nil
	case "wgs84", "latlon", "lonlat":
		return WGS84, nil
	case "mercator", "webmercator", "web-mercator", "900913":
		return WebMercator, nil
	}
	v = strings.TrimPrefix(v, "epsg:")
	code, err := strconv.Atoi(v)
	if err != nil || code < 0 {
		return Unknown, fmt.Errorf("invalid srid %q", s)
	}
	return SRID(code), nil
}

// Transform converts coordinates from Source to Target (forward) and back
// (inverse).
type Transform struct {
	Source SRID
	Target SRID

	forward orb.Projection
	inverse orb.Projection
}

// New returns the transform from source to target. Matching or unknown
// references yield a nil (identity) transform.
func New(source, target SRID) (*Transform, error) {
	switch {
	case source == target, source == Unknown, target == Unknown:
		return nil, nil
	case source == WGS84 && target == WebMercator:
		return &Transform{Source: source, Target: target, forward: toMercator, inverse: project.Mercator.ToWGS84}, nil
	case source == WebMercator && target == WGS84:
		return &Transform{Source: source, Target: target, forward: project.Mercator.ToWGS84, inverse: toMercator}, nil
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrUnsupported, source, target)
}

// Custom builds a transform from explicit forward and reverse projections.
// Both must be supplied; the reverse one is used for every ToSource call.
func Custom(source, target SRID, forward, reverse orb.Projection) (*Transform, error) {
	if forward == nil || reverse == nil {
		return nil, errors.New("custom transform needs forward and reverse projections")
	}
	return &Transform{Source: source, Target: target, forward: forward, inverse: reverse}, nil
}

// toMercator clamps latitude before projecting so viewport corners at the
// poles stay finite.
func toMercator(p orb.Point) orb.Point {
	if p[1] > maxMercatorLat {
		p[1] = maxMercatorLat
	} else if p[1] < -maxMercatorLat {
		p[1] = -maxMercatorLat
	}
	return project.WGS84.ToMercator(p)
}

// IsIdentity reports whether the transform leaves coordinates unchanged.
func (t *Transform) IsIdentity() bool {
	return t == nil || t.forward == nil
}

// Reverse returns the transform going the other way.
func (t *Transform) Reverse() *Transform {
	if t.IsIdentity() {
		return nil
	}
	return &Transform{Source: t.Target, Target: t.Source, forward: t.inverse, inverse: t.forward}
}

// PointToTarget projects a source point into the target reference.
func (t *Transform) PointToTarget(p orb.Point) orb.Point {
	if t.IsIdentity() {
		return p
	}
	return t.forward(p)
}

// PointToSource projects a target point back into the source reference.
func (t *Transform) PointToSource(p orb.Point) orb.Point {
	if t.IsIdentity() {
		return p
	}
	return t.inverse(p)
}

// ToTarget returns a projected copy of g. The input is never mutated.
func (t *Transform) ToTarget(g orb.Geometry) orb.Geometry {
	if g == nil || t.IsIdentity() {
		return g
	}
	return project.Geometry(orb.Clone(g), t.forward)
}

// ToSource returns a copy of g projected back to the source reference.
func (t *Transform) ToSource(g orb.Geometry) orb.Geometry {
	if g == nil || t.IsIdentity() {
		return g
	}
	return project.Geometry(orb.Clone(g), t.inverse)
}

// BoundToTarget projects the corners of b and returns their envelope.
func (t *Transform) BoundToTarget(b orb.Bound) orb.Bound {
	if t.IsIdentity() {
		return b
	}
	return transformBound(b, t.forward)
}

// BoundToSource is BoundToTarget in the reverse direction.
func (t *Transform) BoundToSource(b orb.Bound) orb.Bound {
	if t.IsIdentity() {
		return b
	}
	return transformBound(b, t.inverse)
}

func transformBound(b orb.Bound, fn orb.Projection) orb.Bound {
	ring := b.ToRing()
	out := orb.Bound{Min: fn(ring[0]), Max: fn(ring[0])}
	for _, p := range ring[1:] {
		out = out.Extend(fn(p))
	}
	return out
}
