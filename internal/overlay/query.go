package overlay

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/joeblew999/geo-blink/internal/provider"
)

// ExecuteIntersectionQuery appends the features intersecting box, given in
// display coordinates, to rs. Geometries of the appended tables are
// reprojected to display coordinates. It does nothing while queries are
// disabled.
func (l *Layer) ExecuteIntersectionQuery(ctx context.Context, box orb.Bound, rs *provider.ResultSet) error {
	if rs == nil {
		return fmt.Errorf("%w: result set", ErrNullArgument)
	}
	if !l.QueryEnabled() {
		return nil
	}
	start := len(rs.Tables)
	if err := l.provider.QueryBound(ctx, l.transform.BoundToSource(box), rs); err != nil {
		return providerErr("query bound", err)
	}
	l.reproject(rs, start)
	return nil
}

// ExecuteGeometryQuery is ExecuteIntersectionQuery for an arbitrary
// geometry.
func (l *Layer) ExecuteGeometryQuery(ctx context.Context, g orb.Geometry, rs *provider.ResultSet) error {
	if rs == nil {
		return fmt.Errorf("%w: result set", ErrNullArgument)
	}
	if g == nil {
		return fmt.Errorf("%w: query geometry", ErrNullArgument)
	}
	if !l.QueryEnabled() {
		return nil
	}
	start := len(rs.Tables)
	if err := l.provider.QueryGeometry(ctx, l.transform.ToSource(g), rs); err != nil {
		return providerErr("query geometry", err)
	}
	l.reproject(rs, start)
	return nil
}

// reproject moves the tables appended after start into display coordinates.
func (l *Layer) reproject(rs *provider.ResultSet, start int) {
	if l.transform.IsIdentity() {
		return
	}
	for _, t := range rs.Tables[start:] {
		for i := range t.Features {
			t.Features[i].Geometry = l.transform.ToTarget(t.Features[i].Geometry)
		}
	}
}

// Extent returns the extent of every feature in display coordinates.
func (l *Layer) Extent(ctx context.Context) (orb.Bound, error) {
	b, err := l.provider.Extent(ctx)
	if err != nil {
		return orb.Bound{}, providerErr("extent", err)
	}
	return l.transform.BoundToTarget(b), nil
}
