// Package memory is an in-process provider backed by an R-tree, used for
// GeoJSON sources and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/geo-blink/internal/proj"
	"github.com/joeblew999/geo-blink/internal/provider"
)

// pointEpsilon gives zero-area bounds a size the R-tree accepts.
const pointEpsilon = 1e-9

// Provider holds features in memory. Sessions are counted so callers can
// check that every Open is matched by a Close.
type Provider struct {
	name string
	srid proj.SRID

	mu       sync.RWMutex
	features map[provider.FeatureID]*indexedFeature
	tree     *rtreego.Rtree
	sessions int
	opens    int
	closes   int
}

// indexedFeature wraps a feature for R-tree storage.
type indexedFeature struct {
	feature provider.Feature
}

// Bounds implements rtreego.Spatial.
func (f *indexedFeature) Bounds() rtreego.Rect {
	return toRect(f.feature.Geometry.Bound())
}

func toRect(b orb.Bound) rtreego.Rect {
	lengths := []float64{b.Max[0] - b.Min[0], b.Max[1] - b.Min[1]}
	for i := range lengths {
		if lengths[i] < pointEpsilon {
			lengths[i] = pointEpsilon
		}
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, lengths)
	return rect
}

// New creates a provider holding features. Features without geometry are
// skipped; duplicate ids are an error.
func New(name string, srid proj.SRID, features ...provider.Feature) (*Provider, error) {
	p := &Provider{
		name:     name,
		srid:     srid,
		features: make(map[provider.FeatureID]*indexedFeature),
		tree:     rtreego.NewTree(2, 25, 50),
	}
	for _, f := range features {
		if err := p.Add(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// FromGeoJSON builds a provider from a FeatureCollection. Numeric feature
// ids are used as-is; other features are numbered from 1 in file order.
func FromGeoJSON(name string, srid proj.SRID, data []byte) (*Provider, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	p, _ := New(name, srid)
	next := provider.FeatureID(1)
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		id, ok := featureID(f.ID)
		if !ok {
			for p.has(next) {
				next++
			}
			id = next
		}
		if err := p.Add(provider.Feature{ID: id, Geometry: f.Geometry, Properties: map[string]any(f.Properties)}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadGeoJSON reads a GeoJSON file from disk.
func LoadGeoJSON(path string, srid proj.SRID) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}
	return FromGeoJSON(path, srid, data)
}

func featureID(v any) (provider.FeatureID, bool) {
	switch id := v.(type) {
	case float64:
		if id >= 0 && id <= float64(^uint32(0)) && id == float64(uint32(id)) {
			return provider.FeatureID(id), true
		}
	case string:
		if n, err := strconv.ParseUint(id, 10, 32); err == nil {
			return provider.FeatureID(n), true
		}
	}
	return 0, false
}

func (p *Provider) has(id provider.FeatureID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.features[id]
	return ok
}

// Add inserts a feature.
func (p *Provider) Add(f provider.Feature) error {
	if f.Geometry == nil {
		return fmt.Errorf("feature %d has no geometry", f.ID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.features[f.ID]; exists {
		return fmt.Errorf("feature %d already exists", f.ID)
	}
	item := &indexedFeature{feature: f}
	p.features[f.ID] = item
	p.tree.Insert(item)
	return nil
}

// Move replaces a feature's geometry.
func (p *Provider) Move(id provider.FeatureID, g orb.Geometry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.features[id]
	if !ok {
		return fmt.Errorf("%w: %d", provider.ErrNotFound, id)
	}
	p.tree.Delete(item)
	item.feature.Geometry = g
	p.tree.Insert(item)
	return nil
}

// Remove deletes a feature.
func (p *Provider) Remove(id provider.FeatureID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.features[id]
	if !ok {
		return false
	}
	p.tree.Delete(item)
	delete(p.features, id)
	return true
}

// Len returns the number of features.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.features)
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// SRID implements provider.Provider.
func (p *Provider) SRID() proj.SRID { return p.srid }

// Open implements provider.Provider.
func (p *Provider) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.sessions++
	p.opens++
	p.mu.Unlock()
	return nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessions == 0 {
		return provider.ErrNotOpen
	}
	p.sessions--
	p.closes++
	return nil
}

// Sessions returns how many times Open and Close have succeeded.
func (p *Provider) Sessions() (opens, closes int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opens, p.closes
}

// ObjectIDsInView implements provider.Provider. Ids are returned in
// ascending order.
func (p *Provider) ObjectIDsInView(ctx context.Context, bound orb.Bound) ([]provider.FeatureID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sessions == 0 {
		return nil, provider.ErrNotOpen
	}
	hits := p.search(bound)
	ids := make([]provider.FeatureID, 0, len(hits))
	for _, f := range hits {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

// GeometryByID implements provider.Provider.
func (p *Provider) GeometryByID(ctx context.Context, id provider.FeatureID) (orb.Geometry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.sessions == 0 {
		return nil, provider.ErrNotOpen
	}
	item, ok := p.features[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", provider.ErrNotFound, id)
	}
	return orb.Clone(item.feature.Geometry), nil
}

// Extent implements provider.Provider.
func (p *Provider) Extent(ctx context.Context) (orb.Bound, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var (
		out   orb.Bound
		first = true
	)
	for _, item := range p.features {
		b := item.feature.Geometry.Bound()
		if first {
			out, first = b, false
			continue
		}
		out = out.Union(b)
	}
	return out, nil
}

// QueryBound implements provider.Provider.
func (p *Provider) QueryBound(ctx context.Context, bound orb.Bound, rs *provider.ResultSet) error {
	return p.QueryGeometry(ctx, bound, rs)
}

// QueryGeometry implements provider.Provider.
func (p *Provider) QueryGeometry(ctx context.Context, g orb.Geometry, rs *provider.ResultSet) error {
	if g == nil {
		return fmt.Errorf("query geometry is nil")
	}
	p.mu.RLock()
	hits := p.search(g.Bound())
	p.mu.RUnlock()

	table := &provider.Table{Name: p.name}
	for _, f := range hits {
		if !Intersects(g, f.Geometry) {
			continue
		}
		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}
		table.Features = append(table.Features, provider.Feature{
			ID:         f.ID,
			Geometry:   orb.Clone(f.Geometry),
			Properties: props,
		})
	}
	rs.Add(table)
	return nil
}

// search returns the features whose geometry intersects bound, sorted by
// id. Callers hold p.mu.
func (p *Provider) search(bound orb.Bound) []provider.Feature {
	var out []provider.Feature
	for _, s := range p.tree.SearchIntersect(toRect(bound)) {
		f := s.(*indexedFeature).feature
		if Intersects(bound, f.Geometry) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Intersects is a coarse intersection test: exact when either side is a
// point, bounding-box overlap otherwise.
func Intersects(a, b orb.Geometry) bool {
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	if pt, ok := b.(orb.Point); ok {
		return containsPoint(a, pt)
	}
	if pt, ok := a.(orb.Point); ok {
		return containsPoint(b, pt)
	}
	return true
}

func containsPoint(g orb.Geometry, pt orb.Point) bool {
	switch v := g.(type) {
	case orb.Point:
		return v == pt
	case orb.Bound:
		return v.Contains(pt)
	case orb.Ring:
		return planar.RingContains(v, pt)
	case orb.Polygon:
		return planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt)
	case orb.MultiPoint:
		for _, p := range v {
			if p == pt {
				return true
			}
		}
		return false
	}
	return g.Bound().Contains(pt)
}

var _ provider.Provider = (*Provider)(nil)
