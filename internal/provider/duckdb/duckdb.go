// Package duckdb is a provider over a DuckDB table with a spatial
// geometry column.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/joeblew999/geo-blink/internal/proj"
	"github.com/joeblew999/geo-blink/internal/provider"
)

// wkbColumn is the alias used for the geometry in query results.
const wkbColumn = "__wkb"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config describes the feature table.
type Config struct {
	Table      string
	IDColumn   string // default "id"
	GeomColumn string // default "geom"
	SRID       proj.SRID
}

// Provider queries a DuckDB table. Each session pins one connection from
// the pool between Open and Close.
type Provider struct {
	db  *sql.DB
	cfg Config

	mu   sync.Mutex
	conn *sql.Conn
}

// querier is satisfied by both *sql.DB and *sql.Conn.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New validates the table description. Identifiers are interpolated into
// SQL, so only plain names are accepted.
func New(db *sql.DB, cfg Config) (*Provider, error) {
	if db == nil {
		return nil, errors.New("duckdb provider: nil database")
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.GeomColumn == "" {
		cfg.GeomColumn = "geom"
	}
	for _, ident := range []string{cfg.Table, cfg.IDColumn, cfg.GeomColumn} {
		if !identRe.MatchString(ident) {
			return nil, fmt.Errorf("duckdb provider: invalid identifier %q", ident)
		}
	}
	return &Provider{db: db, cfg: cfg}, nil
}

// ImportGeoJSON creates (or replaces) table from a file readable by
// ST_Read, numbering features from 1 in the id column.
func ImportGeoJSON(ctx context.Context, db *sql.DB, table, path string) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	q := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT CAST(row_number() OVER () AS UINTEGER) AS id, * FROM ST_Read(%s)`,
		table, quoteLiteral(path))
	if _, err := db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("importing %s into %s: %w", path, table, err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// SRID implements provider.Provider.
func (p *Provider) SRID() proj.SRID { return p.cfg.SRID }

// Open implements provider.Provider.
func (p *Provider) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return err
	}
	p.conn = conn
	return nil
}

// Close implements provider.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return provider.ErrNotOpen
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Provider) session() (querier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil, provider.ErrNotOpen
	}
	return p.conn, nil
}

// pool returns the open session, or the shared pool when none is open.
func (p *Provider) pool() querier {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn
	}
	return p.db
}

// ObjectIDsInView implements provider.Provider.
func (p *Provider) ObjectIDsInView(ctx context.Context, bound orb.Bound) ([]provider.FeatureID, error) {
	q, err := p.session()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE ST_Intersects(%s, ST_MakeEnvelope(?, ?, ?, ?)) ORDER BY %s`,
		p.cfg.IDColumn, p.cfg.Table, p.cfg.GeomColumn, p.cfg.IDColumn)
	rows, err := q.QueryContext(ctx, query, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1])
	if err != nil {
		return nil, fmt.Errorf("querying ids in view: %w", err)
	}
	defer rows.Close()

	var ids []provider.FeatureID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, provider.FeatureID(id))
	}
	return ids, rows.Err()
}

// GeometryByID implements provider.Provider.
func (p *Provider) GeometryByID(ctx context.Context, id provider.FeatureID) (orb.Geometry, error) {
	q, err := p.session()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT ST_AsWKB(%s) FROM %s WHERE %s = ?`,
		p.cfg.GeomColumn, p.cfg.Table, p.cfg.IDColumn)

	var raw []byte
	if err := q.QueryRowContext(ctx, query, int64(id)).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", provider.ErrNotFound, id)
		}
		return nil, err
	}
	return wkb.Unmarshal(raw)
}

// Extent implements provider.Provider.
func (p *Provider) Extent(ctx context.Context) (orb.Bound, error) {
	query := fmt.Sprintf(
		`SELECT min(ST_XMin(%[1]s)), min(ST_YMin(%[1]s)), max(ST_XMax(%[1]s)), max(ST_YMax(%[1]s)) FROM %[2]s`,
		p.cfg.GeomColumn, p.cfg.Table)

	var minX, minY, maxX, maxY sql.NullFloat64
	if err := p.pool().QueryRowContext(ctx, query).Scan(&minX, &minY, &maxX, &maxY); err != nil {
		return orb.Bound{}, fmt.Errorf("querying extent: %w", err)
	}
	return orb.Bound{
		Min: orb.Point{minX.Float64, minY.Float64},
		Max: orb.Point{maxX.Float64, maxY.Float64},
	}, nil
}

// QueryBound implements provider.Provider.
func (p *Provider) QueryBound(ctx context.Context, bound orb.Bound, rs *provider.ResultSet) error {
	return p.QueryGeometry(ctx, bound.ToPolygon(), rs)
}

// QueryGeometry implements provider.Provider. Every non-geometry column is
// returned as a feature property.
func (p *Provider) QueryGeometry(ctx context.Context, g orb.Geometry, rs *provider.ResultSet) error {
	filter, err := wkb.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding query geometry: %w", err)
	}
	query := fmt.Sprintf(
		`SELECT * EXCLUDE (%[1]s), ST_AsWKB(%[1]s) AS %[2]s FROM %[3]s WHERE ST_Intersects(%[1]s, ST_GeomFromWKB(?)) ORDER BY %[4]s`,
		p.cfg.GeomColumn, wkbColumn, p.cfg.Table, p.cfg.IDColumn)

	rows, err := p.pool().QueryContext(ctx, query, filter)
	if err != nil {
		return fmt.Errorf("intersection query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	table := &provider.Table{Name: p.cfg.Table}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}

		f := provider.Feature{Properties: make(map[string]any, len(columns))}
		for i, col := range columns {
			switch col {
			case wkbColumn:
				raw, _ := values[i].([]byte)
				if f.Geometry, err = wkb.Unmarshal(raw); err != nil {
					return fmt.Errorf("decoding geometry: %w", err)
				}
			case p.cfg.IDColumn:
				id, ok := toID(values[i])
				if !ok {
					return fmt.Errorf("unexpected id value %v", values[i])
				}
				f.ID = id
			default:
				f.Properties[col] = values[i]
			}
		}
		table.Features = append(table.Features, f)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rs.Add(table)
	return nil
}

func toID(v any) (provider.FeatureID, bool) {
	switch n := v.(type) {
	case int64:
		return provider.FeatureID(n), n >= 0
	case int32:
		return provider.FeatureID(n), n >= 0
	case uint32:
		return provider.FeatureID(n), true
	case uint64:
		return provider.FeatureID(n), true
	case int:
		return provider.FeatureID(n), n >= 0
	}
	return 0, false
}

var _ provider.Provider = (*Provider)(nil)
