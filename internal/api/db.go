package api

import (
	"context"
	"database/sql"

	"github.com/danielgtaylor/huma/v2"
)

// DBHandler exposes the DuckDB database behind duckdb sources.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a new database handler. db may be nil when the layer
// reads GeoJSON.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("database"))
	huma.Post(api, "/api/v1/sql", h.Query, huma.OperationTags("database"))
}

// TableInfo describes one table.
type TableInfo struct {
	Name       string   `json:"name" doc:"Table name" example:"stations"`
	Geometries []string `json:"geometries" doc:"Columns of type GEOMETRY"`
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []TableInfo `json:"tables" doc:"Tables in the main schema"`
	}
}

const tablesQuery = `
SELECT t.table_name, c.column_name
FROM information_schema.tables t
LEFT JOIN information_schema.columns c
  ON c.table_name = t.table_name AND c.table_schema = t.table_schema AND c.data_type = 'GEOMETRY'
WHERE t.table_schema = 'main'
ORDER BY t.table_name, c.column_name`

// ListTables returns all DuckDB tables with their geometry columns.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	out := &TablesOutput{}
	out.Body.Tables = []TableInfo{}
	for rows.Next() {
		var name string
		var column sql.NullString
		if err := rows.Scan(&name, &column); err != nil {
			continue
		}
		n := len(out.Body.Tables)
		if n == 0 || out.Body.Tables[n-1].Name != name {
			out.Body.Tables = append(out.Body.Tables, TableInfo{Name: name, Geometries: []string{}})
			n++
		}
		if column.Valid {
			out.Body.Tables[n-1].Geometries = append(out.Body.Tables[n-1].Geometries, column.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	return out, nil
}

// SQLInput is the input for SQL queries.
type SQLInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"SQL query to execute"`
	}
}

// SQLOutput is the response for SQL queries.
type SQLOutput struct {
	Body struct {
		Columns []string         `json:"columns" doc:"Column names"`
		Rows    []map[string]any `json:"rows" doc:"Query results"`
		Count   int              `json:"count" doc:"Number of rows returned"`
	}
}

// Query executes a SQL query against DuckDB.
func (h *DBHandler) Query(ctx context.Context, input *SQLInput) (*SQLOutput, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			continue
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	out := &SQLOutput{}
	out.Body.Columns = columns
	out.Body.Rows = results
	out.Body.Count = len(results)
	return out, nil
}
