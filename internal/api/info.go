package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	source  string
	dbOK    bool
}

func NewInfoHandler(dataDir, source string, dbOK bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, source: source, dbOK: dbOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	Source   string   `json:"source" doc:"Kind of feature source" example:"geojson"`
	DB       bool     `json:"db" doc:"Whether database is available"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"overlays", "animation", "query"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "geo-blink",
		Version:  Version,
		DataDir:  h.dataDir,
		Source:   h.source,
		DB:       h.dbOK,
		Features: features,
	}}, nil
}
