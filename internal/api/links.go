package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layer>; rel="layer"`,
		`</api/v1/view>; rel="view"`,
		`</api/v1/overlays>; rel="overlays"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/layer>; rel="layer"`,
	},
	"/api/v1/layer": {
		`</api/v1/image>; rel="image"`,
		`</api/v1/overlays>; rel="overlays"`,
	},
	"/api/v1/view": {
		`</api/v1/render>; rel="render"`,
		`</api/v1/extent>; rel="extent"`,
	},
	"/api/v1/render": {
		`</api/v1/overlays>; rel="overlays"`,
		`</api/v1/frame.png>; rel="frame"`,
		`</api/v1/overlays.gif>; rel="animation"`,
	},
	"/api/v1/overlays": {
		`</api/v1/render>; rel="render"`,
		`</api/v1/overlays/events>; rel="events"`,
	},
	"/api/v1/extent": {
		`</api/v1/query>; rel="query"`,
	},
	"/api/v1/sources": {
		`</api/v1/layer>; rel="layer"`,
	},
	"/api/v1/tables": {
		`</api/v1/sql>; rel="query"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}
		return v, nil
	}
}
