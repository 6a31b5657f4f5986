// Package api defines the Huma API routes and handlers.
package api

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/geo-blink/internal/display"
	"github.com/joeblew999/geo-blink/internal/overlay"
	"github.com/joeblew999/geo-blink/internal/service"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Map    *service.MapService
	Layer  *service.LayerService
	Source *service.SourceService
}

// Types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type LayerOutput struct {
	Body service.LayerSettings
}

type ViewOutput struct {
	Body service.ViewState
}

type RenderOutput struct {
	Body service.RenderResult
}

type FrameInput struct {
	Elapsed int `query:"t" minimum:"0" default:"0" doc:"Milliseconds since the animation started"`
}

type AnimationInput struct {
	Frames int `query:"frames" minimum:"1" maximum:"100" default:"10" doc:"Number of frames"`
	Step   int `query:"step" minimum:"10" maximum:"10000" default:"100" doc:"Milliseconds between frames"`
}

type ImageOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

type ImageInput struct {
	RawBody []byte `contentType:"image/gif" doc:"Animated GIF with at least two frames"`
}

type QueryOutput struct {
	Body struct {
		Features []service.QueryFeature `json:"features" doc:"Intersecting features"`
		Count    int                    `json:"count" doc:"Number of features"`
	}
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayer registers the layer settings routes.
func (h *APIHandler) RegisterLayer(api huma.API) {
	huma.Get(api, "/api/v1/layer", h.GetLayer, huma.OperationTags("layer"))
	huma.Put(api, "/api/v1/layer", h.PutLayer, huma.OperationTags("layer"))
	huma.Put(api, "/api/v1/image", h.PutImage, huma.OperationTags("layer"))
}

// RegisterView registers the map view routes.
func (h *APIHandler) RegisterView(api huma.API) {
	huma.Get(api, "/api/v1/view", h.GetView, huma.OperationTags("view"))
	huma.Put(api, "/api/v1/view", h.PutView, huma.OperationTags("view"))
}

// RegisterRender registers render pass and output routes.
func (h *APIHandler) RegisterRender(api huma.API) {
	huma.Post(api, "/api/v1/render", h.PostRender, huma.OperationTags("render"))
	huma.Get(api, "/api/v1/overlays", h.GetOverlays, huma.OperationTags("render"))
	huma.Get(api, "/api/v1/frame.png", h.GetFrame, huma.OperationTags("render"))
	huma.Get(api, "/api/v1/overlays.gif", h.GetAnimation, huma.OperationTags("render"))
}

// RegisterQuery registers spatial query routes.
func (h *APIHandler) RegisterQuery(api huma.API) {
	huma.Get(api, "/api/v1/extent", h.GetExtent, huma.OperationTags("query"))
	huma.Post(api, "/api/v1/query", h.PostQuery, huma.OperationTags("query"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *struct{}) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	return &LayerOutput{Body: h.svc.Layer.Get()}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct{ Body service.LayerSettings }) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	updated, err := h.svc.Layer.Update(input.Body)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &LayerOutput{Body: updated}, nil
}

func (h *APIHandler) PutImage(ctx context.Context, input *ImageInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	if err := h.svc.Map.SetImage(bytes.NewReader(input.RawBody)); err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Image updated"}}, nil
}

func (h *APIHandler) GetView(ctx context.Context, input *struct{}) (*ViewOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	return &ViewOutput{Body: h.svc.Map.View()}, nil
}

func (h *APIHandler) PutView(ctx context.Context, input *struct{ Body service.ViewState }) (*ViewOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	v, err := h.svc.Map.SetView(input.Body)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &ViewOutput{Body: v}, nil
}

func (h *APIHandler) PostRender(ctx context.Context, input *struct{}) (*RenderOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	res, err := h.svc.Map.Render(ctx)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &RenderOutput{Body: res}, nil
}

func (h *APIHandler) GetOverlays(ctx context.Context, input *struct{}) (*RenderOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	return &RenderOutput{Body: h.svc.Map.Overlays()}, nil
}

func (h *APIHandler) GetFrame(ctx context.Context, input *FrameInput) (*ImageOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	data, err := h.svc.Map.FramePNG(time.Duration(input.Elapsed) * time.Millisecond)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding frame", err)
	}
	return &ImageOutput{ContentType: "image/png", CacheControl: "no-store", Body: data}, nil
}

func (h *APIHandler) GetAnimation(ctx context.Context, input *AnimationInput) (*ImageOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	var buf bytes.Buffer
	if err := h.svc.Map.Animate(&buf, input.Frames, time.Duration(input.Step)*time.Millisecond); err != nil {
		return nil, huma.Error500InternalServerError("encoding animation", err)
	}
	return &ImageOutput{ContentType: "image/gif", CacheControl: "no-store", Body: buf.Bytes()}, nil
}

func (h *APIHandler) GetExtent(ctx context.Context, input *struct{}) (*struct{ Body service.Extent }, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	ext, err := h.svc.Map.Extent(ctx)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body service.Extent }{Body: ext}, nil
}

func (h *APIHandler) PostQuery(ctx context.Context, input *struct{ Body service.QueryRequest }) (*QueryOutput, error) {
	if h.svc == nil || h.svc.Map == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	features, err := h.svc.Map.Query(ctx, input.Body)
	if err != nil {
		return nil, toHTTPError(err)
	}
	out := &QueryOutput{}
	out.Body.Features = features
	out.Body.Count = len(features)
	return out, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

// toHTTPError maps layer errors onto status codes.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, overlay.ErrInvalidArgument), errors.Is(err, overlay.ErrNullArgument):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, overlay.ErrProviderFailure):
		return huma.Error502BadGateway("data provider failed", err)
	case errors.Is(err, overlay.ErrDispatchFailure), errors.Is(err, display.ErrDispatcherClosed):
		return huma.Error503ServiceUnavailable("map surface unavailable", err)
	}
	return huma.Error500InternalServerError(err.Error())
}
