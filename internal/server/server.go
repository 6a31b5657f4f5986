package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/geo-blink/internal/api"
	"github.com/joeblew999/geo-blink/internal/config"
	"github.com/joeblew999/geo-blink/internal/service"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	Map     config.Config
	Logger  *slog.Logger
}

// Server is the geo-blink HTTP server.
type Server struct {
	config   Config
	log      *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
}

// New builds the map, the overlay layer and the API around them.
func New(ctx context.Context, cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("geo-blink API", api.Version)
	humaConfig.Info.Description = "Animated GIF overlays pinned to map features, reconciled on every render pass."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	maps, err := service.NewMapService(ctx, cfg.Map, service.MapOptions{DataDir: cfg.DataDir, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("building map: %w", err)
	}
	layers, err := service.NewLayerService(cfg.DataDir, maps.Layer(), maps.Events())
	if err != nil {
		maps.Close()
		return nil, fmt.Errorf("restoring layer settings: %w", err)
	}

	s := &Server{
		config:  cfg,
		log:     log,
		mux:     mux,
		humaAPI: humaAPI,
		services: &api.Services{
			Map:    maps,
			Layer:  layers,
			Source: service.NewSourceService(cfg.DataDir),
		},
	}
	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services exposes the services behind the API.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close detaches the layer and closes the database.
func (s *Server) Close() error {
	return s.services.Map.Close()
}

func (s *Server) routes() {
	// Register* methods on APIHandler
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))

	maps := s.services.Map
	api.NewInfoHandler(s.config.DataDir, s.config.Map.Source.Kind, maps.DB() != nil).RegisterRoutes(s.humaAPI)
	api.NewDBHandler(maps.DB()).RegisterRoutes(s.humaAPI)
	api.NewEventHandler(maps).RegisterRoutes(s.humaAPI)

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/docs", http.StatusFound)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler: s,
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	s.log.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
