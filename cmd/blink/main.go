package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/geo-blink/internal/config"
	"github.com/joeblew999/geo-blink/internal/logger"
	"github.com/joeblew999/geo-blink/internal/server"
	"github.com/joeblew999/geo-blink/internal/service"
)

// Options defines all CLI flags and env vars for the blink server.
// Flags: --host, --port, --data-dir, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir string `doc:"Directory for sources, settings and databases" default:".data"`
	Config  string `doc:"Layer configuration file (YAML); empty uses the built-in default" short:"c"`
}

// loadConfig reads opts.Config, or falls back to the default layer whose
// source lives under the data directory.
func loadConfig(opts *Options) (config.Config, error) {
	if opts.Config != "" {
		return config.Load(opts.Config)
	}
	cfg := config.Default()
	cfg.Resolve(opts.DataDir)
	return cfg, cfg.Validate()
}

func newServer(ctx context.Context, opts *Options) (*server.Server, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return server.New(ctx, server.Config{
		Host:    opts.Host,
		Port:    fmt.Sprintf("%d", opts.Port),
		DataDir: opts.DataDir,
		Map:     cfg,
		Logger:  logger.L(),
	})
}

func fatal(msg string, err error) {
	logger.L().Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load(".env")
	log := logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		var srv *server.Server

		hooks.OnStart(func() {
			var err error
			srv, err = newServer(ctx, opts)
			if err != nil {
				fatal("server setup failed", err)
			}

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)
			log.Info("geo-blink starting",
				"url", baseURL,
				"data", opts.DataDir,
				"docs", baseURL+"/docs",
				"openapi", baseURL+"/openapi.json",
			)

			if err := srv.ListenAndServe(ctx); err != nil {
				fatal("server error", err)
			}
		})

		hooks.OnStop(func() {
			stop()
			if srv != nil {
				if err := srv.Close(); err != nil {
					log.Warn("closing server", "error", err)
				}
			}
		})
	})

	cli.Root().Use = "blink"
	cli.Root().Short = "Animated GIF overlays pinned to map features"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv, err := newServer(context.Background(), opts)
			if err != nil {
				fatal("server setup failed", err)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fatal("marshaling spec", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// render subcommand: run render passes headless and write the result
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Run render passes and write map.png and overlays.gif",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			passes, _ := cmd.Flags().GetInt("passes")
			frames, _ := cmd.Flags().GetInt("frames")
			outDir, _ := cmd.Flags().GetString("output")
			if err := render(cmd.Context(), opts, passes, frames, outDir); err != nil {
				fatal("render failed", err)
			}
		}),
	}
	renderCmd.Flags().Int("passes", 1, "Number of render passes")
	renderCmd.Flags().Int("frames", 10, "Frames in overlays.gif")
	renderCmd.Flags().StringP("output", "o", ".", "Output directory")
	cli.Root().AddCommand(renderCmd)

	cli.Run()
}

func render(ctx context.Context, opts *Options, passes, frames int, outDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	maps, err := service.NewMapService(ctx, cfg, service.MapOptions{DataDir: opts.DataDir, Logger: logger.L()})
	if err != nil {
		return err
	}
	defer maps.Close()

	var res service.RenderResult
	for i := 0; i < max(passes, 1); i++ {
		if res, err = maps.Render(ctx); err != nil {
			return err
		}
	}
	logger.L().Info("rendered", "passes", res.Pass, "visible", res.Visible, "pooled", len(res.Overlays))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	png, err := maps.FramePNG(0)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "map.png"), png, 0o644); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(outDir, "overlays.gif"))
	if err != nil {
		return err
	}
	if err := maps.Animate(f, frames, 100*time.Millisecond); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
