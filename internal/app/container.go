// Package app assembles every subsystem the gateway needs into one
// dependency container, constructed once at process startup.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/localai/gateway/internal/accesslog"
	"github.com/localai/gateway/internal/admission"
	"github.com/localai/gateway/internal/config"
	"github.com/localai/gateway/internal/health"
	"github.com/localai/gateway/internal/images"
	"github.com/localai/gateway/internal/models"
	"github.com/localai/gateway/internal/observability"
	"github.com/localai/gateway/internal/registry"
	"github.com/localai/gateway/internal/router"
	"github.com/localai/gateway/internal/storage/blob"
	"github.com/localai/gateway/internal/toolbus"
	"github.com/localai/gateway/internal/upstream"
)

// ChatClient is the surface a registry backend of kind "openai" or
// "ndjson_chat" must implement to serve the chat route.
type ChatClient interface {
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
	ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error)
}

// EmbeddingsClient is the surface a backend must implement to serve the
// embeddings route. Only OpenAI-shaped backends currently do.
type EmbeddingsClient interface {
	Embed(ctx context.Context, req models.EmbeddingsRequest) (models.EmbeddingsResponse, error)
}

// Container holds every constructed subsystem, built once at startup and
// shared read-only across requests.
type Container struct {
	Config *config.Config

	Registry   *registry.Registry
	Admission  *admission.Controller
	Health     *health.Checker
	Router     *router.Router
	ToolBus    *toolbus.Bus
	Images     *images.Pipeline
	AccessLog  *accesslog.Writer
	Observability *observability.Provider

	ChatClients       map[string]ChatClient
	EmbeddingsClients map[string]EmbeddingsClient

	BuildVersion string
}

// NewContainer constructs every subsystem from cfg and wires them together.
// It launches the health checker's background probe loop against ctx but
// otherwise performs no blocking I/O beyond opening local files/directories.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	reg, err := buildRegistry(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("app: build registry: %w", err)
	}

	admissionCtl := admission.NewController(reg)

	healthChecker := health.NewChecker(reg, cfg.Health)
	healthChecker.Start(ctx)

	rtr := router.New(reg, cfg.Registry.RoutePreferences)

	sharedClient := upstream.NewHTTPClient(upstream.ClientOptions{
		ConnectTimeout: orDefaultDuration(cfg.Server.UpstreamConnectTimeout, 5*time.Second),
		MaxIdlePerHost: 16,
		InsecureTLS:    !cfg.Backend.VerifyTLS,
		CABundlePath:   cfg.Backend.CABundle,
		ClientCertPath: cfg.Backend.ClientCertFile,
		ClientKeyPath:  cfg.Backend.ClientKeyFile,
	})

	chatClients := make(map[string]ChatClient)
	embedClients := make(map[string]EmbeddingsClient)

	for _, bc := range reg.Iter() {
		switch strings.ToLower(strings.TrimSpace(bc.Kind)) {
		case "openai":
			client, err := upstream.NewOpenAIClient(upstream.OpenAIOptions{
				BaseURL: bc.BaseURL,
				Extra:   []option.RequestOption{option.WithHTTPClient(sharedClient)},
			})
			if err != nil {
				return nil, fmt.Errorf("app: backend %q: %w", bc.Name, err)
			}
			chatClients[bc.Name] = client
			if bc.Supports(registry.CapabilityEmbeddings) {
				embedClients[bc.Name] = client
			}
		case "ndjson_chat":
			chatClients[bc.Name] = upstream.NewNDJSONChatClient(upstream.NDJSONChatOptions{
				BaseURL:    bc.BaseURL,
				HTTPClient: sharedClient,
			})
		case "a1111_images", "mock_images":
			// Images backends are driven through the single configured
			// images pipeline below, not the per-backend client maps.
		}
	}

	imagesPipeline, err := buildImagesPipeline(ctx, cfg, sharedClient)
	if err != nil {
		return nil, fmt.Errorf("app: build images pipeline: %w", err)
	}

	toolLogger, err := toolbus.NewLogger(cfg.Tools.LogMode, cfg.Tools.LogPath, cfg.Tools.LogDir)
	if err != nil {
		return nil, fmt.Errorf("app: build tool logger: %w", err)
	}
	toolSet := toolbus.BuildTools(cfg.Tools)
	bus := toolbus.New(toolSet, toolLogger)

	accessLogWriter, err := accesslog.New(cfg.AccessLog.Enabled, cfg.AccessLog.Path)
	if err != nil {
		return nil, fmt.Errorf("app: build access log: %w", err)
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("app: setup observability: %w", err)
	}

	return &Container{
		Config:            cfg,
		Registry:          reg,
		Admission:         admissionCtl,
		Health:            healthChecker,
		Router:            rtr,
		ToolBus:           bus,
		Images:            imagesPipeline,
		AccessLog:         accessLogWriter,
		Observability:     obsProvider,
		ChatClients:       chatClients,
		EmbeddingsClients: embedClients,
		BuildVersion:      buildVersion(),
	}, nil
}

func buildRegistry(cfg config.RegistryConfig) (*registry.Registry, error) {
	if strings.TrimSpace(cfg.Path) != "" {
		return registry.Load(cfg.Path)
	}
	return registry.LoadInline(cfg.Inline, cfg.LegacyNames)
}

func buildImagesPipeline(ctx context.Context, cfg *config.Config, sharedClient *http.Client) (*images.Pipeline, error) {
	store, err := blob.New(ctx, cfg.Images)
	if err != nil {
		return nil, fmt.Errorf("build blob store: %w", err)
	}

	client, err := buildImageClient(cfg.Images, sharedClient)
	if err != nil {
		return nil, fmt.Errorf("build image client: %w", err)
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.Images.Backend))
	if kind == "" {
		kind = "mock"
	}
	return images.New(client, store, "/ui/images", kind), nil
}

func buildImageClient(cfg config.ImagesConfig, sharedClient *http.Client) (upstream.ImageClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "mock":
		return upstream.NewMockImageClient(), nil
	case "http_a1111":
		return upstream.NewA1111ImageClient(upstream.A1111Options{
			BaseURL:    cfg.HTTPBaseURL,
			HTTPClient: sharedClient,
		}), nil
	case "http_openai_images":
		client, err := upstream.NewOpenAIClient(upstream.OpenAIOptions{
			BaseURL: cfg.HTTPBaseURL,
			Extra:   []option.RequestOption{option.WithHTTPClient(sharedClient)},
		})
		if err != nil {
			return nil, err
		}
		return upstream.NewOpenAIImagesClient(client, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown images backend %q", cfg.Backend)
	}
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// buildVersion is overridden at link time via -ldflags; "dev" otherwise.
var buildVersionOverride = ""

func buildVersion() string {
	if buildVersionOverride != "" {
		return buildVersionOverride
	}
	return "dev"
}
