// Package container provides dependency injection using Uber FX
// This implements the Dependency Inversion Principle from SOLID
package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/application/imagegen"
	"github.com/kbcanvas/kbcanvas/internal/application/recommendation"
	"github.com/kbcanvas/kbcanvas/internal/domain/knowledge"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/ai"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/ai/gemini"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/ai/huggingface"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/assets"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/http/webserver"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/recommender"
	"github.com/kbcanvas/kbcanvas/internal/ports/inbound"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	"github.com/kbcanvas/kbcanvas/pkg/healthcheck"
	"github.com/kbcanvas/kbcanvas/pkg/logger"
)

// ConfigFileEnv names a config file to load instead of the search path
const ConfigFileEnv = "KBCANVAS_CONFIG_FILE"

// Module provides all dependency injection modules
var Module = fx.Options(
	// Infrastructure modules
	ConfigModule,
	LoggerModule,
	MonitoringModule,
	HealthModule,
	AssetModule,

	// Upstream adapters
	UpstreamModule,

	// Service modules
	ServiceModule,

	// HTTP modules
	HTTPModule,

	// Lifecycle hooks
	LifecycleModule,
)

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load(os.Getenv(ConfigFileEnv))
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
	},
)

// MonitoringModule provides metrics and tracing
var MonitoringModule = fx.Provide(
	monitoring.NewMetricsCollector,
	NewTracingProvider,
)

// HealthModule provides the health check registry
var HealthModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *healthcheck.HealthCheck {
		return healthcheck.New(cfg.App.Version, log)
	},
)

// AssetModule provides the generated asset store
var AssetModule = fx.Provide(
	NewAssetStore,
)

// UpstreamModule provides the image provider and the recommender client
var UpstreamModule = fx.Provide(
	knowledge.Default,
	NewImageGenerator,
	NewRecommender,
)

// ServiceModule provides application services
var ServiceModule = fx.Provide(
	fx.Annotate(
		imagegen.NewImageService,
		fx.As(new(inbound.ImageService)),
	),
	fx.Annotate(
		recommendation.NewRecommendationService,
		fx.As(new(inbound.RecommendationService)),
	),
)

// HTTPModule provides the session store and the web server
var HTTPModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *webserver.SessionStore {
		return webserver.NewSessionStore(cfg.Session, log)
	},
	webserver.NewWebServer,
)

// LifecycleModule provides lifecycle hooks
var LifecycleModule = fx.Invoke(
	RegisterLifecycleHooks,
)

// NewTracingProvider starts the tracer and flushes it on shutdown
func NewTracingProvider(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*monitoring.TracingProvider, error) {
	tp, err := monitoring.NewTracingProvider(context.Background(), monitoring.TracingConfig{
		ServiceName:    "kbcanvas",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		Endpoint:       cfg.Monitoring.TracingEndpoint,
		SamplingRate:   cfg.Monitoring.SamplingRate,
		Enabled:        cfg.Monitoring.EnableTracing,
	}, log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: tp.Shutdown,
	})
	return tp, nil
}

// NewAssetStore selects the asset store named by assets.driver and registers
// its health check and gauge
func NewAssetStore(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	metrics *monitoring.MetricsCollector,
	health *healthcheck.HealthCheck,
) (outbound.AssetStore, error) {
	var store outbound.AssetStore

	switch cfg.Assets.Driver {
	case config.AssetDriverRedis:
		client, err := assets.NewRedisClient(cfg, log)
		if err != nil {
			return nil, err
		}
		health.Register("redis", healthcheck.NewRedisChecker(client))
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		store = assets.NewRedisStore(client, cfg.Assets.KeyPrefix, cfg.Assets.TTL, log)

	case config.AssetDriverMemory:
		memory := assets.NewMemoryStore(cfg.Assets.TTL, log)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				memory.Start(cfg.Assets.SweepInterval)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				memory.Stop()
				return nil
			},
		})
		store = memory

	default:
		return nil, fmt.Errorf("unsupported asset driver %q", cfg.Assets.Driver)
	}

	health.Register("assets", healthcheck.NewCustomChecker("assets",
		func(ctx context.Context) (healthcheck.Status, string, interface{}) {
			n, err := store.Len(ctx)
			if err != nil {
				return healthcheck.StatusUnhealthy, err.Error(), nil
			}
			return healthcheck.StatusHealthy, "", map[string]interface{}{
				"driver": cfg.Assets.Driver,
				"held":   n,
			}
		}))

	if cfg.Monitoring.EnableMetrics {
		metrics.RegisterAssetGauge(store.Len)
	}

	log.Info("Asset store ready", zap.String("driver", cfg.Assets.Driver))
	return store, nil
}

// NewImageGenerator selects the provider named by ai.image_provider
func NewImageGenerator(
	cfg *config.Config,
	log *zap.Logger,
	metrics *monitoring.MetricsCollector,
	health *healthcheck.HealthCheck,
) (outbound.ImageGenerator, error) {
	switch cfg.AI.ImageProvider {
	case config.ProviderGemini:
		client, err := gemini.NewClient(context.Background(), cfg.AI, cfg.Breaker, metrics, log)
		if err != nil {
			return nil, err
		}
		health.Register("image-provider", ai.BreakerChecker(client.Breaker()))
		return client, nil

	case config.ProviderHuggingFace:
		client := huggingface.NewClient(cfg.AI, cfg.Breaker, metrics, log)
		health.Register("image-provider", ai.BreakerChecker(client.Breaker()))
		return client, nil
	}

	return nil, fmt.Errorf("unsupported image provider %q", cfg.AI.ImageProvider)
}

// NewRecommender builds the recommendation backend client
func NewRecommender(
	cfg *config.Config,
	log *zap.Logger,
	metrics *monitoring.MetricsCollector,
	health *healthcheck.HealthCheck,
) outbound.Recommender {
	client := recommender.NewClient(cfg.Recommender, cfg.Breaker, metrics, log)
	health.Register("recommender", ai.BreakerChecker(client.Breaker()))

	if cfg.Recommender.HealthURL != "" {
		health.Register("recommender-backend", healthcheck.NewExternalServiceChecker(
			"recommender-backend", http.MethodGet, cfg.Recommender.HealthURL, cfg.Recommender.Timeout))
	}

	return client
}

// RegisterLifecycleHooks registers application lifecycle hooks
func RegisterLifecycleHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	tracing *monitoring.TracingProvider,
	sessions *webserver.SessionStore,
	server *webserver.WebServer,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting KB Canvas",
				zap.String("version", cfg.App.Version),
				zap.String("environment", cfg.App.Environment),
				zap.String("image_provider", cfg.AI.ImageProvider),
				zap.String("asset_driver", cfg.Assets.Driver),
				zap.Bool("tracing", tracing.Enabled()),
			)

			sessions.Start(cfg.Session.CleanupInterval)

			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server stopped", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down KB Canvas")

			if err := server.Shutdown(ctx); err != nil {
				log.Error("Failed to shutdown HTTP server", zap.Error(err))
			}
			sessions.Stop()

			_ = log.Sync()

			return nil
		},
	})
}
