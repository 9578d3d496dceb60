// Package config provides centralized configuration management
// using Viper for configuration loading and validation
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Image providers understood by the container.
const (
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
)

// Asset store drivers.
const (
	AssetDriverMemory = "memory"
	AssetDriverRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	AI          AIConfig          `mapstructure:"ai"`
	Recommender RecommenderConfig `mapstructure:"recommender"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Session     SessionConfig     `mapstructure:"session"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// AIConfig contains image generation provider configuration.
// ImageToken is never defaulted: the credential only ever comes from the
// environment or a deployment config file.
type AIConfig struct {
	ImageProvider string        `mapstructure:"image_provider"`
	ImageURL      string        `mapstructure:"image_url"`
	ImageToken    string        `mapstructure:"image_token"`
	ImageTimeout  time.Duration `mapstructure:"image_timeout"`
	RatePerMinute int           `mapstructure:"rate_per_minute"`
	GeminiKey     string        `mapstructure:"gemini_key"`
	GeminiModel   string        `mapstructure:"gemini_model"`
}

// RecommenderConfig points at the recommendation backend
type RecommenderConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// HealthURL is probed with GET by the health check when set
	HealthURL string `mapstructure:"health_url"`
}

// AssetsConfig controls where generated images are held
type AssetsConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig contains UI session configuration
type SessionConfig struct {
	CookieName      string        `mapstructure:"cookie_name"`
	TTL             time.Duration `mapstructure:"ttl"`
	Secure          bool          `mapstructure:"secure"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig contains inbound rate limiting configuration
type RateLimitConfig struct {
	Enable   bool          `mapstructure:"enable"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// BreakerConfig configures the circuit breakers in front of upstream endpoints
type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

// MonitoringConfig contains metrics and tracing configuration
type MonitoringConfig struct {
	EnableMetrics   bool    `mapstructure:"enable_metrics"`
	EnableTracing   bool    `mapstructure:"enable_tracing"`
	TracingEndpoint string  `mapstructure:"tracing_endpoint"`
	SamplingRate    float64 `mapstructure:"sampling_rate"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/kbcanvas")
	}

	v.SetEnvPrefix("KBCANVAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	_ = v.BindEnv("ai.image_token")
	_ = v.BindEnv("ai.gemini_key")
	_ = v.BindEnv("redis.password")

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist, we have defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "KB Canvas")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	// image generation on a cold model regularly takes over a minute
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("ai.image_provider", ProviderHuggingFace)
	v.SetDefault("ai.image_url", "https://api-inference.huggingface.co/models/black-forest-labs/FLUX.1-dev")
	v.SetDefault("ai.image_timeout", "120s")
	v.SetDefault("ai.rate_per_minute", 30)
	v.SetDefault("ai.gemini_model", "imagen-3.0-generate-002")

	v.SetDefault("recommender.url", "http://127.0.0.1:5000/recommend")
	v.SetDefault("recommender.timeout", "30s")
	v.SetDefault("recommender.health_url", "")

	v.SetDefault("assets.driver", AssetDriverMemory)
	v.SetDefault("assets.ttl", "1h")
	v.SetDefault("assets.sweep_interval", "1m")
	v.SetDefault("assets.key_prefix", "kbcanvas:asset:")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("session.cookie_name", "kbcanvas-session")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.cleanup_interval", "5m")

	v.SetDefault("rate_limit.enable", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", "60s")
	v.SetDefault("breaker.timeout", "30s")
	v.SetDefault("breaker.failure_threshold", 5)

	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.enable_tracing", false)
	v.SetDefault("monitoring.tracing_endpoint", "localhost:4318")
	v.SetDefault("monitoring.sampling_rate", 0.1)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.AI.ImageProvider {
	case ProviderHuggingFace:
		if c.AI.ImageURL == "" {
			return fmt.Errorf("ai.image_url is required for the %s provider", ProviderHuggingFace)
		}
		if c.AI.ImageToken == "" && c.IsProduction() {
			return fmt.Errorf("ai.image_token is required in production")
		}
	case ProviderGemini:
		if c.AI.GeminiKey == "" {
			return fmt.Errorf("ai.gemini_key is required for the %s provider", ProviderGemini)
		}
	default:
		return fmt.Errorf("ai.image_provider %q is not supported", c.AI.ImageProvider)
	}

	if c.Recommender.URL == "" {
		return fmt.Errorf("recommender.url is required")
	}

	switch c.Assets.Driver {
	case AssetDriverMemory, AssetDriverRedis:
	default:
		return fmt.Errorf("assets.driver %q is not supported", c.Assets.Driver)
	}

	if c.Assets.TTL <= 0 {
		return fmt.Errorf("assets.ttl must be positive")
	}

	if c.Monitoring.SamplingRate < 0 || c.Monitoring.SamplingRate > 1 {
		return fmt.Errorf("monitoring.sampling_rate must be between 0 and 1")
	}

	return nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// RedisAddr returns host:port for the Redis asset store
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Address returns the listen address of the HTTP server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
