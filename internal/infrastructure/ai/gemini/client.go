// Package gemini provides image generation through the Google GenAI SDK
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/ai"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	apperrors "github.com/kbcanvas/kbcanvas/pkg/errors"
)

// ProviderName identifies this provider in logs and metrics
const ProviderName = "gemini"

// imageAPI is the slice of *genai.Models used here
type imageAPI interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Client implements outbound.ImageGenerator on an Imagen model
type Client struct {
	api     imageAPI
	model   string
	timeout time.Duration
	breaker *ai.Breaker[*outbound.Image]
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger
}

// NewClient creates a new GenAI image client
func NewClient(ctx context.Context, cfg config.AIConfig, breakerCfg config.BreakerConfig, metrics *monitoring.MetricsCollector, logger *zap.Logger) (*Client, error) {
	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.GeminiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: ai.NewHTTPClient(0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newClient(client.Models, cfg, breakerCfg, metrics, logger), nil
}

func newClient(api imageAPI, cfg config.AIConfig, breakerCfg config.BreakerConfig, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Client {
	logger = logger.Named("gemini")
	logger.Info("GenAI image client initialized", zap.String("model", cfg.GeminiModel))

	return &Client{
		api:     api,
		model:   cfg.GeminiModel,
		timeout: cfg.ImageTimeout,
		breaker: ai.NewBreaker[*outbound.Image]("image-"+ProviderName, breakerCfg, metrics, logger),
		metrics: metrics,
		logger:  logger,
	}
}

// Name implements outbound.ImageGenerator
func (c *Client) Name() string {
	return ProviderName
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *ai.Breaker[*outbound.Image] {
	return c.breaker
}

// GenerateImage asks the model for exactly one image
func (c *Client) GenerateImage(ctx context.Context, payload outbound.ImagePayload) (*outbound.Image, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	img, err := c.breaker.Execute(func() (*outbound.Image, error) {
		return c.generate(ctx, payload.Inputs)
	})

	if c.metrics != nil {
		c.metrics.UpstreamRequest(monitoring.UpstreamImage, ProviderName, ai.StatusLabel(err), time.Since(start))
	}
	if err != nil {
		c.logger.Error("Image generation failed", zap.String("model", c.model), zap.Error(err))
		return nil, err
	}

	return img, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (*outbound.Image, error) {
	resp, err := c.api.GenerateImages(ctx, c.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.NewExternalServiceError(ProviderName, err)
	}

	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, apperrors.NewSchemaMismatchError(ProviderName, "no images returned")
	}

	generated := resp.GeneratedImages[0]
	if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		details := "image has no bytes"
		if generated != nil && generated.RAIFilteredReason != "" {
			details = "image filtered: " + generated.RAIFilteredReason
		}
		return nil, apperrors.NewSchemaMismatchError(ProviderName, details)
	}

	contentType, err := ai.ImageContentType(ProviderName, generated.Image.MIMEType, generated.Image.ImageBytes)
	if err != nil {
		return nil, err
	}

	return &outbound.Image{Data: generated.Image.ImageBytes, ContentType: contentType}, nil
}
