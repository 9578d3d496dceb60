// Package huggingface provides the Hugging Face inference API integration
// for text-to-image generation
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/ai"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	apperrors "github.com/kbcanvas/kbcanvas/pkg/errors"
)

// ProviderName identifies this provider in logs and metrics
const ProviderName = "huggingface"

// MaxImageBytes caps how much of a response body is read
const MaxImageBytes = 20 << 20

// Client implements outbound.ImageGenerator against a Hugging Face model endpoint
type Client struct {
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	breaker *ai.Breaker[*outbound.Image]
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger
}

// NewClient creates a new Hugging Face client
func NewClient(cfg config.AIConfig, breakerCfg config.BreakerConfig, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Client {
	logger = logger.Named("huggingface")

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RatePerMinute))
	}

	if cfg.ImageToken == "" {
		logger.Warn("Hugging Face token not configured, requests will be anonymous")
	}

	return &Client{
		url:     cfg.ImageURL,
		token:   cfg.ImageToken,
		client:  ai.NewHTTPClient(cfg.ImageTimeout),
		limiter: rate.NewLimiter(limit, 1),
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

// GenerateImage posts the payload once and returns the image bytes
func (c *Client) GenerateImage(ctx context.Context, payload outbound.ImagePayload) (*outbound.Image, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeTooManyRequests,
			"Too many image requests", "image generation rate limit reached").WithCause(err)
	}

	start := time.Now()
	img, err := c.breaker.Execute(func() (*outbound.Image, error) {
		return c.callModel(ctx, payload)
	})

	if c.metrics != nil {
		c.metrics.UpstreamRequest(monitoring.UpstreamImage, ProviderName, ai.StatusLabel(err), time.Since(start))
	}
	if err != nil {
		c.logger.Error("Image generation failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("Image generated",
		zap.Duration("duration", time.Since(start)),
		zap.String("content_type", img.ContentType),
		zap.Int("bytes", len(img.Data)))

	return img, nil
}

func (c *Client) callModel(ctx context.Context, payload outbound.ImagePayload) (*outbound.Image, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewExternalServiceError(ProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Image model returned an error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)))
		return nil, apperrors.NewUpstreamStatusError(ProviderName, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, apperrors.NewExternalServiceError(ProviderName, err)
	}
	if len(data) == 0 {
		return nil, apperrors.NewSchemaMismatchError(ProviderName, "empty image body")
	}
	if len(data) > MaxImageBytes {
		return nil, apperrors.NewSchemaMismatchError(ProviderName, "image body exceeds size limit")
	}

	contentType, err := ai.ImageContentType(ProviderName, resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}

	return &outbound.Image{Data: data, ContentType: contentType}, nil
}
