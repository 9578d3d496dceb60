// Package recommender talks to the recommendation backend over HTTP
package recommender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/ai"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	apperrors "github.com/kbcanvas/kbcanvas/pkg/errors"
)

// ServiceName identifies the backend in errors, logs and metrics
const ServiceName = "recommender"

const maxResponseBytes = 1 << 20

// Client implements outbound.Recommender
type Client struct {
	url      string
	client   *http.Client
	validate *validator.Validate
	breaker  *ai.Breaker[[]outbound.RecommendationItem]
	metrics  *monitoring.MetricsCollector
	logger   *zap.Logger
}

// NewClient creates a new recommendation backend client
func NewClient(cfg config.RecommenderConfig, breakerCfg config.BreakerConfig, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Client {
	logger = logger.Named("recommender")
	return &Client{
		url:      cfg.URL,
		client:   ai.NewHTTPClient(cfg.Timeout),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		breaker:  ai.NewBreaker[[]outbound.RecommendationItem](ServiceName, breakerCfg, metrics, logger),
		metrics:  metrics,
		logger:   logger,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *ai.Breaker[[]outbound.RecommendationItem] {
	return c.breaker
}

// Recommend sends the ordered preference list and returns the validated items
func (c *Client) Recommend(ctx context.Context, preferences []string) ([]outbound.RecommendationItem, error) {
	start := time.Now()
	items, err := c.breaker.Execute(func() ([]outbound.RecommendationItem, error) {
		return c.post(ctx, preferences)
	})

	if c.metrics != nil {
		c.metrics.UpstreamRequest(monitoring.UpstreamRecommender, ServiceName, ai.StatusLabel(err), time.Since(start))
	}
	if err != nil {
		c.logger.Error("Recommendation request failed",
			zap.Int("preferences", len(preferences)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("Recommendations received",
		zap.Strings("preferences", preferences),
		zap.Int("items", len(items)),
		zap.Duration("duration", time.Since(start)))

	return items, nil
}

func (c *Client) post(ctx context.Context, preferences []string) ([]outbound.RecommendationItem, error) {
	jsonBody, err := json.Marshal(outbound.RecommendationRequest{Preferences: preferences})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, apperrors.NewExternalServiceError(ServiceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewUpstreamStatusError(ServiceName, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, apperrors.NewExternalServiceError(ServiceName, err)
	}
	if len(body) > maxResponseBytes {
		return nil, apperrors.NewSchemaMismatchError(ServiceName, "response exceeds size limit")
	}

	return c.decode(body)
}

// decode enforces the response contract: a recommendations array whose
// items all carry an id and a non-empty name.
func (c *Client) decode(body []byte) ([]outbound.RecommendationItem, error) {
	var parsed outbound.RecommendationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.NewSchemaMismatchError(ServiceName, fmt.Sprintf("invalid JSON: %v", err))
	}

	if err := c.validate.Struct(parsed); err != nil {
		return nil, apperrors.NewSchemaMismatchError(ServiceName, validationDetails(err))
	}

	return parsed.Recommendations, nil
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(fields, "; ")
}
