// Package ai holds the shared plumbing for calls to upstream model endpoints:
// circuit breakers, instrumented HTTP clients and provider health reporting.
package ai

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	apperrors "github.com/kbcanvas/kbcanvas/pkg/errors"
)

// Breaker guards one upstream endpoint. Calls fail fast with a
// SERVICE_UNAVAILABLE error while it is open.
type Breaker[T any] struct {
	cb   *gobreaker.CircuitBreaker[T]
	name string
}

// NewBreaker creates a breaker that opens after cfg.FailureThreshold
// consecutive failures. Only transport errors and 5xx responses count;
// cancellations, rejected requests (4xx) and malformed payloads do not.
func NewBreaker[T any](name string, cfg config.BreakerConfig, metrics *monitoring.MetricsCollector, logger *zap.Logger) *Breaker[T] {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	cb := gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !tripsBreaker(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state transition",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if metrics != nil {
				metrics.BreakerTransition(name, from.String(), to.String(), stateValue(to))
			}
		},
	})

	return &Breaker[T]{cb: cb, name: name}
}

// Execute runs fn through the breaker
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(fn)
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		var zero T
		return zero, apperrors.NewServiceUnavailableError(b.name, err)
	}
	return result, err
}

// Name returns the breaker name
func (b *Breaker[T]) Name() string {
	return b.name
}

// State returns "closed", "half-open" or "open"
func (b *Breaker[T]) State() string {
	return b.cb.State().String()
}

// tripsBreaker reports whether err says the upstream itself is unhealthy
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.CodeSchemaMismatch:
			return false
		case apperrors.CodeUpstreamStatus:
			status, ok := appErr.Metadata["status"].(int)
			return !ok || status >= http.StatusInternalServerError
		}
	}
	return true
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// NewHTTPClient returns a client whose requests are traced with otelhttp
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// StatusLabel condenses an upstream call result into a metrics label: "ok",
// the upstream HTTP status, or the lower-cased error code.
func StatusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if status, ok := appErr.Metadata["status"].(int); ok {
			return strconv.Itoa(status)
		}
		return strings.ToLower(string(appErr.Code))
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

// ImageContentType resolves the media type of an image response. A missing
// or generic type is replaced by sniffing the body; anything that is not
// image/* is a contract violation.
func ImageContentType(provider, declared string, data []byte) (string, error) {
	mediaType := ""
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = mt
		}
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}

	if !strings.HasPrefix(mediaType, "image/") {
		return "", apperrors.NewSchemaMismatchError(provider,
			fmt.Sprintf("expected an image, got %q", mediaType))
	}
	return mediaType, nil
}
