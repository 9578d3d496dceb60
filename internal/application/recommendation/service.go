// Package recommendation provides the application layer for the preference
// recommendation flow
package recommendation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/domain/canvas"
	"github.com/kbcanvas/kbcanvas/internal/domain/preference"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/inbound"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	"github.com/kbcanvas/kbcanvas/pkg/errors"
)

// RecommendationService implements the recommendation use cases
type RecommendationService struct {
	recommender outbound.Recommender
	metrics     *monitoring.MetricsCollector
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(recommender outbound.Recommender, metrics *monitoring.MetricsCollector, logger *zap.Logger) *RecommendationService {
	return &RecommendationService{
		recommender: recommender,
		metrics:     metrics,
		tracer:      otel.Tracer("kbcanvas/recommendation"),
		logger:      logger.Named("recommendation-service"),
	}
}

var _ inbound.RecommendationService = (*RecommendationService)(nil)

// SetPreferences normalizes raw input and replaces the flow's list
func (s *RecommendationService) SetPreferences(flow *canvas.RecommendationFlow, raw string) []string {
	prefs := preference.Normalize(raw)
	flow.SetPreferences(prefs)
	return prefs
}

// Recommend fetches recommendations for the flow's stored preferences. An
// empty list is rejected locally; failures keep the previous list on display.
func (s *RecommendationService) Recommend(ctx context.Context, flow *canvas.RecommendationFlow) canvas.RecommendationSnapshot {
	prefs := flow.Preferences()
	ticket := flow.Begin()

	if len(prefs) == 0 {
		flow.Fail(ticket, inbound.EmptyPreferencesMessage)
		s.metrics.FlowOutcome(monitoring.FlowRecommendation, "rejected")
		return flow.Snapshot()
	}

	items, err := s.Fetch(ctx, prefs)
	if err != nil {
		if !flow.Fail(ticket, inbound.RecommendationFailureMessage) {
			s.metrics.StaleCompletion(monitoring.FlowRecommendation)
		}
		return flow.Snapshot()
	}

	if !flow.Succeed(ticket, items) {
		s.metrics.StaleCompletion(monitoring.FlowRecommendation)
		s.logger.Debug("Discarding superseded recommendations", zap.Strings("preferences", prefs))
	}
	return flow.Snapshot()
}

// Fetch calls the backend once for an ordered preference list
func (s *RecommendationService) Fetch(ctx context.Context, preferences []string) ([]canvas.Item, error) {
	ctx, span := s.tracer.Start(ctx, "recommendation.Fetch",
		trace.WithAttributes(attribute.Int("preferences", len(preferences))))
	defer span.End()

	if len(preferences) == 0 {
		return nil, errors.NewValidationError("at least one non-empty preference is required")
	}

	results, err := s.recommender.Recommend(ctx, preferences)
	if err != nil {
		monitoring.RecordError(span, err)
		s.metrics.FlowOutcome(monitoring.FlowRecommendation, "error")
		s.logger.Warn("Recommendation request failed",
			zap.Strings("preferences", preferences),
			zap.String("code", string(errors.GetCode(err))),
			zap.Error(err))
		return nil, err
	}

	s.metrics.FlowOutcome(monitoring.FlowRecommendation, "success")
	span.SetAttributes(attribute.Int("items", len(results)))
	return toItems(results), nil
}

func toItems(results []outbound.RecommendationItem) []canvas.Item {
	items := make([]canvas.Item, 0, len(results))
	for _, r := range results {
		items = append(items, canvas.Item{
			ID:         string(r.ID),
			Name:       r.Name,
			Similarity: r.Similarity,
		})
	}
	return items
}
