// Package imagegen provides the application layer for the context-augmented
// image request flow
package imagegen

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/domain/canvas"
	"github.com/kbcanvas/kbcanvas/internal/domain/knowledge"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/inbound"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	"github.com/kbcanvas/kbcanvas/pkg/errors"
)

// ImageService implements the image request use cases
type ImageService struct {
	table     *knowledge.Table
	generator outbound.ImageGenerator
	assets    outbound.AssetStore
	metrics   *monitoring.MetricsCollector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewImageService creates a new image service
func NewImageService(
	table *knowledge.Table,
	generator outbound.ImageGenerator,
	assets outbound.AssetStore,
	metrics *monitoring.MetricsCollector,
	logger *zap.Logger,
) *ImageService {
	return &ImageService{
		table:     table,
		generator: generator,
		assets:    assets,
		metrics:   metrics,
		tracer:    otel.Tracer("kbcanvas/imagegen"),
		logger:    logger.Named("image-service"),
	}
}

var _ inbound.ImageService = (*ImageService)(nil)

// Generate runs one submission of the image flow. The match explanation is
// refreshed before the upstream call; on failure the previous image stays.
func (s *ImageService) Generate(ctx context.Context, flow *canvas.ImageFlow, text string) canvas.ImageSnapshot {
	ctx, span := s.tracer.Start(ctx, "imagegen.Generate",
		trace.WithAttributes(attribute.String("provider", s.generator.Name())))
	defer span.End()

	match, matched := s.match(text)
	ticket := flow.Begin(text, match)
	span.SetAttributes(attribute.Bool("knowledge.matched", matched))

	start := time.Now()
	img, err := s.generator.GenerateImage(ctx, outbound.ImagePayload{Inputs: knowledge.Instruction(text, match)})
	if err != nil {
		monitoring.RecordError(span, err)
		s.fail(flow, ticket, err)
		return flow.Snapshot()
	}

	asset, err := s.assets.Put(ctx, img.Data, img.ContentType)
	if err != nil {
		monitoring.RecordError(span, err)
		s.fail(flow, ticket, errors.Wrap(err, "failed to store generated image"))
		return flow.Snapshot()
	}

	previous, ok := flow.Succeed(ticket, asset.ID, asset.ContentType)
	if !ok {
		s.metrics.StaleCompletion(monitoring.FlowImage)
		s.logger.Debug("Discarding superseded image", zap.String("asset_id", asset.ID))
		s.release(ctx, asset.ID)
		return flow.Snapshot()
	}
	if previous != "" {
		s.release(ctx, previous)
	}

	s.metrics.FlowOutcome(monitoring.FlowImage, "success")
	s.logger.Info("Image installed",
		zap.String("asset_id", asset.ID),
		zap.Bool("knowledge_matched", matched),
		zap.Duration("duration", time.Since(start)))

	return flow.Snapshot()
}

// Render generates an image without touching any session state
func (s *ImageService) Render(ctx context.Context, text string) (*inbound.RenderedImage, error) {
	ctx, span := s.tracer.Start(ctx, "imagegen.Render",
		trace.WithAttributes(attribute.String("provider", s.generator.Name())))
	defer span.End()

	entries := s.table.Matches(text)
	match := s.table.Match(text)
	s.metrics.KnowledgeLookup(len(entries) > 0)

	img, err := s.generator.GenerateImage(ctx, outbound.ImagePayload{Inputs: knowledge.Instruction(text, match)})
	if err != nil {
		monitoring.RecordError(span, err)
		s.metrics.FlowOutcome(monitoring.FlowImage, "error")
		return nil, err
	}

	s.metrics.FlowOutcome(monitoring.FlowImage, "success")
	dto := inbound.NewKnowledgeDTO(match, entries)
	return &inbound.RenderedImage{
		Match:       match,
		Topics:      dto.Topics,
		Data:        img.Data,
		ContentType: img.ContentType,
	}, nil
}

// Lookup explains which topics a text matches
func (s *ImageService) Lookup(text string) inbound.KnowledgeDTO {
	return inbound.NewKnowledgeDTO(s.table.Match(text), s.table.Matches(text))
}

// Release drops the displayed asset of a flow and invalidates its pending submissions
func (s *ImageService) Release(ctx context.Context, flow *canvas.ImageFlow) {
	if id := flow.Close(); id != "" {
		s.release(ctx, id)
	}
}

func (s *ImageService) match(text string) (string, bool) {
	matched := len(s.table.Matches(text)) > 0
	s.metrics.KnowledgeLookup(matched)
	return s.table.Match(text), matched
}

func (s *ImageService) fail(flow *canvas.ImageFlow, ticket canvas.Ticket, err error) {
	if !flow.Fail(ticket, inbound.ImageFailureMessage) {
		s.metrics.StaleCompletion(monitoring.FlowImage)
		s.logger.Debug("Discarding superseded image failure", zap.Error(err))
		return
	}

	s.metrics.FlowOutcome(monitoring.FlowImage, "error")
	s.logger.Warn("Image request failed",
		zap.String("code", string(errors.GetCode(err))),
		zap.Error(err))
}

// release runs even when the request context is already cancelled
func (s *ImageService) release(ctx context.Context, id string) {
	if err := s.assets.Release(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("Failed to release asset", zap.String("asset_id", id), zap.Error(err))
	}
}
