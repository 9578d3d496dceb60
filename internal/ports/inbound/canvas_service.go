// Package inbound defines the interfaces for inbound ports (primary/driving adapters)
// These are the interfaces that the application exposes to the outside world
package inbound

import (
	"context"

	"github.com/kbcanvas/kbcanvas/internal/domain/canvas"
	"github.com/kbcanvas/kbcanvas/internal/domain/knowledge"
)

// User-visible failure messages
const (
	ImageFailureMessage          = "Failed to fetch the generative model."
	RecommendationFailureMessage = "Failed to fetch recommendations."
	EmptyPreferencesMessage      = "Enter at least one preference."
)

// ImageService defines the image request use cases
type ImageService interface {
	// Generate runs one submission of a session's image flow and returns the
	// resulting display state. Failures are reported in the snapshot.
	Generate(ctx context.Context, flow *canvas.ImageFlow, text string) canvas.ImageSnapshot

	// Render is the stateless variant used by the JSON API
	Render(ctx context.Context, text string) (*RenderedImage, error)

	// Lookup explains which topics a text matches without calling upstream
	Lookup(text string) KnowledgeDTO

	// Release drops the flow's displayed asset, e.g. when its session ends
	Release(ctx context.Context, flow *canvas.ImageFlow)
}

// RecommendationService defines the recommendation use cases
type RecommendationService interface {
	// SetPreferences normalizes raw input and stores it in the flow
	SetPreferences(flow *canvas.RecommendationFlow, raw string) []string

	// Recommend fetches recommendations for the flow's stored preferences
	Recommend(ctx context.Context, flow *canvas.RecommendationFlow) canvas.RecommendationSnapshot

	// Fetch is the stateless variant used by the JSON API
	Fetch(ctx context.Context, preferences []string) ([]canvas.Item, error)
}

// RenderedImage is a generated image together with the match it was built from
type RenderedImage struct {
	Match       string
	Topics      []string
	Data        []byte
	ContentType string
}

// KnowledgeDTO is the JSON shape of a lookup
type KnowledgeDTO struct {
	Match  string   `json:"match"`
	Topics []string `json:"topics"`
}

// NewKnowledgeDTO converts matched entries into their JSON shape
func NewKnowledgeDTO(match string, entries []knowledge.Entry) KnowledgeDTO {
	topics := make([]string, 0, len(entries))
	for _, e := range entries {
		topics = append(topics, e.Key)
	}
	return KnowledgeDTO{Match: match, Topics: topics}
}
