// Package outbound defines the interfaces for outbound ports (secondary/driven adapters)
// These are the interfaces that the application uses to interact with external systems
package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ImagePayload is the body sent to the image model: {"inputs": "..."}.
type ImagePayload struct {
	Inputs string `json:"inputs"`
}

// Image is a generated binary image as returned by a provider.
type Image struct {
	Data        []byte
	ContentType string
}

// ImageGenerator turns an instruction into an image. Implementations make a
// single attempt; they do not retry.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, payload ImagePayload) (*Image, error)
	Name() string
}

// RecommendationRequest is the body sent to the recommendation backend.
type RecommendationRequest struct {
	Preferences []string `json:"preferences"`
}

// RecommendationResponse is the contract of the recommendation backend.
// A missing field decodes to a nil slice and fails validation.
type RecommendationResponse struct {
	Recommendations []RecommendationItem `json:"recommendations" validate:"required,dive"`
}

// RecommendationItem is one entry returned by the backend. The id is opaque.
type RecommendationItem struct {
	ID         ItemID   `json:"id" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// ItemID accepts either a JSON number or a JSON string and keeps its text form.
type ItemID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id must be a string or a number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers.
func (id ItemID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseFloat(string(id), 64); err == nil && id != "" {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Recommender fetches recommendations for an ordered preference list.
type Recommender interface {
	Recommend(ctx context.Context, preferences []string) ([]RecommendationItem, error)
}

// Asset is a generated image held by the service on behalf of a session.
type Asset struct {
	ID          string
	Data        []byte
	ContentType string
	CreatedAt   time.Time
}

// AssetStore holds generated images behind opaque handles until released.
type AssetStore interface {
	Put(ctx context.Context, data []byte, contentType string) (*Asset, error)
	Get(ctx context.Context, id string) (*Asset, error)
	Release(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}
