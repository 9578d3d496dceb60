// Package testutils provides mock implementations for testing
package testutils

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
)

// MockImageGenerator provides a mock implementation of ImageGenerator
type MockImageGenerator struct {
	mock.Mock
}

// NewMockImageGenerator creates a new mock image generator
func NewMockImageGenerator() *MockImageGenerator {
	return &MockImageGenerator{}
}

// GenerateImage implements outbound.ImageGenerator
func (m *MockImageGenerator) GenerateImage(ctx context.Context, payload outbound.ImagePayload) (*outbound.Image, error) {
	args := m.Called(ctx, payload)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outbound.Image), args.Error(1)
}

// Name implements outbound.ImageGenerator
func (m *MockImageGenerator) Name() string {
	return "mock"
}

// MockRecommender provides a mock implementation of Recommender
type MockRecommender struct {
	mock.Mock
}

// NewMockRecommender creates a new mock recommender
func NewMockRecommender() *MockRecommender {
	return &MockRecommender{}
}

// Recommend implements outbound.Recommender
func (m *MockRecommender) Recommend(ctx context.Context, preferences []string) ([]outbound.RecommendationItem, error) {
	args := m.Called(ctx, preferences)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]outbound.RecommendationItem), args.Error(1)
}

// GatedCall lets a test hold an upstream call open until it decides the
// outcome, to drive out-of-order completions.
type GatedCall struct {
	Started chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewGatedCall creates a call that blocks until Release
func NewGatedCall() *GatedCall {
	return &GatedCall{
		Started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

// Wait marks the call as started and blocks until Release or ctx is done
func (g *GatedCall) Wait(ctx context.Context) error {
	close(g.Started)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unblocks the call
func (g *GatedCall) Release() {
	g.once.Do(func() { close(g.release) })
}
