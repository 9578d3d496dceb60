// Package assets holds generated images behind opaque handles so the browser
// only ever sees /assets/{id} and never the upstream credential or payload.
package assets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
)

// ErrNotFound is returned for unknown, expired or released handles.
var ErrNotFound = errors.New("asset not found")

type memoryItem struct {
	asset     outbound.Asset
	expiresAt time.Time
}

// MemoryStore implements outbound.AssetStore in process memory
type MemoryStore struct {
	items  map[string]memoryItem
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
	mu     sync.RWMutex

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore creates a new in-memory asset store
func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		items:  make(map[string]memoryItem),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("asset-store"),
		stop:   make(chan struct{}),
	}
}

// Put stores data under a fresh handle
func (s *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (*outbound.Asset, error) {
	now := s.now()
	asset := outbound.Asset{
		ID:          uuid.NewString(),
		Data:        data,
		ContentType: contentType,
		CreatedAt:   now,
	}

	s.mu.Lock()
	s.items[asset.ID] = memoryItem{asset: asset, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()

	return &asset, nil
}

// Get returns the asset behind id
func (s *MemoryStore) Get(ctx context.Context, id string) (*outbound.Asset, error) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()

	if !ok || s.now().After(item.expiresAt) {
		return nil, ErrNotFound
	}

	asset := item.asset
	return &asset, nil
}

// Release drops the asset. Releasing an unknown id is not an error.
func (s *MemoryStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of held assets, expired ones included until swept
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Sweep removes expired assets and returns how many were dropped
func (s *MemoryStore) Sweep() int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for id, item := range s.items {
		if now.After(item.expiresAt) {
			delete(s.items, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Debug("Swept expired assets", zap.Int("removed", removed))
	}
	return removed
}

// Start runs the sweeper until Stop is called
func (s *MemoryStore) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the sweeper
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
