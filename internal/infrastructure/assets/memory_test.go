package assets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type MemoryStoreTestSuite struct {
	suite.Suite
	store *MemoryStore
	clock time.Time
	ctx   context.Context
}

func (s *MemoryStoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore(time.Minute, zap.NewNop())
	s.store.now = func() time.Time { return s.clock }
}

func (s *MemoryStoreTestSuite) TestPutGet() {
	s.Run("StoresDataUnderFreshHandle_ShouldReturnIt", func() {
		// Arrange
		data := []byte{0x89, 'P', 'N', 'G'}

		// Act
		asset, err := s.store.Put(s.ctx, data, "image/png")
		s.Require().NoError(err)
		got, err := s.store.Get(s.ctx, asset.ID)

		// Assert
		s.Require().NoError(err)
		s.NotEmpty(asset.ID)
		s.Equal(data, got.Data)
		s.Equal("image/png", got.ContentType)
		s.Equal(s.clock, got.CreatedAt)
	})

	s.Run("DistinctPuts_ShouldGetDistinctHandles", func() {
		a, err := s.store.Put(s.ctx, []byte("a"), "image/png")
		s.Require().NoError(err)
		b, err := s.store.Put(s.ctx, []byte("a"), "image/png")
		s.Require().NoError(err)

		s.NotEqual(a.ID, b.ID)
	})

	s.Run("UnknownHandle_ShouldReturnNotFound", func() {
		_, err := s.store.Get(s.ctx, "missing")
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *MemoryStoreTestSuite) TestRelease() {
	s.Run("ReleasedHandle_ShouldNoLongerResolve", func() {
		asset, err := s.store.Put(s.ctx, []byte("img"), "image/jpeg")
		s.Require().NoError(err)

		s.NoError(s.store.Release(s.ctx, asset.ID))

		_, err = s.store.Get(s.ctx, asset.ID)
		s.ErrorIs(err, ErrNotFound)
		n, _ := s.store.Len(s.ctx)
		s.Equal(0, n)
	})

	s.Run("UnknownHandle_ShouldBeNoop", func() {
		s.NoError(s.store.Release(s.ctx, "missing"))
	})
}

func (s *MemoryStoreTestSuite) TestExpiry() {
	s.Run("ExpiredAsset_ShouldNotResolve", func() {
		asset, err := s.store.Put(s.ctx, []byte("img"), "image/png")
		s.Require().NoError(err)

		s.clock = s.clock.Add(2 * time.Minute)

		_, err = s.store.Get(s.ctx, asset.ID)
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("Sweep_ShouldDropOnlyExpired", func() {
		store := NewMemoryStore(time.Minute, zap.NewNop())
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return now }

		_, err := store.Put(s.ctx, []byte("old"), "image/png")
		s.Require().NoError(err)
		now = now.Add(45 * time.Second)
		fresh, err := store.Put(s.ctx, []byte("new"), "image/png")
		s.Require().NoError(err)
		now = now.Add(30 * time.Second)

		s.Equal(1, store.Sweep())

		n, _ := store.Len(s.ctx)
		s.Equal(1, n)
		_, err = store.Get(s.ctx, fresh.ID)
		s.NoError(err)
	})
}

func TestMemoryStoreTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreTestSuite))
}

func TestMemoryStore_StartStop(t *testing.T) {
	store := NewMemoryStore(time.Millisecond, zap.NewNop())
	_, err := store.Put(context.Background(), []byte("x"), "image/png")
	require.NoError(t, err)

	store.Start(5 * time.Millisecond)
	defer store.Stop()

	assert.Eventually(t, func() bool {
		n, _ := store.Len(context.Background())
		return n == 0
	}, time.Second, 10*time.Millisecond)

	store.Stop()
}
