package assets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
)

const (
	fieldData        = "data"
	fieldContentType = "content_type"
	fieldCreatedAt   = "created_at"
)

// RedisStore implements outbound.AssetStore on Redis hashes with a TTL, so
// several web replicas can serve each other's handles.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg *config.Config, logger *zap.Logger) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.RedisAddr()},
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis asset store connected",
		zap.String("addr", cfg.RedisAddr()),
		zap.Int("database", cfg.Redis.Database))

	return client, nil
}

// NewRedisStore creates a Redis backed asset store
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("asset-store"),
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Put stores data under a fresh handle
func (s *RedisStore) Put(ctx context.Context, data []byte, contentType string) (*outbound.Asset, error) {
	asset := outbound.Asset{
		ID:          uuid.NewString(),
		Data:        data,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}

	key := s.key(asset.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldData, data,
			fieldContentType, contentType,
			fieldCreatedAt, asset.CreatedAt.UnixNano(),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.Error("Redis asset write failed", zap.String("asset_id", asset.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to store asset: %w", err)
	}

	return &asset, nil
}

// Get returns the asset behind id
func (s *RedisStore) Get(ctx context.Context, id string) (*outbound.Asset, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load asset: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	asset := &outbound.Asset{
		ID:          id,
		Data:        []byte(fields[fieldData]),
		ContentType: fields[fieldContentType],
	}
	if nanos, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64); err == nil {
		asset.CreatedAt = time.Unix(0, nanos).UTC()
	}

	return asset, nil
}

// Release deletes the asset
func (s *RedisStore) Release(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to release asset: %w", err)
	}
	return nil
}

// Len counts held assets with SCAN; it is meant for health reporting only
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return n, nil
}
