package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/videodrop/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CacheTTL bounds how long a record stays cached after it was last written
const CacheTTL = 5 * time.Minute

const uploadKeyPrefix = "upload:"

// ErrCacheMiss is returned by RedisClient.GetUpload when no record is cached
var ErrCacheMiss = errors.New("upload not cached")

// RedisClient caches upload records as JSON under upload:<id>
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", addr, err)
	}

	return &RedisClient{client: client, ttl: CacheTTL}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// GetUpload returns the cached record for id, or ErrCacheMiss
func (rc *RedisClient) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	ctx, span := tracer.Start(ctx, "redis.get_upload",
		trace.WithAttributes(attribute.String("upload_id", id)),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, uploadKeyPrefix+id).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		span.SetAttributes(attribute.String("cache_status", "miss"))
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, id)
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read cached upload %s: %w", id, err)
	}

	upload := new(models.Upload)
	if err := json.Unmarshal(data, upload); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("corrupt cache entry for %s: %w", id, err)
	}

	span.SetAttributes(attribute.String("cache_status", "hit"))
	return upload, nil
}

// SetUpload caches upload, replacing any previous entry and its expiry
func (rc *RedisClient) SetUpload(ctx context.Context, upload *models.Upload) error {
	ctx, span := tracer.Start(ctx, "redis.set_upload",
		trace.WithAttributes(
			attribute.String("upload_id", upload.ID),
			attribute.Int64("ttl_seconds", int64(rc.ttl.Seconds())),
		),
	)
	defer span.End()

	data, err := json.Marshal(upload)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode upload %s: %w", upload.ID, err)
	}

	if err := rc.client.Set(ctx, uploadKeyPrefix+upload.ID, data, rc.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to cache upload %s: %w", upload.ID, err)
	}
	return nil
}
