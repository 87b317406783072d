package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Verify interface compliance
var _ Cache = (*RedisCache)(nil)

const redisKeyPrefix = "embedding:"

// RedisCache stores vectors as little-endian float32 blobs with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClientFromURL parses a redis:// URL and pings the server.
func NewRedisClientFromURL(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func redisKey(model, textHash string) string {
	return redisKeyPrefix + model + ":" + textHash
}

func (r *RedisCache) Get(ctx context.Context, model, textHash string) ([]float32, bool, error) {
	data, err := r.client.Get(ctx, redisKey(model, textHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, false, fmt.Errorf("corrupt embedding entry of %d bytes", len(data))
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true, nil
}

func (r *RedisCache) Put(ctx context.Context, model, textHash string, vec []float32) error {
	data := make([]byte, len(vec)*4)
	for i, x := range vec {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(x))
	}
	if err := r.client.Set(ctx, redisKey(model, textHash), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}
