package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"modelgate/internal/core"
)

// defaultRedisKeyPrefix namespaces registry records in a shared Redis.
const defaultRedisKeyPrefix = "modelgate:models:"

// RedisStore stores model records in Redis with native TTL eviction.
// Suitable for multi-instance gateways behind a load balancer.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis using a redis:// URL.
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: defaultRedisKeyPrefix}, nil
}

// Put upserts a record with the given TTL.
func (s *RedisStore) Put(ctx context.Context, rec core.Model, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal model record: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+rec.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("set model record in redis: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Model, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get model record from redis: %w", err)
	}

	var rec core.Model
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal model record: %w", err)
	}
	return &rec, nil
}

// Scan iterates every live record under the key prefix.
func (s *RedisStore) Scan(ctx context.Context) ([]core.Model, error) {
	var out []core.Model

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				// Expired between SCAN and GET.
				continue
			}
			return nil, fmt.Errorf("get model record from redis: %w", err)
		}
		var rec core.Model
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal model record: %w", err)
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan model records: %w", err)
	}
	return out, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
