package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store persists throttle windows so cooperating processes sending to
// the same endpoint observe the same server-imposed limits.
type Store interface {
	Save(ctx context.Context, limits map[Category]time.Time) error
	Load(ctx context.Context) (map[Category]time.Time, error)
}

// RedisStore keeps limits in a single Redis hash keyed by category, with
// the hash expiring alongside the furthest deadline.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config *RedisStoreConfig) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("redis store config is required")
	}
	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "courier"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		rdb: rdb,
		key: prefix + ":ratelimits",
	}, nil
}

// Save writes the given limits. Each category maps to its reset instant
// in unix milliseconds; the hash expires when the furthest deadline
// passes so stale state cleans itself up.
func (s *RedisStore) Save(ctx context.Context, limits map[Category]time.Time) error {
	if len(limits) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(limits))
	var furthest time.Time
	for category, deadline := range limits {
		fields[string(category)] = deadline.UnixMilli()
		if deadline.After(furthest) {
			furthest = deadline
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.key, fields)
	pipe.ExpireAt(ctx, s.key, furthest)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save rate limits: %w", err)
	}
	return nil
}

// Load reads all recorded limits, dropping entries that have already
// expired.
func (s *RedisStore) Load(ctx context.Context) (map[Category]time.Time, error) {
	raw, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load rate limits: %w", err)
	}

	now := time.Now()
	limits := make(map[Category]time.Time, len(raw))
	for field, value := range raw {
		millis, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		deadline := time.UnixMilli(millis)
		if deadline.After(now) {
			limits[Category(field)] = deadline
		}
	}
	return limits, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Health checks the Redis connection.
func (s *RedisStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
