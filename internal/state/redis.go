package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"legalmind/internal/config"
)

const redisKeyPrefix = "legalmind:generation:"

// Connect opens a Redis client and checks it with PING.
func Connect(ctx context.Context, cfg config.StateConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logrus.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
	return rdb, nil
}

// RedisStore keeps state in Redis so several server instances share it.
// Every save refreshes the key's TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, conversationID string) (*Generation, error) {
	b, err := r.client.Get(ctx, redisKeyPrefix+conversationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read generation state: %w", err)
	}
	var g Generation
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("failed to decode generation state: %w", err)
	}
	if g.Collected == nil {
		g.Collected = make(map[string]string)
	}
	return &g, nil
}

func (r *RedisStore) Save(ctx context.Context, g *Generation) error {
	b, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode generation state: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+g.ConversationID, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save generation state: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+conversationID).Err(); err != nil {
		return fmt.Errorf("failed to delete generation state: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
