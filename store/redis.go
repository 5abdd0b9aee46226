package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chimerakang/changedesk"
)

type redisStore struct {
	client *redis.Client
	key    string
}

// NewRedis constructs a redis-backed token store. The entry carries no TTL;
// expiry is enforced by the session guard from the token's own claims.
func NewRedis(cfg Config) (changedesk.TokenStore, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("changedesk/store: redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("changedesk/store: redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("changedesk/store: redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "changedesk:"
	}
	return &redisStore{client: client, key: prefix + cfg.key()}, nil
}

func (s *redisStore) Get(ctx context.Context) (string, bool, error) {
	tok, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("changedesk/store: redis get: %w", err)
	}
	return tok, true, nil
}

func (s *redisStore) Set(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, token, 0).Err(); err != nil {
		return fmt.Errorf("changedesk/store: redis set: %w", err)
	}
	return nil
}

func (s *redisStore) Remove(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("changedesk/store: redis del: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
