package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists the bearer token. There is one token for the whole
// client, not per cart; absence of the key means "not logged in".
type TokenStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

var ErrNoToken = errors.New("no token cached")

const tokenKey = "storefront:token"

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

type RedisTokenStore struct {
	client *redis.Client
}

func (s *RedisTokenStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, tokenKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("redis get token failed: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, tokenKey, token, 0).Err(); err != nil {
		return fmt.Errorf("redis set token failed: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, tokenKey).Err(); err != nil {
		return fmt.Errorf("redis clear token failed: %w", err)
	}
	return nil
}
