package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	derror "iap-sync-engine/internal/error"
	"iap-sync-engine/internal/infra/auth"
)

var _ auth.TokenStore = (*TokenRepo)(nil)

// TokenRepo keeps the session access token in Redis so a restarted engine
// resumes reconciling without a fresh sign-in.
type TokenRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewTokenRepo(client RedisClient, ttl time.Duration) *TokenRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenRepo{client: client, ttl: ttl}
}

func (r *TokenRepo) key() string { return "iap:session:access_token" }

func (r *TokenRepo) Get(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key())
	if errors.Is(err, goredis.Nil) {
		return "", derror.ErrNotSignedIn
	}
	if err != nil {
		return "", fmt.Errorf("redis token get: %w", err)
	}
	return token, nil
}

func (r *TokenRepo) Set(ctx context.Context, token string) error {
	return r.client.Set(ctx, r.key(), token, r.ttl)
}

func (r *TokenRepo) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key())
}
