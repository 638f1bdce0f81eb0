package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where the Redis repository keeps the session when no key is configured.
const DefaultRedisKey = "gigsync:credential"

// redisCredentialRepo stores the credential as one JSON value.
// It lets several processes on different hosts share a single session.
type redisCredentialRepo struct {
	rdb *redis.Client
	key string
}

// NewRedisCredentialRepository creates a CredentialRepository backed by Redis.
func NewRedisCredentialRepository(rdb *redis.Client, key string) CredentialRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &redisCredentialRepo{rdb: rdb, key: key}
}

// OpenRedis parses a redis:// URL and checks the server is reachable.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	return rdb, nil
}

func (r *redisCredentialRepo) Get(ctx context.Context) (*Credential, error) {
	if r.rdb == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("corrupt credential record: %w", err)
	}
	return &cred, nil
}

func (r *redisCredentialRepo) Upsert(ctx context.Context, cred *Credential) error {
	if r.rdb == nil {
		return fmt.Errorf("repository not initialized")
	}
	if cred == nil {
		return fmt.Errorf("credential is nil")
	}
	row := *cred
	row.UpdatedAt = time.Now()
	raw, err := json.Marshal(&row)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, raw, 0).Err()
}

func (r *redisCredentialRepo) Clear(ctx context.Context) error {
	if r.rdb == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.rdb.Del(ctx, r.key).Err()
}
