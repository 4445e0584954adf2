package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// RedisStore keeps crawl state in Redis so several crawler processes can
// share one resumable state.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to the server described by opts.
func NewRedis(opts RedisOptions) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisStore{client: rdb, prefix: opts.Prefix}
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return eris.Wrap(r.client.Ping(ctx).Err(), "redis ping failure")
}

// LoadState decodes the value stored under key into dst.
func (r *RedisStore) LoadState(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "redis get failure for %s", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, eris.Wrapf(ErrCorruptState, "key %s: %v", key, err)
	}
	return true, nil
}

// SaveState stores v as JSON under key without expiry.
func (r *RedisStore) SaveState(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "redis marshal failure for %s", key)
	}
	return eris.Wrapf(r.client.Set(ctx, r.prefix+key, raw, 0).Err(), "redis set failure for %s", key)
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
