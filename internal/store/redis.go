package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps records in a Redis database under a key prefix.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

var (
	_ Store   = (*Redis)(nil)
	_ Batcher = (*Redis)(nil)
)

// NewRedis connects to url (redis://...) and pings it.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.key(key), value, clampTTL(ttl)).Err()
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

func (r *Redis) Extend(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.rdb.Persist(ctx, r.key(key)).Err()
	}
	return r.rdb.Expire(ctx, r.key(key), ttl).Err()
}

// Apply runs ops in a MULTI/EXEC block.
func (r *Redis) Apply(ctx context.Context, ops []Op) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch {
			case op.Delete:
				pipe.Del(ctx, r.key(op.Key))
			case op.Extend && op.TTL <= 0:
				pipe.Persist(ctx, r.key(op.Key))
			case op.Extend:
				pipe.Expire(ctx, r.key(op.Key), op.TTL)
			default:
				pipe.Set(ctx, r.key(op.Key), op.Value, clampTTL(op.TTL))
			}
		}
		return nil
	})
	return err
}

// go-redis treats a zero expiration as "keep forever"; negative values mean KEEPTTL.
func clampTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
