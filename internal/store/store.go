// Package store is the keyed persistence the coordinator runs on: opaque
// values under string keys, each with a bounded lifetime.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: key not found")

// Store is the minimal persistence contract.
type Store interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value with a lifetime of ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	// Extend resets the lifetime of an existing key. Missing keys are ignored.
	Extend(ctx context.Context, key string, ttl time.Duration) error
}

// Op is one staged write. Extend only resets the lifetime of an existing key
// to TTL and ignores Value.
type Op struct {
	Key    string
	Value  []byte
	TTL    time.Duration
	Delete bool
	Extend bool
}

// Batcher is implemented by stores that can apply several writes atomically.
type Batcher interface {
	Apply(ctx context.Context, ops []Op) error
}

// Apply writes ops through s, atomically when s is a Batcher and in order otherwise.
func Apply(ctx context.Context, s Store, ops []Op) error {
	if b, ok := s.(Batcher); ok {
		return b.Apply(ctx, ops)
	}
	for _, op := range ops {
		var err error
		switch {
		case op.Delete:
			err = s.Remove(ctx, op.Key)
		case op.Extend:
			err = s.Extend(ctx, op.Key, op.TTL)
		default:
			err = s.Set(ctx, op.Key, op.Value, op.TTL)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
