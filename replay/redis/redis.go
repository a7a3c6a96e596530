// Package redis provides a replay guard shared across processes, backed by
// Redis SET NX with expiry.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grove/kv"
	"github.com/xraph/grove/kv/drivers/redisdriver"

	"github.com/xraph/hookverify/replay"
)

// compile-time interface check
var _ replay.Guard = (*Guard)(nil)

// Guard is a replay.Guard backed by Redis.
type Guard struct {
	kv     *kv.Store
	rdb    goredis.UniversalClient
	prefix string
}

// Option configures a Guard.
type Option func(*Guard)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(g *Guard) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// New creates a guard using rdb.
func New(rdb goredis.UniversalClient, opts ...Option) *Guard {
	g := &Guard{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FromKV creates a guard on the Redis client behind a Grove KV store. Ping
// and Close go through the store.
func FromKV(store *kv.Store, opts ...Option) *Guard {
	g := New(redisdriver.UnwrapClient(store), opts...)
	g.kv = store
	return g
}

// Dial connects to addr and checks connectivity.
func Dial(ctx context.Context, addr string, opts ...Option) (*Guard, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", replay.ErrUnavailable, addr, err)
	}
	return New(rdb, opts...), nil
}

// Seen implements replay.Guard.
func (g *Guard) Seen(ctx context.Context, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := g.rdb.SetNX(ctx, fingerprintKey(g.prefix, fingerprint), 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", replay.ErrUnavailable, err)
	}
	if !ok {
		return replay.ErrReplayed
	}
	return nil
}

// Ping checks Redis connectivity.
func (g *Guard) Ping(ctx context.Context) error {
	if g.kv != nil {
		return g.kv.Ping(ctx)
	}
	return g.rdb.Ping(ctx).Err()
}

// Close closes the KV store, or the client for guards made with New or Dial.
func (g *Guard) Close() error {
	if g.kv != nil {
		return g.kv.Close()
	}
	return g.rdb.Close()
}
