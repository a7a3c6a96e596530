// Package memory provides an in-process replay guard backed by go-cache.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/xraph/hookverify/replay"
)

// compile-time interface check
var _ replay.Guard = (*Guard)(nil)

// Guard is a replay.Guard for a single process.
type Guard struct {
	c *gocache.Cache
}

// New creates a guard that purges expired fingerprints every cleanup
// interval. A non-positive interval defaults to one minute.
func New(cleanup time.Duration) *Guard {
	if cleanup <= 0 {
		cleanup = time.Minute
	}
	return &Guard{c: gocache.New(gocache.NoExpiration, cleanup)}
}

// Seen implements replay.Guard. Add is atomic, so two concurrent deliveries
// of the same message cannot both pass.
func (g *Guard) Seen(_ context.Context, fingerprint string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	if err := g.c.Add(fingerprint, struct{}{}, ttl); err != nil {
		return replay.ErrReplayed
	}
	return nil
}

// Len returns the number of recorded fingerprints, including expired ones
// not yet purged.
func (g *Guard) Len() int { return g.c.ItemCount() }

// Flush forgets every fingerprint.
func (g *Guard) Flush() { g.c.Flush() }
