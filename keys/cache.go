package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/hookverify/observability"
	"github.com/xraph/hookverify/ratelimit"
)

// DefaultFetchTimeout bounds a single key-distribution fetch.
const DefaultFetchTimeout = 5 * time.Second

// refreshKey is the only singleflight key: every miss shares one refresh.
const refreshKey = "refresh"

// compile-time interface check
var _ Resolver = (*Cache)(nil)

// Cache is a refresh-on-miss key cache. It is safe for concurrent use.
//
// The cached set is an immutable snapshot swapped atomically, so readers see
// either the previous complete set or the new one. Entries never expire; the
// whole set is replaced only when a lookup misses or Refresh is called.
type Cache struct {
	fetcher      Fetcher
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	limiter      *ratelimit.Limiter

	snapshot atomic.Pointer[Set]
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithFetchTimeout bounds each fetch. Non-positive values keep the default.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records fetches on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithTracer records refresh spans on t.
func WithTracer(t *observability.Tracer) Option {
	return func(c *Cache) { c.tracer = t }
}

// WithRefreshLimit caps misses that may trigger a fetch to perSecond, with a
// burst of burst. A throttled miss fails with ErrUnknownKey without a fetch.
// Zero disables the limit.
func WithRefreshLimit(perSecond float64, burst int) Option {
	return func(c *Cache) {
		if perSecond > 0 {
			c.limiter = ratelimit.New(perSecond, burst)
		}
	}
}

// NewCache creates an empty cache backed by fetcher.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:      fetcher,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the public key for keyID, refreshing the whole set once if
// keyID is not cached. The returned slice must not be modified.
func (c *Cache) Resolve(ctx context.Context, keyID string) ([]byte, error) {
	if key, ok := c.lookup(keyID); ok {
		return key, nil
	}

	if err := c.refresh(ctx, false); err != nil {
		if errors.Is(err, ErrRefreshThrottled) {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnknownKey, keyID, err)
		}
		return nil, err
	}

	if key, ok := c.lookup(keyID); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, keyID)
}

// Refresh replaces the cached set with a fresh fetch, ignoring any refresh
// limit. On failure the previous set is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

// Keys returns the cached key ids in sorted order.
func (c *Cache) Keys() []string {
	set := c.snapshot.Load()
	if set == nil {
		return nil
	}
	ids := make([]string, 0, len(*set))
	for kid := range *set {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	set := c.snapshot.Load()
	if set == nil {
		return 0
	}
	return len(*set)
}

func (c *Cache) lookup(keyID string) ([]byte, bool) {
	set := c.snapshot.Load()
	if set == nil {
		return nil, false
	}
	key, ok := (*set)[keyID]
	return key, ok
}

// refresh joins the in-flight refresh or starts one. The fetch runs on a
// context detached from ctx's cancellation so one caller giving up does not
// fail the others waiting on the same flight.
//
// A forced refresh that joined a throttled miss starts over: the throttled
// flight has already finished, so the retry either fetches or joins a real
// fetch.
func (c *Cache) refresh(ctx context.Context, force bool) error {
	for {
		ch := c.group.DoChan(refreshKey, func() (any, error) {
			if !force && !c.limiter.Allow() {
				c.logger.Warn("key refresh throttled")
				return nil, ErrRefreshThrottled
			}
			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
			defer cancel()
			return nil, c.doRefresh(fetchCtx)
		})

		select {
		case res := <-ch:
			if force && errors.Is(res.Err, ErrRefreshThrottled) {
				continue
			}
			return res.Err
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
		}
	}
}

type fetchResult struct {
	set Set
	err error
}

func (c *Cache) doRefresh(ctx context.Context) error {
	start := time.Now()
	ctx, span := c.tracer.StartRefreshSpan(ctx)

	// The fetcher runs in its own goroutine so the timeout holds even for a
	// fetcher that ignores its context.
	done := make(chan fetchResult, 1)
	go func() {
		set, err := c.fetcher.Fetch(ctx)
		done <- fetchResult{set: set, err: err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err == nil && len(res.set) == 0 {
		res.err = errors.New("key set is empty")
	}
	if res.err != nil && !errors.Is(res.err, ErrFetch) {
		res.err = fmt.Errorf("%w: %w", ErrFetch, res.err)
	}

	elapsed := time.Since(start)
	c.metrics.RecordKeyFetch(res.err, elapsed.Seconds(), len(res.set))
	c.tracer.EndRefreshSpan(span, len(res.set), res.err)

	if res.err != nil {
		c.logger.Warn("key refresh failed",
			"error", res.err,
			"duration_ms", elapsed.Milliseconds(),
			"cached_keys", c.Len(),
		)
		return res.err
	}

	next := make(Set, len(res.set))
	for kid, key := range res.set {
		next[kid] = key
	}
	c.snapshot.Store(&next)

	c.logger.Info("keys refreshed",
		"keys", len(next),
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}
