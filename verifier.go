package hookverify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/hookverify/header"
	"github.com/xraph/hookverify/id"
	"github.com/xraph/hookverify/keys"
	"github.com/xraph/hookverify/observability"
	"github.com/xraph/hookverify/replay"
	"github.com/xraph/hookverify/signature"
)

// Verifier checks signed webhooks. It is safe for concurrent use.
type Verifier struct {
	config     Config
	resolver   keys.Resolver
	cache      *keys.Cache
	httpClient *http.Client
	clock      func() time.Time
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	guard      replay.Guard
}

// New creates a Verifier with the given options. Without WithResolver a
// refresh-on-miss cache over KeysURL is built.
func New(opts ...Option) (*Verifier, error) {
	v := &Verifier{
		config: DefaultConfig(),
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	if err := v.config.validate(); err != nil {
		return nil, err
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	if v.clock == nil {
		v.clock = time.Now
	}

	if v.resolver == nil {
		if v.config.KeysURL == "" {
			return nil, ErrNoResolver
		}
		v.cache = keys.NewCache(
			keys.NewHTTPFetcher(v.config.KeysURL, v.httpClient, v.logger),
			keys.WithFetchTimeout(v.config.FetchTimeout),
			keys.WithRefreshLimit(v.config.RefreshLimit, 1),
			keys.WithLogger(v.logger),
			keys.WithMetrics(v.metrics),
			keys.WithTracer(v.tracer),
		)
		v.resolver = v.cache
	} else if c, ok := v.resolver.(*keys.Cache); ok {
		v.cache = c
	}

	return v, nil
}

// Config returns the effective configuration.
func (v *Verifier) Config() Config { return v.config }

// Cache returns the key cache, or nil when a custom resolver is in use.
func (v *Verifier) Cache() *keys.Cache { return v.cache }

// Refresh reloads the key cache. It is a no-op for custom resolvers.
func (v *Verifier) Refresh(ctx context.Context) error {
	if v.cache == nil {
		return nil
	}
	return v.cache.Refresh(ctx)
}

// Verify checks body against the raw signature header using the configured
// clock and freshness window.
func (v *Verifier) Verify(ctx context.Context, body []byte, raw string) Outcome {
	return v.VerifyAt(ctx, body, raw, v.clock(), v.config.FreshnessWindow)
}

// VerifyAt checks body against the raw signature header as of now, accepting
// messages at most window old. A non-positive window uses the configured one.
func (v *Verifier) VerifyAt(ctx context.Context, body []byte, raw string, now time.Time, window time.Duration) Outcome {
	if window <= 0 {
		window = v.config.FreshnessWindow
	}

	vid := id.NewVerificationID()
	ctx, span := v.tracer.StartVerifySpan(ctx, vid.String())

	out := v.verify(ctx, body, raw, now, window)
	out.ID = vid

	v.tracer.EndVerifySpan(span, out.KeyID, out.Reason.String(), out.Valid)
	v.metrics.RecordVerification(out.Reason.String())

	if !out.Valid {
		v.logger.Debug("webhook rejected",
			"verification_id", vid.String(),
			"reason", out.Reason.String(),
			"key_id", out.KeyID,
			"timestamp", out.Timestamp,
			"error", out.Err,
		)
	}
	return out
}

// verify runs the checks in order and stops at the first failure:
//  1. Parse the header.
//  2. Check freshness.
//  3. Resolve the key id.
//  4. Verify the signature over "<t as sent>.<body>".
//  5. Record the message with the replay guard, if any.
func (v *Verifier) verify(ctx context.Context, body []byte, raw string, now time.Time, window time.Duration) Outcome {
	// 1. Parse.
	h, err := header.Parse(raw)
	if err != nil {
		return reject(MalformedHeader, fmt.Errorf("%w: %w", ErrMalformedHeader, err))
	}

	base := func(r Reason, err error) Outcome {
		o := reject(r, err)
		o.KeyID = h.KeyID
		o.Timestamp = h.Timestamp
		return o
	}

	// 2. Freshness, in whole seconds.
	sent := time.Unix(h.Timestamp, 0)
	current := time.Unix(now.Unix(), 0)
	if age := current.Sub(sent); age > window {
		return base(Expired, fmt.Errorf("%w: age %s exceeds %s", ErrExpired, age, window))
	}
	if skew := v.config.FutureSkew; skew > 0 {
		if ahead := sent.Sub(current); ahead > skew {
			return base(Expired, fmt.Errorf("%w: timestamp %s ahead of clock", ErrExpired, ahead))
		}
	}

	// 3. Resolve.
	pub, err := v.resolver.Resolve(ctx, h.KeyID)
	if err != nil {
		if errors.Is(err, keys.ErrUnknownKey) {
			return base(UnknownKey, fmt.Errorf("%w: %w", ErrUnknownKey, err))
		}
		return base(KeyFetchError, fmt.Errorf("%w: %w", ErrKeyFetch, err))
	}

	// 4. Signature.
	if !signature.Verify(pub, signature.Payload(h.RawTimestamp, body), h.Signature) {
		return base(BadSignature, fmt.Errorf("%w: key %q", ErrBadSignature, h.KeyID))
	}

	// 5. Replay.
	if v.guard != nil {
		ttl := window + v.config.FutureSkew
		if err := v.guard.Seen(ctx, replay.Fingerprint(h.KeyID, h.Signature), ttl); err != nil {
			if errors.Is(err, replay.ErrReplayed) {
				return base(Replayed, fmt.Errorf("%w: %w", ErrReplayed, err))
			}
			if !errors.Is(err, replay.ErrUnavailable) {
				err = fmt.Errorf("%w: %w", replay.ErrUnavailable, err)
			}
			return base(ReplayUnavailable, fmt.Errorf("%w: %w", ErrReplayUnavailable, err))
		}
	}

	out := base(Valid, nil)
	out.Valid = true
	return out
}
