package hookverify

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/hookverify/keys"
	"github.com/xraph/hookverify/observability"
	"github.com/xraph/hookverify/replay"
)

// Option configures a Verifier.
type Option func(*Verifier) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(v *Verifier) error {
		v.config = cfg
		return nil
	}
}

// WithResolver sets the key resolver. It takes precedence over WithKeysURL.
func WithResolver(r keys.Resolver) Option {
	return func(v *Verifier) error {
		v.resolver = r
		return nil
	}
}

// WithKeysURL sets the key-distribution endpoint for the built-in cache.
func WithKeysURL(url string) Option {
	return func(v *Verifier) error {
		v.config.KeysURL = url
		return nil
	}
}

// WithHTTPClient sets the client used to fetch keys from KeysURL.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) error {
		v.httpClient = c
		return nil
	}
}

// WithFreshnessWindow sets the maximum accepted message age.
func WithFreshnessWindow(d time.Duration) Option {
	return func(v *Verifier) error {
		v.config.FreshnessWindow = d
		return nil
	}
}

// WithFutureSkew rejects timestamps more than d ahead of the clock.
func WithFutureSkew(d time.Duration) Option {
	return func(v *Verifier) error {
		v.config.FutureSkew = d
		return nil
	}
}

// WithFetchTimeout bounds each key-set fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(v *Verifier) error {
		v.config.FetchTimeout = d
		return nil
	}
}

// WithRefreshLimit caps refreshes triggered by unknown key ids, per second.
func WithRefreshLimit(perSecond float64) Option {
	return func(v *Verifier) error {
		v.config.RefreshLimit = perSecond
		return nil
	}
}

// WithClock sets the time source used by Verify.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) error {
		v.clock = now
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) error {
		v.logger = logger
		return nil
	}
}

// WithMetrics records verifications and key fetches on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(v *Verifier) error {
		v.metrics = m
		return nil
	}
}

// WithTracer records spans on t.
func WithTracer(t *observability.Tracer) Option {
	return func(v *Verifier) error {
		v.tracer = t
		return nil
	}
}

// WithReplayGuard rejects a second delivery of an already accepted message.
func WithReplayGuard(g replay.Guard) Option {
	return func(v *Verifier) error {
		v.guard = g
		return nil
	}
}
