package hookverify

import (
	"fmt"
	"time"

	"github.com/xraph/hookverify/keys"
)

// Config holds the configuration for a Verifier.
type Config struct {
	// KeysURL is the key-distribution endpoint. Ignored when a resolver is
	// supplied with WithResolver.
	KeysURL string

	// FreshnessWindow is the maximum accepted message age.
	FreshnessWindow time.Duration

	// FutureSkew is the maximum amount a timestamp may lie ahead of the
	// clock. Zero disables the check.
	FutureSkew time.Duration

	// FetchTimeout bounds each key-set fetch.
	FetchTimeout time.Duration

	// RefreshLimit caps refreshes triggered by unknown key ids, per second.
	// Zero means unlimited.
	RefreshLimit float64
}

// DefaultFreshnessWindow is the default maximum message age.
const DefaultFreshnessWindow = 600 * time.Second

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeysURL:         keys.DefaultURL,
		FreshnessWindow: DefaultFreshnessWindow,
		FetchTimeout:    keys.DefaultFetchTimeout,
	}
}

func (c Config) validate() error {
	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("%w: freshness window must be positive, got %s", ErrInvalidConfig, c.FreshnessWindow)
	}
	if c.FutureSkew < 0 {
		return fmt.Errorf("%w: future skew must not be negative, got %s", ErrInvalidConfig, c.FutureSkew)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch timeout must be positive, got %s", ErrInvalidConfig, c.FetchTimeout)
	}
	if c.RefreshLimit < 0 {
		return fmt.Errorf("%w: refresh limit must not be negative, got %v", ErrInvalidConfig, c.RefreshLimit)
	}
	return nil
}
