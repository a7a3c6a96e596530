// Package keys resolves webhook signing key ids to Ed25519 public keys.
//
// Keys come from a key-distribution endpoint that serves a JSON object
// mapping key id to base64 public key. Cache holds the last fetched set and
// only goes back to the endpoint when it is asked for a key id it does not
// know, so a newly rotated key becomes usable without a restart while
// previously seen keys never touch the network.
package keys

import (
	"context"
	"errors"
)

// Sentinel errors returned by resolvers and fetchers.
var (
	// ErrUnknownKey is returned when a key id is absent after a refresh.
	ErrUnknownKey = errors.New("keys: unknown key id")

	// ErrFetch is returned when the key set could not be fetched or decoded.
	ErrFetch = errors.New("keys: fetch key set")

	// ErrRefreshThrottled is wrapped with ErrUnknownKey when a miss was not
	// allowed to trigger a refresh.
	ErrRefreshThrottled = errors.New("keys: refresh throttled")
)

// Set maps key id to raw 32-byte Ed25519 public key.
type Set map[string][]byte

// Resolver returns the public key for a key id.
type Resolver interface {
	Resolve(ctx context.Context, keyID string) ([]byte, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, keyID string) ([]byte, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, keyID string) ([]byte, error) {
	return f(ctx, keyID)
}

// Fetcher retrieves the complete current key set.
type Fetcher interface {
	Fetch(ctx context.Context) (Set, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (Set, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context) (Set, error) {
	return f(ctx)
}

// Static returns a Fetcher that always yields a copy of set.
func Static(set Set) Fetcher {
	return FetcherFunc(func(context.Context) (Set, error) {
		out := make(Set, len(set))
		for k, v := range set {
			out[k] = v
		}
		return out, nil
	})
}
