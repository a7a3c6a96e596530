// Package replay suppresses duplicate deliveries of a verified webhook.
//
// A Guard remembers each (key id, signature) pair for as long as the
// message would pass the freshness check. Ed25519 signatures are
// deterministic, so a resent message carries the same signature and is
// recognized even when the body has not changed.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrReplayed is returned when a fingerprint was already recorded.
	ErrReplayed = errors.New("replay: message already seen")

	// ErrUnavailable wraps backend failures. Callers should reject the
	// message rather than skip the check.
	ErrUnavailable = errors.New("replay: guard unavailable")
)

// Guard records message fingerprints.
type Guard interface {
	// Seen records fingerprint with the given ttl. It returns ErrReplayed if
	// the fingerprint is already recorded, or an error wrapping
	// ErrUnavailable if the backend failed.
	Seen(ctx context.Context, fingerprint string, ttl time.Duration) error
}

// Fingerprint derives a fixed-size identifier for a signed message. Raw
// signature bytes are never stored.
func Fingerprint(keyID string, signature []byte) string {
	h := sha256.New()
	h.Write([]byte(keyID))
	h.Write([]byte{0})
	h.Write(signature)
	return hex.EncodeToString(h.Sum(nil))
}
