// Package signature provides Ed25519 webhook signing and verification.
//
// The signed content is "{timestamp}.{body}" where timestamp is the decimal
// text carried in the header's t component. Signer and verifier must agree on
// this framing byte for byte.
package signature

import (
	"crypto/ed25519"
	"fmt"
	"strconv"

	"github.com/xraph/hookverify/header"
)

// Payload returns the bytes covered by a webhook signature.
func Payload(timestamp string, body []byte) []byte {
	out := make([]byte, 0, len(timestamp)+1+len(body))
	out = append(out, timestamp...)
	out = append(out, '.')
	return append(out, body...)
}

// Signer produces signature headers for webhook bodies.
type Signer struct {
	keyID string
	key   ed25519.PrivateKey
}

// NewSigner returns a Signer for the given key id and private key.
func NewSigner(keyID string, key ed25519.PrivateKey) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("signature: key id is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signature: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return &Signer{keyID: keyID, key: key}, nil
}

// KeyID returns the key id written into the k component.
func (s *Signer) KeyID() string { return s.keyID }

// Sign returns a complete header value ("t=...,k=...,s=...") for body
// signed at the given unix timestamp.
func (s *Signer) Sign(body []byte, timestamp int64) string {
	ts := strconv.FormatInt(timestamp, 10)
	return header.Format(ts, s.keyID, Sign(s.key, ts, body))
}

// Sign returns the raw Ed25519 signature over Payload(timestamp, body).
func Sign(key ed25519.PrivateKey, timestamp string, body []byte) []byte {
	return ed25519.Sign(key, Payload(timestamp, body))
}
