package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/xraph/hookverify/id"
)

// KeyPair is a generated Ed25519 signing key with its key id.
type KeyPair struct {
	ID      string
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKey creates a new random key pair identified by a "whk" TypeID.
func GenerateKey() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("signature: generate key: %w", err)
	}
	return KeyPair{ID: id.NewKeyID().String(), Public: pub, Private: priv}, nil
}

// Bundle returns the key in key-distribution form: key id -> base64 public key.
func (k KeyPair) Bundle() map[string]string {
	return map[string]string{k.ID: base64.StdEncoding.EncodeToString(k.Public)}
}

// EncodedPrivate returns the base64 encoding of the 32-byte seed.
func (k KeyPair) EncodedPrivate() string {
	return base64.StdEncoding.EncodeToString(k.Private.Seed())
}

// ParsePrivateKey decodes a base64 private key. Both the 32-byte seed and the
// 64-byte expanded form are accepted.
func ParsePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("signature: decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("signature: private key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}
