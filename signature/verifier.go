package signature

import "crypto/ed25519"

// Verify reports whether sig is a valid Ed25519 signature of payload under
// publicKey. Keys or signatures of the wrong length are reported as invalid.
func Verify(publicKey, payload, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), payload, sig)
}
