package redis

// DefaultPrefix namespaces fingerprint keys.
const DefaultPrefix = "hookverify:replay:"

// fingerprintKey returns the key recording one fingerprint.
func fingerprintKey(prefix, fingerprint string) string {
	return prefix + fingerprint
}
