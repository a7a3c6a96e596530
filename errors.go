package hookverify

import "errors"

// Sentinel errors carried in Outcome.Err. Each wraps the lower-level cause,
// so errors.Is works against both this package and header, keys or replay.
var (
	// ErrMalformedHeader is returned when the signature header cannot be parsed.
	ErrMalformedHeader = errors.New("hookverify: malformed signature header")

	// ErrExpired is returned when the timestamp is outside the freshness window.
	ErrExpired = errors.New("hookverify: message expired")

	// ErrUnknownKey is returned when the key id is absent after a refresh.
	ErrUnknownKey = errors.New("hookverify: unknown key id")

	// ErrKeyFetch is returned when the key set could not be obtained.
	ErrKeyFetch = errors.New("hookverify: key fetch failed")

	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("hookverify: bad signature")

	// ErrReplayed is returned when a valid message was already accepted.
	ErrReplayed = errors.New("hookverify: message replayed")

	// ErrReplayUnavailable is returned when the replay guard failed.
	ErrReplayUnavailable = errors.New("hookverify: replay guard unavailable")

	// ErrNoResolver is returned when a Verifier has no resolver and KeysURL
	// was set to empty.
	ErrNoResolver = errors.New("hookverify: resolver or keys URL is required")

	// ErrInvalidConfig is returned by New for out-of-range settings.
	ErrInvalidConfig = errors.New("hookverify: invalid config")
)
