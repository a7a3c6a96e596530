// Package header parses webhook signature headers of the form
// "t=<unix seconds>,k=<key id>,s=<base64 signature>".
//
// Components may appear in any order and unknown components are ignored, so
// senders can add new fields without breaking older receivers.
package header

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Component names recognized in a signature header.
const (
	TimestampKey = "t"
	KeyIDKey     = "k"
	SignatureKey = "s"
)

// ErrMalformed is wrapped by every error returned from Parse.
var ErrMalformed = errors.New("header: malformed signature header")

// Field-specific parse errors. Each wraps ErrMalformed.
var (
	ErrMissingTimestamp = fmt.Errorf("%w: missing timestamp", ErrMalformed)
	ErrMissingKeyID     = fmt.Errorf("%w: missing key id", ErrMalformed)
	ErrMissingSignature = fmt.Errorf("%w: missing signature", ErrMalformed)
	ErrInvalidTimestamp = fmt.Errorf("%w: timestamp is not an integer", ErrMalformed)
	ErrInvalidSignature = fmt.Errorf("%w: signature is not valid base64", ErrMalformed)
	ErrDuplicateField   = fmt.Errorf("%w: duplicate component", ErrMalformed)
)

// Header is the parsed form of a signature header.
type Header struct {
	// Timestamp is the signing time in unix seconds.
	Timestamp int64

	// RawTimestamp is the timestamp exactly as it appeared on the wire.
	// The signed payload is built from this text, not from Timestamp.
	RawTimestamp string

	// KeyID selects the public key that verifies Signature.
	KeyID string

	// Signature is the base64-decoded signature.
	Signature []byte
}

// Parse splits raw into its components and validates that the timestamp,
// key id and signature are all present.
func Parse(raw string) (Header, error) {
	var ts, kid, sig string
	seen := make(map[string]bool, 3)

	for _, component := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(component), "=")
		if !ok {
			continue
		}
		switch name {
		case TimestampKey, KeyIDKey, SignatureKey:
		default:
			continue
		}
		if seen[name] {
			return Header{}, fmt.Errorf("%w: %q", ErrDuplicateField, name)
		}
		seen[name] = true

		switch name {
		case TimestampKey:
			ts = value
		case KeyIDKey:
			kid = value
		case SignatureKey:
			sig = value
		}
	}

	if ts == "" {
		return Header{}, ErrMissingTimestamp
	}
	if kid == "" {
		return Header{}, ErrMissingKeyID
	}
	if sig == "" {
		return Header{}, ErrMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
	}

	decoded, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return Header{}, ErrInvalidSignature
	}

	return Header{
		Timestamp:    unix,
		RawTimestamp: ts,
		KeyID:        kid,
		Signature:    decoded,
	}, nil
}

// String renders the header back into wire form.
func (h Header) String() string {
	ts := h.RawTimestamp
	if ts == "" {
		ts = strconv.FormatInt(h.Timestamp, 10)
	}
	return Format(ts, h.KeyID, h.Signature)
}

// Format builds a header string from its parts.
func Format(timestamp, keyID string, sig []byte) string {
	return TimestampKey + "=" + timestamp + "," +
		KeyIDKey + "=" + keyID + "," +
		SignatureKey + "=" + base64.StdEncoding.EncodeToString(sig)
}
