package hookverify

import (
	"fmt"

	"github.com/xraph/hookverify/id"
)

// Reason classifies a verification result.
type Reason int

const (
	Valid Reason = iota
	MalformedHeader
	Expired
	UnknownKey
	BadSignature
	KeyFetchError
	Replayed
	ReplayUnavailable
)

var reasonNames = [...]string{
	Valid:             "valid",
	MalformedHeader:   "malformed_header",
	Expired:           "expired",
	UnknownKey:        "unknown_key",
	BadSignature:      "bad_signature",
	KeyFetchError:     "key_fetch_error",
	Replayed:          "replayed",
	ReplayUnavailable: "replay_unavailable",
}

// String returns the snake_case name of r.
func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("reason(%d)", int(r))
	}
	return reasonNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reason) UnmarshalText(data []byte) error {
	for i, name := range reasonNames {
		if name == string(data) {
			*r = Reason(i)
			return nil
		}
	}
	return fmt.Errorf("hookverify: unknown reason %q", data)
}

// Outcome is the result of one verification.
type Outcome struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason"`

	// Err carries the wrapped cause for diagnostics. Nil when Valid.
	Err error `json:"-"`

	// KeyID and Timestamp are set once the header parsed.
	KeyID     string `json:"key_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// ID correlates this attempt across logs and spans.
	ID id.ID `json:"id"`
}

func reject(reason Reason, err error) Outcome {
	return Outcome{Reason: reason, Err: err}
}
