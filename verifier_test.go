package hookverify_test

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/hookverify"
	"github.com/xraph/hookverify/header"
	"github.com/xraph/hookverify/keys"
	"github.com/xraph/hookverify/observability"
	"github.com/xraph/hookverify/replay"
	"github.com/xraph/hookverify/replay/memory"
	"github.com/xraph/hookverify/signature"
)

const (
	testKeyID = "key-1"
	testTS    = int64(1700000000)
	testBody  = `{"event":"call.started"}`
)

func ctx() context.Context { return context.Background() }

func testSigner(t *testing.T) (*signature.Signer, ed25519.PublicKey) {
	t.Helper()
	kp, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := signature.NewSigner(testKeyID, kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	return s, kp.Public
}

// countingResolver serves a fixed key set and counts lookups.
type countingResolver struct {
	set   keys.Set
	calls atomic.Int32
}

func (r *countingResolver) Resolve(_ context.Context, keyID string) ([]byte, error) {
	r.calls.Add(1)
	if k, ok := r.set[keyID]; ok {
		return k, nil
	}
	return nil, keys.ErrUnknownKey
}

func setup(t *testing.T, opts ...hookverify.Option) (*hookverify.Verifier, *signature.Signer, *countingResolver) {
	t.Helper()
	s, pub := testSigner(t)
	res := &countingResolver{set: keys.Set{testKeyID: pub}}
	v, err := hookverify.New(append([]hookverify.Option{hookverify.WithResolver(res)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return v, s, res
}

func at(unix int64) time.Time { return time.Unix(unix, 0) }

func TestVerifyHappyPath(t *testing.T) {
	v, s, _ := setup(t)
	hdr := s.Sign([]byte(testBody), testTS)

	out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(1700000005), 600*time.Second)
	if !out.Valid || out.Reason != hookverify.Valid {
		t.Fatalf("expected valid, got %s: %v", out.Reason, out.Err)
	}
	if out.Err != nil {
		t.Fatalf("Err should be nil on success, got %v", out.Err)
	}
	if out.KeyID != testKeyID || out.Timestamp != testTS {
		t.Fatalf("KeyID/Timestamp = %q/%d", out.KeyID, out.Timestamp)
	}
	if out.ID.IsNil() || out.ID.Prefix() != "vrf" {
		t.Fatalf("expected a vrf id, got %q", out.ID.String())
	}
}

func TestVerifyExpired(t *testing.T) {
	v, s, res := setup(t)
	hdr := s.Sign([]byte(testBody), testTS)

	out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(1700001000), 600*time.Second)
	if out.Valid || out.Reason != hookverify.Expired {
		t.Fatalf("expected expired, got %s", out.Reason)
	}
	if !errors.Is(out.Err, hookverify.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", out.Err)
	}
	if n := res.calls.Load(); n != 0 {
		t.Fatalf("expired message must not resolve keys, got %d calls", n)
	}
}

func TestVerifyWindowBoundary(t *testing.T) {
	v, s, _ := setup(t)
	hdr := s.Sign([]byte(testBody), testTS)

	if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS+600), 600*time.Second); !out.Valid {
		t.Fatalf("age equal to window should pass, got %s", out.Reason)
	}
	if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS+601), 600*time.Second); out.Reason != hookverify.Expired {
		t.Fatalf("age one past window should expire, got %s", out.Reason)
	}
}

func TestVerifyFutureTimestamp(t *testing.T) {
	// Without a skew limit a future timestamp passes.
	v, s, _ := setup(t)
	hdr := s.Sign([]byte(testBody), testTS+3600)
	if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0); !out.Valid {
		t.Fatalf("expected valid without skew limit, got %s", out.Reason)
	}

	v, s, _ = setup(t, hookverify.WithFutureSkew(30*time.Second))
	hdr = s.Sign([]byte(testBody), testTS+3600)
	if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0); out.Reason != hookverify.Expired {
		t.Fatalf("expected expired with skew limit, got %s", out.Reason)
	}
	hdr = s.Sign([]byte(testBody), testTS+10)
	if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0); !out.Valid {
		t.Fatalf("small skew should pass, got %s", out.Reason)
	}
}

func TestVerifyMalformedHeaderSkipsResolver(t *testing.T) {
	v, s, res := setup(t)
	full := s.Sign([]byte(testBody), testTS)
	parts := strings.Split(full, ",")

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", header.ErrMissingTimestamp},
		{"missing t", parts[1] + "," + parts[2], header.ErrMissingTimestamp},
		{"missing k", parts[0] + "," + parts[2], header.ErrMissingKeyID},
		{"missing s", parts[0] + "," + parts[1], header.ErrMissingSignature},
		{"non-numeric t", "t=abc," + parts[1] + "," + parts[2], header.ErrInvalidTimestamp},
		{"bad base64", parts[0] + "," + parts[1] + ",s=***", header.ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := v.VerifyAt(ctx(), []byte(testBody), tt.raw, at(testTS), 0)
			if out.Reason != hookverify.MalformedHeader {
				t.Fatalf("expected malformed_header, got %s", out.Reason)
			}
			if !errors.Is(out.Err, hookverify.ErrMalformedHeader) || !errors.Is(out.Err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, out.Err)
			}
		})
	}
	if n := res.calls.Load(); n != 0 {
		t.Fatalf("malformed header must not resolve keys, got %d calls", n)
	}
}

func TestVerifyUnknownKey(t *testing.T) {
	v, _, _ := setup(t)
	kp, _ := signature.GenerateKey()
	other, _ := signature.NewSigner("key-unknown", kp.Private)

	out := v.VerifyAt(ctx(), []byte(testBody), other.Sign([]byte(testBody), testTS), at(testTS), 0)
	if out.Reason != hookverify.UnknownKey {
		t.Fatalf("expected unknown_key, got %s", out.Reason)
	}
	if !errors.Is(out.Err, hookverify.ErrUnknownKey) || !errors.Is(out.Err, keys.ErrUnknownKey) {
		t.Fatalf("expected both unknown key sentinels, got %v", out.Err)
	}
	if out.KeyID != "key-unknown" {
		t.Fatalf("KeyID = %q", out.KeyID)
	}
}

func TestVerifyKeyFetchError(t *testing.T) {
	s, _ := testSigner(t)
	v, err := hookverify.New(hookverify.WithResolver(keys.ResolverFunc(
		func(context.Context, string) ([]byte, error) {
			return nil, errors.New("connection refused")
		})))
	if err != nil {
		t.Fatal(err)
	}

	out := v.VerifyAt(ctx(), []byte(testBody), s.Sign([]byte(testBody), testTS), at(testTS), 0)
	if out.Reason != hookverify.KeyFetchError {
		t.Fatalf("expected key_fetch_error, got %s", out.Reason)
	}
	if !errors.Is(out.Err, hookverify.ErrKeyFetch) {
		t.Fatalf("expected ErrKeyFetch, got %v", out.Err)
	}
}

func TestVerifyBitFlips(t *testing.T) {
	v, s, _ := setup(t)
	body := []byte(testBody)
	hdr := s.Sign(body, testTS)
	h, err := header.Parse(hdr)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("body", func(t *testing.T) {
		tampered := []byte(strings.Replace(testBody, "started", "ended", 1))
		out := v.VerifyAt(ctx(), tampered, hdr, at(testTS), 0)
		if out.Reason != hookverify.BadSignature {
			t.Fatalf("expected bad_signature, got %s", out.Reason)
		}
	})

	t.Run("timestamp", func(t *testing.T) {
		raw := header.Format("1700000001", h.KeyID, h.Signature)
		out := v.VerifyAt(ctx(), body, raw, at(testTS), 0)
		if out.Reason != hookverify.BadSignature {
			t.Fatalf("expected bad_signature, got %s", out.Reason)
		}
	})

	t.Run("signature", func(t *testing.T) {
		sig := append([]byte(nil), h.Signature...)
		sig[0] ^= 0x01
		out := v.VerifyAt(ctx(), body, header.Format(h.RawTimestamp, h.KeyID, sig), at(testTS), 0)
		if out.Reason != hookverify.BadSignature {
			t.Fatalf("expected bad_signature, got %s", out.Reason)
		}
		if !errors.Is(out.Err, hookverify.ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", out.Err)
		}
	})

	t.Run("short signature", func(t *testing.T) {
		out := v.VerifyAt(ctx(), body, header.Format(h.RawTimestamp, h.KeyID, h.Signature[:10]), at(testTS), 0)
		if out.Reason != hookverify.BadSignature {
			t.Fatalf("expected bad_signature, got %s", out.Reason)
		}
	})
}

func TestVerifyUsesTimestampAsSent(t *testing.T) {
	kp, _ := signature.GenerateKey()
	res := &countingResolver{set: keys.Set{testKeyID: kp.Public}}
	v, err := hookverify.New(hookverify.WithResolver(res))
	if err != nil {
		t.Fatal(err)
	}

	// A leading zero parses to the same integer but changes the signed bytes.
	sig := signature.Sign(kp.Private, "01700000000", []byte(testBody))
	raw := header.Format("01700000000", testKeyID, sig)

	if out := v.VerifyAt(ctx(), []byte(testBody), raw, at(testTS), 0); !out.Valid {
		t.Fatalf("expected valid, got %s: %v", out.Reason, out.Err)
	}

	raw = header.Format("1700000000", testKeyID, sig)
	if out := v.VerifyAt(ctx(), []byte(testBody), raw, at(testTS), 0); out.Reason != hookverify.BadSignature {
		t.Fatalf("normalized timestamp must not verify, got %s", out.Reason)
	}
}

func TestVerifyIdempotent(t *testing.T) {
	v, s, _ := setup(t)
	hdr := s.Sign([]byte(testBody), testTS)
	for i := 0; i < 3; i++ {
		if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0); !out.Valid {
			t.Fatalf("call %d: %s", i, out.Reason)
		}
	}
}

func TestVerifyUsesClock(t *testing.T) {
	v, s, _ := setup(t,
		hookverify.WithClock(func() time.Time { return at(testTS + 5) }),
		hookverify.WithFreshnessWindow(10*time.Second),
	)
	if out := v.Verify(ctx(), []byte(testBody), s.Sign([]byte(testBody), testTS)); !out.Valid {
		t.Fatalf("expected valid, got %s", out.Reason)
	}
	if out := v.Verify(ctx(), []byte(testBody), s.Sign([]byte(testBody), testTS-60)); out.Reason != hookverify.Expired {
		t.Fatalf("expected expired, got %s", out.Reason)
	}
}

func TestVerifyReplay(t *testing.T) {
	v, s, _ := setup(t, hookverify.WithReplayGuard(memory.New(0)))
	hdr := s.Sign([]byte(testBody), testTS)

	if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0); !out.Valid {
		t.Fatalf("first delivery: %s", out.Reason)
	}
	out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0)
	if out.Reason != hookverify.Replayed {
		t.Fatalf("second delivery: expected replayed, got %s", out.Reason)
	}
	if !errors.Is(out.Err, hookverify.ErrReplayed) {
		t.Fatalf("expected ErrReplayed, got %v", out.Err)
	}

	// A forged duplicate fails the signature before touching the guard.
	tampered := []byte(`{"event":"call.ended"}`)
	if out := v.VerifyAt(ctx(), tampered, hdr, at(testTS), 0); out.Reason != hookverify.BadSignature {
		t.Fatalf("expected bad_signature, got %s", out.Reason)
	}
}

type failingGuard struct{}

func (failingGuard) Seen(context.Context, string, time.Duration) error {
	return errors.New("backend down")
}

func TestVerifyReplayGuardFailsClosed(t *testing.T) {
	v, s, _ := setup(t, hookverify.WithReplayGuard(failingGuard{}))

	out := v.VerifyAt(ctx(), []byte(testBody), s.Sign([]byte(testBody), testTS), at(testTS), 0)
	if out.Valid || out.Reason != hookverify.ReplayUnavailable {
		t.Fatalf("expected replay_unavailable, got %s", out.Reason)
	}
	if !errors.Is(out.Err, replay.ErrUnavailable) {
		t.Fatalf("expected replay.ErrUnavailable, got %v", out.Err)
	}
}

func TestVerifyRecordsMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	v, s, _ := setup(t, hookverify.WithMetrics(m), hookverify.WithTracer(observability.NewTracer()))

	v.VerifyAt(ctx(), []byte(testBody), s.Sign([]byte(testBody), testTS), at(testTS), 0)
	v.VerifyAt(ctx(), []byte(testBody), "garbage", at(testTS), 0)

	if got := testutil.ToFloat64(m.Verifications.WithLabelValues("valid")); got != 1 {
		t.Errorf("valid = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Verifications.WithLabelValues("malformed_header")); got != 1 {
		t.Errorf("malformed_header = %v, want 1", got)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := hookverify.New(hookverify.WithKeysURL("")); !errors.Is(err, hookverify.ErrNoResolver) {
		t.Fatalf("expected ErrNoResolver, got %v", err)
	}

	res := &countingResolver{}
	tests := []struct {
		name string
		opt  hookverify.Option
	}{
		{"zero window", hookverify.WithFreshnessWindow(0)},
		{"negative skew", hookverify.WithFutureSkew(-time.Second)},
		{"zero fetch timeout", hookverify.WithFetchTimeout(0)},
		{"negative refresh limit", hookverify.WithRefreshLimit(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hookverify.New(hookverify.WithResolver(res), tt.opt)
			if !errors.Is(err, hookverify.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewDefaultsToProductionKeys(t *testing.T) {
	v, err := hookverify.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := v.Config().KeysURL; got != keys.DefaultURL {
		t.Fatalf("KeysURL = %q, want %q", got, keys.DefaultURL)
	}
	if v.Cache() == nil {
		t.Fatal("expected a key cache over the default URL")
	}
	if got := hookverify.DefaultConfig().KeysURL; got != keys.DefaultURL {
		t.Fatalf("DefaultConfig().KeysURL = %q, want %q", got, keys.DefaultURL)
	}
}

func TestNewWithConfig(t *testing.T) {
	cfg := hookverify.DefaultConfig()
	cfg.FreshnessWindow = time.Minute
	cfg.KeysURL = "https://keys.example.com"

	v, err := hookverify.New(hookverify.WithConfig(cfg))
	if err != nil {
		t.Fatal(err)
	}
	if v.Config().FreshnessWindow != time.Minute {
		t.Fatalf("FreshnessWindow = %s", v.Config().FreshnessWindow)
	}
	if v.Cache() == nil {
		t.Fatal("expected built-in cache for KeysURL")
	}
}

func TestVerifyWithKeysURL(t *testing.T) {
	s, pub := testSigner(t)
	bundle, _ := json.Marshal(map[string]string{testKeyID: base64.StdEncoding.EncodeToString(pub)})

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(bundle)
	}))
	defer srv.Close()

	v, err := hookverify.New(
		hookverify.WithKeysURL(srv.URL),
		hookverify.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}

	hdr := s.Sign([]byte(testBody), testTS)
	for i := 0; i < 3; i++ {
		if out := v.VerifyAt(ctx(), []byte(testBody), hdr, at(testTS), 0); !out.Valid {
			t.Fatalf("call %d: %s: %v", i, out.Reason, out.Err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("key endpoint hits = %d, want 1", n)
	}

	if err := v.Refresh(ctx()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("key endpoint hits = %d, want 2", n)
	}
	if got := v.Cache().Keys(); len(got) != 1 || got[0] != testKeyID {
		t.Fatalf("Keys = %v", got)
	}
}

func TestVerifyKeysURLDown(t *testing.T) {
	s, _ := testSigner(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v, err := hookverify.New(hookverify.WithKeysURL(srv.URL), hookverify.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	out := v.VerifyAt(ctx(), []byte(testBody), s.Sign([]byte(testBody), testTS), at(testTS), 0)
	if out.Reason != hookverify.KeyFetchError {
		t.Fatalf("expected key_fetch_error, got %s", out.Reason)
	}
	if !errors.Is(out.Err, keys.ErrFetch) {
		t.Fatalf("expected keys.ErrFetch in chain, got %v", out.Err)
	}
}

func TestReasonText(t *testing.T) {
	for _, r := range []hookverify.Reason{
		hookverify.Valid, hookverify.MalformedHeader, hookverify.Expired,
		hookverify.UnknownKey, hookverify.BadSignature, hookverify.KeyFetchError,
		hookverify.Replayed, hookverify.ReplayUnavailable,
	} {
		text, err := r.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back hookverify.Reason
		if err := back.UnmarshalText(text); err != nil || back != r {
			t.Fatalf("%s: round trip gave %v, %v", r, back, err)
		}
	}
	if got := hookverify.KeyFetchError.String(); got != "key_fetch_error" {
		t.Fatalf("String = %q", got)
	}
	if got := hookverify.Reason(99).String(); got != "reason(99)" {
		t.Fatalf("String = %q", got)
	}
}
