// Package httpverify adapts a hookverify.Verifier to net/http.
//
// The middleware reads the raw body, verifies it against the signature
// header, and either rejects the request or passes it on with the body
// restored and the Outcome stored in the request context.
package httpverify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/hookverify"
)

// DefaultHeader is the request header carrying the signature.
const DefaultHeader = "Dolby-Signature"

// DefaultMaxBodySize caps the body read for verification.
const DefaultMaxBodySize int64 = 1 << 20 // 1 MiB

// Verifier is the subset of *hookverify.Verifier the middleware needs.
type Verifier interface {
	Verify(ctx context.Context, body []byte, header string) hookverify.Outcome
}

// RejectFunc writes the response for a rejected request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, out hookverify.Outcome)

type ctxKey struct{}

// FromContext returns the Outcome stored by the middleware.
func FromContext(ctx context.Context) (hookverify.Outcome, bool) {
	out, ok := ctx.Value(ctxKey{}).(hookverify.Outcome)
	return out, ok
}

// Middleware verifies webhook requests before they reach the next handler.
type Middleware struct {
	verifier    Verifier
	header      string
	maxBodySize int64
	reject      RejectFunc
	logger      *slog.Logger
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithHeader sets the signature header name.
func WithHeader(name string) Option {
	return func(m *Middleware) {
		if name != "" {
			m.header = name
		}
	}
}

// WithMaxBodySize caps the body size. Larger requests get 413.
func WithMaxBodySize(n int64) Option {
	return func(m *Middleware) {
		if n > 0 {
			m.maxBodySize = n
		}
	}
}

// WithRejectFunc replaces the default 401 JSON response.
func WithRejectFunc(fn RejectFunc) Option {
	return func(m *Middleware) {
		if fn != nil {
			m.reject = fn
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Middleware around v.
func New(v Verifier, opts ...Option) *Middleware {
	m := &Middleware{
		verifier:    v,
		header:      DefaultHeader,
		maxBodySize: DefaultMaxBodySize,
		reject:      Unauthorized,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps next.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxBodySize))
		_ = r.Body.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "could not read request body")
			return
		}

		out := m.verifier.Verify(r.Context(), body, r.Header.Get(m.header))
		if !out.Valid {
			m.logger.Info("webhook rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"reason", out.Reason.String(),
				"key_id", out.KeyID,
				"verification_id", out.ID.String(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			m.reject(w, r, out)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, out)))
	})
}

// Unauthorized is the default RejectFunc: 401 with the reason as JSON.
func Unauthorized(w http.ResponseWriter, _ *http.Request, out hookverify.Outcome) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":           out.Reason.String(),
		"verification_id": out.ID.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
