package keys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
)

// DefaultURL is the production key-distribution endpoint.
const DefaultURL = "https://comms.api.dolby.io/v1/public/keys/webhooks"

const maxBundleSize = 1 << 20 // 1 MiB

// HTTPFetcher fetches the key set with an HTTP GET.
type HTTPFetcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPFetcher creates a fetcher for url. A nil client uses
// http.DefaultClient; the cache applies the fetch timeout through the
// request context.
func NewHTTPFetcher(url string, client *http.Client, logger *slog.Logger) *HTTPFetcher {
	if url == "" {
		url = DefaultURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{url: url, client: client, logger: logger}
}

// URL returns the endpoint this fetcher reads from.
func (f *HTTPFetcher) URL() string { return f.url }

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context) (Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "hookverify/1.0")

	resp, err := f.client.Do(req) //nolint:gosec // URL is operator-configured.
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrFetch, err)
	}
	if len(body) > maxBundleSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrFetch, maxBundleSize)
	}

	return DecodeBundle(body, f.logger)
}

// FileFetcher reads the key set from a JSON file in key-distribution format.
type FileFetcher struct {
	path   string
	logger *slog.Logger
}

// NewFileFetcher creates a fetcher that reads path on every refresh.
func NewFileFetcher(path string, logger *slog.Logger) *FileFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileFetcher{path: path, logger: logger}
}

// Fetch implements Fetcher.
func (f *FileFetcher) Fetch(_ context.Context) (Set, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return DecodeBundle(raw, f.logger)
}
