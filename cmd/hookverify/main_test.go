package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/hookverify"
	"github.com/xraph/hookverify/internal/config"
	"github.com/xraph/hookverify/keys"
	"github.com/xraph/hookverify/observability"
)

const testBody = `{"event":"call.started"}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&errOut)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func keygen(t *testing.T) (keygenOutput, string) {
	t.Helper()
	bundle := filepath.Join(t.TempDir(), "keys.json")
	out, err := run(t, "", "keygen", "--bundle-out", bundle)
	require.NoError(t, err)

	var kg keygenOutput
	require.NoError(t, json.Unmarshal([]byte(out), &kg))
	require.True(t, strings.HasPrefix(kg.KeyID, "whk_"), "key id %q", kg.KeyID)
	require.Len(t, kg.Bundle, 1)
	return kg, bundle
}

func TestSignAndVerify(t *testing.T) {
	kg, bundle := keygen(t)

	hdr, err := run(t, testBody, "sign", "--key-id", kg.KeyID, "--private-key", kg.PrivateKey, "--timestamp", "1700000000")
	require.NoError(t, err)
	hdr = strings.TrimSpace(hdr)
	assert.True(t, strings.HasPrefix(hdr, "t=1700000000,k="+kg.KeyID+",s="), "header %q", hdr)

	out, err := run(t, testBody, "verify", "--keys-file", bundle, "--header", hdr, "--now", "1700000005")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "valid "), "output %q", out)

	out, err = run(t, testBody, "verify", "--keys-file", bundle, "--header", hdr, "--now", "1700001000", "-o", "json")
	require.Error(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "expired", res["reason"])
	assert.Equal(t, false, res["valid"])
}

func TestVerifyTamperedBody(t *testing.T) {
	kg, bundle := keygen(t)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	hdr, err := run(t, testBody, "sign", "--key-id", kg.KeyID, "--private-key", kg.PrivateKey, "--timestamp", ts)
	require.NoError(t, err)

	_, err = run(t, `{"event":"call.ended"}`, "verify", "--keys-file", bundle, "--header", strings.TrimSpace(hdr))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_signature")
}

func TestSignRequiresKey(t *testing.T) {
	_, err := run(t, testBody, "sign", "--key-id", "k1")
	assert.Error(t, err)
}

func TestSignWithKeyFile(t *testing.T) {
	kg, _ := keygen(t)
	keyFile := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(keyFile, []byte(kg.PrivateKey+"\n"), 0o600))

	body := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(body, []byte(testBody), 0o600))

	hdr, err := run(t, "", "sign", "--key-id", kg.KeyID, "--private-key-file", keyFile, "--body-file", body)
	require.NoError(t, err)
	assert.Contains(t, hdr, "k="+kg.KeyID)
}

func TestInvalidConfigRejected(t *testing.T) {
	_, err := run(t, "", "keygen", "--replay-backend", "etcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay backend")
}

func TestServeMux(t *testing.T) {
	kg, bundle := keygen(t)

	cfg := config.Default()
	cfg.KeysFile = bundle
	cfg.Replay.Backend = config.ReplayMemory

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	v, cleanup, err := buildVerifier(t.Context(), cfg, testLogger(), metrics)
	require.NoError(t, err)
	defer cleanup()

	srv := httptest.NewServer(newMux(cfg, testLogger(), v, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	defer srv.Close()

	hdr, err := run(t, testBody, "sign", "--key-id", kg.KeyID, "--private-key", kg.PrivateKey)
	require.NoError(t, err)

	post := func() int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhook", strings.NewReader(testBody))
		req.Header.Set(cfg.HeaderName, strings.TrimSpace(hdr))
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, post())
	assert.Equal(t, http.StatusUnauthorized, post(), "replayed delivery")

	resp, err := srv.Client().Get(srv.URL + "/keys")
	require.NoError(t, err)
	var ks struct{ Keys []string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ks))
	resp.Body.Close()
	assert.Equal(t, []string{kg.KeyID}, ks.Keys)

	resp, err = srv.Client().Post(srv.URL+"/keys/refresh", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Contains(t, buf.String(), `hookverify_verifications_total{reason="replayed"} 1`)

	resp, err = srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildVerifierUsesKeysURL(t *testing.T) {
	cfg := config.Default()
	cfg.KeysURL = "https://keys.example.com"

	v, cleanup, err := buildVerifier(t.Context(), cfg, testLogger(), nil)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, v.Cache())
	assert.Equal(t, "https://keys.example.com", v.Config().KeysURL)
	assert.Equal(t, hookverify.DefaultFreshnessWindow, v.Config().FreshnessWindow)
	assert.Equal(t, keys.DefaultFetchTimeout, v.Config().FetchTimeout)
}
