// Package hookverify verifies Ed25519-signed webhooks.
//
// A sender signs "<unix timestamp>.<raw body>" with an Ed25519 key and sends
// the result in a header of the form
//
//	t=1700000000,k=key-2024-01,s=<base64 signature>
//
// The Verifier parses that header, rejects stale messages, resolves the key
// id to a public key, and checks the signature. Public keys are fetched from
// a key-distribution endpoint and cached; an unknown key id triggers one
// refresh, so rotated keys are picked up without a restart.
//
// Every call returns an Outcome. Rejections are values, not errors:
//
//	v, err := hookverify.New(
//	    hookverify.WithKeysURL(keys.DefaultURL),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out := v.Verify(ctx, body, r.Header.Get("Dolby-Signature"))
//	if !out.Valid {
//	    http.Error(w, out.Reason.String(), http.StatusUnauthorized)
//	    return
//	}
//
// Optional layers: replay suppression (replay/memory, replay/redis),
// Prometheus metrics and OpenTelemetry spans (observability), and a
// net/http middleware (httpverify).
package hookverify
