package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const bundleSchemaURL = "hookverify://schema/key-bundle.json"

// bundleSchema describes the key-distribution document: a flat object of
// key id to base64 string.
const bundleSchema = `{
	"type": "object",
	"additionalProperties": {"type": "string", "minLength": 1}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func bundleValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(bundleSchema))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(bundleSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(bundleSchemaURL)
	})
	return compiledSchema, schemaErr
}

// DecodeBundle validates a key-distribution document and decodes every key
// from base64. Entries that do not decode to a 32-byte Ed25519 public key are
// skipped and logged. A document with no usable keys is an error.
func DecodeBundle(raw []byte, logger *slog.Logger) (Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	schema, err := bundleValidator()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid json: %w", ErrFetch, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: unexpected document shape: %w", ErrFetch, err)
	}

	entries, _ := doc.(map[string]any)
	set := make(Set, len(entries))
	for kid, v := range entries {
		encoded, _ := v.(string)
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			logger.Warn("skipping key with invalid base64", "key_id", kid)
			continue
		}
		if len(key) != ed25519.PublicKeySize {
			logger.Warn("skipping key with unexpected length", "key_id", kid, "length", len(key))
			continue
		}
		set[kid] = key
	}

	if len(set) == 0 {
		return nil, fmt.Errorf("%w: bundle contains no usable keys", ErrFetch)
	}
	return set, nil
}
