// Package config loads hookverify CLI settings.
//
// Sources are applied in order, each overriding the previous: built-in
// defaults, a YAML file, HOOKVERIFY_* environment variables (optionally
// seeded from a .env file), and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/xraph/hookverify"
	"github.com/xraph/hookverify/httpverify"
	"github.com/xraph/hookverify/keys"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOOKVERIFY_"

// Replay backends.
const (
	ReplayNone   = "none"
	ReplayMemory = "memory"
	ReplayRedis  = "redis"
)

// Config is the CLI configuration.
type Config struct {
	KeysURL         string        `yaml:"keys_url"`
	KeysFile        string        `yaml:"keys_file"`
	FreshnessWindow time.Duration `yaml:"freshness_window"`
	FutureSkew      time.Duration `yaml:"future_skew"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	RefreshLimit    float64       `yaml:"refresh_limit"`
	HeaderName      string        `yaml:"header_name"`
	ListenAddr      string        `yaml:"listen_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`

	Replay struct {
		Backend   string `yaml:"backend"`
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"replay"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in defaults.
func Default() Config {
	var c Config
	c.KeysURL = keys.DefaultURL
	c.FreshnessWindow = hookverify.DefaultFreshnessWindow
	c.FetchTimeout = keys.DefaultFetchTimeout
	c.HeaderName = httpverify.DefaultHeader
	c.ListenAddr = ":8080"
	c.Replay.Backend = ReplayNone
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// empty) and the environment. envFile, when non-empty, is loaded into the
// environment first; a missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if err := c.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ---- env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return strings.TrimSpace(v), v != ""
}

func getEnvDur(key string) (time.Duration, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
	}
	return d, true, nil
}

func getEnvFloat(key string) (float64, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
	}
	return f, true, nil
}

func (c *Config) applyEnvOverrides() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"KEYS_URL", &c.KeysURL},
		{"KEYS_FILE", &c.KeysFile},
		{"HEADER_NAME", &c.HeaderName},
		{"LISTEN_ADDR", &c.ListenAddr},
		{"METRICS_ADDR", &c.MetricsAddr},
		{"REPLAY_BACKEND", &c.Replay.Backend},
		{"REPLAY_REDIS_ADDR", &c.Replay.RedisAddr},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
	}
	for _, s := range strs {
		if v, ok := getEnvStr(s.key); ok {
			*s.dst = v
		}
	}

	durs := []struct {
		key string
		dst *time.Duration
	}{
		{"FRESHNESS_WINDOW", &c.FreshnessWindow},
		{"FUTURE_SKEW", &c.FutureSkew},
		{"FETCH_TIMEOUT", &c.FetchTimeout},
	}
	for _, d := range durs {
		v, ok, err := getEnvDur(d.key)
		if err != nil {
			return err
		}
		if ok {
			*d.dst = v
		}
	}

	v, ok, err := getEnvFloat("REFRESH_LIMIT")
	if err != nil {
		return err
	}
	if ok {
		c.RefreshLimit = v
	}
	return nil
}

// ---- flags ----

// RegisterFlags adds one flag per setting to fs. Flag defaults are only
// shown in help; ApplyFlags copies a value only when the flag was set.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("keys-url", d.KeysURL, "key-distribution endpoint")
	fs.String("keys-file", "", "read keys from a JSON bundle file instead of keys-url")
	fs.Duration("freshness-window", d.FreshnessWindow, "maximum accepted message age")
	fs.Duration("future-skew", 0, "maximum timestamp lead over the clock (0 disables)")
	fs.Duration("fetch-timeout", d.FetchTimeout, "timeout for one key fetch")
	fs.Float64("refresh-limit", 0, "key refreshes per second triggered by unknown key ids (0 = unlimited)")
	fs.String("header-name", d.HeaderName, "signature header name")
	fs.String("listen-addr", d.ListenAddr, "serve: listen address")
	fs.String("metrics-addr", "", "serve: separate address for /metrics (empty = same listener)")
	fs.String("replay-backend", d.Replay.Backend, "replay guard: none|memory|redis")
	fs.String("replay-redis-addr", "", "replay guard: redis address")
	fs.String("log-level", d.Log.Level, "debug|info|warn|error")
	fs.String("log-format", d.Log.Format, "text|json")
}

// ApplyFlags overrides c with every flag explicitly set in fs.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"keys-url":          &c.KeysURL,
		"keys-file":         &c.KeysFile,
		"header-name":       &c.HeaderName,
		"listen-addr":       &c.ListenAddr,
		"metrics-addr":      &c.MetricsAddr,
		"replay-backend":    &c.Replay.Backend,
		"replay-redis-addr": &c.Replay.RedisAddr,
		"log-level":         &c.Log.Level,
		"log-format":        &c.Log.Format,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	durs := map[string]*time.Duration{
		"freshness-window": &c.FreshnessWindow,
		"future-skew":      &c.FutureSkew,
		"fetch-timeout":    &c.FetchTimeout,
	}
	for name, dst := range durs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Changed("refresh-limit") {
		v, err := fs.GetFloat64("refresh-limit")
		if err != nil {
			return err
		}
		c.RefreshLimit = v
	}
	return nil
}

// ---- validation ----

// Validate checks settings the library does not check itself.
func (c Config) Validate() error {
	if c.KeysURL == "" && c.KeysFile == "" {
		return errors.New("config: keys_url or keys_file is required")
	}
	switch c.Replay.Backend {
	case ReplayNone, ReplayMemory:
	case ReplayRedis:
		if c.Replay.RedisAddr == "" {
			return errors.New("config: replay.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown replay backend %q", c.Replay.Backend)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// VerifierConfig returns the library configuration for c.
func (c Config) VerifierConfig() hookverify.Config {
	vc := hookverify.DefaultConfig()
	vc.KeysURL = c.KeysURL
	vc.FreshnessWindow = c.FreshnessWindow
	vc.FutureSkew = c.FutureSkew
	vc.FetchTimeout = c.FetchTimeout
	vc.RefreshLimit = c.RefreshLimit
	return vc
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return l, nil
}
