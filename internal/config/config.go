// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authsvc configuration. Sources are layered with
// later ones winning: built-in defaults, a YAML file, AUTHSVC_* environment
// variables, then command-line flags.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/logging"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates levels: AUTHSVC_AUTH__SIGNING_SECRET sets auth.signing_secret.
const EnvPrefix = "AUTHSVC_"

const redacted = "[REDACTED]"

// Config is the full service configuration.
type Config struct {
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
}

// AuthConfig configures token signing and password hashing.
type AuthConfig struct {
	SigningSecret string        `koanf:"signing_secret" yaml:"signing_secret"`
	TokenTTL      time.Duration `koanf:"token_ttl" yaml:"token_ttl"`
	StoreTimeout  time.Duration `koanf:"store_timeout" yaml:"store_timeout"`
	Argon2        Argon2Config  `koanf:"argon2" yaml:"argon2"`
}

// Argon2Config holds the tunable argon2id cost parameters.
type Argon2Config struct {
	MemoryKiB   uint32 `koanf:"memory_kib" yaml:"memory_kib"`
	Iterations  uint32 `koanf:"iterations" yaml:"iterations"`
	Parallelism uint8  `koanf:"parallelism" yaml:"parallelism"`
}

// Params returns hasher parameters with the configured costs and the
// default salt and key lengths.
func (c Argon2Config) Params() auth.Argon2Params {
	p := auth.DefaultArgon2Params()
	p.Memory = c.MemoryKiB
	p.Iterations = c.Iterations
	p.Parallelism = c.Parallelism
	return p
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string `koanf:"url" yaml:"url"`
	MaxConns        int32  `koanf:"max_conns" yaml:"max_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts" yaml:"connect_attempts"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// Defaults returns the built-in configuration layer. It has no signing
// secret.
func Defaults() map[string]any {
	p := auth.DefaultArgon2Params()
	return map[string]any{
		"auth.token_ttl":            auth.DefaultTokenTTL.String(),
		"auth.store_timeout":        auth.DefaultStoreTimeout.String(),
		"auth.argon2.memory_kib":    p.Memory,
		"auth.argon2.iterations":    p.Iterations,
		"auth.argon2.parallelism":   p.Parallelism,
		"http.addr":                 ":8080",
		"http.read_header_timeout":  "10s",
		"http.shutdown_timeout":     "15s",
		"metrics.addr":              "127.0.0.1:9100",
		"database.max_conns":        10,
		"database.connect_attempts": 5,
		"log.format":                logging.FormatJSON,
		"log.level":                 "info",
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"signing-secret": "auth.signing_secret",
	"token-ttl":      "auth.token_ttl",
	"http-addr":      "http.addr",
	"metrics-addr":   "metrics.addr",
	"database-url":   "database.url",
	"log-format":     "log.format",
	"log-level":      "log.level",
}

// RegisterFlags adds the configuration flags to fs. Flags only override
// lower layers when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("signing-secret", "", "token signing secret (prefer "+EnvPrefix+"AUTH__SIGNING_SECRET)")
	fs.Duration("token-ttl", 0, "session token lifetime")
	fs.String("http-addr", "", "API listen address")
	fs.String("metrics-addr", "", "metrics/health HTTP address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
}

// Load builds a Config from the layered sources. path may be empty to skip
// the file layer; fs may be nil to skip the flag layer. Load does not
// validate.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns AUTHSVC_DATABASE__MAX_CONNS into database.max_conns.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks everything serve needs. It fails closed: a missing or
// short signing secret is an error, never a fallback.
func (c *Config) Validate() error {
	if err := c.ValidateAuth(); err != nil {
		return err
	}
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "http.addr").Errorf("http.addr is required")
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "http.read_header_timeout").
			Errorf("http.read_header_timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "http.shutdown_timeout").
			Errorf("http.shutdown_timeout must be positive")
	}
	return c.ValidateLog()
}

// ValidateAuth checks the signing secret, token lifetime and hashing costs.
func (c *Config) ValidateAuth() error {
	switch n := len(c.Auth.SigningSecret); {
	case n == 0:
		return oops.Code("CONFIG_SIGNING_SECRET_MISSING").
			With("key", "auth.signing_secret").
			Errorf("auth.signing_secret is required (set %sAUTH__SIGNING_SECRET)", EnvPrefix)
	case n < auth.MinSigningSecretLength:
		return oops.Code("CONFIG_SIGNING_SECRET_TOO_SHORT").
			With("key", "auth.signing_secret").
			With("min_length", auth.MinSigningSecretLength).
			Errorf("auth.signing_secret must be at least %d bytes", auth.MinSigningSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "auth.token_ttl").Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.StoreTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("key", "auth.store_timeout").
			Errorf("auth.store_timeout must be positive")
	}
	if err := c.Auth.Argon2.Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "auth.argon2").Wrap(err)
	}
	return nil
}

// ValidateDatabase checks the settings migrate and serve share.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_DATABASE_URL_MISSING").
			With("key", "database.url").
			Errorf("database.url is required (set %sDATABASE__URL)", EnvPrefix)
	}
	if c.Database.MaxConns < 1 {
		return oops.Code("CONFIG_INVALID").With("key", "database.max_conns").Errorf("database.max_conns must be at least 1")
	}
	if c.Database.ConnectAttempts < 1 {
		return oops.Code("CONFIG_INVALID").
			With("key", "database.connect_attempts").
			Errorf("database.connect_attempts must be at least 1")
	}
	return nil
}

// ValidateLog checks the log format and level.
func (c *Config) ValidateLog() error {
	if !logging.ValidFormat(c.Log.Format) {
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Wrap(err)
	}
	return nil
}

// Redacted returns a copy safe to print: the signing secret and any
// database password are masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.SigningSecret != "" {
		out.Auth.SigningSecret = redacted
	}
	if u, err := url.Parse(out.Database.URL); err == nil {
		out.Database.URL = u.Redacted()
	}
	return out
}
