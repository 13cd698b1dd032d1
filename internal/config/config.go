// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads authgate settings from a YAML file, command-line
// flags and the environment, in increasing order of precedence.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/internal/notify"
)

// Environment variables that carry secrets. They override file and flags.
const (
	EnvDatabaseURL  = "DATABASE_URL"
	EnvSMTPPassword = "AUTHGATE_SMTP_PASSWORD"
)

// Notifier drivers.
const (
	NotifierSMTP = "smtp"
	NotifierLog  = "log"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	Notify   NotifyConfig   `koanf:"notify" yaml:"notify"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr       string `koanf:"addr" yaml:"addr" jsonschema:"description=API listen address (host:port)"`
	TrustProxy bool   `koanf:"trust_proxy" yaml:"trust_proxy" jsonschema:"description=Take the client address from X-Forwarded-For"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" jsonschema:"description=Metrics and health listen address; empty disables it"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" jsonschema:"description=Level name such as debug or warn"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL         string        `koanf:"url" yaml:"url" jsonschema:"description=PostgreSQL URL; prefer the DATABASE_URL environment variable"`
	MaxConns    int32         `koanf:"max_conns" yaml:"max_conns" jsonschema:"minimum=0"`
	PingRetries uint64        `koanf:"ping_retries" yaml:"ping_retries" jsonschema:"minimum=0"`
	PingBackoff time.Duration `koanf:"ping_backoff" yaml:"ping_backoff"`
}

// AuthConfig tunes the auth core.
type AuthConfig struct {
	Project           string        `koanf:"project" yaml:"project" jsonschema:"minLength=1,description=Project name used in emails"`
	AbuseWindow       time.Duration `koanf:"abuse_window" yaml:"abuse_window"`
	MaxPerOrigin      int           `koanf:"max_per_origin" yaml:"max_per_origin" jsonschema:"minimum=1"`
	MaxPerActor       int           `koanf:"max_per_actor" yaml:"max_per_actor" jsonschema:"minimum=1"`
	MaxPerOriginActor int           `koanf:"max_per_origin_actor" yaml:"max_per_origin_actor" jsonschema:"minimum=1"`
	ResetTTL          time.Duration `koanf:"reset_ttl" yaml:"reset_ttl"`
	Argon2            Argon2Config  `koanf:"argon2" yaml:"argon2"`
}

// Argon2Config sets the argon2id cost of new hashes. Existing hashes keep
// verifying under the parameters encoded in them.
type Argon2Config struct {
	Time      uint32 `koanf:"time" yaml:"time" jsonschema:"minimum=1,description=Iterations"`
	MemoryKiB uint32 `koanf:"memory_kib" yaml:"memory_kib" jsonschema:"minimum=8,description=Memory cost in KiB"`
	Threads   uint8  `koanf:"threads" yaml:"threads" jsonschema:"minimum=1,maximum=255"`
	SaltLen   uint32 `koanf:"salt_len" yaml:"salt_len" jsonschema:"minimum=1,description=Salt length in bytes"`
	KeyLen    uint32 `koanf:"key_len" yaml:"key_len" jsonschema:"minimum=1,description=Derived key length in bytes"`
}

// NotifyConfig selects and configures email delivery.
type NotifyConfig struct {
	Driver string     `koanf:"driver" yaml:"driver" jsonschema:"enum=smtp,enum=log"`
	SMTP   SMTPConfig `koanf:"smtp" yaml:"smtp"`
}

// SMTPConfig mirrors notify.SMTPConfig with file tags.
type SMTPConfig struct {
	Host     string        `koanf:"host" yaml:"host"`
	Port     int           `koanf:"port" yaml:"port" jsonschema:"minimum=1,maximum=65535"`
	Username string        `koanf:"username" yaml:"username"`
	Password string        `koanf:"password" yaml:"password" jsonschema:"description=Prefer the AUTHGATE_SMTP_PASSWORD environment variable"`
	From     string        `koanf:"from" yaml:"from"`
	TLS      string        `koanf:"tls" yaml:"tls" jsonschema:"enum=mandatory,enum=opportunistic,enum=none"`
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	policy := auth.DefaultAbusePolicy()
	return Config{
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			PingRetries: 5,
			PingBackoff: 200 * time.Millisecond,
		},
		Auth: AuthConfig{
			Project:           "authgate",
			AbuseWindow:       policy.Window,
			MaxPerOrigin:      policy.MaxPerOrigin,
			MaxPerActor:       policy.MaxPerActor,
			MaxPerOriginActor: policy.MaxPerOriginActor,
			ResetTTL:          auth.DefaultResetTokenTTL,
			Argon2: Argon2Config{
				Time:      auth.DefaultArgon2Params.Time,
				MemoryKiB: auth.DefaultArgon2Params.Memory,
				Threads:   auth.DefaultArgon2Params.Threads,
				SaltLen:   auth.DefaultArgon2Params.SaltLen,
				KeyLen:    auth.DefaultArgon2Params.KeyLen,
			},
		},
		Notify: NotifyConfig{
			Driver: NotifierLog,
			SMTP:   SMTPConfig{Port: 587, TLS: notify.TLSMandatory, Timeout: 30 * time.Second},
		},
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"http-addr":     "http.addr",
	"trust-proxy":   "http.trust_proxy",
	"metrics-addr":  "metrics.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"notifier":      "notify.driver",
	"reset-ttl":     "auth.reset_ttl",
	"abuse-window":  "auth.abuse_window",
	"project":       "auth.project",
	"db-max-conns":  "database.max_conns",
	"smtp-host":     "notify.smtp.host",
	"smtp-port":     "notify.smtp.port",
	"smtp-from":     "notify.smtp.from",
	"smtp-username": "notify.smtp.username",
}

// BindFlags registers the overridable settings on fs with defaults from Default.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.Bool("trust-proxy", d.HTTP.TrustProxy, "take client address from X-Forwarded-For")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health listen address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("notifier", d.Notify.Driver, "email delivery (smtp or log)")
	fs.Duration("reset-ttl", d.Auth.ResetTTL, "how long a password reset key stays valid")
	fs.Duration("abuse-window", d.Auth.AbuseWindow, "window in which failed logins are counted")
	fs.String("project", d.Auth.Project, "project name used in emails")
	fs.Int32("db-max-conns", d.Database.MaxConns, "maximum database connections (0 = pgxpool default)")
	fs.String("smtp-host", d.Notify.SMTP.Host, "SMTP server host")
	fs.Int("smtp-port", d.Notify.SMTP.Port, "SMTP server port")
	fs.String("smtp-from", d.Notify.SMTP.From, "sender address for emails")
	fs.String("smtp-username", d.Notify.SMTP.Username, "SMTP username")
}

// Load builds a Config from Default, then path (if non-empty), then flags
// that were set, then the secret environment variables.
func Load(path string, flags *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateFile(data); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if getenv != nil {
		if v := getenv(EnvDatabaseURL); v != "" {
			cfg.Database.URL = v
		}
		if v := getenv(EnvSMTPPassword); v != "" {
			cfg.Notify.SMTP.Password = v
		}
	}
	return &cfg, nil
}

// Validate checks every setting that does not depend on the command.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.Project) == "" {
		return invalid("auth.project is required")
	}
	if c.Auth.ResetTTL <= 0 {
		return invalid("auth.reset_ttl must be positive")
	}
	if err := c.Auth.AbusePolicy().Validate(); err != nil {
		return err
	}
	if _, err := auth.NewArgon2idHasherWithParams(c.Auth.Argon2.Params()); err != nil {
		return invalid("auth.argon2: %v", err)
	}
	if c.Database.MaxConns < 0 {
		return invalid("database.max_conns cannot be negative")
	}
	switch c.Notify.Driver {
	case NotifierLog:
	case NotifierSMTP:
		if err := c.Notify.SMTP.Notify().Validate(); err != nil {
			return err
		}
	default:
		return invalid("notify.driver must be 'smtp' or 'log', got %q", c.Notify.Driver)
	}
	return nil
}

// RequireDatabase reports a missing database URL.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return invalid("%s environment variable or database.url is required", EnvDatabaseURL)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, invalid("log.level %q is not a valid level", l.Level)
	}
	return level, nil
}

// AbusePolicy converts the thresholds to an auth.AbusePolicy.
func (a AuthConfig) AbusePolicy() auth.AbusePolicy {
	return auth.AbusePolicy{
		Window:            a.AbuseWindow,
		MaxPerOrigin:      a.MaxPerOrigin,
		MaxPerActor:       a.MaxPerActor,
		MaxPerOriginActor: a.MaxPerOriginActor,
	}
}

// Params converts to auth.Argon2Params.
func (a Argon2Config) Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    a.Time,
		Memory:  a.MemoryKiB,
		Threads: a.Threads,
		SaltLen: a.SaltLen,
		KeyLen:  a.KeyLen,
	}
}

// Notify converts to notify.SMTPConfig.
func (s SMTPConfig) Notify() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
		TLS:      s.TLS,
		Timeout:  s.Timeout,
	}
}

func invalid(format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").Errorf(format, args...)
}
