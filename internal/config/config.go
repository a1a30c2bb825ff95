// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package config loads the service configuration. Sources are layered, each
// overriding the previous: built-in defaults, an optional YAML file,
// command-line flags, then environment variables.
package config

import (
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Tokens       TokenConfig        `koanf:"tokens"`
	Verification VerificationConfig `koanf:"verification"`
	Reset        ResetConfig        `koanf:"reset"`
	App          AppConfig          `koanf:"app"`
	Mail         MailConfig         `koanf:"mail"`
	Log          LogConfig          `koanf:"log"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Addr string `koanf:"addr" env:"SERVER_ADDR"`
	// Port, when set, overrides the port of Addr. Hosting platforms
	// commonly inject PORT.
	Port            string        `koanf:"port" env:"PORT"`
	Env             string        `koanf:"env" env:"APP_ENV"`
	MetricsAddr     string        `koanf:"metrics_addr" env:"METRICS_ADDR"`
	AllowedOrigins  []string      `koanf:"allowed_origins" env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// ListenAddr returns the API listen address.
func (s ServerConfig) ListenAddr() string {
	if s.Port == "" {
		return s.Addr
	}
	host := ""
	if i := strings.LastIndexByte(s.Addr, ':'); i >= 0 {
		host = s.Addr[:i]
	}
	return host + ":" + s.Port
}

// IsProduction reports whether the service runs in production.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(s.Env), "production")
}

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL            string        `koanf:"url" env:"DATABASE_URL"`
	MaxConns       int32         `koanf:"max_conns" env:"DATABASE_MAX_CONNS"`
	MinConns       int32         `koanf:"min_conns" env:"DATABASE_MIN_CONNS"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" env:"DATABASE_CONNECT_TIMEOUT"`
}

// LogValue hides the database password.
func (d DatabaseConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", redactURL(d.URL)),
		slog.Int("max_conns", int(d.MaxConns)),
		slog.Int("min_conns", int(d.MinConns)),
		slog.Duration("connect_timeout", d.ConnectTimeout),
	)
}

// TokenConfig configures session token signing.
type TokenConfig struct {
	AccessSecret  string        `koanf:"access_secret" env:"ACCESS_TOKEN_SECRET"`
	RefreshSecret string        `koanf:"refresh_secret" env:"REFRESH_TOKEN_SECRET"`
	AccessTTL     time.Duration `koanf:"access_ttl" env:"ACCESS_TOKEN_EXPIRY"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl" env:"REFRESH_TOKEN_EXPIRY"`
	Issuer        string        `koanf:"issuer" env:"TOKEN_ISSUER"`
}

// LogValue omits the signing secrets.
func (t TokenConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("access_ttl", t.AccessTTL),
		slog.Duration("refresh_ttl", t.RefreshTTL),
		slog.String("issuer", t.Issuer),
	)
}

// VerificationConfig configures email verification.
type VerificationConfig struct {
	// Mode is "link" or "otp".
	Mode string        `koanf:"mode" env:"VERIFICATION_MODE"`
	TTL  time.Duration `koanf:"ttl" env:"VERIFICATION_TTL"`
}

// ResetConfig configures password reset.
type ResetConfig struct {
	TTL time.Duration `koanf:"ttl" env:"RESET_TTL"`
}

// AppConfig holds the public base URLs used in mail links.
type AppConfig struct {
	URL    string `koanf:"url" env:"APP_URL"`
	APIURL string `koanf:"api_url" env:"API_URL"`
}

// MailConfig configures outbound mail.
type MailConfig struct {
	// Driver is "smtp" or "log".
	Driver      string        `koanf:"driver" env:"MAIL_DRIVER"`
	Host        string        `koanf:"host" env:"SMTP_HOST"`
	Port        int           `koanf:"port" env:"SMTP_PORT"`
	Username    string        `koanf:"username" env:"MAILTRAP_USERNAME"`
	Password    string        `koanf:"password" env:"MAILTRAP_PASSWORD"`
	From        string        `koanf:"from" env:"SENDER_EMAIL_ID"`
	ProductName string        `koanf:"product_name" env:"APP_NAME"`
	LogoURL     string        `koanf:"logo_url" env:"APP_LOGO_URL"`
	MaxAttempts int           `koanf:"max_attempts" env:"MAIL_MAX_ATTEMPTS"`
	RetryBase   time.Duration `koanf:"retry_base" env:"MAIL_RETRY_BASE"`
	Timeout     time.Duration `koanf:"timeout" env:"SMTP_TIMEOUT"`
}

// LogValue omits the SMTP password.
func (m MailConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("driver", m.Driver),
		slog.String("host", m.Host),
		slog.Int("port", m.Port),
		slog.String("from", m.From),
		slog.Int("max_attempts", m.MaxAttempts),
	)
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" env:"LOG_FORMAT"`
	Level  string `koanf:"level" env:"LOG_LEVEL"`
}

// Defaults returns the built-in configuration values by key.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":              ":4000",
		"server.env":               "development",
		"server.metrics_addr":      "127.0.0.1:9100",
		"server.allowed_origins":   []string{"http://localhost:5173"},
		"server.shutdown_timeout":  "10s",
		"database.max_conns":       10,
		"database.min_conns":       0,
		"database.connect_timeout": "5s",
		"tokens.access_ttl":        "15m",
		"tokens.refresh_ttl":       "168h",
		"tokens.issuer":            "cooksavvy",
		"verification.mode":        "link",
		"verification.ttl":         "10m",
		"reset.ttl":                "10m",
		"app.url":                  "http://localhost:5173",
		"app.api_url":              "http://localhost:4000",
		"mail.driver":              "smtp",
		"mail.host":                "sandbox.smtp.mailtrap.io",
		"mail.port":                2525,
		"mail.from":                "no-reply@cooksavvy.example.com",
		"mail.product_name":        "Cooksavvy",
		"mail.max_attempts":        3,
		"mail.retry_base":          "500ms",
		"mail.timeout":             "15s",
		"log.format":               "json",
		"log.level":                "info",
	}
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"log-format":   "log.format",
	"log-level":    "log.level",
	"addr":         "server.addr",
	"metrics-addr": "server.metrics_addr",
	"database-url": "database.url",
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// File is an optional YAML file.
	File string
	// Flags are parsed command-line flags.
	Flags *pflag.FlagSet
	// Env replaces the process environment when non-nil.
	Env map[string]string
}

// Load builds the configuration from every source and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg, err := Read(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds the configuration from every source without validating it.
// Commands that need only part of the configuration check that part
// themselves.
func Read(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}
	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", opts.File).Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode configuration")
	}

	environ := opts.Env
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		if err := applyFlags(&cfg, opts.Flags); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// applyFlags overlays the configuration flags set on the command line.
// Unchanged flags never override another source.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	changed := configFlags(fs)
	if !changed.HasFlags() {
		return nil
	}
	k := koanf.New(".")
	if err := k.Load(posflag.Provider(changed, ".", nil), nil); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
	}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrapf(err, "decode flags")
	}
	// An explicit --addr carries its own port.
	if k.Exists("server.addr") {
		cfg.Server.Port = ""
	}
	return nil
}

// configFlags returns the changed flags of fs that are configuration,
// renamed to their keys.
func configFlags(fs *pflag.FlagSet) *pflag.FlagSet {
	out := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return
		}
		renamed := *f
		renamed.Name = key
		renamed.Shorthand = ""
		out.AddFlag(&renamed)
	})
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable]"
	}
	return u.Redacted()
}
