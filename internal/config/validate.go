// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package config

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"

	"github.com/samber/oops"

	"github.com/cooksavvy/cooksavvy/internal/logging"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
)

// minSecretLength applies outside local environments.
const minSecretLength = 32

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.ListenAddr() == "" {
		add("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	if c.Database.URL == "" {
		add("database.url (DATABASE_URL) is required")
	}

	switch {
	case c.Tokens.AccessSecret == "":
		add("tokens.access_secret (ACCESS_TOKEN_SECRET) is required")
	case c.Tokens.RefreshSecret == "":
		add("tokens.refresh_secret (REFRESH_TOKEN_SECRET) is required")
	case c.Tokens.AccessSecret == c.Tokens.RefreshSecret:
		add("access and refresh token secrets must differ")
	case !sessioncookie.IsLocalEnv(c.Server.Env) &&
		(len(c.Tokens.AccessSecret) < minSecretLength || len(c.Tokens.RefreshSecret) < minSecretLength):
		add("token secrets must be at least %d bytes outside local environments", minSecretLength)
	}
	for name, ttl := range map[string]int64{
		"tokens.access_ttl":  int64(c.Tokens.AccessTTL),
		"tokens.refresh_ttl": int64(c.Tokens.RefreshTTL),
		"verification.ttl":   int64(c.Verification.TTL),
		"reset.ttl":          int64(c.Reset.TTL),
	} {
		if ttl <= 0 {
			add("%s must be positive", name)
		}
	}

	switch c.Verification.Mode {
	case "link", "otp":
	default:
		add("verification.mode must be link or otp, got %q", c.Verification.Mode)
	}

	for name, raw := range map[string]string{"app.url": c.App.URL, "app.api_url": c.App.APIURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			add("%s must be an absolute URL", name)
		}
	}

	switch c.Mail.Driver {
	case "smtp":
		if c.Mail.Host == "" {
			add("mail.host is required for the smtp driver")
		}
		if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
			add("mail.port must be between 1 and 65535")
		}
	case "log":
		if c.Server.IsProduction() {
			add("mail.driver log is not allowed in production")
		}
	default:
		add("mail.driver must be smtp or log, got %q", c.Mail.Driver)
	}
	if _, err := mail.ParseAddress(c.Mail.From); err != nil {
		add("mail.from is not a valid address")
	}
	if c.Mail.MaxAttempts < 1 {
		add("mail.max_attempts must be at least 1")
	}

	if !logging.ValidFormat(c.Log.Format) {
		add("log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level %q is not a level", c.Log.Level)
	}

	if len(problems) == 0 {
		return nil
	}
	// Map iteration order is random.
	slices.Sort(problems)
	return oops.Code("CONFIG_INVALID").
		With("problems", problems).
		Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}
