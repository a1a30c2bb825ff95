// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package sessioncookie centralizes the access and refresh token cookies.
package sessioncookie

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names read by the web client.
const (
	AccessName  = "accessToken"
	RefreshName = "refreshToken"
)

// Policy decides the attributes of the session cookies.
type Policy struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewPolicy returns the policy for env. Cookies are Secure everywhere except
// local, development and test environments.
func NewPolicy(env string, accessTTL, refreshTTL time.Duration) Policy {
	return Policy{
		Secure:     !IsLocalEnv(env),
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}
}

// IsLocalEnv reports whether env names a non-production environment.
func IsLocalEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "local", "development", "dev", "test":
		return true
	}
	return false
}

// Write sets both session cookies.
func (p Policy) Write(w http.ResponseWriter, accessToken, refreshToken string) {
	if w == nil {
		return
	}
	http.SetCookie(w, p.cookie(AccessName, accessToken, p.AccessTTL))
	http.SetCookie(w, p.cookie(RefreshName, refreshToken, p.RefreshTTL))
}

// Clear expires both session cookies.
func (p Policy) Clear(w http.ResponseWriter) {
	if w == nil {
		return
	}
	for _, name := range []string{AccessName, RefreshName} {
		c := p.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (p Policy) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    strings.TrimSpace(value),
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ReadAccess returns the trimmed access token cookie when present.
func ReadAccess(r *http.Request) (string, bool) {
	return read(r, AccessName)
}

// ReadRefresh returns the trimmed refresh token cookie when present.
func ReadRefresh(r *http.Request) (string, bool) {
	return read(r, RefreshName)
}

func read(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}
