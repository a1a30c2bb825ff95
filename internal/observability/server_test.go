// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())
	m := server.Metrics()
	m.RecordAuth("login", OutcomeOK)
	m.RecordMail("verification", errors.New("smtp down"))
	m.ObserveHTTP("/api/v1/users/login", http.MethodPost, http.StatusOK, 15*time.Millisecond)

	code, body := get(t, server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, code)
	for _, want := range []string{
		"# HELP",
		"go_",
		"process_",
		`cooksavvy_auth_operations_total{operation="login",outcome="ok"} 1`,
		`cooksavvy_mail_dispatch_total{status="error",template="verification"} 1`,
		"cooksavvy_http_request_duration_seconds_bucket",
	} {
		assert.Contains(t, body, want)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAuth("login", OutcomeOK)
		m.RecordMail("reset", nil)
		m.ObserveHTTP("", http.MethodGet, http.StatusNotFound, time.Millisecond)
	})
}

func TestMetrics_Counts(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())
	m := server.Metrics()
	m.RecordAuth("refresh", "SESSION_MISMATCH")
	m.RecordAuth("refresh", "SESSION_MISMATCH")
	m.RecordMail("reset", nil)

	_, body := get(t, server.Handler(), "/metrics")
	assert.Contains(t, body, `cooksavvy_auth_operations_total{operation="refresh",outcome="SESSION_MISMATCH"} 2`)
	assert.Contains(t, body, `cooksavvy_mail_dispatch_total{status="ok",template="reset"} 1`)
}

func TestServer_Liveness(t *testing.T) {
	code, body := get(t, NewServer("127.0.0.1:0", nil, quietLogger()).Handler(), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", strings.TrimSpace(body))
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name     string
		check    ReadinessChecker
		wantCode int
		wantBody string
	}{
		{"nil checker is ready", nil, http.StatusOK, "ok"},
		{"healthy dependency", func(context.Context) error { return nil }, http.StatusOK, "ok"},
		{"database down", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable, "not ready"},
		{"probe carries a deadline", func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				return errors.New("no deadline")
			}
			return nil
		}, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, NewServer("127.0.0.1:0", tt.check, quietLogger()).Handler(), "/healthz/readiness")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil, quietLogger())

	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	_, err = server.Start()
	require.Error(t, err, "second Start must fail")

	resp, err := http.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, server.Stop(ctx), "second Stop is a no-op")

	_, open := <-errCh
	assert.False(t, open, "error channel closes on graceful stop")
	http.DefaultClient.CloseIdleConnections()
}

func TestServer_StartFailsOnBadAddr(t *testing.T) {
	_, err := NewServer("256.0.0.1:99999", nil, quietLogger()).Start()
	require.Error(t, err)
}
