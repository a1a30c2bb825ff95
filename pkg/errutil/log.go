// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package errutil bridges samber/oops errors to structured logging and tests.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// CodeOf returns the oops code of err as a string, or "" when err carries none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// Attrs returns slog key/value pairs describing err: the message, and for
// oops errors the code and context.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its oops code and context.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, Attrs(err)...)
}

// LogWarn is LogError at warn level, for failures the caller recovers from.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.WarnContext(ctx, msg, Attrs(err)...)
}
