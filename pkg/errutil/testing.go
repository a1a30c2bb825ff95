// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails tb unless err is non-nil and carries code. For
// wrapped oops errors the deepest code is the one compared.
func AssertErrorCode(tb testing.TB, err error, code string) {
	tb.Helper()
	require.Error(tb, err, "expected an error with code %s", code)
	assert.Equal(tb, code, CodeOf(err), "error: %v", err)
}

// AssertErrorContext fails tb unless err carries key=value in its oops
// context, e.g. the operation or user_id a repository attached.
func AssertErrorContext(tb testing.TB, err error, key string, value any) {
	tb.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(tb, ok, "expected oops error, got %T: %v", err, err)
	require.Contains(tb, oopsErr.Context(), key, "error: %v", err)
	assert.Equal(tb, value, oopsErr.Context()[key])
}
