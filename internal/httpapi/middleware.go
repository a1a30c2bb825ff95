// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
)

type principalKey struct{}

// Principal is the authenticated caller of a protected route.
type Principal struct {
	UserID ulid.ULID
	Claims *auth.AccessClaims
}

// PrincipalFrom returns the caller stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// requireAuth admits requests carrying a valid access token in the
// accessToken cookie or an Authorization bearer header.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := sessioncookie.ReadAccess(r)
		if !ok {
			token = bearerToken(r)
		}
		claims, err := a.svc.Authenticate(r.Context(), token)
		if err != nil {
			a.fail(w, r, "authenticate", err)
			return
		}
		userID, err := ulid.Parse(claims.UserID)
		if err != nil {
			writeKind(w, r, auth.KindInvalidOrExpiredToken, "access token expired")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, Principal{UserID: userID, Claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
