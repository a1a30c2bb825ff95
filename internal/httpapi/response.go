// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package httpapi

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/cooksavvy/cooksavvy/internal/auth"
)

// successBody is the envelope of every successful response.
type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorBody is the envelope of every failed response.
type errorBody struct {
	Success bool      `json:"success"`
	Kind    auth.Kind `json:"kind"`
	Message string    `json:"message"`
}

var kindStatus = map[auth.Kind]int{
	auth.KindValidation:            http.StatusBadRequest,
	auth.KindConflict:              http.StatusConflict,
	auth.KindInvalidCredentials:    http.StatusUnauthorized,
	auth.KindEmailNotVerified:      http.StatusForbidden,
	auth.KindMissingToken:          http.StatusUnauthorized,
	auth.KindInvalidOrExpiredToken: http.StatusUnauthorized,
	auth.KindSessionMismatch:       http.StatusUnauthorized,
	auth.KindUnauthenticated:       http.StatusUnauthorized,
	auth.KindInvalidToken:          http.StatusBadRequest,
	auth.KindExpired:               http.StatusBadRequest,
	auth.KindNotFound:              http.StatusNotFound,
	auth.KindDependencyFailure:     http.StatusBadGateway,
}

// StatusFor maps an error kind to its HTTP status. Unknown kinds are 500.
func StatusFor(kind auth.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// publicMessage is the message shown to clients for err. Internal and
// dependency failures never expose their cause.
func publicMessage(kind auth.Kind, err error) string {
	switch kind {
	case auth.KindInternal:
		return "internal server error"
	case auth.KindDependencyFailure:
		return "an upstream service is unavailable, please try again"
	}
	return err.Error()
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	render.Status(r, status)
	render.JSON(w, r, successBody{Success: true, Message: message, Data: data})
}

func writeKind(w http.ResponseWriter, r *http.Request, kind auth.Kind, message string) {
	writeStatus(w, r, StatusFor(kind), kind, message)
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, kind auth.Kind, message string) {
	render.Status(r, status)
	render.JSON(w, r, errorBody{Success: false, Kind: kind, Message: message})
}
