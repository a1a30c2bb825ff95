// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/samber/oops"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
)

type registerRequest struct {
	UserName    string            `json:"userName"`
	Email       string            `json:"email"`
	FullName    string            `json:"fullName"`
	Password    string            `json:"password"`
	Preferences *auth.Preferences `json:"preferences"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	UserName   string `json:"userName"`
	Password   string `json:"password"`
}

// identifier returns the first login identifier the client supplied.
func (l loginRequest) identifier() string {
	for _, v := range []string{l.Identifier, l.Email, l.UserName} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type emailRequest struct {
	Email string `json:"email"`
}

type codeRequest struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
	Password    string `json:"password"`
}

type profileRequest struct {
	UserName    *string           `json:"userName"`
	Email       *string           `json:"email"`
	FullName    *string           `json:"fullName"`
	Preferences *auth.Preferences `json:"preferences"`
}

type sessionResponse struct {
	User                  auth.Profile `json:"user"`
	AccessToken           string       `json:"accessToken"`
	RefreshToken          string       `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time    `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time    `json:"refreshTokenExpiresAt"`
}

func newSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		User:                  s.User,
		AccessToken:           s.Tokens.AccessToken,
		RefreshToken:          s.Tokens.RefreshToken,
		AccessTokenExpiresAt:  s.Tokens.AccessExpiresAt,
		RefreshTokenExpiresAt: s.Tokens.RefreshExpiresAt,
	}
}

// decode reads a JSON body into dst.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, a.maxBody)
	if err := render.DecodeJSON(body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(string(auth.KindValidation)).With("field", "body").Errorf("request body is too large")
		}
		return oops.Code(string(auth.KindValidation)).With("field", "body").Errorf("request body must be a JSON object")
	}
	return nil
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	const op = "register"
	var req registerRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, op, err)
		return
	}
	in := auth.RegisterInput{
		Email:    req.Email,
		UserName: req.UserName,
		FullName: req.FullName,
		Password: req.Password,
	}
	if req.Preferences != nil {
		in.Preferences = *req.Preferences
	}
	profile, err := a.svc.Register(r.Context(), in)
	if err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.succeed(w, r, op, http.StatusCreated, "User registered successfully. Please verify your email.", profile)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	const op = "login"
	var req loginRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, op, err)
		return
	}
	session, err := a.svc.Login(r.Context(), req.identifier(), req.Password)
	if err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.cookies.Write(w, session.Tokens.AccessToken, session.Tokens.RefreshToken)
	a.succeed(w, r, op, http.StatusOK, "User logged in successfully", newSessionResponse(session))
}

func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) {
	const op = "refresh"
	token, _ := sessioncookie.ReadRefresh(r)
	session, err := a.svc.RefreshSession(r.Context(), token)
	if err != nil {
		switch auth.KindOf(err) {
		case auth.KindSessionMismatch, auth.KindInvalidOrExpiredToken:
			a.cookies.Clear(w)
		}
		a.fail(w, r, op, err)
		return
	}
	a.cookies.Write(w, session.Tokens.AccessToken, session.Tokens.RefreshToken)
	a.succeed(w, r, op, http.StatusOK, "Access token refreshed successfully", newSessionResponse(session))
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	const op = "logout"
	principal, _ := PrincipalFrom(r.Context())
	if err := a.svc.Logout(r.Context(), principal.UserID); err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.cookies.Clear(w)
	a.succeed(w, r, op, http.StatusOK, "User logged out successfully", nil)
}

func (a *API) verifyLink(w http.ResponseWriter, r *http.Request) {
	a.verify(w, r, r.URL.Query().Get("token"))
}

func (a *API) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, "verify_email", err)
		return
	}
	code := req.Code
	if code == "" {
		code = req.Token
	}
	a.verify(w, r, code)
}

func (a *API) verify(w http.ResponseWriter, r *http.Request, tokenOrCode string) {
	const op = "verify_email"
	if err := a.svc.VerifyEmail(r.Context(), strings.TrimSpace(tokenOrCode)); err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.succeed(w, r, op, http.StatusOK, "Email verified successfully", nil)
}

func (a *API) resendVerification(w http.ResponseWriter, r *http.Request) {
	const op = "resend_verification"
	var req emailRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, op, err)
		return
	}
	alreadyVerified, err := a.svc.ResendVerification(r.Context(), req.Email)
	if err != nil {
		a.fail(w, r, op, err)
		return
	}
	if alreadyVerified {
		a.succeed(w, r, op, http.StatusOK, "Email is already verified", nil)
		return
	}
	a.succeed(w, r, op, http.StatusOK, "Verification email sent", nil)
}

func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	const op = "forgot_password"
	var req emailRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, op, err)
		return
	}
	if err := a.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.succeed(w, r, op, http.StatusOK, "If an account with that email exists, a password reset link has been sent", nil)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	const op = "reset_password"
	var req resetRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, op, err)
		return
	}
	token := req.Token
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	password := req.NewPassword
	if password == "" {
		password = req.Password
	}
	if err := a.svc.ResetPassword(r.Context(), strings.TrimSpace(token), password); err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.succeed(w, r, op, http.StatusOK, "Password reset successfully", nil)
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	const op = "get_profile"
	principal, _ := PrincipalFrom(r.Context())
	profile, err := a.svc.GetProfile(r.Context(), principal.UserID)
	if err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.succeed(w, r, op, http.StatusOK, "Profile fetched successfully", profile)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	const op = "update_profile"
	var req profileRequest
	if err := a.decode(w, r, &req); err != nil {
		a.fail(w, r, op, err)
		return
	}
	principal, _ := PrincipalFrom(r.Context())
	profile, err := a.svc.UpdateProfile(r.Context(), principal.UserID, auth.ProfileUpdate{
		UserName:    req.UserName,
		Email:       req.Email,
		FullName:    req.FullName,
		Preferences: req.Preferences,
	})
	if err != nil {
		a.fail(w, r, op, err)
		return
	}
	a.succeed(w, r, op, http.StatusOK, "Profile updated successfully", profile)
}
