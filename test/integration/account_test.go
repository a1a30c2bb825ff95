// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/sessioncookie"
)

const (
	password    = "Str0ng!Pass1"
	newPassword = "N3w!Passw0rd"
)

var (
	tokenParam = regexp.MustCompile(`token=([^"&\s<>]+)`)
	otpCode    = regexp.MustCompile(`\b(\d{6})\b`)
	userSeq    atomic.Int64
)

// reply is a decoded response envelope.
type reply struct {
	Status  int
	Success bool            `json:"success"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type session struct {
	User         auth.Profile `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (s *stack) call(c *http.Client, method, path string, body any) reply {
	var payload bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&payload).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequest(method, s.server.URL+path, &payload)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	r := reply{Status: resp.StatusCode}
	Expect(json.NewDecoder(resp.Body).Decode(&r)).To(Succeed())
	return r
}

func (r reply) session() session {
	var s session
	Expect(json.Unmarshal(r.Data, &s)).To(Succeed())
	return s
}

func expectFailure(r reply, kind auth.Kind, status int) {
	GinkgoHelper()
	Expect(r.Success).To(BeFalse())
	Expect(r.Kind).To(Equal(string(kind)), r.Message)
	Expect(r.Status).To(Equal(status))
}

func expectOK(r reply, status int) {
	GinkgoHelper()
	Expect(r.Success).To(BeTrue(), "%s: %s", r.Kind, r.Message)
	Expect(r.Status).To(Equal(status))
}

// newIdentity returns an email and user name unique within the suite database.
func newIdentity() (string, string) {
	n := userSeq.Add(1)
	name := strings.ToLower(fmt.Sprintf("cook%d%s", n, ulid.Make().String()[20:]))
	return name + "@example.com", name
}

func registerBody(email, userName string) map[string]any {
	return map[string]any{
		"email":    email,
		"userName": userName,
		"fullName": "Julia Child",
		"password": password,
	}
}

func linkToken(s *stack, email string) string {
	GinkgoHelper()
	msg, ok := s.outbox.last(email)
	Expect(ok).To(BeTrue(), "no mail sent to %s", email)
	m := tokenParam.FindStringSubmatch(msg.Text)
	Expect(m).To(HaveLen(2), "no token in %q", msg.Text)
	token, err := url.QueryUnescape(m[1])
	Expect(err).NotTo(HaveOccurred())
	return token
}

// registerVerified creates an account and follows its verification link.
func registerVerified(s *stack, c *http.Client) (string, string) {
	GinkgoHelper()
	email, userName := newIdentity()
	expectOK(s.call(c, http.MethodPost, "/api/v1/users/register", registerBody(email, userName)), http.StatusCreated)
	expectOK(s.call(c, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(linkToken(s, email)), nil), http.StatusOK)
	return email, userName
}

func login(s *stack, c *http.Client, identifier, pw string) reply {
	return s.call(c, http.MethodPost, "/api/v1/users/login", map[string]any{
		"identifier": identifier,
		"password":   pw,
	})
}

var _ = Describe("Account lifecycle", func() {
	var s *stack

	BeforeEach(func() {
		s = newStack(auth.VerificationLink)
	})

	It("registers, verifies, logs in, refreshes and logs out", func() {
		c := s.client()
		email, userName := newIdentity()

		expectOK(s.call(c, http.MethodPost, "/api/v1/users/register", registerBody(email, userName)), http.StatusCreated)
		expectFailure(login(s, c, email, password), auth.KindEmailNotVerified, http.StatusForbidden)

		msg, ok := s.outbox.last(email)
		Expect(ok).To(BeTrue())
		Expect(msg.Subject).To(Equal("Please verify your email"))
		Expect(msg.Text).To(ContainSubstring(apiURL + "/api/v1/users/verify?token="))

		token := linkToken(s, email)
		expectOK(s.call(c, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(token), nil), http.StatusOK)
		expectFailure(s.call(c, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(token), nil),
			auth.KindNotFound, http.StatusNotFound)

		loggedIn := login(s, c, userName, password)
		expectOK(loggedIn, http.StatusOK)
		first := loggedIn.session()
		Expect(first.User.Email).To(Equal(email))
		Expect(first.User.EmailVerified).To(BeTrue())

		profile := s.call(c, http.MethodGet, "/api/v1/users/profile", nil)
		expectOK(profile, http.StatusOK)
		var p auth.Profile
		Expect(json.Unmarshal(profile.Data, &p)).To(Succeed())
		Expect(p.UserName).To(Equal(userName))

		refreshed := s.call(c, http.MethodGet, "/api/v1/users/refresh-token", nil)
		expectOK(refreshed, http.StatusOK)
		Expect(refreshed.session().RefreshToken).NotTo(Equal(first.RefreshToken))

		replay := s.client()
		u, err := url.Parse(s.server.URL)
		Expect(err).NotTo(HaveOccurred())
		replay.Jar.SetCookies(u, []*http.Cookie{{Name: sessioncookie.RefreshName, Value: first.RefreshToken}})
		expectFailure(s.call(replay, http.MethodGet, "/api/v1/users/refresh-token", nil),
			auth.KindSessionMismatch, http.StatusUnauthorized)

		expectOK(s.call(c, http.MethodPost, "/api/v1/users/logout", nil), http.StatusOK)
		Expect(s.call(c, http.MethodGet, "/api/v1/users/profile", nil).Status).To(Equal(http.StatusUnauthorized))
		Expect(s.call(c, http.MethodGet, "/api/v1/users/refresh-token", nil).Status).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a second account with the same email in any case", func() {
		c := s.client()
		email, userName := newIdentity()
		expectOK(s.call(c, http.MethodPost, "/api/v1/users/register", registerBody(email, userName)), http.StatusCreated)

		_, otherName := newIdentity()
		upper := registerBody(email, otherName)
		upper["email"] = "  " + strings.ToUpper(email)
		expectFailure(s.call(c, http.MethodPost, "/api/v1/users/register", upper), auth.KindConflict, http.StatusConflict)
	})

	It("resends verification until the email is verified", func() {
		c := s.client()
		email, userName := newIdentity()
		expectOK(s.call(c, http.MethodPost, "/api/v1/users/register", registerBody(email, userName)), http.StatusCreated)
		stale := linkToken(s, email)

		resent := s.call(c, http.MethodPost, "/api/v1/users/resend-verification", map[string]any{"email": email})
		expectOK(resent, http.StatusOK)
		Expect(resent.Message).To(Equal("Verification email sent"))

		fresh := linkToken(s, email)
		Expect(fresh).NotTo(Equal(stale))
		expectFailure(s.call(c, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(stale), nil),
			auth.KindNotFound, http.StatusNotFound)
		expectOK(s.call(c, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(fresh), nil), http.StatusOK)

		again := s.call(c, http.MethodPost, "/api/v1/users/resend-verification", map[string]any{"email": email})
		expectOK(again, http.StatusOK)
		Expect(again.Message).To(Equal("Email is already verified"))
	})

	It("resets a forgotten password", func() {
		c := s.client()
		email, _ := registerVerified(s, c)

		forgot := s.call(c, http.MethodPost, "/api/v1/users/forgot-password", map[string]any{"email": email})
		expectOK(forgot, http.StatusOK)
		msg, ok := s.outbox.last(email)
		Expect(ok).To(BeTrue())
		Expect(msg.Subject).To(Equal("Password reset request"))
		Expect(msg.Text).To(ContainSubstring(appURL + "/reset-password?token="))

		token := linkToken(s, email)
		expectFailure(s.call(c, http.MethodPost, "/api/v1/users/reset-password", map[string]any{
			"token": token, "newPassword": "weak",
		}), auth.KindValidation, http.StatusBadRequest)

		expectOK(s.call(c, http.MethodPost, "/api/v1/users/reset-password", map[string]any{
			"token": token, "newPassword": newPassword,
		}), http.StatusOK)
		expectFailure(s.call(c, http.MethodPost, "/api/v1/users/reset-password", map[string]any{
			"token": token, "newPassword": newPassword,
		}), auth.KindInvalidToken, http.StatusBadRequest)

		expectFailure(login(s, c, email, password), auth.KindInvalidCredentials, http.StatusUnauthorized)
		expectOK(login(s, c, email, newPassword), http.StatusOK)
	})

	It("does not reveal whether an email is registered", func() {
		c := s.client()
		unknown, _ := newIdentity()
		forgot := s.call(c, http.MethodPost, "/api/v1/users/forgot-password", map[string]any{"email": unknown})
		expectOK(forgot, http.StatusOK)
		_, sent := s.outbox.last(unknown)
		Expect(sent).To(BeFalse())
	})

	It("requires re-verification after an email change", func() {
		c := s.client()
		email, _ := registerVerified(s, c)
		expectOK(login(s, c, email, password), http.StatusOK)

		changed, _ := newIdentity()
		updated := s.call(c, http.MethodPatch, "/api/v1/users/profile", map[string]any{
			"email":       changed,
			"fullName":    "Julia McWilliams Child",
			"preferences": map[string]any{"dietPreferences": []string{"vegan"}, "allergies": []string{"peanuts"}},
		})
		expectOK(updated, http.StatusOK)
		var p auth.Profile
		Expect(json.Unmarshal(updated.Data, &p)).To(Succeed())
		Expect(p.Email).To(Equal(changed))
		Expect(p.EmailVerified).To(BeFalse())
		Expect(p.Preferences.Diets).To(ConsistOf(auth.DietVegan))
		Expect(p.Preferences.Allergies).To(ConsistOf(auth.AllergyPeanuts))

		expectOK(s.call(c, http.MethodGet, "/api/v1/users/verify?token="+url.QueryEscape(linkToken(s, changed)), nil), http.StatusOK)
		expectOK(login(s, c, changed, password), http.StatusOK)
	})
})

var _ = Describe("OTP verification", func() {
	It("verifies with the mailed six digit code", func() {
		s := newStack(auth.VerificationOTP)
		c := s.client()
		email, userName := newIdentity()
		expectOK(s.call(c, http.MethodPost, "/api/v1/users/register", registerBody(email, userName)), http.StatusCreated)

		msg, ok := s.outbox.last(email)
		Expect(ok).To(BeTrue())
		m := otpCode.FindStringSubmatch(msg.Text)
		Expect(m).To(HaveLen(2), "no code in %q", msg.Text)

		expectFailure(s.call(c, http.MethodPost, "/api/v1/users/verify", map[string]any{"code": "not-a-code"}),
			auth.KindNotFound, http.StatusNotFound)
		expectOK(s.call(c, http.MethodPost, "/api/v1/users/verify", map[string]any{"code": m[1]}), http.StatusOK)
		expectOK(login(s, c, email, password), http.StatusOK)
	})
})
