// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package mail

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/observability"
)

// Template names used for metrics.
const (
	TemplateVerification = "verification"
	TemplateReset        = "reset"
)

const (
	verifyPath = "/api/v1/users/verify"
	resetPath  = "/reset-password"
)

// Links holds the base URLs embedded in account mail.
type Links struct {
	// APIURL is the public base URL of this service; verification links
	// point at it.
	APIURL string
	// AppURL is the public base URL of the web client; reset links point at it.
	AppURL string
}

// Notifier renders and sends account mail. It implements auth.Notifier.
type Notifier struct {
	sender   Sender
	renderer *Renderer
	links    Links
	metrics  *observability.Metrics
	logger   *slog.Logger
}

var _ auth.Notifier = (*Notifier)(nil)

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithMetrics records each dispatch on m.
func WithMetrics(m *observability.Metrics) NotifierOption {
	return func(n *Notifier) { n.metrics = m }
}

// WithLogger sets the notifier's logger.
func WithLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = l }
}

// NewNotifier creates a Notifier.
func NewNotifier(sender Sender, renderer *Renderer, links Links, opts ...NotifierOption) (*Notifier, error) {
	if sender == nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("sender is required")
	}
	if renderer == nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("renderer is required")
	}
	for name, raw := range map[string]string{"api_url": links.APIURL, "app_url": links.AppURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, oops.Code("MAIL_CONFIG_INVALID").With(name, raw).Errorf("%s must be an absolute URL", name)
		}
	}
	n := &Notifier{
		sender:   sender,
		renderer: renderer,
		links:    links,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// SendVerification sends the verification link, or the code in OTP mode.
func (n *Notifier) SendVerification(ctx context.Context, notice auth.VerificationNotice) error {
	content := Content{
		Subject: "Please verify your email",
		Name:    displayName(notice.FullName, notice.UserName),
		Intro:   []string{"Welcome to Cooksavvy! We're very excited to have you on board."},
		Outro: []string{
			"If you did not create an account, no further action is required.",
			"Need help, or have questions? Just reply to this email, we'd love to assist you.",
		},
	}
	if notice.Mode == auth.VerificationOTP {
		content.Instructions = "To get started with Cooksavvy, enter the following code to verify your email address:"
		content.Code = notice.Token
	} else {
		content.Instructions = "To get started with Cooksavvy and verify your email address, please click the button below:"
		content.Button = &Button{
			Text:  "Verify Your Account",
			Color: "#007bff",
			Link:  tokenLink(n.links.APIURL, verifyPath, notice.Token),
		}
	}
	return n.dispatch(ctx, TemplateVerification, notice.To, content)
}

// SendPasswordReset sends the reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, notice auth.ResetNotice) error {
	content := Content{
		Subject:      "Password reset request",
		Name:         displayName(notice.FullName, notice.UserName),
		Intro:        []string{"You are receiving this email because a password reset request has been initiated for your Cooksavvy account."},
		Instructions: "To reset your password, please click the button below:",
		Button: &Button{
			Text:  "Reset Your Password",
			Color: "#dc3545",
			Link:  tokenLink(n.links.AppURL, resetPath, notice.Token),
		},
		Outro: []string{
			"If you did not request a password reset, please ignore this email. Your password will remain unchanged.",
			"For security reasons, this password reset link is only valid for a limited time.",
			"If you continue to have issues, please contact our support team.",
		},
	}
	return n.dispatch(ctx, TemplateReset, notice.To, content)
}

func (n *Notifier) dispatch(ctx context.Context, template, to string, content Content) error {
	msg, err := n.renderer.Render(to, content)
	if err != nil {
		n.metrics.RecordMail(template, err)
		return oops.With("template", template).Wrap(err)
	}
	id, err := n.sender.Send(ctx, msg)
	n.metrics.RecordMail(template, err)
	if err != nil {
		return oops.With("operation", "send_mail").With("template", template).Wrap(err)
	}
	n.logger.DebugContext(ctx, "mail dispatched", "template", template, "message_id", id)
	return nil
}

func displayName(fullName, userName string) string {
	if name := strings.TrimSpace(fullName); name != "" {
		return name
	}
	return userName
}

func tokenLink(base, path, token string) string {
	return strings.TrimRight(base, "/") + path + "?token=" + url.QueryEscape(token)
}
