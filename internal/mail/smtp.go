// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package mail

import (
	"context"
	"crypto/tls"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds one delivery when ctx has no earlier deadline.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate checks on STARTTLS. Test use only.
	InsecureSkipVerify bool
}

// SMTPSender delivers messages through an SMTP relay. STARTTLS is used when
// the server offers it; PLAIN credentials are sent when a username is set.
type SMTPSender struct {
	cfg     SMTPConfig
	from    *netmail.Address
	options []gomail.Option
	now     func() time.Time
}

const defaultSMTPTimeout = 15 * time.Second

// NewSMTPSender validates cfg and creates a sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("port", cfg.Port).Errorf("smtp port out of range")
	}
	from, err := netmail.ParseAddress(cfg.From)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("from", cfg.From).Wrapf(err, "invalid sender address")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	options := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTLSConfig(&tls.Config{
			ServerName:         cfg.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for tests
		}),
	}
	if cfg.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if _, err := gomail.NewClient(cfg.Host, options...); err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}

	return &SMTPSender{cfg: cfg, from: from, options: options, now: time.Now}, nil
}

// Send delivers msg over a fresh connection.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	id := newMessageID(s.from.Address)
	m, err := s.compose(msg, id)
	if err != nil {
		return "", oops.With("operation", "smtp_send").Wrap(err)
	}

	// A client holds one connection, so each delivery gets its own.
	client, err := gomail.NewClient(s.cfg.Host, s.options...)
	if err != nil {
		return "", oops.With("operation", "smtp_client").Wrap(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", oops.With("operation", "smtp_send").
			With("host", s.cfg.Host).
			With("port", s.cfg.Port).
			Wrap(err)
	}
	return id, nil
}

// compose builds a multipart/alternative message with the plaintext part
// first and the HTML part as its alternative.
func (s *SMTPSender) compose(msg Message, id string) (*gomail.Msg, error) {
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, oops.Wrapf(errInvalidMessage, "subject contains a line break")
	}
	to, err := netmail.ParseAddress(msg.To)
	if err != nil {
		return nil, oops.Wrapf(errInvalidMessage, "recipient: %v", err)
	}

	m := gomail.NewMsg()
	if err := m.From(s.from.String()); err != nil {
		return nil, oops.Wrapf(errInvalidMessage, "sender: %v", err)
	}
	if err := m.To(to.String()); err != nil {
		return nil, oops.Wrapf(errInvalidMessage, "recipient: %v", err)
	}
	m.Subject(msg.Subject)
	m.SetMessageIDWithValue(strings.Trim(id, "<>"))
	m.SetDateWithValue(s.now())

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return m, nil
}
