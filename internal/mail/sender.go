// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

// Package mail renders and delivers account email: verification and password
// reset messages over SMTP, with retries for transient failures.
package mail

import (
	"context"
	"errors"
	"log/slog"
	"net/textproto"
	"strings"

	"github.com/oklog/ulid/v2"
	gomail "github.com/wneessen/go-mail"
)

// Message is one rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message and returns the Message-ID it was sent with.
type Sender interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// IsPermanent reports whether err is a delivery failure that retrying cannot
// fix: a malformed message, or a sender, recipient or data command rejected
// with a non-temporary SMTP reply. Connection-level failures are transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errInvalidMessage) {
		return true
	}
	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Reason {
		case gomail.ErrConnCheck, gomail.ErrSMTPReset, gomail.ErrWriteContent:
			return false
		}
		return !sendErr.IsTemp()
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 500
	}
	return false
}

var errInvalidMessage = errors.New("invalid message")

func newMessageID(from string) string {
	domain := "cooksavvy.local"
	if at := strings.LastIndexByte(from, '@'); at >= 0 && at < len(from)-1 {
		domain = strings.Trim(from[at+1:], "> ")
	}
	return "<" + ulid.Make().String() + "@" + domain + ">"
}

// LogSender writes a summary of each message to the logger instead of
// delivering it. For local development only; bodies are never logged
// because they carry verification codes and reset links.
type LogSender struct {
	from   string
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(from string, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{from: from, logger: logger}
}

// Send logs the recipient and subject.
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := newMessageID(s.from)
	s.logger.InfoContext(ctx, "mail not delivered (log driver)",
		"to", msg.To,
		"subject", msg.Subject,
		"message_id", id,
		"html_bytes", len(msg.HTML),
		"text_bytes", len(msg.Text),
	)
	return id, nil
}
