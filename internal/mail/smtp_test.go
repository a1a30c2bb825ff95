// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package mail

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSMTP is a scripted single-threaded SMTP server. It advertises AUTH
// PLAIN but not STARTTLS.
type fakeSMTP struct {
	ln        net.Listener
	rcptReply string
	done      chan struct{}

	mu   sync.Mutex
	auth string
	from string
	rcpt string
	data []byte
}

func startFakeSMTP(t *testing.T, rcptReply string) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln, rcptReply: rcptReply, done: make(chan struct{})}
	go s.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		<-s.done
	})
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	defer close(s.done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	reply := func(lines ...string) {
		for _, l := range lines {
			_ = tp.PrintfLine("%s", l)
		}
	}
	reply("220 localhost ESMTP fake")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO":
			reply("250-localhost", "250-8BITMIME", "250 AUTH PLAIN")
		case "AUTH":
			mechanism, initial, _ := strings.Cut(arg, " ")
			if !strings.EqualFold(mechanism, "PLAIN") {
				reply("504 5.5.4 mechanism not supported")
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(initial)
			if err != nil {
				reply("501 5.5.2 cannot decode response")
				continue
			}
			s.mu.Lock()
			s.auth = string(decoded)
			s.mu.Unlock()
			reply("235 2.7.0 authentication successful")
		case "HELO", "RSET", "NOOP":
			reply("250 OK")
		case "MAIL":
			s.mu.Lock()
			s.from = arg
			s.mu.Unlock()
			reply("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpt = arg
			s.mu.Unlock()
			reply(s.rcptReply)
		case "DATA":
			reply("354 end data with <CR><LF>.<CR><LF>")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.data = data
			s.mu.Unlock()
			reply("250 OK queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 command not implemented")
		}
	}
}

func (s *fakeSMTP) received() (from, rcpt string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, s.rcpt, s.data
}

func (s *fakeSMTP) credentials() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func testSMTPConfig(port int) SMTPConfig {
	return SMTPConfig{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "mailtrap-user",
		Password: "mailtrap-pass",
		From:     "Cooksavvy <no-reply@cooksavvy.example.com>",
		Timeout:  5 * time.Second,
	}
}

func newTestSMTPSender(t *testing.T, port int) *SMTPSender {
	t.Helper()
	sender, err := NewSMTPSender(testSMTPConfig(port))
	require.NoError(t, err)
	return sender
}

func TestSMTPSender_Delivers(t *testing.T) {
	server := startFakeSMTP(t, "250 OK")
	sender := newTestSMTPSender(t, server.port())

	id, err := sender.Send(context.Background(), Message{
		To:      "ada@example.com",
		Subject: "Please verify your email",
		Text:    "Hi ada,\nhttp://localhost:4000/api/v1/users/verify?token=abc123\n",
		HTML:    `<p>Hi ada,</p><a href="http://localhost:4000/api/v1/users/verify?token=abc123">Verify</a>`,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "<"), id)
	assert.True(t, strings.HasSuffix(id, "@cooksavvy.example.com>"), id)

	from, rcpt, data := server.received()
	assert.Contains(t, from, "<no-reply@cooksavvy.example.com>")
	assert.Contains(t, rcpt, "TO:<ada@example.com>")
	assert.Equal(t, "\x00mailtrap-user\x00mailtrap-pass", server.credentials())

	msg, err := netmail.ReadMessage(strings.NewReader(string(data)))
	require.NoError(t, err)
	assert.Equal(t, id, msg.Header.Get("Message-ID"))
	assert.Equal(t, "Please verify your email", msg.Header.Get("Subject"))
	assert.Equal(t, "1.0", msg.Header.Get("MIME-Version"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var types, bodies []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(part)
		require.NoError(t, err)
		types = append(types, part.Header.Get("Content-Type"))
		bodies = append(bodies, string(body))
	}
	require.Len(t, types, 2)
	for i, want := range []string{"text/plain", "text/html"} {
		partType, partParams, err := mime.ParseMediaType(types[i])
		require.NoError(t, err)
		assert.Equal(t, want, partType)
		assert.True(t, strings.EqualFold("utf-8", partParams["charset"]), types[i])
	}
	assert.Contains(t, bodies[0], "verify?token=abc123")
	assert.Contains(t, bodies[1], `href="http://localhost:4000/api/v1/users/verify?token=abc123"`)
}

func TestSMTPSender_SkipsAuthWithoutUsername(t *testing.T) {
	server := startFakeSMTP(t, "250 OK")
	cfg := testSMTPConfig(server.port())
	cfg.Username, cfg.Password = "", ""
	sender, err := NewSMTPSender(cfg)
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), Message{To: "ada@example.com", Subject: "x", Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, server.credentials())
	_, _, data := server.received()
	assert.NotEmpty(t, data)
}

func TestSMTPSender_HTMLOnly(t *testing.T) {
	server := startFakeSMTP(t, "250 OK")
	_, err := newTestSMTPSender(t, server.port()).Send(context.Background(), Message{
		To: "ada@example.com", Subject: "x", HTML: "<p>hello</p>",
	})
	require.NoError(t, err)

	_, _, data := server.received()
	msg, err := netmail.ReadMessage(strings.NewReader(string(data)))
	require.NoError(t, err)
	mediaType, _, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "text/html", mediaType)
}

func TestSMTPSender_RejectedRecipientIsPermanent(t *testing.T) {
	server := startFakeSMTP(t, "550 5.1.1 mailbox unavailable")
	sender := newTestSMTPSender(t, server.port())

	_, err := sender.Send(context.Background(), Message{To: "ghost@example.com", Subject: "x", Text: "x"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestSMTPSender_DeferredRecipientIsTransient(t *testing.T) {
	server := startFakeSMTP(t, "451 4.3.0 try again later")
	sender := newTestSMTPSender(t, server.port())

	_, err := sender.Send(context.Background(), Message{To: "ada@example.com", Subject: "x", Text: "x"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestSMTPSender_ConnectionRefusedIsTransient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = newTestSMTPSender(t, port).Send(context.Background(), Message{To: "ada@example.com", Subject: "x", Text: "x"})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestSMTPSender_InvalidMessage(t *testing.T) {
	sender := newTestSMTPSender(t, 2525)

	tests := map[string]Message{
		"bad recipient":      {To: "not-an-address", Subject: "x"},
		"header injection":   {To: "ada@example.com", Subject: "hi\r\nBcc: eve@example.com"},
		"subject line break": {To: "ada@example.com", Subject: "hi\nthere"},
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := sender.Send(context.Background(), msg)
			require.Error(t, err)
			assert.True(t, IsPermanent(err))
		})
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	valid := SMTPConfig{Host: "smtp.example.com", Port: 2525, From: "no-reply@example.com"}
	tests := []struct {
		name   string
		mutate func(*SMTPConfig)
	}{
		{"missing host", func(c *SMTPConfig) { c.Host = "" }},
		{"zero port", func(c *SMTPConfig) { c.Port = 0 }},
		{"port too large", func(c *SMTPConfig) { c.Port = 70000 }},
		{"bad from", func(c *SMTPConfig) { c.From = "nobody" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewSMTPSender(cfg)
			require.Error(t, err)
		})
	}

	sender, err := NewSMTPSender(valid)
	require.NoError(t, err)
	assert.Equal(t, defaultSMTPTimeout, sender.cfg.Timeout)
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("connection reset")))
	assert.True(t, IsPermanent(&gomail.SendError{Reason: gomail.ErrSMTPRcptTo}))
	assert.False(t, IsPermanent(&gomail.SendError{Reason: gomail.ErrConnCheck}))
	assert.True(t, IsPermanent(&textproto.Error{Code: 554, Msg: "rejected"}))
	assert.False(t, IsPermanent(&textproto.Error{Code: 421, Msg: "busy"}))
	assert.True(t, IsPermanent(errInvalidMessage))
}

func TestNewMessageID(t *testing.T) {
	assert.True(t, strings.HasSuffix(newMessageID("no-reply@cooksavvy.example.com"), "@cooksavvy.example.com>"))
	assert.True(t, strings.HasSuffix(newMessageID("nobody"), "@cooksavvy.local>"))
	assert.NotEqual(t, newMessageID("a@b.c"), newMessageID("a@b.c"))
}
