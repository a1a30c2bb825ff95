// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package mail

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryingSender retries transient delivery failures with exponential
// backoff. Permanent failures (see IsPermanent) are returned immediately.
type RetryingSender struct {
	next        Sender
	maxAttempts uint64
	base        time.Duration
	logger      *slog.Logger
}

// NewRetryingSender wraps next. maxAttempts below 1 is treated as 1.
func NewRetryingSender(next Sender, maxAttempts int, base time.Duration, logger *slog.Logger) *RetryingSender {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingSender{next: next, maxAttempts: uint64(maxAttempts), base: base, logger: logger}
}

// Send delivers msg, retrying until it succeeds, fails permanently, runs out
// of attempts, or ctx is done.
func (s *RetryingSender) Send(ctx context.Context, msg Message) (string, error) {
	backoff := retry.NewExponential(s.base)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithMaxRetries(s.maxAttempts-1, backoff)

	var (
		id      string
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var sendErr error
		id, sendErr = s.next.Send(ctx, msg)
		if sendErr == nil {
			return nil
		}
		if IsPermanent(sendErr) {
			return sendErr
		}
		s.logger.WarnContext(ctx, "mail delivery failed, will retry",
			"attempt", attempt,
			"error", sendErr,
		)
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
