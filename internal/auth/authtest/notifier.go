// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/cooksavvy/cooksavvy/internal/auth"
)

// Notifier records every notice it is asked to send.
type Notifier struct {
	mu            sync.Mutex
	verifications []auth.VerificationNotice
	resets        []auth.ResetNotice

	// Err, when set, is returned by every send. Notices are not recorded.
	Err error
}

// SendVerification records notice.
func (n *Notifier) SendVerification(_ context.Context, notice auth.VerificationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.verifications = append(n.verifications, notice)
	return nil
}

// SendPasswordReset records notice.
func (n *Notifier) SendPasswordReset(_ context.Context, notice auth.ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.resets = append(n.resets, notice)
	return nil
}

// Verifications returns the recorded verification notices.
func (n *Notifier) Verifications() []auth.VerificationNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auth.VerificationNotice(nil), n.verifications...)
}

// Resets returns the recorded password reset notices.
func (n *Notifier) Resets() []auth.ResetNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auth.ResetNotice(nil), n.resets...)
}

// LastVerification returns the most recent verification notice.
func (n *Notifier) LastVerification() (auth.VerificationNotice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.verifications) == 0 {
		return auth.VerificationNotice{}, false
	}
	return n.verifications[len(n.verifications)-1], true
}

// LastReset returns the most recent password reset notice.
func (n *Notifier) LastReset() (auth.ResetNotice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		return auth.ResetNotice{}, false
	}
	return n.resets[len(n.resets)-1], true
}

// Compile-time interface check.
var _ auth.Notifier = (*Notifier)(nil)
