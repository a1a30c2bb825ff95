// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/cooksavvy/cooksavvy/internal/auth"
	"github.com/cooksavvy/cooksavvy/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
		user *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)

		now := time.Now().UTC().Truncate(time.Microsecond)
		id := ulid.Make()
		user = &auth.User{
			ID:           id,
			UserName:     "user_" + id.String()[20:],
			Email:        id.String()[20:] + "@example.com",
			FullName:     "Integration User",
			PasswordHash: "$argon2id$hash",
			Verification: &auth.PendingToken{Hash: "v_" + id.String(), ExpiresAt: now.Add(10 * time.Minute)},
			Preferences:  auth.Preferences{Diets: []auth.Diet{auth.DietVegan}},
			Avatar:       auth.Avatar{URL: auth.DefaultAvatarURL},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		Expect(repo.Create(ctx, user)).To(Succeed())
		DeferCleanup(func() {
			_, err := testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, user.ID.String())
			Expect(err).NotTo(HaveOccurred())
		})
	})

	It("round trips a user", func() {
		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Email).To(Equal(user.Email))
		Expect(stored.Verification).NotTo(BeNil())
		Expect(stored.Verification.Hash).To(Equal(user.Verification.Hash))
		Expect(stored.Verification.ExpiresAt).To(BeTemporally("==", user.Verification.ExpiresAt))
		Expect(stored.Preferences.Diets).To(Equal([]auth.Diet{auth.DietVegan}))
		Expect(stored.Preferences.Allergies).To(BeEmpty())

		byHash, err := repo.GetByVerificationHash(ctx, user.Verification.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(byHash.ID).To(Equal(user.ID))
	})

	It("rejects a duplicate email or user name", func() {
		clash := *user
		clash.ID = ulid.Make()
		clash.Verification = nil
		clash.UserName = "other_" + clash.ID.String()[20:]
		Expect(repo.Create(ctx, &clash)).To(MatchError(auth.ErrDuplicate))

		clash.Email = "other_" + clash.ID.String()[20:] + "@example.com"
		clash.UserName = user.UserName
		Expect(repo.Create(ctx, &clash)).To(MatchError(auth.ErrDuplicate))
	})

	It("reports a pending verification hash held by another user as a collision", func() {
		other := *user
		other.ID = ulid.Make()
		other.UserName = "other_" + other.ID.String()[20:]
		other.Email = "other_" + other.ID.String()[20:] + "@example.com"
		Expect(repo.Create(ctx, &other)).To(MatchError(auth.ErrTokenCollision))

		other.Verification = nil
		Expect(repo.Create(ctx, &other)).To(Succeed())
		DeferCleanup(func() {
			_, err := testPool.Exec(ctx, `DELETE FROM users WHERE id = $1`, other.ID.String())
			Expect(err).NotTo(HaveOccurred())
		})
		Expect(repo.SetVerification(ctx, other.ID, *user.Verification)).To(MatchError(auth.ErrTokenCollision))
	})

	It("keeps a consumed verification when a stale profile is saved", func() {
		stale, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())

		ok, err := repo.ConsumeVerification(ctx, user.ID, user.Verification.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		stale.FullName = "Renamed User"
		Expect(repo.UpdateProfile(ctx, stale)).To(Succeed())

		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FullName).To(Equal("Renamed User"))
		Expect(stored.EmailVerified).To(BeTrue())
		Expect(stored.Verification).To(BeNil())
	})

	It("resets verification when the email changes", func() {
		ok, err := repo.ConsumeVerification(ctx, user.ID, user.Verification.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		changed := *user
		changed.Email = "changed_" + user.ID.String()[20:] + "@example.com"
		changed.EmailVerified = false
		changed.Verification = &auth.PendingToken{Hash: "v2_" + user.ID.String(), ExpiresAt: user.Verification.ExpiresAt}
		Expect(repo.UpdateProfile(ctx, &changed)).To(Succeed())

		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Email).To(Equal(changed.Email))
		Expect(stored.EmailVerified).To(BeFalse())
		Expect(stored.Verification).NotTo(BeNil())
		Expect(stored.Verification.Hash).To(Equal(changed.Verification.Hash))
	})

	It("consumes a verification exactly once", func() {
		hash := user.Verification.Hash
		ok, err := repo.ConsumeVerification(ctx, user.ID, hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = repo.ConsumeVerification(ctx, user.ID, hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.EmailVerified).To(BeTrue())
		Expect(stored.Verification).To(BeNil())
	})

	It("rotates the refresh token for exactly one concurrent caller", func() {
		Expect(repo.SetRefreshToken(ctx, user.ID, "r1")).To(Succeed())

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			rotated int
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				ok, err := repo.RotateRefreshToken(ctx, user.ID, "r1", "r2_"+string(rune('a'+i)))
				Expect(err).NotTo(HaveOccurred())
				if ok {
					mu.Lock()
					rotated++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		Expect(rotated).To(Equal(1))
	})

	It("never rotates while logged out", func() {
		Expect(repo.SetRefreshToken(ctx, user.ID, "")).To(Succeed())
		ok, err := repo.RotateRefreshToken(ctx, user.ID, "", "r2")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("replaces the password through a pending reset", func() {
		pending := auth.PendingToken{Hash: "r_" + user.ID.String(), ExpiresAt: time.Now().Add(time.Minute)}
		Expect(repo.SetReset(ctx, user.ID, pending)).To(Succeed())

		ok, err := repo.ConsumeReset(ctx, user.ID, pending.Hash, "$argon2id$new")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		_, err = repo.GetByResetHash(ctx, pending.Hash)
		Expect(err).To(MatchError(auth.ErrNotFound))

		stored, err := repo.GetByID(ctx, user.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.PasswordHash).To(Equal("$argon2id$new"))
	})

	It("reports a missing user as not found", func() {
		Expect(repo.SetRefreshToken(ctx, ulid.Make(), "r")).To(MatchError(auth.ErrNotFound))
		_, err := repo.GetByEmail(ctx, "nobody@example.com")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})
})
