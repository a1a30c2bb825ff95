// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/cooksavvy/cooksavvy/internal/store"
)

var _ = Describe("Migrator", func() {
	var migrator *store.Migrator

	BeforeEach(func() {
		var err error
		migrator, err = store.NewMigrator(databaseURL)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(migrator.Down()).To(Succeed())
			Expect(migrator.Close()).To(Succeed())
		})
	})

	It("walks the full up and down cycle", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
		latest, err := store.LatestVersion()
		Expect(err).NotTo(HaveOccurred())

		version, dirty, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest))
		Expect(dirty).To(BeFalse())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest - 1))

		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Up()).To(Succeed(), "a second Up is a no-op")
	})

	It("creates the users table with its unique keys", func() {
		Expect(migrator.Up()).To(Succeed())

		ctx := context.Background()
		pool, err := store.Connect(ctx, databaseURL, store.PoolConfig{})
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var indexes []string
		rows, err := pool.Query(ctx,
			`SELECT indexname FROM pg_indexes WHERE tablename = 'users' ORDER BY indexname`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()
		for rows.Next() {
			var name string
			Expect(rows.Scan(&name)).To(Succeed())
			indexes = append(indexes, name)
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(indexes).To(ContainElements("users_email_key", "users_user_name_key", "users_verification_hash_key"))
		Expect(indexes).NotTo(ContainElement("users_verification_hash_idx"))
	})
})

var _ = Describe("Connect", func() {
	It("rejects an unparsable url", func() {
		_, err := store.Connect(context.Background(), "::not a url::", store.PoolConfig{})
		Expect(err).To(HaveOccurred())
	})
})
