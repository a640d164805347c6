// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authsvc/internal/store"
)

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		name).Scan(&exists)
	Expect(err).NotTo(HaveOccurred())
	return exists
}

var _ = Describe("Migrator", Ordered, func() {
	var (
		ctx      context.Context
		migrator *store.Migrator
		pool     *pgxpool.Pool
		latest   uint
	)

	BeforeAll(func() {
		ctx = context.Background()

		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(migrator.Close()).To(Succeed()) })

		pool, err = store.Connect(ctx, store.PoolConfig{URL: connStr, ConnectAttempts: 3})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(pool.Close)
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies every migration with Up", func() {
		Expect(migrator.Up()).To(Succeed())

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Pending).To(BeEmpty())
		Expect(status.Dirty).To(BeFalse())
		latest = status.Version
		Expect(latest).To(BeNumerically(">=", 1))
		Expect(tableExists(ctx, pool, "users")).To(BeTrue())
	})

	It("is idempotent", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps down and back up one migration", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest - 1))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(latest))
	})

	It("enforces the unique normalized email", func() {
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash) VALUES ('01A', 'A', 'a@example.com', 'h')`)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash) VALUES ('01B', 'B', 'a@example.com', 'h')`)
		Expect(err).To(MatchError(ContainSubstring("users_email_key")))

		_, err = pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash) VALUES ('01C', 'C', 'Upper@example.com', 'h')`)
		Expect(err).To(HaveOccurred())
	})

	It("rolls everything back with Down", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
		Expect(tableExists(ctx, pool, "users")).To(BeFalse())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
		Expect(tableExists(ctx, pool, "users")).To(BeFalse())
	})
})
