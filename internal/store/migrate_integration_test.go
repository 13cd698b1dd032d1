// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/authgate/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })
	})

	tableExists := func(name string) bool {
		pool, err := store.Connect(suiteCtx, connStr, store.DefaultPoolConfig())
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var exists bool
		err = pool.QueryRow(suiteCtx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			name).Scan(&exists)
		Expect(err).NotTo(HaveOccurred())
		return exists
	}

	It("starts at version zero", func() {
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Current).To(BeZero())
		Expect(status.Applied).To(BeEmpty())
		Expect(status.Pending).NotTo(BeEmpty())
	})

	It("creates every auth table on Up", func() {
		Expect(migrator.Up()).To(Succeed())
		for _, table := range []string{"actors", "accounts", "auth_attempts", "sessions"} {
			Expect(tableExists(table)).To(BeTrue(), table)
		}

		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Pending).To(BeEmpty())
		Expect(status.Dirty).To(BeFalse())
	})

	It("treats a second Up as a no-op", func() {
		Expect(migrator.Up()).To(Succeed())
	})

	It("steps back one migration", func() {
		before, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())

		Expect(migrator.Steps(-1)).To(Succeed())
		Expect(tableExists("sessions")).To(BeFalse())

		after, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(after).To(Equal(before - 1))
	})

	It("drops everything on Down", func() {
		Expect(migrator.Down()).To(Succeed())
		Expect(tableExists("actors")).To(BeFalse())

		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())
	})

	It("re-applies cleanly", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(tableExists("actors")).To(BeTrue())
	})
})
