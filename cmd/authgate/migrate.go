// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/store"
)

func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the auth database schema",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL migrations.`,
	}

	withMigrator := func(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, deps)
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			m, err := deps.NewMigrator(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
				}
			}()
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), m)
		}),
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all auth data",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return oops.Wrap(err)
			}
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("down drops every auth table; pass --yes to confirm")
			}
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	}
	down.Flags().Bool("yes", false, "confirm dropping all auth data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, _ []string) error {
			return printStatus(cmd.OutOrStdout(), m)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it (dirty-state recovery)",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m Migrator, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Forced schema version to %d\n", version)
			return nil
		}),
	})

	return cmd
}

func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(arg)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be an integer")
	}
	return version, nil
}

func printStatus(w io.Writer, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}

	dirty := ""
	if status.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(w, "Schema version: %d%s\n", status.Current, dirty)
	for _, v := range status.Applied {
		fmt.Fprintf(w, "  applied  %s\n", migrationLabel(v))
	}
	for _, v := range status.Pending {
		fmt.Fprintf(w, "  pending  %s\n", migrationLabel(v))
	}
	return nil
}

func migrationLabel(version uint) string {
	name, err := store.MigrationName(version)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", version)
	}
	return name
}
