// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authsvc/internal/store"
)

// migrator is the subset of *store.Migrator the commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// openMigrator is replaced in tests.
var openMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL) //nolint:wrapcheck // already coded
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Apply, roll back and inspect the embedded schema migrations.
Without a subcommand, all pending migrations are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, runMigrateUp)
		},
	})

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all user data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").
					Errorf("migrate down drops the users table; rerun with --yes")
			}
			return withMigrator(cmd, func(out io.Writer, m migrator) error {
				if err := m.Down(); err != nil {
					return err //nolint:wrapcheck // already coded
				}
				_, _ = fmt.Fprintln(out, "All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations; negative N rolls back (pass -- before a negative N)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseStepCount(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(out io.Writer, m migrator) error {
				if err := m.Steps(n); err != nil {
					return err //nolint:wrapcheck // already coded
				}
				_, _ = fmt.Fprintf(out, "Applied %d step(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(out io.Writer, m migrator) error {
				status, err := m.Status()
				if err != nil {
					return err //nolint:wrapcheck // already coded
				}
				printStatus(out, status)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty
flag. Use only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(out io.Writer, m migrator) error {
				if err := m.Force(version); err != nil {
					return err //nolint:wrapcheck // already coded
				}
				_, _ = fmt.Fprintf(out, "Forced version %d\n", version)
				return nil
			})
		},
	})

	return cmd
}

func runMigrateUp(out io.Writer, m migrator) error {
	_, _ = fmt.Fprintln(out, "Running migrations...")
	if err := m.Up(); err != nil {
		return err //nolint:wrapcheck // already coded
	}
	_, _ = fmt.Fprintln(out, "Migrations completed successfully")
	return nil
}

// withMigrator loads the database config, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, fn func(out io.Writer, m migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err //nolint:wrapcheck // already coded
	}

	m, err := openMigrator(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_OPEN_FAILED").With("operation", "open migrator").Wrap(err)
	}

	runErr := fn(cmd.OutOrStdout(), m)
	if closeErr := m.Close(); closeErr != nil && runErr == nil {
		return closeErr //nolint:wrapcheck // already coded
	}
	return runErr
}

// parseForceVersion parses a non-negative migration version.
func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer: %q", s)
	}
	if version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", version)
	}
	return version, nil
}

// parseStepCount parses a non-zero step count.
func parseStepCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n == 0 {
		return 0, oops.Code("INVALID_STEPS").With("input", s).Errorf("steps must be a non-zero integer: %q", s)
	}
	return n, nil
}

func printStatus(out io.Writer, status *store.MigrationStatus) {
	current := "none"
	if status.Version > 0 {
		current = fmt.Sprintf("%d (%s)", status.Version, status.Name)
	}
	_, _ = fmt.Fprintf(out, "Current version: %s\n", current)
	_, _ = fmt.Fprintf(out, "Dirty: %t\n", status.Dirty)
	_, _ = fmt.Fprintf(out, "Applied: %s\n", joinVersions(status.Applied))
	_, _ = fmt.Fprintf(out, "Pending: %s\n", joinVersions(status.Pending))
}

func joinVersions(vs []uint) string {
	if len(vs) == 0 {
		return "none"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ", ")
}
