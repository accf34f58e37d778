package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/helixir/interaction-miner/internal/database"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *database.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (all, or the given number of steps)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *database.Migrator) error {
			if len(args) == 0 {
				if err := m.Down(); err != nil {
					return err
				}
				return printVersion(m)
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			if err := m.Steps(-n); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, printVersion)
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations (recovers a dirty state)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return withMigrator(cmd, func(m *database.Migrator) error {
			if err := m.Force(v); err != nil {
				return err
			}
			return printVersion(m)
		})
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "override the migrations directory")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd, migrateForceCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withMigrator(cmd *cobra.Command, fn func(m *database.Migrator) error) error {
	return withApp(cmd, func(_ context.Context, a *app) error {
		path := a.cfg.Database.MigrationPath
		if migrationsPath != "" {
			path = migrationsPath
		}
		m, err := database.NewMigrator(a.db, path, a.logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer m.Close()
		return fn(m)
	})
}

func printVersion(m *database.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]interface{}{"version": v, "dirty": dirty})
	}
	fmt.Printf("schema version %d (dirty: %t)\n", v, dirty)
	return nil
}
