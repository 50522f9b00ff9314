package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/medibook/clinic-gate/internal/migrate"
)

func migrateCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(logger, func(h dbHandle) error {
				if err := migrate.Run(cmd.Context(), h.DB); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Migrations applied\n")
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and when they were applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(logger, func(h dbHandle) error {
				list, err := migrate.Status(cmd.Context(), h.DB)
				if err != nil {
					return err
				}
				printMigrations(cmd, list)
				return nil
			})
		},
	})
	return cmd
}

func withDB(logger *slog.Logger, fn func(dbHandle) error) (err error) {
	h, err := openDB(logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.DB.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
	}()
	return fn(h)
}

func printMigrations(cmd *cobra.Command, list []migrate.Migration) {
	out := cmd.OutOrStdout()
	pending := 0
	for _, m := range list {
		if m.Applied() {
			printf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.UTC().Format(time.RFC3339))
			continue
		}
		pending++
		printf(out, "pending  %s\n", m.Version)
	}
	printf(out, "%d migrations, %d pending\n", len(list), pending)
}
