// Command clinicctl is the operator and terminal client for clinic-gate.
// Session commands keep their tokens in a file so a login survives between
// invocations; user and migrate commands talk to Postgres directly.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/medibook/clinic-gate/internal/bootstrap"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	root := newRootCmd(logger)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1) //nolint:forbidigo // CLI entrypoint exits non-zero on failure.
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Sign in to clinic-gate and administer its accounts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sess := &sessionOptions{logger: logger}
	sess.bindFlags(root)

	root.AddCommand(
		loginCmd(sess),
		logoutCmd(sess),
		whoamiCmd(sess),
		guardCmd(sess),
		userCmd(logger),
		migrateCmd(logger),
	)
	return root
}

// openDB connects to Postgres using the environment configuration.
var openDB = func(logger *slog.Logger) (dbHandle, error) {
	cfg, err := bootstrap.ParseConfig()
	if err != nil {
		return dbHandle{}, err
	}
	db, err := bootstrap.ConnectDB(context.Background(), bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return dbHandle{}, fmt.Errorf("connect db: %w", err)
	}
	return dbHandle{DB: db, Config: cfg}, nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
