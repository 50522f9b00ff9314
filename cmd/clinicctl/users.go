package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medibook/clinic-gate/config"
	"github.com/medibook/clinic-gate/internal/bootstrap"
	"github.com/medibook/clinic-gate/internal/data"
	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
	"github.com/medibook/clinic-gate/internal/ports"
	"github.com/medibook/clinic-gate/internal/service"
)

type dbHandle struct {
	DB     *sql.DB
	Config config.AppConfig
}

// userStore is what the user commands need: accounts plus hashing settings.
type userStore struct {
	Repo   ports.UserRepository
	Argon2 config.Argon2Config
	Close  func() error
}

var openUserStore = func(logger *slog.Logger) (userStore, error) {
	h, err := openDB(logger)
	if err != nil {
		return userStore{}, err
	}
	return userStore{Repo: data.NewUserRepo(h.DB), Argon2: h.Config.Auth.Argon2, Close: h.DB.Close}, nil
}

func userCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage platform accounts",
	}
	cmd.AddCommand(
		userCreateCmd(logger),
		userActiveCmd(logger, "deactivate", "Stop an account from signing in", false),
		userActiveCmd(logger, "activate", "Allow a deactivated account to sign in again", true),
	)
	return cmd
}

func withUserService(logger *slog.Logger, fn func(*service.UserService) error) (err error) {
	store, err := openUserStore(logger)
	if err != nil {
		return err
	}
	defer func() {
		if store.Close == nil {
			return
		}
		if cerr := store.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
	}()
	hasher, err := bootstrap.NewPasswordHasher(store.Argon2)
	if err != nil {
		return err
	}
	return fn(service.NewUserService(service.UserServiceOptions{Repo: store.Repo, Hasher: hasher, Logger: logger}))
}

func userCreateCmd(logger *slog.Logger) *cobra.Command {
	var (
		in            service.CreateUserInput
		role          string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !passwordStdin {
				return errors.New("provide the password with --password-stdin")
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			in.Password = password
			in.Role = domainauth.Role(strings.TrimSpace(role))
			return withUserService(logger, func(svc *service.UserService) error {
				u, err := svc.Create(cmd.Context(), in)
				if err != nil {
					return err
				}
				printUser(cmd, "Created", u)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "account email")
	f.StringVar(&in.DisplayName, "name", "", "display name")
	f.StringVar(&role, "role", "", "ADMIN, DOCTOR or PATIENT")
	f.BoolVar(&in.Inactive, "inactive", false, "create the account deactivated")
	f.BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userActiveCmd(logger *slog.Logger, use, short string, active bool) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUserService(logger, func(svc *service.UserService) error {
				set := svc.Deactivate
				verb := "Deactivated"
				if active {
					set = svc.Activate
					verb = "Activated"
				}
				u, err := set(cmd.Context(), email)
				if err != nil {
					return err
				}
				printUser(cmd, verb, u)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func printUser(cmd *cobra.Command, verb string, u *model.User) {
	state := "active"
	if !u.IsActive {
		state = "inactive"
	}
	printf(cmd.OutOrStdout(), "%s %s (%s, %s) id=%s\n", verb, u.Email, u.Role, state, u.ID)
}
