package service

import (
	"context"
	"fmt"
	"log/slog"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/medibook/clinic-gate/internal/domain/model"
	"github.com/medibook/clinic-gate/internal/ports"
)

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	Repo   ports.UserRepository
	Hasher ports.PasswordHasher
	Logger *slog.Logger
}

// UserService administers platform accounts.
type UserService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	logger *slog.Logger
}

// NewUserService constructs a UserService.
func NewUserService(opts UserServiceOptions) *UserService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: opts.Repo, hasher: opts.Hasher, logger: logger.With("component", "user_service")}
}

// CreateUserInput is an account to create with a plaintext password.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Role        domainauth.Role
	Password    string
	Inactive    bool
}

// Create validates the account, hashes the password and stores it.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	req := model.CreateUserRequest{
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		PasswordHash: "pending",
		Inactive:     in.Inactive,
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	req.PasswordHash = hash

	u, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user created", "user_id", u.ID, "role", string(u.Role), "active", u.IsActive)
	return u, nil
}

// Deactivate disables the account with the given email. Live sessions fail their next verify.
func (s *UserService) Deactivate(ctx context.Context, email string) (*model.User, error) {
	return s.setActive(ctx, email, false)
}

// Activate re-enables the account with the given email.
func (s *UserService) Activate(ctx context.Context, email string) (*model.User, error) {
	return s.setActive(ctx, email, true)
}

func (s *UserService) setActive(ctx context.Context, email string, active bool) (*model.User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.IsActive == active {
		return u, nil
	}
	if err := s.repo.SetActive(ctx, u.ID, active); err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	u.IsActive = active
	s.logger.InfoContext(ctx, "user active flag changed", "user_id", u.ID, "active", active)
	return u, nil
}
