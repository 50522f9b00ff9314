// Package mocks provides gomock mocks for the auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserRepository(ctrl)
//	users.EXPECT().GetByEmail(gomock.Any(), "pat@clinic.test").Return(user, nil)
//
// Hand-written fakes with in-memory state live in internal/mocks/auth.
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/medibook/clinic-gate/internal/ports PasswordHasher,SessionGateway,SessionStore,TokenIssuer,TokenStore,UserRepository
