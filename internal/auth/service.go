package auth

import (
	"context"
	"errors"
	"fmt"

	"lightning-gateway/internal/database"
)

var (
	// ErrUserNotFound is returned when no account matches the username.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when the username is already taken.
	ErrUserExists = errors.New("user already exists")
	// ErrBadCredentials is returned when the password does not match.
	ErrBadCredentials = errors.New("bad credentials")
)

// AccountStore is the slice of the account repository this service needs.
type AccountStore interface {
	Create(ctx context.Context, account *database.Account) error
	GetByUsername(ctx context.Context, username string) (*database.Account, error)
}

// Service verifies credentials and creates merchant accounts.
type Service struct {
	store AccountStore
	salt  string // fixed per-deployment password salt
}

// NewService creates an account service backed by store.
func NewService(store AccountStore, salt string) *Service {
	return &Service{store: store, salt: salt}
}

// Authenticate looks up the account and compares the stored hash against
// the recomputed hash of password in constant time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*database.Account, error) {
	account, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if !CheckPassword(s.salt, password, account.Password) {
		return nil, ErrBadCredentials
	}

	return account, nil
}

// GetAccount resolves a token subject to its account record.
func (s *Service) GetAccount(ctx context.Context, username string) (*database.Account, error) {
	account, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return account, nil
}

// CreateAccount inserts a new account with a hashed password and returns
// the assigned id. Returns ErrUserExists if the username is taken.
func (s *Service) CreateAccount(ctx context.Context, username, password, email, mailingAddress string) (int64, error) {
	account := &database.Account{
		Username:       username,
		Password:       HashPassword(s.salt, password),
		Email:          email,
		MailingAddress: mailingAddress,
	}

	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, database.ErrAccountExists) {
			return 0, ErrUserExists
		}
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	return account.AccountID, nil
}
