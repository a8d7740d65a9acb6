package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/zealess/doj-backend/internal/account"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("account already exists")
	ErrMissingFields      = errors.New("missing required fields")
)

// Service owns registration and password authentication. It never
// touches Discord or structural fields; those stay at their schema
// defaults until the link flow or profile update writes them.
type Service struct {
	accounts account.Store
}

func NewService(accounts account.Store) *Service {
	return &Service{accounts: accounts}
}

func (s *Service) Register(
	ctx context.Context,
	username string,
	email string,
	password string,
) (*account.Account, error) {

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || password == "" {
		return nil, ErrMissingFields
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	acc := &account.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
	}

	err = s.accounts.Create(ctx, acc)
	if errors.Is(err, account.ErrAlreadyExists) {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, err
	}

	return acc, nil
}

func (s *Service) Authenticate(
	ctx context.Context,
	identifier string,
	password string,
) (*account.Account, error) {

	acc, err := s.accounts.GetByLogin(ctx, identifier)
	if err != nil {
		// hide whether the account exists or not
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return acc, nil
}
