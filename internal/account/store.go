package account

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrAlreadyExists = errors.New("account already exists")
)

// Store persists accounts. Updates replace the whole record: the write
// discipline is read, mutate in memory, write back. Concurrent writes
// to the same account are last-writer-wins.
type Store interface {
	Create(ctx context.Context, acc *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	// GetByLogin matches the identifier against username or email,
	// case-insensitively.
	GetByLogin(ctx context.Context, identifier string) (*Account, error)
	GetByDiscordID(ctx context.Context, discordID string) (*Account, error)
	Update(ctx context.Context, acc *Account) error
}
