package storage

import (
	"context"

	"github.com/slbhq/accounts/internal/models"
)

// AccountStorage defines interface for account persistence
type AccountStorage interface {
	// CreateAccount creates a new account
	// Returns ErrEmailTaken if the email is already registered
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccountByEmail retrieves an account by its normalized email
	// Returns ErrAccountNotFound if it doesn't exist
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)

	// GetAccountByID retrieves an account by ID
	// Returns ErrAccountNotFound if it doesn't exist
	GetAccountByID(ctx context.Context, accountID string) (*models.Account, error)

	// ListAccounts returns all accounts ordered by creation time
	ListAccounts(ctx context.Context) ([]*models.Account, error)
}
