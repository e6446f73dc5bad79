package storage

import (
	"context"
	"time"

	"github.com/slbhq/accounts/internal/models"
)

// SessionStorage defines interface for the per-account refresh-token slot.
// Every account has at most one slot; all refresh-token state transitions
// go through this interface.
type SessionStorage interface {
	// SaveSession stores the refresh session for an account, replacing any
	// existing slot (login: only one live session per account)
	SaveSession(ctx context.Context, session *models.RefreshSession) error

	// GetSession retrieves the current refresh session of an account
	// Returns ErrSessionNotFound if the slot is absent
	GetSession(ctx context.Context, accountID string) (*models.RefreshSession, error)

	// RotateSession atomically replaces oldToken with newToken in the
	// account's slot. The swap only happens when the stored value still
	// equals oldToken; otherwise ErrSessionMismatch is returned and the
	// slot is left untouched. Of two concurrent rotations with the same
	// valid token, exactly one succeeds.
	RotateSession(ctx context.Context, accountID, oldToken, newToken string, issuedAt time.Time) error

	// DeleteSession clears the account's slot (logout)
	// Idempotent: absent slot is not an error
	DeleteSession(ctx context.Context, accountID string) error
}
