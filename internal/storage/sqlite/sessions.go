package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slbhq/accounts/internal/models"
	"github.com/slbhq/accounts/internal/storage"
)

// SaveSession stores the refresh session for an account, replacing any
// existing slot
func (s *Storage) SaveSession(ctx context.Context, session *models.RefreshSession) error {
	query := `
		INSERT OR REPLACE INTO refresh_sessions (account_id, token, issued_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.AccountID,
		session.Token,
		session.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh session: %w", err)
	}

	return nil
}

// GetSession retrieves the current refresh session of an account
func (s *Storage) GetSession(ctx context.Context, accountID string) (*models.RefreshSession, error) {
	query := `
		SELECT account_id, token, issued_at
		FROM refresh_sessions
		WHERE account_id = ?
	`

	session := &models.RefreshSession{}
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(
		&session.AccountID,
		&session.Token,
		&session.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get refresh session: %w", err)
	}

	return session, nil
}

// RotateSession atomically replaces oldToken with newToken in the account's
// slot. The UPDATE is keyed on (account_id, token): if a concurrent refresh
// already rotated the slot, or the presented token was never the slot value,
// zero rows match and ErrSessionMismatch is returned.
func (s *Storage) RotateSession(ctx context.Context, accountID, oldToken, newToken string, issuedAt time.Time) error {
	query := `
		UPDATE refresh_sessions
		SET token = ?, issued_at = ?
		WHERE account_id = ? AND token = ?
	`

	result, err := s.db.ExecContext(ctx, query, newToken, issuedAt, accountID, oldToken)
	if err != nil {
		return fmt.Errorf("failed to rotate refresh session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrSessionMismatch
	}

	return nil
}

// DeleteSession clears the account's slot. Idempotent.
func (s *Storage) DeleteSession(ctx context.Context, accountID string) error {
	query := `DELETE FROM refresh_sessions WHERE account_id = ?`

	if _, err := s.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete refresh session: %w", err)
	}

	return nil
}
