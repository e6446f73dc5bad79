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

// SaveVerification stores the pending verification token for an account,
// replacing any stale pending token
func (s *Storage) SaveVerification(ctx context.Context, verification *models.Verification) error {
	query := `
		INSERT OR REPLACE INTO verifications (account_id, token, expires_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		verification.AccountID,
		verification.Token,
		verification.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save verification: %w", err)
	}

	return nil
}

// ConsumeVerification marks the account verified and clears the pending
// record in one transaction.
func (s *Storage) ConsumeVerification(ctx context.Context, accountID, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var isVerified bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_verified FROM accounts WHERE id = ?`, accountID,
	).Scan(&isVerified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrVerificationNotFound
		}
		return fmt.Errorf("failed to get account: %w", err)
	}
	if isVerified {
		return storage.ErrAlreadyVerified
	}

	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT token FROM verifications WHERE account_id = ?`, accountID,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrVerificationNotFound
		}
		return fmt.Errorf("failed to get verification: %w", err)
	}
	// A cryptographically valid but superseded token must not verify.
	if stored != token {
		return storage.ErrVerificationMismatch
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET is_verified = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), accountID,
	); err != nil {
		return fmt.Errorf("failed to mark account verified: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM verifications WHERE account_id = ?`, accountID,
	); err != nil {
		return fmt.Errorf("failed to clear verification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
