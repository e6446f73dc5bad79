package storage

import (
	"context"

	"github.com/slbhq/accounts/internal/models"
)

// VerificationStorage defines interface for the single-use email
// verification record of an account.
type VerificationStorage interface {
	// SaveVerification stores the pending verification token for an account,
	// replacing any stale pending token
	SaveVerification(ctx context.Context, verification *models.Verification) error

	// ConsumeVerification atomically marks the account verified and clears
	// the pending record. Fails with:
	//   ErrVerificationNotFound  - account or pending record missing
	//   ErrAlreadyVerified       - account already verified
	//   ErrVerificationMismatch  - stored token differs from the presented one
	// The flag flip and the record removal are a single transaction: a
	// concurrent consume attempt can never observe one without the other.
	ConsumeVerification(ctx context.Context, accountID, token string) error
}
