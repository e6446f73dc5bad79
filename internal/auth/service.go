// Package auth orchestrates the account lifecycle: signup with email
// verification, login, refresh token rotation and logout. Handlers stay
// thin; every rule about credentials and sessions lives here.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/slbhq/accounts/internal/apperr"
	"github.com/slbhq/accounts/internal/mailer"
	"github.com/slbhq/accounts/internal/models"
	"github.com/slbhq/accounts/internal/queue"
	"github.com/slbhq/accounts/internal/storage"
	"github.com/slbhq/accounts/internal/token"
	"github.com/slbhq/accounts/internal/validation"
)

// Service implements the account lifecycle against the storage ledgers and
// the delivery queue.
type Service struct {
	logger        *slog.Logger
	codec         *token.Codec
	accounts      storage.AccountStorage
	sessions      storage.SessionStorage
	verifications storage.VerificationStorage
	queue         queue.Queue
	frontendURL   string
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates the auth service. frontendURL is the origin the verification
// link points at.
func New(
	logger *slog.Logger,
	codec *token.Codec,
	accounts storage.AccountStorage,
	sessions storage.SessionStorage,
	verifications storage.VerificationStorage,
	q queue.Queue,
	frontendURL string,
	opts ...Option,
) *Service {
	s := &Service{
		logger:        logger,
		codec:         codec,
		accounts:      accounts,
		sessions:      sessions,
		verifications: verifications,
		queue:         q,
		frontendURL:   frontendURL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers an account and queues the verification email. The new
// account starts unverified; verification arrives out of band.
func (s *Service) Signup(ctx context.Context, name, email, password string) (*models.Account, error) {
	// Normalize first: "  ALICE@x " and "alice@x" are the same address and
	// must take the same path, duplicate detection included.
	email = validation.NormalizeEmail(email)

	if err := validation.ValidateName(name); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err.Error(), err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return nil, apperr.Wrap(apperr.KindConflict, "email already in use", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email))

	if err := s.queueVerification(ctx, account); err != nil {
		// The account exists; the user can request a fresh link later.
		s.logger.ErrorContext(ctx, "failed to queue verification email",
			slog.String("account_id", account.ID), slog.Any("error", err))
	}

	return account, nil
}

// Login checks credentials and opens a session. An unverified account may
// log in; verification only gates features that need a proven address.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Account, *TokenPair, error) {
	email = validation.NormalizeEmail(email)

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			// Same answer as a wrong password: no account enumeration.
			return nil, nil, apperr.Wrap(apperr.KindAuth, "invalid credentials", err)
		}
		return nil, nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	if !CheckPassword(password, account.PasswordHash) {
		return nil, nil, apperr.New(apperr.KindAuth, "invalid credentials")
	}

	pair, err := s.issuePair(account.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	if err := s.sessions.SaveSession(ctx, &models.RefreshSession{
		AccountID: account.ID,
		Token:     pair.Refresh,
		IssuedAt:  s.now().UTC(),
	}); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	s.logger.InfoContext(ctx, "account logged in", slog.String("account_id", account.ID))
	return account, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair, rotating the
// session slot. A token that verifies but does not match the slot is a
// replay (already rotated, or theft): the request is refused and the slot
// is left alone, so the legitimate holder keeps working.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, apperr.New(apperr.KindAuth, "refresh token is required")
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindForbidden, "invalid refresh token", err)
	}

	pair, err := s.issuePair(claims.AccountID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	err = s.sessions.RotateSession(ctx, claims.AccountID, refreshToken, pair.Refresh, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrSessionMismatch) {
			s.logger.WarnContext(ctx, "refresh token replay detected",
				slog.String("account_id", claims.AccountID))
			return nil, apperr.Wrap(apperr.KindForbidden, "invalid refresh token", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("account_id", claims.AccountID))
	return pair, nil
}

// Logout closes the session named by the refresh token. Best effort by
// contract: an absent, expired or garbled token still logs the caller out,
// so the cookie always gets cleared.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.WarnContext(ctx, "logout with unusable refresh token", slog.Any("error", err))
		return
	}
	if err := s.sessions.DeleteSession(ctx, claims.AccountID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete session",
			slog.String("account_id", claims.AccountID), slog.Any("error", err))
		return
	}
	s.logger.InfoContext(ctx, "account logged out", slog.String("account_id", claims.AccountID))
}

// VerifyEmail consumes a verification token: flips the account to verified
// and retires the token in one step.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) error {
	if verificationToken == "" {
		return apperr.New(apperr.KindValidation, "token is required")
	}

	claims, err := s.codec.VerifyVerification(verificationToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return apperr.Wrap(apperr.KindValidation, "verification link expired, request a new one", err)
		}
		return apperr.Wrap(apperr.KindValidation, "invalid verification token", err)
	}

	if err := s.verifications.ConsumeVerification(ctx, claims.AccountID, verificationToken); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyVerified):
			return apperr.Wrap(apperr.KindValidation, "email already verified", err)
		case errors.Is(err, storage.ErrVerificationNotFound), errors.Is(err, storage.ErrVerificationMismatch):
			// Superseded by a newer link, or never issued.
			return apperr.Wrap(apperr.KindValidation, "invalid verification token", err)
		default:
			return apperr.Wrap(apperr.KindInternal, "internal server error", err)
		}
	}

	s.logger.InfoContext(ctx, "email verified", slog.String("account_id", claims.AccountID))
	return nil
}

// RequestVerification issues a fresh verification link for an unverified
// account. While a mail for the account is still tracked by the queue the
// call is a no-op: the link already in flight stays the valid one.
func (s *Service) RequestVerification(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return apperr.Wrap(apperr.KindNotFound, "account not found", err)
		}
		return apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	if account.IsVerified {
		return apperr.New(apperr.KindConflict, "email already verified")
	}

	if err := s.queueVerification(ctx, account); err != nil {
		return apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	return nil
}

// Profile returns the account behind an access token subject.
func (s *Service) Profile(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, "account not found", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	return account, nil
}

// ListAccounts returns all accounts. Admin surface.
func (s *Service) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	return accounts, nil
}

// TokenPair is the product of login and refresh.
type TokenPair struct {
	Access     string
	Refresh    string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s *Service) issuePair(accountID string) (*TokenPair, error) {
	access, err := s.codec.IssueAccess(accountID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefresh(accountID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		Access:     access,
		Refresh:    refresh,
		AccessTTL:  s.codec.AccessTTL(),
		RefreshTTL: s.codec.RefreshTTL(),
	}, nil
}

// queueVerification mints a verification token, enqueues the email and,
// only when a job was actually created, records the token. The idempotency
// key is per account: while a mail is already tracked for this address the
// enqueue is a no-op, and the token on record must stay the one that mail
// carries, or its link would go dead with no replacement sent.
func (s *Service) queueVerification(ctx context.Context, account *models.Account) error {
	verificationToken, err := s.codec.IssueVerification(account.ID, account.Email)
	if err != nil {
		return err
	}

	subject, html, err := mailer.VerificationEmail(s.frontendURL, account.Name, verificationToken)
	if err != nil {
		return err
	}

	_, inserted, err := s.queue.Enqueue(ctx, queue.KindVerificationEmail, &queue.EmailPayload{
		To:      account.Email,
		Subject: subject,
		HTML:    html,
	}, queue.VerificationKey(account.ID))
	if err != nil {
		return err
	}
	if !inserted {
		s.logger.InfoContext(ctx, "verification email already queued",
			slog.String("account_id", account.ID))
		return nil
	}

	return s.verifications.SaveVerification(ctx, &models.Verification{
		AccountID: account.ID,
		Token:     verificationToken,
		ExpiresAt: s.now().UTC().Add(s.codec.VerificationTTL()),
	})
}
