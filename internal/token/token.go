// Package token signs and verifies the three credential classes: access,
// refresh and verification. Each class has its own signing secret, so a
// leaked secret for one class cannot forge tokens of another. The codec is
// pure: no storage, no side effects, only secret + clock.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes.
const (
	DefaultAccessTTL       = time.Hour
	DefaultRefreshTTL      = 7 * 24 * time.Hour
	DefaultVerificationTTL = 15 * time.Minute
)

const issuer = "slb-accounts"

// Verification failures. Expired and malformed are distinct error kinds so
// callers can give different feedback (e.g. "link expired, request a new
// one" vs a generic rejection).
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
)

// AccessClaims authorize API calls. Not persisted server-side.
type AccessClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// RefreshClaims are exchanged for a new token pair. The token value itself
// is additionally checked against the session ledger by the caller.
type RefreshClaims struct {
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// VerificationClaims prove control of an email address.
type VerificationClaims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed credentials.
type Codec struct {
	accessSecret       []byte
	refreshSecret      []byte
	verificationSecret []byte

	accessTTL       time.Duration
	refreshTTL      time.Duration
	verificationTTL time.Duration

	now func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithTTLs overrides token lifetimes. Zero values keep the defaults.
func WithTTLs(access, refresh, verification time.Duration) Option {
	return func(c *Codec) {
		if access > 0 {
			c.accessTTL = access
		}
		if refresh > 0 {
			c.refreshTTL = refresh
		}
		if verification > 0 {
			c.verificationTTL = verification
		}
	}
}

// NewCodec creates a codec with one secret per credential class.
func NewCodec(accessSecret, refreshSecret, verificationSecret string, opts ...Option) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" || verificationSecret == "" {
		return nil, errors.New("token: all three signing secrets are required")
	}
	c := &Codec{
		accessSecret:       []byte(accessSecret),
		refreshSecret:      []byte(refreshSecret),
		verificationSecret: []byte(verificationSecret),
		accessTTL:          DefaultAccessTTL,
		refreshTTL:         DefaultRefreshTTL,
		verificationTTL:    DefaultVerificationTTL,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// VerificationTTL returns the configured verification token lifetime.
func (c *Codec) VerificationTTL() time.Duration { return c.verificationTTL }

// IssueAccess mints a short-lived access token for an account.
func (c *Codec) IssueAccess(accountID string) (string, error) {
	claims := AccessClaims{
		AccountID:        accountID,
		RegisteredClaims: c.registered(accountID, c.accessTTL),
	}
	return c.sign(claims, c.accessSecret)
}

// IssueRefresh mints a long-lived refresh token for an account.
func (c *Codec) IssueRefresh(accountID string) (string, error) {
	claims := RefreshClaims{
		AccountID:        accountID,
		RegisteredClaims: c.registered(accountID, c.refreshTTL),
	}
	return c.sign(claims, c.refreshSecret)
}

// IssueVerification mints a single-use email verification token.
func (c *Codec) IssueVerification(accountID, email string) (string, error) {
	claims := VerificationClaims{
		AccountID:        accountID,
		Email:            email,
		RegisteredClaims: c.registered(accountID, c.verificationTTL),
	}
	return c.sign(claims, c.verificationSecret)
}

// VerifyAccess validates an access token and returns its claims.
func (c *Codec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenString, claims, c.accessSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenString, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyVerification validates an email verification token and returns its
// claims.
func (c *Codec) VerifyVerification(tokenString string) (*VerificationClaims, error) {
	claims := &VerificationClaims{}
	if err := c.parse(tokenString, claims, c.verificationSecret); err != nil {
		return nil, err
	}
	if claims.AccountID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (c *Codec) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	// The jti keeps two tokens minted within the same second distinct;
	// rotation depends on the new refresh token differing from the old.
	now := c.now()
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) sign(claims jwt.Claims, secret []byte) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenMalformed
	}
	if !tok.Valid {
		return ErrTokenMalformed
	}
	return nil
}
