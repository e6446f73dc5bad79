package models

import "time"

// Account roles. There is no role hierarchy: admin is checked literally.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account represents a registered account
type Account struct {
	ID           string    `json:"id"`            // UUID
	Name         string    `json:"name"`          // display name
	Email        string    `json:"email"`         // unique, lowercased
	PasswordHash string    `json:"-"`             // bcrypt hash, never serialized
	Role         string    `json:"role"`          // RoleUser or RoleAdmin
	IsVerified   bool      `json:"is_verified"`   // email ownership proven
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshSession is the single refresh-token slot of an account.
// At most one live refresh token exists per account; login overwrites it,
// refresh rotates it, logout clears it.
type RefreshSession struct {
	AccountID string    `json:"account_id"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Verification is the single pending email-verification token of an account.
// Consuming it flips Account.IsVerified and removes the record atomically.
type Verification struct {
	AccountID string    `json:"account_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
