// Package api holds the wire types of the HTTP surface. Shared with
// clients, so only plain serializable structs live here.
package api

import "time"

// SignupRequest registers a new account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupResponse confirms registration. Verification happens out of band.
type SignupResponse struct {
	Message string  `json:"message"`
	Account Account `json:"account"`
}

// LoginRequest authenticates by email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the access token and the account. The refresh token
// travels only in the slb_refresh_token cookie, never in the body.
type LoginResponse struct {
	Message     string  `json:"message"`
	Account     Account `json:"account"`
	AccessToken string  `json:"slb_access_token"`
	ExpiresIn   int64   `json:"expires_in"` // access token lifetime in seconds
}

// RefreshResponse carries the re-minted access token.
type RefreshResponse struct {
	AccessToken string `json:"slb_access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Account is the caller-safe account projection. No password hash, ever.
type Account struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// MessageResponse is the generic success envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// AccountListResponse is the admin accounts listing.
type AccountListResponse struct {
	Accounts []Account `json:"accounts"`
	Total    int       `json:"total"`
}

// QueueStatsResponse is the admin view of the delivery queue.
type QueueStatsResponse struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
