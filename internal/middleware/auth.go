package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slbhq/accounts/internal/models"
	"github.com/slbhq/accounts/internal/storage"
	"github.com/slbhq/accounts/internal/token"
)

type contextKey string

// accountIDKey carries the authenticated account id through the request
// context.
const accountIDKey contextKey = "account_id"

// AccountID returns the authenticated account id, or "" when the request
// did not pass Authenticate.
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// Authenticate validates the bearer access token and stores the account id
// in the request context.
func Authenticate(logger *slog.Logger, codec *token.Codec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("missing Authorization header")
				sendUnauthorized(w, "missing token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("invalid Authorization header format")
				sendUnauthorized(w, "invalid token format")
				return
			}

			claims, err := codec.VerifyAccess(parts[1])
			if err != nil {
				logger.Warn("invalid access token", "error", err)
				sendUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, claims.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates a handler on the admin role. Runs after Authenticate;
// the role is read from the ledger, not the token, so a demotion takes
// effect before the access token expires.
func RequireAdmin(logger *slog.Logger, accounts storage.AccountStorage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := AccountID(r.Context())
			if accountID == "" {
				sendUnauthorized(w, "missing token")
				return
			}

			account, err := accounts.GetAccountByID(r.Context(), accountID)
			if err != nil {
				logger.Warn("failed to load account for role check",
					"account_id", accountID, "error", err)
				sendUnauthorized(w, "invalid or expired token")
				return
			}

			if account.Role != models.RoleAdmin {
				logger.Warn("admin route denied", "account_id", accountID)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Forbidden","message":"admin access required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"` + message + `"}`))
}
