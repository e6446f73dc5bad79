// Package handlers exposes the HTTP surface. Handlers decode, delegate to
// the auth service and encode; every decision about credentials lives in
// the service.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/slbhq/accounts/internal/apperr"
	"github.com/slbhq/accounts/internal/auth"
	"github.com/slbhq/accounts/internal/middleware"
	"github.com/slbhq/accounts/internal/models"
	"github.com/slbhq/accounts/pkg/api"
)

// RefreshCookie is the cookie carrying the refresh token. HttpOnly and
// SameSite=Strict: scripts never see it and cross-site requests never send
// it. Scoped to the auth routes.
const (
	RefreshCookie     = "slb_refresh_token"
	refreshCookiePath = "/api/auth"
)

// AuthHandler serves the account lifecycle routes.
type AuthHandler struct {
	logger *slog.Logger
	svc    *auth.Service
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(logger *slog.Logger, svc *auth.Service) *AuthHandler {
	return &AuthHandler{logger: logger, svc: svc}
}

// Signup handles POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode signup request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.svc.Signup(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		h.sendServiceError(ctx, w, err)
		return
	}

	h.sendJSON(w, api.SignupResponse{
		Message: "Signup successful. Please check your email to verify your account.",
		Account: toAPIAccount(account),
	}, http.StatusCreated)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		h.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	account, pair, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.sendServiceError(ctx, w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	h.sendJSON(w, api.LoginResponse{
		Message:     "Login successful",
		Account:     toAPIAccount(account),
		AccessToken: pair.Access,
		ExpiresIn:   int64(pair.AccessTTL.Seconds()),
	}, http.StatusOK)
}

// Refresh handles POST /api/auth/refresh
// Rotates the refresh cookie and re-mints the access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		h.sendError(w, "refresh token is required", http.StatusUnauthorized)
		return
	}

	pair, err := h.svc.Refresh(ctx, cookie.Value)
	if err != nil {
		// A refused refresh leaves the cookie alone: on replay the live
		// session elsewhere keeps its still-valid cookie.
		h.sendServiceError(ctx, w, err)
		return
	}

	h.setRefreshCookie(w, pair)
	h.sendJSON(w, api.RefreshResponse{
		AccessToken: pair.Access,
		ExpiresIn:   int64(pair.AccessTTL.Seconds()),
	}, http.StatusOK)
}

// Logout handles POST /api/auth/logout
// Always 200: the outcome is the same for the caller either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		h.svc.Logout(r.Context(), cookie.Value)
	}

	h.clearRefreshCookie(w)
	h.sendJSON(w, api.MessageResponse{Message: "Logged out successfully"}, http.StatusOK)
}

// VerifyEmail handles GET /api/auth/verify-email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.svc.VerifyEmail(ctx, r.PathValue("token")); err != nil {
		h.sendServiceError(ctx, w, err)
		return
	}

	h.sendJSON(w, api.MessageResponse{Message: "Email verified successfully"}, http.StatusOK)
}

// RequestVerification handles POST /api/auth/request-verification
// Authenticated: mints a fresh link for the caller's own account.
func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.svc.RequestVerification(ctx, middleware.AccountID(ctx)); err != nil {
		h.sendServiceError(ctx, w, err)
		return
	}

	h.sendJSON(w, api.MessageResponse{
		Message: "Verification email queued. Please check your inbox.",
	}, http.StatusAccepted)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	account, err := h.svc.Profile(ctx, middleware.AccountID(ctx))
	if err != nil {
		h.sendServiceError(ctx, w, err)
		return
	}

	h.sendJSON(w, toAPIAccount(account), http.StatusOK)
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, pair *auth.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    pair.Refresh,
		Path:     refreshCookiePath,
		MaxAge:   int(pair.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// sendServiceError maps a classified service error onto the wire. The full
// cause goes to the log; the caller gets the safe message only.
func (h *AuthHandler) sendServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	if status >= 500 {
		h.logger.ErrorContext(ctx, "request failed", slog.Any("error", err))
	} else {
		h.logger.WarnContext(ctx, "request rejected", slog.Any("error", err))
	}
	h.sendError(w, apperr.Message(err), status)
}

func toAPIAccount(a *models.Account) api.Account {
	return api.Account{
		ID:         a.ID,
		Name:       a.Name,
		Email:      a.Email,
		Role:       a.Role,
		IsVerified: a.IsVerified,
		CreatedAt:  a.CreatedAt,
	}
}

// sendJSON writes a JSON response.
func (h *AuthHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError writes a JSON error response.
func (h *AuthHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}
