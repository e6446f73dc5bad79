package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/slbhq/accounts/internal/auth"
	"github.com/slbhq/accounts/internal/queue"
	"github.com/slbhq/accounts/pkg/api"
)

// AdminHandler serves the operator surface: account listing and queue
// introspection. Mounted behind Authenticate + RequireAdmin.
type AdminHandler struct {
	logger *slog.Logger
	svc    *auth.Service
	queue  queue.Queue
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(logger *slog.Logger, svc *auth.Service, q queue.Queue) *AdminHandler {
	return &AdminHandler{logger: logger, svc: svc, queue: q}
}

// ListAccounts handles GET /api/admin/accounts
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.svc.ListAccounts(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list accounts", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.AccountListResponse{
		Accounts: make([]api.Account, 0, len(accounts)),
		Total:    len(accounts),
	}
	for _, account := range accounts {
		resp.Accounts = append(resp.Accounts, toAPIAccount(account))
	}

	h.sendJSON(w, resp, http.StatusOK)
}

// QueueStats handles GET /api/admin/queue
// Failed jobs are parked, never pruned; a growing failed count is the
// operator's cue to look at the relay.
func (h *AdminHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read queue stats", slog.Any("error", err))
		h.sendError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, api.QueueStatsResponse{
		Pending:   stats.Pending,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	}, http.StatusOK)
}

func (h *AdminHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

func (h *AdminHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	h.sendJSON(w, api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}, statusCode)
}
