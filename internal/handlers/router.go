package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/slbhq/accounts/internal/auth"
	"github.com/slbhq/accounts/internal/middleware"
	"github.com/slbhq/accounts/internal/obs"
	"github.com/slbhq/accounts/internal/queue"
	"github.com/slbhq/accounts/internal/storage"
	"github.com/slbhq/accounts/internal/token"
)

// RouterConfig collects everything the HTTP surface depends on.
type RouterConfig struct {
	Logger   *slog.Logger
	Codec    *token.Codec
	Service  *auth.Service
	Queue    queue.Queue
	Accounts storage.AccountStorage
	DB       Pinger
	Version  string

	// Throttle for the credential surfaces. Zero values mean 10 per minute.
	AuthRate   int
	AuthWindow time.Duration
}

// NewRouter builds the full handler tree: auth routes, admin routes behind
// the role gate, probes and the metrics scrape. Outermost layer is panic
// recovery, then request logging (probes and scrapes excluded), then
// metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	authHandler := NewAuthHandler(cfg.Logger, cfg.Service)
	adminHandler := NewAdminHandler(cfg.Logger, cfg.Service, cfg.Queue)
	healthHandler := NewHealthHandler(cfg.Logger, cfg.Version, cfg.DB)

	authenticate := middleware.Authenticate(cfg.Logger, cfg.Codec)
	requireAdmin := middleware.RequireAdmin(cfg.Logger, cfg.Accounts)

	rate, window := cfg.AuthRate, cfg.AuthWindow
	if rate <= 0 {
		rate = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	throttle := middleware.RateLimit(rate, window, cfg.Logger)

	mux := http.NewServeMux()

	mux.Handle("POST /api/auth/signup", throttle(http.HandlerFunc(authHandler.Signup)))
	mux.Handle("POST /api/auth/login", throttle(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/verify-email/{token}", authHandler.VerifyEmail)
	mux.Handle("POST /api/auth/request-verification",
		authenticate(http.HandlerFunc(authHandler.RequestVerification)))
	mux.Handle("GET /api/auth/me",
		authenticate(http.HandlerFunc(authHandler.Me)))

	mux.Handle("GET /api/admin/accounts",
		authenticate(requireAdmin(http.HandlerFunc(adminHandler.ListAccounts))))
	mux.Handle("GET /api/admin/queue",
		authenticate(requireAdmin(http.HandlerFunc(adminHandler.QueueStats))))

	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", obs.Handler())

	var handler http.Handler = obs.Instrument(mux)
	handler = middleware.LoggingWithSkip(cfg.Logger, []string{"/healthz", "/readyz", "/metrics"})(handler)
	handler = middleware.Recovery(cfg.Logger)(handler)
	return handler
}
