package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/slbhq/accounts/internal/apperr"
	"github.com/slbhq/accounts/internal/auth"
	"github.com/slbhq/accounts/internal/config"
	"github.com/slbhq/accounts/internal/handlers"
	"github.com/slbhq/accounts/internal/mailer"
	"github.com/slbhq/accounts/internal/models"
	"github.com/slbhq/accounts/internal/obs"
	"github.com/slbhq/accounts/internal/queue"
	"github.com/slbhq/accounts/internal/queue/boltq"
	"github.com/slbhq/accounts/internal/storage/sqlite"
	"github.com/slbhq/accounts/internal/token"
	"github.com/slbhq/accounts/internal/validation"
	"github.com/slbhq/accounts/internal/worker"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	seedAdmin := flag.Bool("seed-admin", false, "Create an admin account and exit")
	adminName := flag.String("admin-name", "", "Admin account name (with -seed-admin)")
	adminEmail := flag.String("admin-email", "", "Admin account email (with -seed-admin)")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(*seedAdmin, *adminName, *adminEmail); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(seedAdmin bool, adminName, adminEmail string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open account ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	if seedAdmin {
		return runSeedAdmin(ctx, store, adminName, adminEmail)
	}

	q, err := boltq.New(ctx, cfg.QueuePath)
	if err != nil {
		return fmt.Errorf("failed to open delivery queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	codec, err := token.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.VerificationSecret)
	if err != nil {
		return err
	}

	smtp, err := mailer.NewSMTP(cfg.SMTP)
	if err != nil {
		return err
	}

	obs.Init()

	svc := auth.New(logger, codec, store, store, store, q, cfg.FrontendURL)

	pool := worker.New(q, logger,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithEvents(obs.JobMetrics{}))
	pool.Register(queue.KindVerificationEmail, func(ctx context.Context, job *queue.Job) error {
		payload, err := queue.DecodeEmailPayload(job.Payload)
		if err != nil {
			return apperr.Wrap(apperr.KindPermanent, "undeliverable payload", err)
		}
		return smtp.Send(ctx, payload.To, payload.Subject, payload.HTML)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runPruner(ctx, logger, q)
	}()

	router := handlers.NewRouter(handlers.RouterConfig{
		Logger:   logger,
		Codec:    codec,
		Service:  svc,
		Queue:    q,
		Accounts: store,
		DB:       store,
		Version:  Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}

	// Workers drain their in-flight jobs before we close the stores.
	wg.Wait()

	logger.Info("stopped")
	return nil
}

// runPruner clears completed jobs past retention. Failed jobs are parked
// and stay for inspection.
func runPruner(ctx context.Context, logger *slog.Logger, q queue.Queue) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.PruneCompleted(ctx, queue.DefaultRetention)
			if err != nil {
				logger.Error("failed to prune completed jobs", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Info("pruned completed jobs", slog.Int("count", n))
			}
		}
	}
}

// runSeedAdmin creates a verified admin account, prompting for the password
// so it never lands in shell history.
func runSeedAdmin(ctx context.Context, store *sqlite.Storage, name, email string) error {
	if err := validation.ValidateName(name); err != nil {
		return fmt.Errorf("-admin-name: %w", err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return fmt.Errorf("-admin-email: %w", err)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if err := validation.ValidatePassword(string(password)); err != nil {
		return err
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        validation.NormalizeEmail(email),
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsVerified:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	fmt.Printf("Admin account created: %s (%s)\n", account.Email, account.ID)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("slb-accounts\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
