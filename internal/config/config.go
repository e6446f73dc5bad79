// Package config loads the service configuration from SLB_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/slbhq/accounts/internal/mailer"
	"github.com/slbhq/accounts/internal/worker"
)

// Config is the full service configuration.
type Config struct {
	Addr        string // listen address
	DBPath      string // sqlite ledger file
	QueuePath   string // boltdb queue file
	FrontendURL string // origin the verification link points at
	LogLevel    string // debug, info, warn, error

	AccessSecret       string
	RefreshSecret      string
	VerificationSecret string

	WorkerConcurrency int

	SMTP mailer.SMTPConfig
}

// Load reads the configuration from the environment. Missing optional
// values fall back to defaults; Validate catches the required ones.
func Load() *Config {
	return &Config{
		Addr:        envString("SLB_ADDR", ":8080"),
		DBPath:      envString("SLB_DB_PATH", "accounts.db"),
		QueuePath:   envString("SLB_QUEUE_PATH", "queue.db"),
		FrontendURL: envString("SLB_FRONTEND_URL", "http://localhost:3000"),
		LogLevel:    envString("SLB_LOG_LEVEL", "info"),

		AccessSecret:       os.Getenv("SLB_ACCESS_SECRET"),
		RefreshSecret:      os.Getenv("SLB_REFRESH_SECRET"),
		VerificationSecret: os.Getenv("SLB_VERIFICATION_SECRET"),

		WorkerConcurrency: envInt("SLB_WORKER_CONCURRENCY", worker.DefaultConcurrency),

		SMTP: mailer.SMTPConfig{
			Host:     os.Getenv("SLB_SMTP_HOST"),
			Port:     envInt("SLB_SMTP_PORT", 587),
			Username: os.Getenv("SLB_SMTP_USER"),
			Password: os.Getenv("SLB_SMTP_PASS"),
			From:     os.Getenv("SLB_SMTP_FROM"),
		},
	}
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.AccessSecret == "" {
		missing = append(missing, "SLB_ACCESS_SECRET")
	}
	if c.RefreshSecret == "" {
		missing = append(missing, "SLB_REFRESH_SECRET")
	}
	if c.VerificationSecret == "" {
		missing = append(missing, "SLB_VERIFICATION_SECRET")
	}
	if c.SMTP.Host == "" {
		missing = append(missing, "SLB_SMTP_HOST")
	}
	if c.SMTP.From == "" {
		missing = append(missing, "SLB_SMTP_FROM")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
