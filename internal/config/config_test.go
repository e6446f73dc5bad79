package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "accounts.db", cfg.DBPath)
	assert.Equal(t, "queue.db", cfg.QueuePath)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.Equal(t, 587, cfg.SMTP.Port)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SLB_ADDR", ":9090")
	t.Setenv("SLB_WORKER_CONCURRENCY", "10")
	t.Setenv("SLB_SMTP_PORT", "465")
	t.Setenv("SLB_SMTP_HOST", "smtp.example.com")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("SLB_WORKER_CONCURRENCY", "many")

	cfg := Load()
	assert.Equal(t, 5, cfg.WorkerConcurrency)
}

func TestValidate(t *testing.T) {
	t.Setenv("SLB_ACCESS_SECRET", "a")
	t.Setenv("SLB_REFRESH_SECRET", "b")
	t.Setenv("SLB_VERIFICATION_SECRET", "c")
	t.Setenv("SLB_SMTP_HOST", "smtp.example.com")
	t.Setenv("SLB_SMTP_FROM", "noreply@example.com")

	require.NoError(t, Load().Validate())
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLB_ACCESS_SECRET")
	assert.Contains(t, err.Error(), "SLB_SMTP_FROM")
}
