// Package queue defines the durable delivery queue contract: idempotent
// enqueue, claim with a visibility lease, ack/fail with retry backoff and
// failure parking.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job lifecycle states.
const (
	// StatusPending - created or rescheduled, waiting to be claimed
	StatusPending = "pending"
	// StatusActive - claimed by a worker, protected by a lease
	StatusActive = "active"
	// StatusCompleted - processed successfully, pruned after retention
	StatusCompleted = "completed"
	// StatusFailed - retries exhausted or permanent error; parked for
	// operator inspection, never pruned
	StatusFailed = "failed"
)

// Delivery policy defaults, matching the queue configuration this service
// always ran with: up to 3 attempts, exponential backoff from 5s, completed
// jobs kept for an hour, failed jobs kept forever.
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 5 * time.Second
	DefaultLeaseTTL    = time.Minute
	DefaultRetention   = time.Hour
)

var (
	// ErrNoJob indicates that no job is ready to claim
	ErrNoJob = errors.New("no job ready")

	// ErrJobNotFound indicates an ack/fail for an unknown job id
	ErrJobNotFound = errors.New("job not found")
)

// Job is a unit of asynchronous work.
type Job struct {
	ID          string          `json:"id"`           // ULID, sortable by creation
	Key         string          `json:"key"`          // idempotency key, unique
	Kind        string          `json:"kind"`         // dispatch tag
	Payload     json.RawMessage `json:"payload"`      // kind-specific, see payload types
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`     // failed processing attempts so far
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	NextRunAt   time.Time       `json:"next_run_at"`
	LeaseUntil  time.Time       `json:"lease_until,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Stats is a per-status snapshot of the job table.
type Stats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Queue is the durable job store shared by producers and the worker pool.
// Claim/Ack/Fail give at-least-once delivery: a claimed job whose lease
// expires before ack or fail becomes claimable again, so handlers must
// tolerate duplicate execution.
type Queue interface {
	// Enqueue creates a pending job and reports true. If a job with the
	// same idempotency key already exists in any state the call is a no-op
	// returning the existing job and false, so callers can tell whether
	// their payload is the one that will be delivered.
	Enqueue(ctx context.Context, kind string, payload any, key string) (*Job, bool, error)

	// Claim transitions one ready job to active under a visibility lease.
	// Ready means pending with next_run_at due, or active with an expired
	// lease (reclaim after a worker crash). Returns ErrNoJob when nothing
	// is ready.
	Claim(ctx context.Context) (*Job, error)

	// Ack marks an active job completed.
	Ack(ctx context.Context, jobID string) error

	// Fail records a processing failure. Transient failures are rescheduled
	// with exponential backoff until MaxAttempts, then parked as failed;
	// permanent failures are parked immediately.
	Fail(ctx context.Context, jobID string, cause error, permanent bool) error

	// PruneCompleted removes completed jobs older than the retention window
	// and returns the number removed. Failed jobs are never pruned.
	PruneCompleted(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats counts jobs per status.
	Stats(ctx context.Context) (Stats, error)
}

// Backoff returns the delay before retry number attempt (1-based):
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// MarshalPayload encodes a typed payload for Enqueue.
func MarshalPayload(payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}
