// Package boltq implements the delivery queue on BoltDB. Jobs live in one
// bucket keyed by ULID (creation order for cursor scans); a second bucket
// maps idempotency keys to job ids. Bolt serializes write transactions, so
// claim, ack and fail are atomic without any in-process locking.
package boltq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/slbhq/accounts/internal/ids"
	"github.com/slbhq/accounts/internal/queue"
)

var (
	// BoltDB bucket names
	bucketJobs = []byte("jobs")
	bucketKeys = []byte("job_keys")
)

// Store is a BoltDB-backed queue.Queue.
type Store struct {
	db *bbolt.DB

	maxAttempts int
	backoffBase time.Duration
	leaseTTL    time.Duration
	now         func() time.Time
}

var _ queue.Queue = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPolicy overrides retry policy. Zero values keep the defaults.
func WithPolicy(maxAttempts int, backoffBase, leaseTTL time.Duration) Option {
	return func(s *Store) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if backoffBase > 0 {
			s.backoffBase = backoffBase
		}
		if leaseTTL > 0 {
			s.leaseTTL = leaseTTL
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates a BoltDB queue store.
// dbPath is the path to the BoltDB database file.
func New(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	store := &Store{
		db:          db,
		maxAttempts: queue.DefaultMaxAttempts,
		backoffBase: queue.DefaultBackoffBase,
		leaseTTL:    queue.DefaultLeaseTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketJobs); err != nil {
			return fmt.Errorf("failed to create jobs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketKeys); err != nil {
			return fmt.Errorf("failed to create job_keys bucket: %w", err)
		}
		return nil
	})
}

// Enqueue creates a pending job, or returns the already-tracked job when
// the idempotency key is known. The bool reports whether a job was created.
func (s *Store) Enqueue(ctx context.Context, kind string, payload any, key string) (*queue.Job, bool, error) {
	data, err := queue.MarshalPayload(payload)
	if err != nil {
		return nil, false, err
	}

	var job *queue.Job
	inserted := false
	err = s.db.Update(func(tx *bbolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		keys := tx.Bucket(bucketKeys)

		if key != "" {
			if existingID := keys.Get([]byte(key)); existingID != nil {
				existing, err := getJob(jobs, string(existingID))
				if err != nil {
					return err
				}
				job = existing
				return nil
			}
		}

		now := s.now().UTC()
		job = &queue.Job{
			ID:          ids.New(),
			Key:         key,
			Kind:        kind,
			Payload:     data,
			Status:      queue.StatusPending,
			MaxAttempts: s.maxAttempts,
			CreatedAt:   now,
			UpdatedAt:   now,
			NextRunAt:   now,
		}
		if err := putJob(jobs, job); err != nil {
			return err
		}
		if key != "" {
			if err := keys.Put([]byte(key), []byte(job.ID)); err != nil {
				return fmt.Errorf("failed to index idempotency key: %w", err)
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return job, inserted, nil
}

// Claim transitions one ready job to active under a visibility lease.
func (s *Store) Claim(ctx context.Context) (*queue.Job, error) {
	var claimed *queue.Job
	err := s.db.Update(func(tx *bbolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		now := s.now().UTC()

		c := jobs.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			job := &queue.Job{}
			if err := json.Unmarshal(v, job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			if !claimable(job, now) {
				continue
			}
			job.Status = queue.StatusActive
			job.LeaseUntil = now.Add(s.leaseTTL)
			job.UpdatedAt = now
			if err := putJob(jobs, job); err != nil {
				return err
			}
			claimed = job
			return nil
		}
		return queue.ErrNoJob
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func claimable(job *queue.Job, now time.Time) bool {
	switch job.Status {
	case queue.StatusPending:
		return !job.NextRunAt.After(now)
	case queue.StatusActive:
		// Expired lease: the claiming worker crashed or stalled, the job
		// is reclaimable (at-least-once delivery).
		return !job.LeaseUntil.After(now)
	default:
		return false
	}
}

// Ack marks an active job completed.
func (s *Store) Ack(ctx context.Context, jobID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		job, err := getJob(jobs, jobID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		job.Status = queue.StatusCompleted
		job.LeaseUntil = time.Time{}
		job.CompletedAt = &now
		job.UpdatedAt = now
		return putJob(jobs, job)
	})
}

// Fail records a processing failure: reschedule with backoff, or park as
// failed when the error is permanent or the attempt budget is spent.
func (s *Store) Fail(ctx context.Context, jobID string, cause error, permanent bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		job, err := getJob(jobs, jobID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		job.Attempts++
		job.LeaseUntil = time.Time{}
		job.UpdatedAt = now
		if cause != nil {
			job.LastError = cause.Error()
		}

		if permanent || job.Attempts >= job.MaxAttempts {
			job.Status = queue.StatusFailed
		} else {
			job.Status = queue.StatusPending
			job.NextRunAt = now.Add(queue.Backoff(s.backoffBase, job.Attempts))
		}
		return putJob(jobs, job)
	})
}

// PruneCompleted removes completed jobs older than the retention window.
func (s *Store) PruneCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	pruned := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		keys := tx.Bucket(bucketKeys)
		cutoff := s.now().UTC().Add(-olderThan)

		c := jobs.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			job := &queue.Job{}
			if err := json.Unmarshal(v, job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			if job.Status != queue.StatusCompleted {
				continue
			}
			if job.CompletedAt == nil || job.CompletedAt.After(cutoff) {
				continue
			}
			if err := c.Delete(); err != nil {
				return fmt.Errorf("failed to delete job: %w", err)
			}
			if job.Key != "" {
				if err := keys.Delete([]byte(job.Key)); err != nil {
					return fmt.Errorf("failed to delete idempotency key: %w", err)
				}
			}
			pruned++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

// Stats counts jobs per status.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	var stats queue.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		jobs := tx.Bucket(bucketJobs)
		return jobs.ForEach(func(k, v []byte) error {
			job := &queue.Job{}
			if err := json.Unmarshal(v, job); err != nil {
				return fmt.Errorf("failed to unmarshal job %s: %w", k, err)
			}
			switch job.Status {
			case queue.StatusPending:
				stats.Pending++
			case queue.StatusActive:
				stats.Active++
			case queue.StatusCompleted:
				stats.Completed++
			case queue.StatusFailed:
				stats.Failed++
			}
			return nil
		})
	})
	if err != nil {
		return queue.Stats{}, err
	}
	return stats, nil
}

func getJob(jobs *bbolt.Bucket, jobID string) (*queue.Job, error) {
	data := jobs.Get([]byte(jobID))
	if data == nil {
		return nil, queue.ErrJobNotFound
	}
	job := &queue.Job{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}

func putJob(jobs *bbolt.Bucket, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := jobs.Put([]byte(job.ID), data); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}
