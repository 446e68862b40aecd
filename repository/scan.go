package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vinolens/vinolens-analyzer/entity"
	"github.com/vinolens/vinolens-analyzer/infra"
)

var (
	// ErrJobExists is returned by Create when the job id is already present.
	ErrJobExists = errors.New("scan job already exists")
	// ErrJobNotFound covers both an unknown id and an expired record; the
	// store cannot tell the two apart.
	ErrJobNotFound = errors.New("scan job not found")
	// ErrTerminalState is returned when a write would move a terminal job.
	ErrTerminalState = errors.New("scan job is in a terminal state")
	// ErrInvalidTransition is returned for any other illegal status change.
	ErrInvalidTransition = errors.New("invalid scan status transition")
	// ErrEntryTooLarge is returned when a record exceeds the per-entry
	// size ceiling of the store.
	ErrEntryTooLarge = errors.New("record exceeds store entry size limit")
)

// ScanRepository is the job store. Redis is the sole coordination channel
// between the trigger and the worker; every write merges fields into the
// existing record and TTL expiry is the only deletion path.
type ScanRepository struct {
	redis         *infra.RedisClient
	ttl           time.Duration
	maxEntryBytes int
}

func NewScanRepository(redis *infra.RedisClient, ttl time.Duration, maxEntryBytes int) *ScanRepository {
	return &ScanRepository{
		redis:         redis,
		ttl:           ttl,
		maxEntryBytes: maxEntryBytes,
	}
}

func jobKey(jobID string) string {
	return "scan:job:" + jobID
}

func detailKey(jobID string) string {
	return jobKey(jobID) + ":detail"
}

// Create stores a fresh job record. Fails with ErrJobExists when the id is
// already taken, which must never happen for uuid job ids.
func (r *ScanRepository) Create(ctx context.Context, job *entity.ScanJob) error {
	if job.JobID == "" {
		return errors.New("job id is required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	ok, err := r.redis.SetNX(ctx, jobKey(job.JobID), job, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to create scan job %s: %w", job.JobID, err)
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

// Get returns the current job record.
func (r *ScanRepository) Get(ctx context.Context, jobID string) (*entity.ScanJob, error) {
	var job entity.ScanJob
	err := r.redis.Get(ctx, jobKey(jobID), &job)
	if err != nil {
		if errors.Is(err, infra.ErrKeyNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read scan job %s: %w", jobID, err)
	}
	return &job, nil
}

// Update merges a partial patch into the existing record, preserving the
// remaining TTL. Status changes are validated against the state machine:
// terminal states accept no further transitions. Read-merge-write is safe
// here because a job has exactly one writer-owner at any moment.
func (r *ScanRepository) Update(ctx context.Context, jobID string, patch entity.ScanJobPatch) (*entity.ScanJob, error) {
	job, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		if patch.Status != nil || patch.Error != nil || patch.CompletedAt != nil || patch.ResultSummary != nil {
			return nil, fmt.Errorf("%w: job is %s", ErrTerminalState, job.Status)
		}
	}
	if patch.Status != nil && *patch.Status != job.Status {
		if !job.Status.CanTransitionTo(*patch.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, *patch.Status)
		}
		job.Status = *patch.Status
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	if patch.CompletedAt != nil {
		job.CompletedAt = patch.CompletedAt
	}
	if patch.ResultSummary != nil {
		job.ResultSummary = patch.ResultSummary
	}
	job.UpdatedAt = time.Now().UTC()

	if err := r.redis.SetKeepTTL(ctx, jobKey(jobID), job); err != nil {
		return nil, fmt.Errorf("failed to update scan job %s: %w", jobID, err)
	}
	return job, nil
}

// Touch refreshes updatedAt without changing anything else, so pollers can
// tell a live pipeline from a hung one.
func (r *ScanRepository) Touch(ctx context.Context, jobID string) error {
	_, err := r.Update(ctx, jobID, entity.ScanJobPatch{})
	return err
}

// PutDetail writes the full item array under the secondary key. It enforces
// the per-entry size ceiling and aligns the detail's expiry with whatever
// lifetime the primary record has left.
func (r *ScanRepository) PutDetail(ctx context.Context, detail *entity.ScanDetail) error {
	data, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode scan detail %s: %w", detail.JobID, err)
	}
	if len(data) > r.maxEntryBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrEntryTooLarge, len(data), r.maxEntryBytes)
	}

	ttl, err := r.redis.TTL(ctx, jobKey(detail.JobID))
	if err != nil || ttl <= 0 {
		ttl = r.ttl
	}
	return r.redis.Set(ctx, detailKey(detail.JobID), detail, ttl)
}

// GetDetail returns the secondary record. A reader racing the worker's two
// writes may see the primary without the detail; callers must degrade.
func (r *ScanRepository) GetDetail(ctx context.Context, jobID string) (*entity.ScanDetail, error) {
	var detail entity.ScanDetail
	err := r.redis.Get(ctx, detailKey(jobID), &detail)
	if err != nil {
		if errors.Is(err, infra.ErrKeyNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to read scan detail %s: %w", jobID, err)
	}
	return &detail, nil
}
