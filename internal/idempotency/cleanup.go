package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/playbypost/internal/jobs"
)

// Cleanup defaults.
const (
	DefaultExpiry          = 24 * time.Hour
	DefaultCleanupInterval = time.Hour
	DefaultCleanupTimeout  = 30 * time.Second
)

// JobMetrics receives background job measurements. *jobs.Metrics implements it.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// CleanupConfig configures a CleanupJob. Zero values use the defaults.
type CleanupConfig struct {
	Interval time.Duration
	Expiry   time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  JobMetrics
}

// CleanupJob periodically deletes expired idempotency keys.
type CleanupJob struct {
	config CleanupConfig
	repo   Repository

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCleanupJob creates a cleanup job over repo.
func NewCleanupJob(config CleanupConfig, repo Repository) *CleanupJob {
	if config.Interval == 0 {
		config.Interval = DefaultCleanupInterval
	}
	if config.Expiry == 0 {
		config.Expiry = DefaultExpiry
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultCleanupTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &CleanupJob{config: config, repo: repo}
}

// Start runs one cleanup immediately and then one per interval until ctx is
// cancelled or Stop is called. It returns at once.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
}

// Stop signals the job to stop and waits for it.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh, doneCh := j.stopCh, j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning reports whether the job loop is active.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *CleanupJob) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("idempotency cleanup stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("idempotency cleanup stopping due to stop signal")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce deletes expired keys and records the outcome.
func (j *CleanupJob) RunOnce(parent context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(parent, j.config.Timeout)
	defer cancel()

	start := time.Now()
	deleted, err := j.repo.DeleteOlderThan(ctx, j.config.Expiry)
	if m := j.config.Metrics; m != nil {
		m.ObserveJobDuration(jobs.JobTypeIdempotencyCleanup, time.Since(start).Seconds())
		if err != nil {
			m.IncJobsTotal(jobs.JobTypeIdempotencyCleanup, jobs.StatusFailure)
			m.IncJobErrors(jobs.JobTypeIdempotencyCleanup, jobs.ErrorType(err))
		} else {
			m.IncJobsTotal(jobs.JobTypeIdempotencyCleanup, jobs.StatusSuccess)
		}
	}
	if err != nil {
		j.config.Logger.ErrorContext(ctx, "failed to clean up idempotency keys", "error", err)
		return 0, err
	}
	if deleted > 0 {
		j.config.Logger.InfoContext(ctx, "cleaned up idempotency keys", "deleted", deleted, "older_than", j.config.Expiry)
	}
	return deleted, nil
}
