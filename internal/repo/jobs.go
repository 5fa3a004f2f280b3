package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/platformbuilds/dashbridge/internal/logging"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/pkg/cache"
)

// JobStore is the authoritative registry of conversion jobs for this
// process. Each job has exactly one writer (its runner); readers get
// snapshots under a read lock. Every write is mirrored to the cache so
// other replicas can answer progress polls.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.ConversionJob
	cache  cache.ValkeyCluster
	ttl    time.Duration
	now    func() time.Time
	logger logging.Logger
	total  int
}

func NewJobStore(c cache.ValkeyCluster, ttl time.Duration, logger logging.Logger) *JobStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &JobStore{
		jobs:   make(map[string]*models.ConversionJob),
		cache:  c,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Create registers a pending job and mirrors it.
func (s *JobStore) Create(ctx context.Context, job *models.ConversionJob) error {
	now := s.now().UTC()
	job.Status = models.JobPending
	job.Progress = 0
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Warnings == nil {
		job.Warnings = []models.Warning{}
	}
	snap := job.Clone()

	s.mu.Lock()
	s.jobs[job.ID] = snap
	s.total++
	s.mu.Unlock()

	return s.mirror(ctx, snap)
}

// Get returns a snapshot of the job, falling back to the cache for jobs
// started on another replica.
func (s *JobStore) Get(ctx context.Context, id string) (*models.ConversionJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	var snap *models.ConversionJob
	if ok {
		snap = job.Clone()
	}
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}
	if s.cache == nil {
		return nil, models.ErrJobNotFound
	}
	var remote models.ConversionJob
	if err := getJSON(ctx, s.cache, "jobs", jobKeyPrefix+id, &remote, models.ErrJobNotFound); err != nil {
		return nil, err
	}
	return &remote, nil
}

// Update applies fn to the job. Terminal jobs reject every write with
// ErrJobTerminal. Progress never decreases and stays within [0,100].
// A mirror failure is returned as *models.StorageError after the local
// state has been updated.
func (s *JobStore) Update(ctx context.Context, id string, fn func(*models.ConversionJob)) (*models.ConversionJob, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return nil, models.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		s.mu.Unlock()
		return nil, models.ErrJobTerminal
	}
	prev := job.Progress
	fn(job)
	if job.Progress < prev {
		job.Progress = prev
	}
	if job.Progress > 100 {
		job.Progress = 100
	}
	job.UpdatedAt = s.now().UTC()
	if job.Status.IsTerminal() && job.CompletedAt == nil {
		t := job.UpdatedAt
		job.CompletedAt = &t
	}
	snap := job.Clone()
	s.mu.Unlock()

	if err := s.mirror(ctx, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// SetProgress moves the job to Processing at the given checkpoint.
func (s *JobStore) SetProgress(ctx context.Context, id string, progress int, stage string) (*models.ConversionJob, error) {
	return s.Update(ctx, id, func(j *models.ConversionJob) {
		j.Status = models.JobProcessing
		j.Progress = progress
		j.Stage = stage
	})
}

// Fail marks the job failed. Progress stays where it was.
func (s *JobStore) Fail(ctx context.Context, id, code string, cause error) (*models.ConversionJob, error) {
	return s.Update(ctx, id, func(j *models.ConversionJob) {
		j.Status = models.JobFailed
		j.ErrorCode = code
		if cause != nil {
			j.Error = cause.Error()
		}
	})
}

func (s *JobStore) mirror(ctx context.Context, job *models.ConversionJob) error {
	if s.cache == nil {
		return nil
	}
	if err := putJSON(ctx, s.cache, "jobs", jobKeyPrefix+job.ID, job, s.ttl); err != nil {
		s.logger.Error("failed to mirror job state", "job_id", job.ID, "status", job.Status, "error", err)
		return err
	}
	return nil
}

// JobStats summarises the registry.
type JobStats struct {
	Total    int            `json:"total_jobs"`
	Active   int            `json:"active_jobs"`
	ByStatus map[string]int `json:"by_status"`
}

// Stats counts jobs by status.
func (s *JobStore) Stats() JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := JobStats{Total: s.total, ByStatus: map[string]int{}}
	for _, j := range s.jobs {
		st.ByStatus[string(j.Status)]++
		if !j.Status.IsTerminal() {
			st.Active++
		}
	}
	return st
}

// List returns snapshots of the most recently created jobs, newest first.
func (s *JobStore) List(limit int) []*models.ConversionJob {
	s.mu.RLock()
	out := make([]*models.ConversionJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Sweep forgets terminal jobs that finished more than ttl ago. The cache
// copy expires on its own.
func (s *JobStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (s *JobStore) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("finished jobs swept", "removed", removed)
			}
		}
	}
}

// IsStorageError reports whether err came from a failed store operation.
func IsStorageError(err error) bool {
	var se *models.StorageError
	return errors.As(err, &se)
}
