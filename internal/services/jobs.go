package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/dashbridge/internal/logging"
	"github.com/platformbuilds/dashbridge/internal/metrics"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/repo"
)

// Job error codes.
const (
	ErrCodeValidation = "validation_failed"
	ErrCodeStorage    = "storage_error"
	ErrCodeInternal   = "conversion_failed"
)

// JobService runs conversions in the background and persists their
// artifacts. Each job is driven by one goroutine, which is the only writer
// of that job's state.
type JobService struct {
	converter *Converter
	jobs      *repo.JobStore
	artifacts *repo.ArtifactStore
	logger    logging.Logger
	wg        sync.WaitGroup
}

func NewJobService(converter *Converter, jobs *repo.JobStore, artifacts *repo.ArtifactStore, logger logging.Logger) *JobService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &JobService{converter: converter, jobs: jobs, artifacts: artifacts, logger: logger}
}

// Converter exposes the pipeline for synchronous callers.
func (s *JobService) Converter() *Converter { return s.converter }

// Artifacts exposes the artifact store.
func (s *JobService) Artifacts() *repo.ArtifactStore { return s.artifacts }

// StartJob registers a pending job and starts converting raw in the
// background. The document and options are checked first, so rejected
// input never creates a job.
func (s *JobService) StartJob(ctx context.Context, raw []byte, filename string, opts models.ConversionOptions) (*models.ConversionJob, error) {
	if _, err := s.converter.Validate(raw); err != nil {
		return nil, err
	}
	opts, err := s.converter.ResolveOptions(opts)
	if err != nil {
		return nil, err
	}
	job := &models.ConversionJob{
		ID:         uuid.NewString(),
		ArtifactID: uuid.NewString(),
		Filename:   filename,
		Options:    opts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.fail(ctx, logging.With(s.logger, "job_id", job.ID), job.ID, ErrCodeStorage, err)
		return nil, err
	}
	snap, err := s.jobs.Get(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.processJob(job.ID, job.ArtifactID, raw, opts)

	s.logger.Info("conversion job started", "job_id", job.ID, "file_id", job.ArtifactID, "filename", filename,
		"target_version", opts.TargetVersion)
	return snap, nil
}

// GetProgress returns a snapshot of the job.
func (s *JobService) GetProgress(ctx context.Context, jobID string) (*models.ConversionJob, error) {
	return s.jobs.Get(ctx, jobID)
}

// Wait blocks until every started job has finished.
func (s *JobService) Wait() { s.wg.Wait() }

// Stats reports registry counters.
func (s *JobService) Stats() repo.JobStats { return s.jobs.Stats() }

// ListJobs returns recent jobs, newest first.
func (s *JobService) ListJobs(limit int) []*models.ConversionJob { return s.jobs.List(limit) }

// RunJob registers a job for raw and converts it on the calling goroutine.
// Unlike StartJob, rejected input still gets a job, which ends failed with
// the validation error. The returned error is the conversion failure, if any.
func (s *JobService) RunJob(ctx context.Context, raw []byte, filename string, opts models.ConversionOptions) (*models.ConversionJob, *ConversionResult, error) {
	job := &models.ConversionJob{
		ID:         uuid.NewString(),
		ArtifactID: uuid.NewString(),
		Filename:   filename,
		Options:    opts,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.fail(ctx, logging.With(s.logger, "job_id", job.ID), job.ID, ErrCodeStorage, err)
		return nil, nil, err
	}
	res, convErr := s.execute(ctx, job.ID, job.ArtifactID, raw, opts, "batch")
	snap, err := s.jobs.Get(ctx, job.ID)
	if err != nil {
		return nil, res, err
	}
	return snap, res, convErr
}

func (s *JobService) processJob(jobID, artifactID string, raw []byte, opts models.ConversionOptions) {
	defer s.wg.Done()
	_, _ = s.execute(context.Background(), jobID, artifactID, raw, opts, "job")
}

// execute drives one registered job to a terminal state. The job is marked
// failed for every error returned.
func (s *JobService) execute(ctx context.Context, jobID, artifactID string, raw []byte, opts models.ConversionOptions, mode string) (res *ConversionResult, err error) {
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	log := logging.With(s.logger, "job_id", jobID)
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrConversionAborted, r)
			s.fail(ctx, log, jobID, ErrCodeInternal, err)
		}
	}()

	var storageErr error
	progress := func(p int, stage string) {
		if storageErr != nil {
			return
		}
		if _, err := s.jobs.SetProgress(ctx, jobID, p, stage); err != nil {
			if repo.IsStorageError(err) {
				storageErr = err
			}
			log.Warn("progress update failed", "stage", stage, "progress", p, "error", err)
			return
		}
		log.Debug("job progress", "stage", stage, "progress", p)
	}

	if _, err := s.jobs.SetProgress(ctx, jobID, 0, StageValidate); err != nil && repo.IsStorageError(err) {
		storageErr = err
	}

	res, err = s.converter.Convert(ctx, ConvertRequest{Raw: raw, Options: opts, Mode: mode, Progress: progress})
	if err != nil {
		var verr *models.ValidationError
		code := ErrCodeInternal
		if errors.As(err, &verr) {
			code = ErrCodeValidation
		}
		s.fail(ctx, log, jobID, code, err)
		return nil, err
	}
	if storageErr != nil {
		s.fail(ctx, log, jobID, ErrCodeStorage, storageErr)
		return nil, storageErr
	}

	artifact := NewArtifact(artifactID, jobID, res)
	if err := s.artifacts.Put(ctx, artifact); err != nil {
		s.fail(ctx, log, jobID, ErrCodeStorage, err)
		return nil, err
	}

	_, err = s.jobs.Update(ctx, jobID, func(j *models.ConversionJob) {
		j.Status = models.JobCompleted
		j.Progress = ProgressDone
		j.Stage = StageDone
		j.Title = res.Dashboard.Title
		j.Summary = res.Summary
		j.Warnings = res.Warnings
	})
	if err != nil {
		// The local record already says completed; nothing left to fail.
		log.Error("failed to record job completion", "error", err)
	}
	log.Info("conversion job completed",
		"title", res.Dashboard.Title,
		"panels", res.Summary.TotalPanels,
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Summary.ElapsedMs)
	return res, nil
}

func (s *JobService) fail(ctx context.Context, log logging.Logger, jobID, code string, cause error) {
	log.Error("conversion job failed", "error_code", code, "error", cause)
	if _, err := s.jobs.Fail(ctx, jobID, code, cause); err != nil {
		log.Error("failed to record job failure", "error", err)
	}
}

// NewArtifact packages a conversion result for storage.
func NewArtifact(id, jobID string, res *ConversionResult) *models.Artifact {
	return &models.Artifact{
		ID:            id,
		JobID:         jobID,
		Title:         res.Dashboard.Title,
		DashboardID:   res.Dashboard.ID,
		DefaultFormat: res.Dashboard.ExportMode,
		Single:        res.Encoded.Single,
		NDJSON:        res.Encoded.NDJSON,
		CreatedAt:     time.Now().UTC(),
	}
}
