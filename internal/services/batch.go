package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/iter"

	"github.com/platformbuilds/dashbridge/internal/logging"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/repo"
)

// ConversionService serves synchronous and batch conversions. Every
// successful conversion is stored as an artifact so it can be downloaded
// later by file id. Batch items also run as jobs.
type ConversionService struct {
	converter   *Converter
	artifacts   *repo.ArtifactStore
	jobs        *JobService
	batches     *repo.BatchStore
	concurrency int
	maxBatch    int
	logger      logging.Logger
}

func NewConversionService(jobs *JobService, batches *repo.BatchStore, logger logging.Logger) *ConversionService {
	if logger == nil {
		logger = logging.Nop()
	}
	converter := jobs.Converter()
	cfg := converter.Config()
	concurrency := cfg.BatchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &ConversionService{
		converter:   converter,
		artifacts:   jobs.Artifacts(),
		jobs:        jobs,
		batches:     batches,
		concurrency: concurrency,
		maxBatch:    cfg.MaxBatchSize,
		logger:      logger,
	}
}

// Convert converts one dashboard and stores the artifact. Rejected input
// is reported in the result; the returned error is reserved for storage
// and internal failures.
func (s *ConversionService) Convert(ctx context.Context, raw []byte, opts models.ConversionOptions, mode string) (models.BatchItemResult, error) {
	start := time.Now()
	item := models.BatchItemResult{Warnings: []models.Warning{}}

	res, err := s.converter.Convert(ctx, ConvertRequest{Raw: raw, Options: opts, Mode: mode})
	if err != nil {
		item.ElapsedMs = time.Since(start).Milliseconds()
		item.Error = err.Error()
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			item.ValidationErrors = verr.Issues
			return item, nil
		}
		return item, err
	}

	artifact := NewArtifact(uuid.NewString(), "", res)
	if err := s.artifacts.Put(ctx, artifact); err != nil {
		item.ElapsedMs = time.Since(start).Milliseconds()
		item.Error = err.Error()
		return item, err
	}

	summary := res.Summary
	item.Success = true
	item.FileID = artifact.ID
	item.TargetDocument = json.RawMessage(res.Encoded.Single)
	item.Summary = &summary
	item.Warnings = res.Warnings
	item.ElapsedMs = time.Since(start).Milliseconds()
	return item, nil
}

// RunBatch converts every dashboard with bounded concurrency. Each item is
// recorded as its own job. Results keep input order and one failure never
// affects the others. The aggregate is stored under the returned batch id.
func (s *ConversionService) RunBatch(ctx context.Context, dashboards []json.RawMessage, opts models.ConversionOptions) (*models.BatchResult, error) {
	if len(dashboards) == 0 {
		verr := &models.ValidationError{}
		verr.Add("dashboards", "at least one dashboard is required")
		return nil, verr
	}
	if s.maxBatch > 0 && len(dashboards) > s.maxBatch {
		verr := &models.ValidationError{}
		verr.Add("dashboards", fmt.Sprintf("batch of %d exceeds the limit of %d", len(dashboards), s.maxBatch))
		return nil, verr
	}
	opts, err := s.converter.ResolveOptions(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	batchID := uuid.NewString()
	type indexed struct {
		index int
		raw   json.RawMessage
	}
	inputs := make([]indexed, len(dashboards))
	for i, d := range dashboards {
		inputs[i] = indexed{index: i, raw: d}
	}

	mapper := iter.Mapper[indexed, models.BatchItemResult]{MaxGoroutines: s.concurrency}
	results := mapper.Map(inputs, func(in *indexed) models.BatchItemResult {
		item := s.runItem(ctx, batchID, in.index, in.raw, opts)
		item.Index = in.index
		return item
	})

	batch := &models.BatchResult{
		ID:        batchID,
		Total:     len(results),
		Results:   results,
		CreatedAt: time.Now().UTC(),
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	for _, r := range results {
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	if err := s.batches.Put(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Info("batch converted", "batch_id", batch.ID, "total", batch.Total,
		"succeeded", batch.Succeeded, "failed", batch.Failed, "elapsed_ms", batch.ElapsedMs)
	return batch, nil
}

func (s *ConversionService) runItem(ctx context.Context, batchID string, index int, raw []byte, opts models.ConversionOptions) models.BatchItemResult {
	start := time.Now()
	item := models.BatchItemResult{Warnings: []models.Warning{}}

	job, res, err := s.jobs.RunJob(ctx, raw, fmt.Sprintf("batch-%s-%d.json", batchID, index), opts)
	if job != nil {
		item.JobID = job.ID
	}
	item.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		s.logger.Warn("batch item failed", "batch_id", batchID, "index", index, "job_id", item.JobID, "error", err)
		item.Error = err.Error()
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			item.ValidationErrors = verr.Issues
		}
		return item
	}

	summary := res.Summary
	item.Success = true
	item.FileID = job.ArtifactID
	item.TargetDocument = json.RawMessage(res.Encoded.Single)
	item.Summary = &summary
	item.Warnings = res.Warnings
	return item
}

func (s *ConversionService) GetBatch(ctx context.Context, id string) (*models.BatchResult, error) {
	return s.batches.Get(ctx, id)
}

func (s *ConversionService) DeleteBatch(ctx context.Context, id string) error {
	return s.batches.Delete(ctx, id)
}

// GetArtifact loads a stored conversion output.
func (s *ConversionService) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	return s.artifacts.Get(ctx, id)
}

// DeleteArtifact removes a stored conversion output.
func (s *ConversionService) DeleteArtifact(ctx context.Context, id string) error {
	return s.artifacts.Delete(ctx, id)
}

// Validate checks a dashboard and returns the preflight summary.
func (s *ConversionService) Validate(raw []byte) (*models.SourceDashboard, models.ConversionSummary, []models.Warning, error) {
	src, err := s.converter.Validate(raw)
	if err != nil {
		return nil, models.ConversionSummary{}, nil, err
	}
	sum, warnings := s.converter.Preflight(src)
	if warnings == nil {
		warnings = []models.Warning{}
	}
	return src, sum, warnings, nil
}

// Ping probes the artifact store.
func (s *ConversionService) Ping(ctx context.Context) error {
	return s.artifacts.Ping(ctx)
}

// Converter exposes the pipeline configuration to handlers.
func (s *ConversionService) Converter() *Converter { return s.converter }
