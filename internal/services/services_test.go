package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/dashbridge/internal/config"
	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/repo"
	"github.com/platformbuilds/dashbridge/pkg/cache"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

const graphDashboard = `{
  "title": "Single graph",
  "schemaVersion": 30,
  "panels": [
    {"id": 7, "type": "graph", "title": "CPU", "gridPos": {"x": 0, "y": 0, "w": 12, "h": 8},
     "datasource": {"type": "prometheus", "uid": "p"},
     "targets": [{"refId": "A", "expr": "rate(node_cpu_seconds_total{mode=\"user\"}[5m])"}]}
  ]
}`

const customDashboard = `{
  "title": "Custom",
  "schemaVersion": 30,
  "panels": [
    {"id": 1, "type": "unknown_custom_type", "title": "Mystery", "gridPos": {"x": 0, "y": 0, "w": 6, "h": 4},
     "customOption": {"nested": [1, 2, 3]}}
  ]
}`

func fixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/overview.json")
	require.NoError(t, err)
	return b
}

func testConverter() *Converter {
	return NewConverter(config.GetDefaultConfig().Conversion, nil, nil)
}

func memCache() cache.ValkeyCluster {
	return cache.NewNoopValkeyCache(logger.NewNop(), time.Hour)
}

func hasWarning(ws []models.Warning, code string) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestConvert_GraphWithPrometheusTarget(t *testing.T) {
	res, err := testConverter().Convert(context.Background(), ConvertRequest{Raw: []byte(graphDashboard), Options: models.DefaultConversionOptions()})
	require.NoError(t, err)

	require.Len(t, res.Dashboard.Visualizations, 1)
	v := res.Dashboard.Visualizations[0]
	assert.Equal(t, models.FamilyLine, v.Family)
	assert.False(t, v.Unsupported)
	assert.True(t, hasWarning(res.Warnings, models.WarnManualReview))
	assert.Equal(t, 1, res.Summary.TotalPanels)
	assert.Equal(t, 1, res.Summary.SupportedPanels)
	assert.Equal(t, 0, res.Summary.UnsupportedPanels)
	assert.Equal(t, "8.11.0", res.Options.TargetVersion)
}

func TestConvert_UnknownPanelType(t *testing.T) {
	res, err := testConverter().Convert(context.Background(), ConvertRequest{Raw: []byte(customDashboard), Options: models.DefaultConversionOptions()})
	require.NoError(t, err)

	require.Len(t, res.Dashboard.Visualizations, 1)
	v := res.Dashboard.Visualizations[0]
	assert.Equal(t, models.FamilyMarkdown, v.Family)
	assert.True(t, v.Unsupported)
	assert.Contains(t, string(v.Raw), `"customOption"`)
	assert.Contains(t, v.Markdown, "unknown_custom_type")
	assert.Equal(t, 1, res.Summary.UnsupportedPanels)
	assert.True(t, hasWarning(res.Warnings, models.WarnUnsupportedPanel))
}

func TestConvert_SummaryAndOutputCardinality(t *testing.T) {
	res, err := testConverter().Convert(context.Background(), ConvertRequest{Raw: fixture(t), Options: models.DefaultConversionOptions()})
	require.NoError(t, err)

	sum := res.Summary
	assert.Equal(t, 5, sum.TotalPanels)
	assert.Equal(t, sum.TotalPanels, sum.SupportedPanels+sum.UnsupportedPanels)
	assert.Equal(t, 1, sum.UnsupportedPanels)
	assert.Equal(t, 2, sum.SupportedVariables)
	assert.Equal(t, 1, sum.ConvertedAnnotations)
	assert.Equal(t, []string{"prometheus", "elasticsearch"}, sum.Datasources)
	assert.Equal(t, 1, sum.PanelTypes["graph"])

	// One visualization per panel, in source order.
	require.Len(t, res.Dashboard.Visualizations, sum.TotalPanels)
	for i, want := range []string{"1", "2", "3", "4", "5"} {
		assert.Equal(t, want, res.Dashboard.Visualizations[i].SourcePanelID)
	}
	// The panel without gridPos is packed below the others.
	assert.True(t, hasWarning(res.Warnings, models.WarnGridPacked))

	var lines [][]byte
	sc := bufio.NewScanner(bytes.NewReader(res.Encoded.NDJSON))
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	require.Len(t, lines, len(res.Dashboard.Visualizations)+1)
	dashboards := 0
	for i, l := range lines {
		var rec struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(l, &rec))
		if rec.Type == "dashboard" {
			dashboards++
			assert.Equal(t, len(lines)-1, i, "dashboard record must be last")
		}
	}
	assert.Equal(t, 1, dashboards)

	var single struct {
		References []models.Reference `json:"references"`
	}
	require.NoError(t, json.Unmarshal(res.Encoded.Single, &single))
	assert.Len(t, single.References, len(res.Dashboard.Visualizations))
}

func TestConvert_DeterministicIDs(t *testing.T) {
	c := testConverter()
	opts := models.DefaultConversionOptions()
	a, err := c.Convert(context.Background(), ConvertRequest{Raw: fixture(t), Options: opts})
	require.NoError(t, err)
	b, err := c.Convert(context.Background(), ConvertRequest{Raw: fixture(t), Options: opts})
	require.NoError(t, err)

	assert.Equal(t, a.Dashboard.ID, b.Dashboard.ID)
	for i := range a.Dashboard.Visualizations {
		assert.Equal(t, a.Dashboard.Visualizations[i].ID, b.Dashboard.Visualizations[i].ID)
	}
	assert.Equal(t, a.Encoded.NDJSON, b.Encoded.NDJSON)

	opts.PreservePanelIDs = false
	r1, err := c.Convert(context.Background(), ConvertRequest{Raw: fixture(t), Options: opts})
	require.NoError(t, err)
	r2, err := c.Convert(context.Background(), ConvertRequest{Raw: fixture(t), Options: opts})
	require.NoError(t, err)
	assert.NotEqual(t, r1.Dashboard.Visualizations[0].ID, r2.Dashboard.Visualizations[0].ID)
}

func TestConvert_QueriesPassThroughWhenDisabled(t *testing.T) {
	opts := models.DefaultConversionOptions()
	opts.ConvertQueries = false
	res, err := testConverter().Convert(context.Background(), ConvertRequest{Raw: fixture(t), Options: opts})
	require.NoError(t, err)

	n := 0
	for _, v := range res.Dashboard.Visualizations {
		for _, q := range v.Queries {
			assert.Equal(t, q.Source, q.Query)
			assert.False(t, q.Translated)
			n++
		}
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, res.Summary.TranslatedQueries)
	assert.True(t, hasWarning(res.Warnings, models.WarnTranslationSkipped))
}

func TestConvert_RejectsInput(t *testing.T) {
	c := testConverter()
	_, err := c.Convert(context.Background(), ConvertRequest{Raw: []byte(`{"panels": []}`)})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Issues[0].Path)

	opts := models.DefaultConversionOptions()
	opts.TargetVersion = "6.0.0"
	_, err = c.Convert(context.Background(), ConvertRequest{Raw: []byte(graphDashboard), Options: opts})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "options.target_version", verr.Issues[0].Path)
}

func TestConvert_ProgressCheckpoints(t *testing.T) {
	var (
		mu     sync.Mutex
		seen   []int
		stages []string
	)
	_, err := testConverter().Convert(context.Background(), ConvertRequest{
		Raw:     fixture(t),
		Options: models.DefaultConversionOptions(),
		Progress: func(p int, stage string) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, p)
			stages = append(stages, stage)
		},
	})
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Equal(t, ProgressValidated, seen[0])
	assert.Equal(t, ProgressAssembled, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Contains(t, seen, ProgressPanels)
	assert.Contains(t, seen, ProgressMapped)
	assert.Contains(t, stages, StagePanels)
}

func TestPreflight(t *testing.T) {
	cfg := config.GetDefaultConfig().Conversion
	cfg.LargeDashboardPanels = 3
	c := NewConverter(cfg, nil, nil)
	src, err := c.Validate(fixture(t))
	require.NoError(t, err)

	sum, warnings := c.Preflight(src)
	assert.Equal(t, 5, sum.TotalPanels)
	assert.Equal(t, 1, sum.UnsupportedPanels)
	assert.True(t, hasWarning(warnings, models.WarnLargeDashboard))
	assert.True(t, hasWarning(warnings, models.WarnUnsupportedPanel))
	assert.False(t, hasWarning(warnings, models.WarnNoDatasources))

	src, err = c.Validate([]byte(customDashboard))
	require.NoError(t, err)
	_, warnings = c.Preflight(src)
	assert.True(t, hasWarning(warnings, models.WarnNoDatasources))
}

type jobHarness struct {
	svc  *JobService
	jobs *repo.JobStore
}

func newJobHarness(artifactCache cache.ValkeyCluster) jobHarness {
	jobs := repo.NewJobStore(memCache(), time.Hour, nil)
	return jobHarness{
		svc:  NewJobService(testConverter(), jobs, repo.NewArtifactStore(artifactCache, time.Hour), nil),
		jobs: jobs,
	}
}

func TestJobService_ProgressReachesCompleted(t *testing.T) {
	h := newJobHarness(memCache())
	ctx := context.Background()

	job, err := h.svc.StartJob(ctx, fixture(t), "overview.json", models.ConversionOptions{ConvertQueries: true, ConvertVisualizations: true, PreservePanelIDs: true})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ArtifactID)
	assert.Equal(t, "8.11.0", job.Options.TargetVersion)

	last := 0
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := h.svc.GetProgress(ctx, job.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, snap.Progress, last)
		last = snap.Progress
		if snap.Status.IsTerminal() {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish")
		time.Sleep(time.Millisecond)
	}
	h.svc.Wait()

	final, err := h.svc.GetProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "Service Overview", final.Title)
	assert.Equal(t, 5, final.Summary.TotalPanels)
	require.NotNil(t, final.CompletedAt)

	artifact, err := h.svc.Artifacts().Get(ctx, job.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, artifact.JobID)
	assert.NotEmpty(t, artifact.NDJSON)

	// Terminal jobs are immutable.
	_, err = h.jobs.SetProgress(ctx, job.ID, 50, "late")
	assert.ErrorIs(t, err, models.ErrJobTerminal)
}

func TestJobService_RejectsBeforeCreatingJob(t *testing.T) {
	h := newJobHarness(memCache())
	_, err := h.svc.StartJob(context.Background(), []byte(`{"title": 3}`), "bad.json", models.DefaultConversionOptions())
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, h.svc.Stats().Total)

	_, err = h.svc.GetProgress(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk full") }
func (failingStore) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("disk full")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("disk full") }
func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("disk full")
}
func (failingStore) HealthCheck(context.Context) error { return errors.New("disk full") }

func TestJobService_StorageFailureFailsJob(t *testing.T) {
	h := newJobHarness(failingStore{})
	ctx := context.Background()

	job, err := h.svc.StartJob(ctx, []byte(graphDashboard), "g.json", models.DefaultConversionOptions())
	require.NoError(t, err)
	h.svc.Wait()

	final, err := h.svc.GetProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, ErrCodeStorage, final.ErrorCode)
	assert.Less(t, final.Progress, 100)
	assert.Contains(t, final.Error, "disk full")
}

func newConversionService() *ConversionService {
	c := memCache()
	jobs := NewJobService(testConverter(), repo.NewJobStore(c, time.Hour, nil), repo.NewArtifactStore(c, time.Hour), nil)
	return NewConversionService(jobs, repo.NewBatchStore(c, time.Hour), nil)
}

func TestBatch_PartialSuccessKeepsOrder(t *testing.T) {
	svc := newConversionService()
	ctx := context.Background()

	batch, err := svc.RunBatch(ctx, []json.RawMessage{json.RawMessage(graphDashboard), json.RawMessage(`{"title": "broken", "panels": "nope"}`)}, models.DefaultConversionOptions())
	require.NoError(t, err)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, 0, batch.Results[0].Index)
	assert.True(t, batch.Results[0].Success)
	assert.NotEmpty(t, batch.Results[0].FileID)
	assert.Equal(t, 1, batch.Results[1].Index)
	assert.False(t, batch.Results[1].Success)
	assert.NotEmpty(t, batch.Results[1].ValidationErrors)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)

	stored, err := svc.GetBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.Total, stored.Total)

	_, err = svc.GetArtifact(ctx, batch.Results[0].FileID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBatch(ctx, batch.ID))
	_, err = svc.GetBatch(ctx, batch.ID)
	assert.ErrorIs(t, err, models.ErrBatchNotFound)
}

func TestBatch_ItemsAreRecordedAsJobs(t *testing.T) {
	svc := newConversionService()
	ctx := context.Background()

	batch, err := svc.RunBatch(ctx, []json.RawMessage{json.RawMessage(graphDashboard), json.RawMessage(`{"title": "broken", "panels": "nope"}`)}, models.DefaultConversionOptions())
	require.NoError(t, err)
	require.Len(t, batch.Results, 2)

	ok, bad := batch.Results[0], batch.Results[1]
	require.NotEmpty(t, ok.JobID)
	require.NotEmpty(t, bad.JobID)
	assert.NotEqual(t, ok.JobID, bad.JobID)

	done, err := svc.jobs.GetProgress(ctx, ok.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, ok.FileID, done.ArtifactID)
	assert.Equal(t, "8.11.0", done.Options.TargetVersion)

	artifact, err := svc.GetArtifact(ctx, ok.FileID)
	require.NoError(t, err)
	assert.Equal(t, ok.JobID, artifact.JobID)

	failed, err := svc.jobs.GetProgress(ctx, bad.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, failed.Status)
	assert.Equal(t, ErrCodeValidation, failed.ErrorCode)
	assert.NotEmpty(t, bad.ValidationErrors)

	assert.Equal(t, 2, svc.jobs.Stats().Total)
}

func TestBatch_Limits(t *testing.T) {
	svc := newConversionService()
	_, err := svc.RunBatch(context.Background(), nil, models.DefaultConversionOptions())
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	svc.maxBatch = 1
	_, err = svc.RunBatch(context.Background(), []json.RawMessage{json.RawMessage(graphDashboard), json.RawMessage(graphDashboard)}, models.DefaultConversionOptions())
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dashboards", verr.Issues[0].Path)
}

func TestConversionService_Convert(t *testing.T) {
	svc := newConversionService()
	item, err := svc.Convert(context.Background(), []byte(graphDashboard), models.DefaultConversionOptions(), "sync")
	require.NoError(t, err)
	assert.True(t, item.Success)
	require.NotNil(t, item.Summary)
	assert.Equal(t, 1, item.Summary.SupportedPanels)

	doc, ok := item.TargetDocument.(json.RawMessage)
	require.True(t, ok)
	assert.Contains(t, string(doc), `"visualizations"`)

	item, err = svc.Convert(context.Background(), []byte(`not json`), models.DefaultConversionOptions(), "sync")
	require.NoError(t, err)
	assert.False(t, item.Success)
	assert.NotEmpty(t, item.ValidationErrors)
}

const overflowDashboard = `{
  "title": "Overflow",
  "schemaVersion": 36,
  "panels": [
    {"id": 3, "type": "stat", "title": "Errors", "gridPos": {"x": 0, "y": 0, "w": 6, "h": 4},
     "datasource": {"type": "prometheus", "uid": "p1"},
     "fieldConfig": {"defaults": {"thresholds": {"mode": "absolute", "steps": [
       {"color": "green", "value": null},
       {"color": "red", "value": 1e400}
     ]}, "custom": {"width": 1e400}}},
     "options": {"reduceOptions": {"limit": -1e400}},
     "targets": [{"refId": "A", "expr": "sum(rate(errors_total[5m]))"}]}
  ]
}`

func TestConvert_OverflowingNumbersDegrade(t *testing.T) {
	res, err := testConverter().Convert(context.Background(), ConvertRequest{
		Raw:     []byte(overflowDashboard),
		Options: models.DefaultConversionOptions(),
	})
	require.NoError(t, err)
	assert.True(t, hasWarning(res.Warnings, models.WarnNonFiniteValue))
	assert.Equal(t, 1, res.Summary.SupportedPanels)
	assert.True(t, json.Valid(res.Encoded.Single))

	h := newJobHarness(memCache())
	ctx := context.Background()
	job, err := h.svc.StartJob(ctx, []byte(overflowDashboard), "overflow.json", models.DefaultConversionOptions())
	require.NoError(t, err)
	h.svc.Wait()

	final, err := h.svc.GetProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, final.Status)
	assert.True(t, hasWarning(final.Warnings, models.WarnNonFiniteValue))
}

type panickingEnricher struct{}

func (panickingEnricher) Enrich(context.Context, *models.TranslatedQuery, string) *models.Warning {
	panic("provider exploded")
}
func (panickingEnricher) Enabled() bool { return true }

func TestJobService_PanicFailsJobOnly(t *testing.T) {
	conv := NewConverter(config.GetDefaultConfig().Conversion, panickingEnricher{}, nil)

	_, err := conv.Convert(context.Background(), ConvertRequest{Raw: []byte(graphDashboard), Options: models.DefaultConversionOptions()})
	require.ErrorIs(t, err, ErrConversionAborted)
	assert.Contains(t, err.Error(), "provider exploded")

	jobs := repo.NewJobStore(memCache(), time.Hour, nil)
	svc := NewJobService(conv, jobs, repo.NewArtifactStore(memCache(), time.Hour), nil)
	ctx := context.Background()
	job, err := svc.StartJob(ctx, []byte(graphDashboard), "g.json", models.DefaultConversionOptions())
	require.NoError(t, err)
	svc.Wait()

	final, err := svc.GetProgress(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, final.Status)
	assert.Equal(t, ErrCodeInternal, final.ErrorCode)
	assert.Contains(t, final.Error, "conversion aborted")
}
