package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/pkg/cache"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

func memCache() *cache.NoopValkeyCache {
	return cache.NewNoopValkeyCache(logger.NewNop(), time.Hour)
}

// brokenCache fails every operation.
type brokenCache struct{}

var errDown = errors.New("valkey down")

func (brokenCache) Get(context.Context, string) ([]byte, error)                   { return nil, errDown }
func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error { return errDown }
func (brokenCache) Delete(context.Context, string) error                          { return errDown }
func (brokenCache) Incr(context.Context, string, time.Duration) (int64, error)    { return 0, errDown }
func (brokenCache) HealthCheck(context.Context) error                             { return errDown }

func TestJobStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c := memCache()
	s := NewJobStore(c, time.Hour, nil)

	require.NoError(t, s.Create(ctx, &models.ConversionJob{ID: "j1", Title: "Overview"}))
	job, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 0, job.Progress)

	job, err = s.SetProgress(ctx, "j1", 40, "panels")
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, job.Status)

	// Progress never moves backwards.
	job, err = s.SetProgress(ctx, "j1", 20, "panels")
	require.NoError(t, err)
	assert.Equal(t, 40, job.Progress)

	job, err = s.Update(ctx, "j1", func(j *models.ConversionJob) {
		j.Status = models.JobCompleted
		j.Progress = 150
	})
	require.NoError(t, err)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.CompletedAt)

	_, err = s.SetProgress(ctx, "j1", 100, "again")
	assert.ErrorIs(t, err, models.ErrJobTerminal)
	_, err = s.Fail(ctx, "j1", "late", errors.New("x"))
	assert.ErrorIs(t, err, models.ErrJobTerminal)

	// Another replica sharing the cache sees the mirrored state.
	other := NewJobStore(c, time.Hour, nil)
	remote, err := other.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, remote.Status)
	assert.Equal(t, 100, remote.Progress)
}

func TestJobStore_SnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(nil, 0, nil)
	require.NoError(t, s.Create(ctx, &models.ConversionJob{ID: "j1"}))

	snap, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	snap.Warnings = append(snap.Warnings, models.Warning{Code: "x"})
	snap.Progress = 99

	again, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, again.Warnings)
	assert.Equal(t, 0, again.Progress)
}

func TestJobStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(memCache(), time.Hour, nil)
	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	_, err = s.SetProgress(ctx, "missing", 10, "x")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestJobStore_MirrorFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(brokenCache{}, time.Hour, nil)
	err := s.Create(ctx, &models.ConversionJob{ID: "j1"})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.ErrorIs(t, err, errDown)

	// Local state is still authoritative.
	job, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
}

func TestJobStore_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(memCache(), time.Hour, nil)
	require.NoError(t, s.Create(ctx, &models.ConversionJob{ID: "j1"}))

	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-done:
					return
				default:
				}
				j, err := s.Get(ctx, "j1")
				if err != nil {
					t.Error(err)
					return
				}
				if j.Progress < last {
					t.Errorf("progress went backwards: %d after %d", j.Progress, last)
					return
				}
				last = j.Progress
			}
		}()
	}
	for p := 1; p <= 100; p++ {
		_, err := s.SetProgress(ctx, "j1", p, "step")
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()
}

func TestJobStore_StatsListSweep(t *testing.T) {
	ctx := context.Background()
	s := NewJobStore(nil, time.Minute, nil)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Create(ctx, &models.ConversionJob{ID: "a"}))
	now = now.Add(time.Second)
	require.NoError(t, s.Create(ctx, &models.ConversionJob{ID: "b"}))
	_, err := s.Fail(ctx, "a", "validation_failed", errors.New("bad"))
	require.NoError(t, err)

	st := s.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, 1, st.ByStatus["failed"])

	list := s.List(10)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, models.ErrJobNotFound)
	assert.Equal(t, 2, s.Stats().Total)
}

func TestArtifactStore(t *testing.T) {
	ctx := context.Background()
	s := NewArtifactStore(memCache(), time.Hour)

	a := &models.Artifact{ID: "f1", Title: "Overview", DefaultFormat: models.ExportNDJSON, Single: []byte(`{"a":1}`), NDJSON: []byte("{}\n")}
	require.NoError(t, s.Put(ctx, a))

	got, err := s.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, a.Single, got.Single)
	assert.Equal(t, []byte("{}\n"), got.Encoding(models.ExportNDJSON))

	require.NoError(t, s.Delete(ctx, "f1"))
	_, err = s.Get(ctx, "f1")
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "f1"), models.ErrArtifactNotFound)
	assert.NoError(t, s.Ping(ctx))
}

func TestArtifactStore_Failure(t *testing.T) {
	s := NewArtifactStore(brokenCache{}, time.Hour)
	err := s.Put(context.Background(), &models.Artifact{ID: "f1"})
	var se *models.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "put", se.Op)

	_, err = s.Get(context.Background(), "f1")
	assert.True(t, IsStorageError(err))
	assert.NotErrorIs(t, err, models.ErrArtifactNotFound)
}

func TestBatchStore(t *testing.T) {
	ctx := context.Background()
	s := NewBatchStore(memCache(), time.Hour)
	b := &models.BatchResult{ID: "b1", Total: 2, Succeeded: 1, Failed: 1, Results: []models.BatchItemResult{
		{Index: 0, Success: true, FileID: "f1", Warnings: []models.Warning{}},
		{Index: 1, Error: "invalid dashboard", Warnings: []models.Warning{}},
	}}
	require.NoError(t, s.Put(ctx, b))

	got, err := s.Get(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	assert.Equal(t, 1, got.Results[1].Index)

	require.NoError(t, s.Delete(ctx, "b1"))
	_, err = s.Get(ctx, "b1")
	assert.ErrorIs(t, err, models.ErrBatchNotFound)
}
