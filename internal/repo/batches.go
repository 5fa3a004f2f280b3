package repo

import (
	"context"
	"time"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/pkg/cache"
)

// BatchStore keeps batch aggregates retrievable by batch id.
type BatchStore struct {
	cache cache.ValkeyCluster
	ttl   time.Duration
}

func NewBatchStore(c cache.ValkeyCluster, ttl time.Duration) *BatchStore {
	return &BatchStore{cache: c, ttl: ttl}
}

func (s *BatchStore) Put(ctx context.Context, b *models.BatchResult) error {
	return putJSON(ctx, s.cache, "batches", batchKeyPrefix+b.ID, b, s.ttl)
}

func (s *BatchStore) Get(ctx context.Context, id string) (*models.BatchResult, error) {
	var b models.BatchResult
	if err := getJSON(ctx, s.cache, "batches", batchKeyPrefix+id, &b, models.ErrBatchNotFound); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BatchStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return deleteKey(ctx, s.cache, "batches", batchKeyPrefix+id)
}
