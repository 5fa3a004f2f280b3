// Package repo holds the job registry and the artifact and batch stores.
// Persistent state lives in a cache.ValkeyCluster; failures surface as
// *models.StorageError.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/internal/monitoring"
	"github.com/platformbuilds/dashbridge/pkg/cache"
)

const (
	jobKeyPrefix      = "dashbridge:job:"
	artifactKeyPrefix = "dashbridge:artifact:"
	batchKeyPrefix    = "dashbridge:batch:"
)

func putJSON(ctx context.Context, c cache.ValkeyCluster, store, key string, v any, ttl time.Duration) error {
	start := time.Now()
	data, err := json.Marshal(v)
	if err != nil {
		monitoring.RecordStoreOperation("put", store, time.Since(start), false)
		return &models.StorageError{Op: "marshal", Key: key, Err: err}
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		monitoring.RecordStoreOperation("put", store, time.Since(start), false)
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	monitoring.RecordStoreOperation("put", store, time.Since(start), true)
	return nil
}

// getJSON decodes key into v. A missing key returns notFound unwrapped.
func getJSON(ctx context.Context, c cache.ValkeyCluster, store, key string, v any, notFound error) error {
	start := time.Now()
	data, err := c.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			monitoring.RecordStoreOperation("get", store, time.Since(start), true)
			return notFound
		}
		monitoring.RecordStoreOperation("get", store, time.Since(start), false)
		return &models.StorageError{Op: "get", Key: key, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		monitoring.RecordStoreOperation("get", store, time.Since(start), false)
		return &models.StorageError{Op: "unmarshal", Key: key, Err: err}
	}
	monitoring.RecordStoreOperation("get", store, time.Since(start), true)
	return nil
}

func deleteKey(ctx context.Context, c cache.ValkeyCluster, store, key string) error {
	start := time.Now()
	if err := c.Delete(ctx, key); err != nil {
		monitoring.RecordStoreOperation("delete", store, time.Since(start), false)
		return &models.StorageError{Op: "delete", Key: key, Err: err}
	}
	monitoring.RecordStoreOperation("delete", store, time.Since(start), true)
	return nil
}
