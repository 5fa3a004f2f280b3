package repo

import (
	"context"
	"time"

	"github.com/platformbuilds/dashbridge/internal/models"
	"github.com/platformbuilds/dashbridge/pkg/cache"
)

// ArtifactStore keeps conversion outputs until their TTL lapses.
type ArtifactStore struct {
	cache cache.ValkeyCluster
	ttl   time.Duration
}

func NewArtifactStore(c cache.ValkeyCluster, ttl time.Duration) *ArtifactStore {
	return &ArtifactStore{cache: c, ttl: ttl}
}

func (s *ArtifactStore) Put(ctx context.Context, a *models.Artifact) error {
	return putJSON(ctx, s.cache, "artifacts", artifactKeyPrefix+a.ID, a, s.ttl)
}

// Get returns ErrArtifactNotFound for unknown or expired ids.
func (s *ArtifactStore) Get(ctx context.Context, id string) (*models.Artifact, error) {
	var a models.Artifact
	if err := getJSON(ctx, s.cache, "artifacts", artifactKeyPrefix+id, &a, models.ErrArtifactNotFound); err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes the artifact; unknown ids return ErrArtifactNotFound.
func (s *ArtifactStore) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return deleteKey(ctx, s.cache, "artifacts", artifactKeyPrefix+id)
}

// Ping probes the backing store.
func (s *ArtifactStore) Ping(ctx context.Context) error {
	return s.cache.HealthCheck(ctx)
}
