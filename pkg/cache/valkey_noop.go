package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/platformbuilds/dashbridge/internal/monitoring"
	"github.com/platformbuilds/dashbridge/pkg/logger"
)

type memEntry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// NoopValkeyCache is the process-local store used in memory mode and as the
// fallback while an external Valkey is unreachable. Entries honour their TTL
// on read; Sweep drops expired entries in bulk.
type NoopValkeyCache struct {
	m      map[string]memEntry
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

func NewNoopValkeyCache(log logger.Logger, defaultTTL time.Duration) *NoopValkeyCache {
	log.Warn("Valkey cache not configured or unavailable; using in-memory store")
	return &NoopValkeyCache{
		m:      make(map[string]memEntry),
		ttl:    defaultTTL,
		now:    time.Now,
		logger: log,
	}
}

func (n *NoopValkeyCache) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	e, ok := n.m[key]
	n.mu.RUnlock()
	if !ok || n.expired(e) {
		monitoring.RecordCacheOperation("get", "miss")
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	monitoring.RecordCacheOperation("get", "hit")
	return e.data, nil
}

func (n *NoopValkeyCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := encodeValue(key, value)
	if err != nil {
		monitoring.RecordCacheOperation("set", "error")
		return err
	}
	if ttl <= 0 {
		ttl = n.ttl
	}
	e := memEntry{data: b}
	if ttl > 0 {
		e.expiresAt = n.now().Add(ttl)
	}
	n.mu.Lock()
	n.m[key] = e
	n.mu.Unlock()
	monitoring.RecordCacheOperation("set", "success")
	return nil
}

func (n *NoopValkeyCache) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	delete(n.m, key)
	n.mu.Unlock()
	monitoring.RecordCacheOperation("delete", "success")
	return nil
}

// Incr holds the write lock across read and update, so concurrent callers
// each see a distinct count.
func (n *NoopValkeyCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = n.ttl
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var count int64
	if e, ok := n.m[key]; ok && !n.expired(e) {
		v, err := strconv.ParseInt(string(e.data), 10, 64)
		if err != nil {
			monitoring.RecordCacheOperation("incr", "error")
			return 0, fmt.Errorf("value at %s is not an integer: %w", key, err)
		}
		count = v
	}
	count++
	e := memEntry{data: []byte(strconv.FormatInt(count, 10))}
	if ttl > 0 {
		e.expiresAt = n.now().Add(ttl)
	}
	n.m[key] = e
	monitoring.RecordCacheOperation("incr", "success")
	return count, nil
}

func (n *NoopValkeyCache) HealthCheck(ctx context.Context) error {
	return nil
}

// Sweep removes expired entries and reports how many were dropped.
func (n *NoopValkeyCache) Sweep() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	removed := 0
	for k, e := range n.m {
		if n.expired(e) {
			delete(n.m, k)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (n *NoopValkeyCache) RunJanitor(ctx context.Context, every time.Duration) {
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
			if removed := n.Sweep(); removed > 0 {
				n.logger.Debug("expired in-memory entries swept", "removed", removed)
			}
		}
	}
}

func (n *NoopValkeyCache) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !n.now().Before(e.expiresAt)
}
