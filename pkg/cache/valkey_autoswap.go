package cache

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/dashbridge/pkg/logger"
)

// autoSwapCache starts on a fallback store and swaps to a real Valkey client
// once one can be dialled. Entries written to the fallback before the swap
// are not migrated.
type autoSwapCache struct {
	mu      sync.RWMutex
	current ValkeyCluster
	logger  logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

func newAutoSwapCache(
	fallback ValkeyCluster,
	logger logger.Logger,
	retryEvery time.Duration,
	dialReal func() (ValkeyCluster, error),
) *autoSwapCache {
	if retryEvery <= 0 {
		retryEvery = 5 * time.Second
	}
	a := &autoSwapCache{
		current: fallback,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(retryEvery)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				real, err := dialReal()
				if err != nil {
					a.logger.Warn("Valkey connection attempt failed; will retry", "error", err)
					continue
				}
				a.mu.Lock()
				a.current = real
				a.mu.Unlock()
				a.logger.Info("Valkey connection established; switched from in-memory to real cache")
				return
			}
		}
	}()

	return a
}

// Stop ends the background connector.
func (a *autoSwapCache) Stop() { a.stopOnce.Do(func() { close(a.stopCh) }) }

func (a *autoSwapCache) active() ValkeyCluster {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *autoSwapCache) Get(ctx context.Context, key string) ([]byte, error) {
	return a.active().Get(ctx, key)
}

func (a *autoSwapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return a.active().Set(ctx, key, value, ttl)
}

func (a *autoSwapCache) Delete(ctx context.Context, key string) error {
	return a.active().Delete(ctx, key)
}

func (a *autoSwapCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return a.active().Incr(ctx, key, ttl)
}

func (a *autoSwapCache) HealthCheck(ctx context.Context) error {
	return a.active().HealthCheck(ctx)
}

// NewAutoSwapForSingle upgrades from fallback to a single-node Valkey client when reachable.
func NewAutoSwapForSingle(addr string, db int, password string, ttl time.Duration, log logger.Logger, fallback ValkeyCluster) ValkeyCluster {
	return newAutoSwapCache(fallback, log, 5*time.Second, func() (ValkeyCluster, error) {
		return NewValkeySingle(addr, db, password, ttl)
	})
}

// NewAutoSwapForCluster upgrades from fallback to a Valkey cluster client when reachable.
func NewAutoSwapForCluster(nodes []string, password string, ttl time.Duration, log logger.Logger, fallback ValkeyCluster) ValkeyCluster {
	return newAutoSwapCache(fallback, log, 5*time.Second, func() (ValkeyCluster, error) {
		return NewValkeyCluster(nodes, password, ttl)
	})
}
