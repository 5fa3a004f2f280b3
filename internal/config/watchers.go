package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platformbuilds/dashbridge/pkg/logger"
)

// ConfigWatcher reloads the configuration file when it changes and hands
// the new configuration to registered callbacks. A file that fails to load
// or validate is ignored and the previous configuration stays in effect.
type ConfigWatcher struct {
	config     *Config
	configPath string
	logger     logger.Logger
	mu         sync.RWMutex
	watchers   []func(*Config)
	stopOnce   sync.Once
	stopCh     chan struct{}
}

func NewConfigWatcher(initial *Config, configPath string, logger logger.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		config:     initial,
		configPath: configPath,
		logger:     logger,
		watchers:   make([]func(*Config), 0),
		stopCh:     make(chan struct{}),
	}
}

// Start watches the file until ctx is cancelled or Stop is called.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.logger.Info("Configuration watcher started", "config_path", w.configPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors that save by rename produce Create instead of Write.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Info("Configuration file changed, reloading", "file", event.Name)
			if err := w.Reload(); err != nil {
				w.logger.Error("Failed to reload configuration", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Configuration watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Info("Configuration watcher stopping")
			return nil

		case <-w.stopCh:
			w.logger.Info("Configuration watcher stopped")
			return nil
		}
	}
}

// RegisterWatcher adds a callback for configuration changes.
func (w *ConfigWatcher) RegisterWatcher(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watchers = append(w.watchers, callback)
}

// GetConfig returns the current configuration.
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Reload loads the watched file and notifies callbacks on success.
func (w *ConfigWatcher) Reload() error {
	newConfig, err := LoadFrom(w.configPath)
	if err != nil {
		RecordConfigReload(false)
		return err
	}

	w.mu.Lock()
	w.config = newConfig
	w.mu.Unlock()

	RecordConfigReload(true)
	w.logger.Info("Configuration reloaded successfully")
	w.notifyWatchers(newConfig)
	return nil
}

func (w *ConfigWatcher) notifyWatchers(cfg *Config) {
	w.mu.RLock()
	watchers := make([]func(*Config), len(w.watchers))
	copy(watchers, w.watchers)
	w.mu.RUnlock()

	for _, cb := range watchers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("Configuration watcher callback panicked", "panic", r)
				}
			}()
			cb(cfg)
		}()
	}
}
