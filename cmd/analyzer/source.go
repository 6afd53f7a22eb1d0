package main

import (
	"sync"
	"time"

	"intelligent-resource-analyzer/pkg/logger"
	"intelligent-resource-analyzer/pkg/models"
	"intelligent-resource-analyzer/pkg/storage"
)

// fileSource serves snapshots from a JSON file that an external collector
// keeps appending to. Reload swaps in a fresh copy of the file.
type fileSource struct {
	path string
	// retention drops snapshots older than the newest one by more than this;
	// zero keeps everything
	retention time.Duration

	mu    sync.RWMutex
	store *storage.InMemoryStorage
}

func newFileSource(path string, retention time.Duration) *fileSource {
	return &fileSource{path: path, retention: retention, store: storage.NewStorage()}
}

func (f *fileSource) Reload() error {
	fresh := storage.NewStorage()
	if err := fresh.LoadFromFile(f.path); err != nil {
		return err
	}
	if latest, ok := newestIn(fresh); ok && f.retention > 0 {
		if removed := fresh.Prune(latest.Add(-f.retention)); removed > 0 {
			logger.Debugf("Pruned %d snapshots older than %s from %s", removed, f.retention, f.path)
		}
	}
	f.mu.Lock()
	f.store = fresh
	f.mu.Unlock()
	return nil
}

// Export writes the loaded snapshots as a service map
func (f *fileSource) Export(path string) error {
	return f.current().SaveToFile(path)
}

func (f *fileSource) current() *storage.InMemoryStorage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.store
}

func (f *fileSource) Window(service string, since, until time.Time) []models.Snapshot {
	return f.current().Window(service, since, until)
}

func (f *fileSource) Services() []string {
	return f.current().Services()
}

func (f *fileSource) Count(service string) int {
	return f.current().Count(service)
}

func (f *fileSource) Newest(service string) (time.Time, bool) {
	return f.current().Newest(service)
}

// newest returns the newest snapshot time across services
func (f *fileSource) newest() (time.Time, bool) {
	return newestIn(f.current())
}

func newestIn(store *storage.InMemoryStorage) (time.Time, bool) {
	var latest time.Time
	for _, service := range store.Services() {
		if ts, ok := store.Newest(service); ok && ts.After(latest) {
			latest = ts
		}
	}
	return latest, !latest.IsZero()
}
