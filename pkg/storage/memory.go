// Package storage keeps snapshot history in memory with JSON persistence. It
// is the snapshot source of the command line tool.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"intelligent-resource-analyzer/pkg/models"
)

// InMemoryStorage holds per-service snapshots in chronological order
type InMemoryStorage struct {
	mu      sync.RWMutex                 // Protects the map from concurrent writes
	history map[string][]models.Snapshot // Key: service name
}

// NewStorage creates an empty store
func NewStorage() *InMemoryStorage {
	return &InMemoryStorage{
		history: make(map[string][]models.Snapshot),
	}
}

// Add stores snapshots under their service name. If any snapshot lacks a
// service name nothing is stored.
func (s *InMemoryStorage) Add(snaps ...models.Snapshot) error {
	for i, snap := range snaps {
		if snap.ServiceName == "" {
			return fmt.Errorf("snapshot at index %d has no service name", i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, snap := range snaps {
		s.history[snap.ServiceName] = append(s.history[snap.ServiceName], snap)
		touched[snap.ServiceName] = true
	}
	for service := range touched {
		s.history[service] = models.Chronological(s.history[service])
	}
	return nil
}

// Window returns a copy of the snapshots of service with since <= t <= until.
// A zero since or until leaves that side open.
func (s *InMemoryStorage) Window(service string, since, until time.Time) []models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var window []models.Snapshot
	for _, snap := range s.history[service] {
		if !since.IsZero() && snap.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && snap.Timestamp.After(until) {
			continue
		}
		window = append(window, snap)
	}
	return window
}

// Services returns the stored service names in sorted order
func (s *InMemoryStorage) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]string, 0, len(s.history))
	for service := range s.history {
		services = append(services, service)
	}
	sort.Strings(services)
	return services
}

// Count returns the number of stored snapshots of service
func (s *InMemoryStorage) Count(service string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history[service])
}

// Newest returns the timestamp of the newest snapshot of service
func (s *InMemoryStorage) Newest(service string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.history[service]
	if len(snaps) == 0 {
		return time.Time{}, false
	}
	return snaps[len(snaps)-1].Timestamp, true
}

// Prune drops snapshots older than before and returns how many were removed
func (s *InMemoryStorage) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for service, snaps := range s.history {
		keep := sort.Search(len(snaps), func(i int) bool { return !snaps[i].Timestamp.Before(before) })
		removed += keep
		if keep == len(snaps) {
			delete(s.history, service)
			continue
		}
		s.history[service] = append([]models.Snapshot(nil), snaps[keep:]...)
	}
	return removed
}

// SaveToFile writes the history map to a JSON file
func (s *InMemoryStorage) SaveToFile(filename string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.history, "", " ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// LoadFromFile adds the snapshots of a JSON file. The file holds either the
// service map written by SaveToFile or a flat snapshot array. A missing file
// loads nothing.
func (s *InMemoryStorage) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	snaps, err := decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode snapshot file %s: %w", filename, err)
	}
	return s.Add(snaps...)
}

func decode(data []byte) ([]models.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var snaps []models.Snapshot
		if err := json.Unmarshal(trimmed, &snaps); err != nil {
			return nil, err
		}
		return snaps, nil
	}

	var history map[string][]models.Snapshot
	if err := json.Unmarshal(trimmed, &history); err != nil {
		return nil, err
	}
	var snaps []models.Snapshot
	for service, serviceSnaps := range history {
		for _, snap := range serviceSnaps {
			if snap.ServiceName == "" {
				snap.ServiceName = service
			}
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}
