package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"intelligent-resource-analyzer/pkg/models"
)

var base = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func snap(service string, minute int, cpu float64) models.Snapshot {
	return models.Snapshot{ServiceName: service, Timestamp: base.Add(time.Duration(minute) * time.Minute), CPUPercent: cpu}
}

func TestAddKeepsChronologicalOrder(t *testing.T) {
	store := NewStorage()
	if err := store.Add(snap("orders", 2, 30), snap("orders", 0, 10), snap("billing", 1, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Add(snap("orders", 1, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	window := store.Window("orders", time.Time{}, time.Time{})
	var cpu []float64
	for _, s := range window {
		cpu = append(cpu, s.CPUPercent)
	}
	if diff := cmp.Diff([]float64{10, 20, 30}, cpu); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"billing", "orders"}, store.Services()); diff != "" {
		t.Errorf("services mismatch (-want +got):\n%s", diff)
	}
}

func TestAddRejectsUnnamedSnapshots(t *testing.T) {
	store := NewStorage()
	err := store.Add(snap("orders", 0, 10), models.Snapshot{Timestamp: base})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if store.Count("orders") != 0 {
		t.Errorf("expected nothing stored, got %d", store.Count("orders"))
	}
}

func TestWindowBounds(t *testing.T) {
	store := NewStorage()
	for m := 0; m < 10; m++ {
		_ = store.Add(snap("orders", m, float64(m)))
	}

	window := store.Window("orders", base.Add(3*time.Minute), base.Add(6*time.Minute))
	if len(window) != 4 || window[0].CPUPercent != 3 || window[3].CPUPercent != 6 {
		t.Errorf("expected minutes 3..6 inclusive, got %+v", window)
	}
	if got := store.Window("orders", base.Add(8*time.Minute), time.Time{}); len(got) != 2 {
		t.Errorf("expected 2 snapshots with an open end, got %d", len(got))
	}
	if got := store.Window("unknown", time.Time{}, time.Time{}); got != nil {
		t.Errorf("expected nil for an unknown service, got %v", got)
	}

	window[0].CPUPercent = 99
	if store.Window("orders", base.Add(3*time.Minute), base.Add(3*time.Minute))[0].CPUPercent != 3 {
		t.Error("expected Window to return a copy")
	}
}

func TestCountAndNewest(t *testing.T) {
	store := NewStorage()
	if _, ok := store.Newest("orders"); ok {
		t.Error("expected no newest snapshot for an empty store")
	}
	_ = store.Add(snap("orders", 5, 1), snap("orders", 2, 1))

	newest, ok := store.Newest("orders")
	if !ok || !newest.Equal(base.Add(5*time.Minute)) {
		t.Errorf("expected newest at minute 5, got %v", newest)
	}
	if store.Count("orders") != 2 {
		t.Errorf("expected 2 snapshots, got %d", store.Count("orders"))
	}
}

func TestPrune(t *testing.T) {
	store := NewStorage()
	_ = store.Add(snap("orders", 0, 1), snap("orders", 5, 1), snap("orders", 10, 1), snap("billing", 1, 1))

	removed := store.Prune(base.Add(5 * time.Minute))
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if store.Count("orders") != 2 {
		t.Errorf("expected 2 orders snapshots left, got %d", store.Count("orders"))
	}
	if diff := cmp.Diff([]string{"orders"}, store.Services()); diff != "" {
		t.Errorf("expected emptied services dropped (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")

	store := NewStorage()
	_ = store.Add(snap("orders", 0, 10), snap("orders", 1, 20), snap("billing", 0, 5))
	if err := store.SaveToFile(path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded := NewStorage()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if diff := cmp.Diff(store.Window("orders", time.Time{}, time.Time{}), loaded.Window("orders", time.Time{}, time.Time{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if loaded.Count("billing") != 1 {
		t.Errorf("expected 1 billing snapshot, got %d", loaded.Count("billing"))
	}
}

func TestLoadFlatArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")
	content := `[
  {"serviceName": "orders", "timestamp": "2024-05-06T12:01:00Z", "cpuPercent": 20, "poolActive": 0, "poolMax": 10},
  {"serviceName": "orders", "timestamp": "2024-05-06T12:00:00Z", "cpuPercent": 10}
]`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	store := NewStorage()
	if err := store.LoadFromFile(path); err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	window := store.Window("orders", time.Time{}, time.Time{})
	if len(window) != 2 || window[0].CPUPercent != 10 {
		t.Fatalf("expected 2 chronological snapshots, got %+v", window)
	}
	if !window[1].HasPool() || *window[1].PoolActive != 0 {
		t.Errorf("expected zero active connections to be kept, got %+v", window[1])
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := NewStorage()
	if err := store.LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if len(store.Services()) != 0 {
		t.Errorf("expected empty store, got %v", store.Services())
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if err := NewStorage().LoadFromFile(path); err == nil {
		t.Error("expected decode error, got nil")
	}
}
