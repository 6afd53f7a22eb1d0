package models

import (
	"sort"
	"time"
)

// Snapshot is one periodic resource-usage sample of a service.
//
// CPU, heap and latency fields use zero as "not reported". The pool fields
// are pointers because zero active connections is a real observation.
type Snapshot struct {
	ServiceName   string    `json:"serviceName"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpuPercent"`
	HeapUsedBytes int64     `json:"heapUsedBytes,omitempty"`
	HeapMaxBytes  int64     `json:"heapMaxBytes,omitempty"`
	HeapPercent   float64   `json:"heapPercent,omitempty"`
	ThreadCount   int32     `json:"threadCount,omitempty"`
	HTTPCount     int64     `json:"httpCount,omitempty"`
	// HTTPDurationP95 is in milliseconds
	HTTPDurationP95 float64 `json:"httpDurationP95,omitempty"`
	PoolActive      *int32  `json:"poolActive,omitempty"`
	PoolMax         *int32  `json:"poolMax,omitempty"`
	PoolPending     *int32  `json:"poolPending,omitempty"`
}

// HasPool reports whether both pool-active and pool-max are present.
func (s Snapshot) HasPool() bool {
	return s.PoolActive != nil && s.PoolMax != nil
}

// PoolUsage returns active/max. ok is false when the pool dimension does not
// apply to this sample.
func (s Snapshot) PoolUsage() (ratio float64, ok bool) {
	if !s.HasPool() || *s.PoolMax <= 0 {
		return 0, false
	}
	return float64(*s.PoolActive) / float64(*s.PoolMax), true
}

// Pending returns pending pool requests, 0 when not reported.
func (s Snapshot) Pending() int32 {
	if s.PoolPending == nil {
		return 0
	}
	return *s.PoolPending
}

// Chronological returns a copy of snapshots ordered by timestamp. Equal
// timestamps keep their input order.
func Chronological(snapshots []Snapshot) []Snapshot {
	ordered := make([]Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}

// CPUValues extracts reported CPU percentages.
func CPUValues(snapshots []Snapshot) []float64 {
	values := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if s.CPUPercent > 0 {
			values = append(values, s.CPUPercent)
		}
	}
	return values
}

// HeapPercentValues extracts reported heap percentages.
func HeapPercentValues(snapshots []Snapshot) []float64 {
	values := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if s.HeapPercent > 0 {
			values = append(values, s.HeapPercent)
		}
	}
	return values
}

// LatencyValues extracts reported P95 latencies in milliseconds.
func LatencyValues(snapshots []Snapshot) []float64 {
	values := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if s.HTTPDurationP95 > 0 {
			values = append(values, s.HTTPDurationP95)
		}
	}
	return values
}

// PoolUsageValues extracts active/max ratios for samples with pool data.
func PoolUsageValues(snapshots []Snapshot) []float64 {
	values := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if ratio, ok := s.PoolUsage(); ok {
			values = append(values, ratio)
		}
	}
	return values
}

// PoolActiveValues extracts active connection counts for samples with pool data.
func PoolActiveValues(snapshots []Snapshot) []float64 {
	values := make([]float64, 0, len(snapshots))
	for _, s := range snapshots {
		if s.PoolActive != nil {
			values = append(values, float64(*s.PoolActive))
		}
	}
	return values
}

// Int32 returns a pointer to v, for building snapshots with pool data.
func Int32(v int32) *int32 {
	return &v
}
