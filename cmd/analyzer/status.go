package main

import (
	"encoding/json"
	"net/http"
	"time"

	"intelligent-resource-analyzer/pkg/scheduler"
)

const upcomingRuns = 3

type runStatus struct {
	Runs      int         `json:"runs"`
	LastError string      `json:"lastError,omitempty"`
	NextRuns  []time.Time `json:"nextRuns"`
}

// statusHandler reports the scheduler's run count, last error and upcoming runs
func statusHandler(runner *scheduler.Runner, now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		runs, lastErr := runner.Stats()
		status := runStatus{Runs: runs, NextRuns: runner.NextRuns(now(), upcomingRuns)}
		if lastErr != nil {
			status.LastError = lastErr.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
