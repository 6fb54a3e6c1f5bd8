package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SyncResult is the aggregate outcome of one sync pass.
type SyncResult struct {
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Processed reports whether the pass touched any item at all.
func (r SyncResult) Processed() bool {
	return r.Synced > 0 || r.Failed > 0
}

// StatusCounts is a per-status breakdown of the queue, used by the status
// surface.
type StatusCounts struct {
	Pending int `json:"pending"`
	Syncing int `json:"syncing"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// Add tallies one item into the counts.
func (c *StatusCounts) Add(status ItemStatus) {
	c.Total++
	switch status {
	case StatusPending:
		c.Pending++
	case StatusSyncing:
		c.Syncing++
	case StatusFailed:
		c.Failed++
	}
}

// SyncStatus is a point-in-time snapshot of the sync engine for UI
// consumption.
type SyncStatus struct {
	IsSyncing  bool         `json:"is_syncing"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	LastResult *SyncResult  `json:"last_result,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	Counts     StatusCounts `json:"counts"`
}

// String returns the JSON string representation of the sync status.
func (s *SyncStatus) String() string {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal sync status: %v"}`, err)
	}
	return string(data)
}
