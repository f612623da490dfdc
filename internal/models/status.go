// Package models provides data model definitions for the TillSync engine.
package models

import "time"

// SyncStatus is the engine state surfaced to the UI. It is derived on
// demand: pending change count comes from the queue, the rest from the
// coordinator's last recorded transition.
type SyncStatus struct {
	IsOnline       bool       `json:"is_online"`
	IsSyncing      bool       `json:"is_syncing"`
	PendingChanges int        `json:"pending_changes"`
	LastSyncTime   *time.Time `json:"last_sync_time,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// SyncResult reports the outcome of one full sync pass.
type SyncResult struct {
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Pulled    int           `json:"pulled"`
	Pushed    int           `json:"pushed"`
	Drained   int           `json:"drained"`
	Conflicts int           `json:"conflicts"`
	Duration  time.Duration `json:"duration"`
}
