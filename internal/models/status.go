// Package models provides data model definitions for the quoting cache and sync layer.
package models

// SyncStatus is the derived sync state surfaced to the UI. It is computed
// from the queue and the manager's connectivity view, never stored.
type SyncStatus struct {
	IsOnline     bool `json:"isOnline"`
	IsSyncing    bool `json:"isSyncing"`
	PendingCount int  `json:"pendingCount"`
	FailedCount  int  `json:"failedCount"`
}
