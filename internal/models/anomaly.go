// Package models provides data model definitions for the quoting cache and sync layer.
package models

import "time"

// SyncAnomaly records a non-fatal reconciliation outcome the user should be
// able to inspect, such as a queued update arriving after the record was
// deleted remotely (the delete wins). Anomalies are informational; they do
// not block the queue.
type SyncAnomaly struct {
	ID         UUID   `json:"id"`
	Table      string `json:"table"`
	EntityID   UUID   `json:"entityId"`
	Kind       string `json:"kind"` // update_after_delete, conflict_overwritten
	Detail     string `json:"detail,omitempty"`
	DetectedAt int64  `json:"detectedAt"`
}

const (
	AnomalyUpdateAfterDelete   = "update_after_delete"
	AnomalyConflictOverwritten = "conflict_overwritten"
)

// DetectedAtTime returns DetectedAt as time.Time.
func (a *SyncAnomaly) DetectedAtTime() time.Time {
	return time.Unix(a.DetectedAt, 0)
}
