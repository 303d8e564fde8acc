// Package models provides data model definitions for the quoting cache and sync layer.
package models

import (
	"encoding/json"
	"time"
)

// ChangeOp is the kind of mutation held in the sync queue.
type ChangeOp string

const (
	OpCreate ChangeOp = "create"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
	OpUpsert ChangeOp = "upsert"
)

// ValidOp reports whether op is a known mutation kind.
func ValidOp(op ChangeOp) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete, OpUpsert:
		return true
	}
	return false
}

// QueueChange is one pending mutation awaiting confirmation against the
// remote backend. Seq is assigned by the durable queue and defines replay
// order; changes replay strictly in insertion order. Payload is the
// backend-shaped row (repositories convert before enqueueing) so the drain
// loop never reshapes data.
type QueueChange struct {
	Seq        int64           `json:"seq"`
	ID         UUID            `json:"id"`       // entity id the change applies to
	Op         ChangeOp        `json:"op"`
	Table      string          `json:"table"`
	Payload    json.RawMessage `json:"payload,omitempty"` // empty for deletes
	UserID     string          `json:"userId"`
	OrgID      string          `json:"orgId,omitempty"`
	RetryCount int             `json:"retryCount"`
	LastError  string          `json:"lastError,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
}

// Scope returns the visibility scope the change was made under.
func (c *QueueChange) Scope() Scope {
	return Scope{UserID: c.UserID, OrgID: c.OrgID}
}

// FailedChange is a queue change that exhausted its retries or was rejected
// permanently. Failed changes are kept durably, with the original payload
// intact, until the user retries or discards them. They are never deleted
// automatically.
type FailedChange struct {
	QueueChange
	Reason   string `json:"reason"`
	FailedAt int64  `json:"failedAt"`
}

// FailedAtTime returns FailedAt as time.Time.
func (f *FailedChange) FailedAtTime() time.Time {
	return time.Unix(f.FailedAt, 0)
}
