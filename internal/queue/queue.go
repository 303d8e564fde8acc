// Package queue provides the durable sync queue: an ordered log of
// mutations not yet confirmed against the remote backend, plus the
// failed-queue holding changes that exhausted their retries. Both tables
// live in the record store's database so an enqueue can commit in the same
// transaction as the record write it accompanies.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
)

// Queue is the durable FIFO of pending changes. Insertion order (the seq
// column) is replay order; only the sync manager dequeues, while any
// repository may enqueue.
type Queue struct {
	db *sql.DB
}

// New creates a Queue over the store's database. The schema is owned by the
// store's migrations.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// Enqueue appends a change to the end of the queue and fills in its
// assigned seq and creation time.
func (q *Queue) Enqueue(ch *models.QueueChange) error {
	return q.enqueue(q.db, ch)
}

// EnqueueTx is Enqueue inside the caller's transaction, used to make the
// queue append atomic with the record write it accompanies.
func (q *Queue) EnqueueTx(tx *sql.Tx, ch *models.QueueChange) error {
	return q.enqueue(tx, ch)
}

func (q *Queue) enqueue(e execer, ch *models.QueueChange) error {
	if !models.ValidOp(ch.Op) {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown change op %q", ch.Op))
	}
	if ch.CreatedAt == 0 {
		ch.CreatedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO pending_changes (entity_id, op, table_name, payload, user_id, org_id, retry_count, last_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)
	`
	res, err := e.Exec(query, ch.ID, ch.Op, ch.Table, string(ch.Payload), ch.UserID, ch.OrgID, ch.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to enqueue change", err)
	}
	ch.Seq, err = res.LastInsertId()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to read assigned seq", err)
	}
	return nil
}

// Peek returns the front change without removing it, or nil when the queue
// is empty.
func (q *Queue) Peek() (*models.QueueChange, error) {
	query := `
	SELECT seq, entity_id, op, table_name, payload, user_id, org_id, retry_count, last_error, created_at
	FROM pending_changes
	ORDER BY seq
	LIMIT 1
	`
	ch, err := scanChange(q.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ch, err
}

// Confirm removes a change after the remote accepted it.
func (q *Queue) Confirm(seq int64) error {
	_, err := q.db.Exec("DELETE FROM pending_changes WHERE seq = ?", seq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to confirm change", err)
	}
	return nil
}

// MarkRetry records a transient failure: the retry counter is bumped and
// the error kept, but the change stays at the front of the queue.
func (q *Queue) MarkRetry(seq int64, reason string) (retryCount int, err error) {
	_, err = q.db.Exec(
		"UPDATE pending_changes SET retry_count = retry_count + 1, last_error = ? WHERE seq = ?",
		reason, seq)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrQueue, "failed to mark retry", err)
	}
	err = q.db.QueryRow("SELECT retry_count FROM pending_changes WHERE seq = ?", seq).Scan(&retryCount)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrQueue, "failed to read retry count", err)
	}
	return retryCount, nil
}

// MoveToFailed moves a change out of the active queue into the durable
// failed-queue, preserving the original change and the failure reason.
// Failed entries are never deleted automatically.
func (q *Queue) MoveToFailed(seq int64, reason string) error {
	tx, err := q.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to begin move-to-failed", err)
	}

	_, err = tx.Exec(`
		INSERT INTO failed_changes (entity_id, op, table_name, payload, user_id, org_id, retry_count, reason, created_at, failed_at)
		SELECT entity_id, op, table_name, payload, user_id, org_id, retry_count, ?, created_at, ?
		FROM pending_changes WHERE seq = ?`,
		reason, time.Now().Unix(), seq)
	if err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrQueue, "failed to copy change to failed queue", err)
	}

	if _, err := tx.Exec("DELETE FROM pending_changes WHERE seq = ?", seq); err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrQueue, "failed to remove change from active queue", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to commit move-to-failed", err)
	}
	return nil
}

// Len returns the number of pending changes.
func (q *Queue) Len() (int, error) {
	var n int
	err := q.db.QueryRow("SELECT COUNT(*) FROM pending_changes").Scan(&n)
	return n, err
}

// FailedLen returns the number of failed changes.
func (q *Queue) FailedLen() (int, error) {
	var n int
	err := q.db.QueryRow("SELECT COUNT(*) FROM failed_changes").Scan(&n)
	return n, err
}

// List returns all pending changes in replay order.
func (q *Queue) List() ([]models.QueueChange, error) {
	query := `
	SELECT seq, entity_id, op, table_name, payload, user_id, org_id, retry_count, last_error, created_at
	FROM pending_changes
	ORDER BY seq
	`
	rows, err := q.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueue, "failed to list pending changes", err)
	}
	defer rows.Close()

	var changes []models.QueueChange
	for rows.Next() {
		ch, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *ch)
	}
	return changes, rows.Err()
}

// ListFailed returns all failed changes, oldest first.
func (q *Queue) ListFailed() ([]models.FailedChange, error) {
	query := `
	SELECT seq, entity_id, op, table_name, payload, user_id, org_id, retry_count, reason, created_at, failed_at
	FROM failed_changes
	ORDER BY seq
	`
	rows, err := q.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueue, "failed to list failed changes", err)
	}
	defer rows.Close()

	var failed []models.FailedChange
	for rows.Next() {
		var f models.FailedChange
		var payload string
		err := rows.Scan(&f.Seq, &f.ID, &f.Op, &f.Table, &payload, &f.UserID, &f.OrgID,
			&f.RetryCount, &f.Reason, &f.CreatedAt, &f.FailedAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrQueueCorrupt, "failed to scan failed change", err)
		}
		f.Payload = json.RawMessage(payload)
		failed = append(failed, f)
	}
	return failed, rows.Err()
}

// RetryFailed moves a failed change back to the end of the active queue
// with its retry counter reset.
func (q *Queue) RetryFailed(failedSeq int64) error {
	tx, err := q.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to begin retry-failed", err)
	}

	res, err := tx.Exec(`
		INSERT INTO pending_changes (entity_id, op, table_name, payload, user_id, org_id, retry_count, last_error, created_at)
		SELECT entity_id, op, table_name, payload, user_id, org_id, 0, '', ?
		FROM failed_changes WHERE seq = ?`,
		time.Now().Unix(), failedSeq)
	if err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrQueue, "failed to requeue failed change", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no failed change with seq %d", failedSeq))
	}

	if _, err := tx.Exec("DELETE FROM failed_changes WHERE seq = ?", failedSeq); err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrQueue, "failed to remove retried change", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to commit retry-failed", err)
	}
	return nil
}

// DiscardFailed permanently removes a failed change at the user's request.
func (q *Queue) DiscardFailed(failedSeq int64) error {
	res, err := q.db.Exec("DELETE FROM failed_changes WHERE seq = ?", failedSeq)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to discard failed change", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no failed change with seq %d", failedSeq))
	}
	return nil
}

// ClearTx empties both the active and failed queues inside the caller's
// transaction. Used by the atomic clear-all path only.
func (q *Queue) ClearTx(tx *sql.Tx) error {
	if _, err := tx.Exec("DELETE FROM pending_changes"); err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to clear pending changes", err)
	}
	if _, err := tx.Exec("DELETE FROM failed_changes"); err != nil {
		return apperrors.Wrap(apperrors.ErrQueue, "failed to clear failed changes", err)
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChange(s scanner) (*models.QueueChange, error) {
	var ch models.QueueChange
	var payload string
	err := s.Scan(&ch.Seq, &ch.ID, &ch.Op, &ch.Table, &payload, &ch.UserID, &ch.OrgID,
		&ch.RetryCount, &ch.LastError, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQueueCorrupt, "failed to scan queue change", err)
	}
	ch.Payload = json.RawMessage(payload)
	return &ch, nil
}
