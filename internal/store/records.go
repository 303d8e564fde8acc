// Package store provides the durable Local Record Store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
)

// Record is one stored entity row: the client-shaped JSON payload plus the
// scope it was written under.
type Record struct {
	ID        models.UUID
	Scope     models.Scope
	Payload   json.RawMessage
	UpdatedAt int64
}

// Get returns all records in table visible to scope: rows owned by the
// user, plus rows shared under the scope's organization. Absence is not an
// error; an empty slice is returned.
func (s *Store) Get(table string, scope models.Scope) ([]Record, error) {
	query := `
	SELECT id, user_id, org_id, payload, updated_at
	FROM records
	WHERE table_name = ? AND (user_id = ? OR (org_id <> '' AND org_id = ?))
	ORDER BY updated_at DESC, id
	`
	rows, err := s.db.Query(query, table, scope.UserID, scope.OrgID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to read records", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Scope.UserID, &rec.Scope.OrgID, &payload, &rec.UpdatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan record", err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate records", err)
	}
	return records, nil
}

// GetByID returns a single record, or sql.ErrNoRows if absent.
func (s *Store) GetByID(table, id string) (*Record, error) {
	query := `SELECT id, user_id, org_id, payload, updated_at FROM records WHERE table_name = ? AND id = ?`

	var rec Record
	var payload string
	err := s.db.QueryRow(query, table, id).Scan(&rec.ID, &rec.Scope.UserID, &rec.Scope.OrgID, &payload, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// Put upserts a record by id. The write is committed before Put returns, so
// a subsequent Get in the same process always observes it. Returns a
// STORAGE_QUOTA_EXCEEDED error when the store's byte budget would be
// exceeded; callers must surface that, not swallow it.
func (s *Store) Put(table string, rec Record) error {
	if err := s.checkQuota(s.db, int64(len(rec.Payload))); err != nil {
		return err
	}
	return s.exec(s.db, table, rec)
}

// PutTx is Put running inside the caller's transaction. The quota check
// still applies, and runs on the transaction itself: the pool holds a
// single connection, so any query routed through s.db here would wait
// forever on the connection the transaction owns.
func (s *Store) PutTx(tx *sql.Tx, table string, rec Record) error {
	if err := s.checkQuota(tx, int64(len(rec.Payload))); err != nil {
		return err
	}
	return s.exec(tx, table, rec)
}

// execer covers *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// querier covers *sql.DB and *sql.Tx for single-row reads.
type querier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (s *Store) exec(e execer, table string, rec Record) error {
	query := `
	INSERT INTO records (table_name, id, user_id, org_id, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (table_name, id) DO UPDATE SET
		user_id = excluded.user_id,
		org_id = excluded.org_id,
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`
	_, err := e.Exec(query, table, rec.ID, rec.Scope.UserID, rec.Scope.OrgID,
		string(rec.Payload), rec.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to put record %s/%s", table, rec.ID), err)
	}
	return nil
}

// Remove deletes a record by id. Removing a missing id is a no-op success.
func (s *Store) Remove(table, id string) error {
	return s.removeExec(s.db, table, id)
}

// RemoveTx is Remove running inside the caller's transaction.
func (s *Store) RemoveTx(tx *sql.Tx, table, id string) error {
	return s.removeExec(tx, table, id)
}

func (s *Store) removeExec(e execer, table, id string) error {
	_, err := e.Exec("DELETE FROM records WHERE table_name = ? AND id = ?", table, id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to remove record %s/%s", table, id), err)
	}
	return nil
}

// ClearRecordsTx deletes every record inside the caller's transaction. Used
// by the atomic clear-all path only.
func (s *Store) ClearRecordsTx(tx *sql.Tx) error {
	if _, err := tx.Exec("DELETE FROM records"); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear records", err)
	}
	return nil
}

// Count returns the number of records in table.
func (s *Store) Count(table string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records WHERE table_name = ?", table).Scan(&n)
	return n, err
}

// Usage returns the bytes used by the database and the configured quota.
// max is zero when the quota is disabled.
func (s *Store) Usage() (used, max int64, err error) {
	return s.usage(s.db)
}

func (s *Store) usage(q querier) (used, max int64, err error) {
	var pageCount, pageSize int64
	if err := q.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrStorage, "failed to read page_count", err)
	}
	if err := q.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrStorage, "failed to read page_size", err)
	}
	return pageCount * pageSize, s.maxBytes, nil
}

// checkQuota fails with STORAGE_QUOTA_EXCEEDED when writing incoming bytes
// would overrun the budget. Callers inside a transaction pass the *sql.Tx
// so the PRAGMA reads do not contend for a second pool connection.
func (s *Store) checkQuota(q querier, incoming int64) error {
	if s.maxBytes <= 0 {
		return nil
	}
	used, _, err := s.usage(q)
	if err != nil {
		return err
	}
	if used+incoming > s.maxBytes {
		return apperrors.New(apperrors.ErrQuotaExceeded,
			fmt.Sprintf("record store quota exceeded: %d of %d bytes used", used, s.maxBytes))
	}
	return nil
}
