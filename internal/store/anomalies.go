// Package store provides the durable Local Record Store.
package store

import (
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/uuid"
)

// RecordAnomaly durably logs a non-fatal reconciliation outcome. The id and
// detection time are assigned here.
func (s *Store) RecordAnomaly(a *models.SyncAnomaly) error {
	a.ID = models.UUID(uuid.New())
	a.DetectedAt = time.Now().Unix()

	query := `
	INSERT INTO sync_anomalies (id, table_name, entity_id, kind, detail, detected_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, a.ID, a.Table, a.EntityID, a.Kind, a.Detail, a.DetectedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to record sync anomaly", err)
	}
	return nil
}

// ListAnomalies returns all recorded anomalies, newest first.
func (s *Store) ListAnomalies() ([]models.SyncAnomaly, error) {
	query := `
	SELECT id, table_name, entity_id, kind, detail, detected_at
	FROM sync_anomalies
	ORDER BY detected_at DESC, id
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list sync anomalies", err)
	}
	defer rows.Close()

	var anomalies []models.SyncAnomaly
	for rows.Next() {
		var a models.SyncAnomaly
		if err := rows.Scan(&a.ID, &a.Table, &a.EntityID, &a.Kind, &a.Detail, &a.DetectedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan sync anomaly", err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}
