package repo

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/uuid"
)

// GetSettings returns the company settings for the scope, or nil when no
// settings record exists yet.
func (r *Repository) GetSettings(ctx context.Context, scope models.Scope, opts GetOptions) (*models.CompanySettings, error) {
	raw, err := r.list(ctx, models.TableSettings, scope, opts)
	if err != nil {
		return nil, err
	}
	list := []models.CompanySettings{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to decode settings", err)
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// SaveSettings creates or replaces the scope's settings record. The write
// goes through upsert so a first save and a later edit are the same call.
func (r *Repository) SaveSettings(ctx context.Context, scope models.Scope, s *models.CompanySettings) error {
	if s.CompanyName == "" {
		return apperrors.New(apperrors.ErrValidation, "company name is required")
	}
	if s.ID == "" {
		s.ID = models.UUID(uuid.New())
	}
	if err := uuid.Validate(string(s.ID)); err != nil {
		return err
	}
	s.UserID, s.OrgID = scope.UserID, scope.OrgID
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	s.Touch()

	raw, err := json.Marshal(s)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode settings", err)
	}
	return r.write(ctx, models.TableSettings, models.OpUpsert, s.ID, scope, raw)
}
