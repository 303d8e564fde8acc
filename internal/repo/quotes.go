package repo

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/uuid"
)

// GetQuotes returns the quotes visible in the scope, line items included.
func (r *Repository) GetQuotes(ctx context.Context, scope models.Scope, opts GetOptions) ([]models.Quote, error) {
	raw, err := r.list(ctx, models.TableQuotes, scope, opts)
	if err != nil {
		return nil, err
	}
	quotes := []models.Quote{}
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to decode quotes", err)
	}
	return quotes, nil
}

// AddQuote creates a quote. Totals are recomputed from the line items
// before the write so the stored copy is internally consistent.
func (r *Repository) AddQuote(ctx context.Context, scope models.Scope, q *models.Quote) error {
	if q.CustomerID == "" {
		return apperrors.New(apperrors.ErrValidation, "quote customer is required")
	}
	if q.ID == "" {
		q.ID = models.UUID(uuid.New())
	}
	if err := uuid.Validate(string(q.ID)); err != nil {
		return err
	}
	for i := range q.Items {
		if q.Items[i].ID == "" {
			q.Items[i].ID = models.UUID(uuid.New())
		}
		q.Items[i].Position = i
	}
	if q.Status == "" {
		q.Status = "draft"
	}
	q.Recalculate()
	q.UserID, q.OrgID = scope.UserID, scope.OrgID
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	q.Touch()

	raw, err := json.Marshal(q)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode quote", err)
	}
	return r.write(ctx, models.TableQuotes, models.OpCreate, q.ID, scope, raw)
}

// UpdateQuote writes new field values for an existing quote.
func (r *Repository) UpdateQuote(ctx context.Context, scope models.Scope, q *models.Quote) error {
	if err := uuid.Validate(string(q.ID)); err != nil {
		return err
	}
	for i := range q.Items {
		if q.Items[i].ID == "" {
			q.Items[i].ID = models.UUID(uuid.New())
		}
		q.Items[i].Position = i
	}
	q.Recalculate()
	q.UserID, q.OrgID = scope.UserID, scope.OrgID
	q.Touch()

	raw, err := json.Marshal(q)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode quote", err)
	}
	return r.write(ctx, models.TableQuotes, models.OpUpdate, q.ID, scope, raw)
}

// DeleteQuote removes a quote locally and remotely.
func (r *Repository) DeleteQuote(ctx context.Context, scope models.Scope, id models.UUID) error {
	if err := uuid.Validate(string(id)); err != nil {
		return err
	}
	return r.write(ctx, models.TableQuotes, models.OpDelete, id, scope, nil)
}
