package repo

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/uuid"
)

// GetItems returns the catalog items visible in the scope.
func (r *Repository) GetItems(ctx context.Context, scope models.Scope, opts GetOptions) ([]models.Item, error) {
	raw, err := r.list(ctx, models.TableItems, scope, opts)
	if err != nil {
		return nil, err
	}
	items := []models.Item{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to decode items", err)
	}
	return items, nil
}

// AddItem creates a catalog item, committing locally before any network I/O.
func (r *Repository) AddItem(ctx context.Context, scope models.Scope, item *models.Item) error {
	if item.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "item name is required")
	}
	if item.UnitPrice < 0 {
		return apperrors.New(apperrors.ErrValidation, "item unit price cannot be negative")
	}
	if item.ID == "" {
		item.ID = models.UUID(uuid.New())
	}
	if err := uuid.Validate(string(item.ID)); err != nil {
		return err
	}
	item.UserID, item.OrgID = scope.UserID, scope.OrgID
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().Unix()
	}
	item.Touch()

	raw, err := json.Marshal(item)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode item", err)
	}
	return r.write(ctx, models.TableItems, models.OpCreate, item.ID, scope, raw)
}

// UpdateItem writes new field values for an existing catalog item.
func (r *Repository) UpdateItem(ctx context.Context, scope models.Scope, item *models.Item) error {
	if err := uuid.Validate(string(item.ID)); err != nil {
		return err
	}
	if item.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "item name is required")
	}
	item.UserID, item.OrgID = scope.UserID, scope.OrgID
	item.Touch()

	raw, err := json.Marshal(item)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode item", err)
	}
	return r.write(ctx, models.TableItems, models.OpUpdate, item.ID, scope, raw)
}

// DeleteItem removes a catalog item locally and remotely.
func (r *Repository) DeleteItem(ctx context.Context, scope models.Scope, id models.UUID) error {
	if err := uuid.Validate(string(id)); err != nil {
		return err
	}
	return r.write(ctx, models.TableItems, models.OpDelete, id, scope, nil)
}
