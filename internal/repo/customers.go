package repo

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/uuid"
)

// GetCustomers returns the customers visible in the scope.
func (r *Repository) GetCustomers(ctx context.Context, scope models.Scope, opts GetOptions) ([]models.Customer, error) {
	raw, err := r.list(ctx, models.TableCustomers, scope, opts)
	if err != nil {
		return nil, err
	}
	customers := []models.Customer{}
	if err := json.Unmarshal(raw, &customers); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to decode customers", err)
	}
	return customers, nil
}

// AddCustomer creates a customer, committing locally before any network I/O.
func (r *Repository) AddCustomer(ctx context.Context, scope models.Scope, c *models.Customer) error {
	if c.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "customer name is required")
	}
	if c.ID == "" {
		c.ID = models.UUID(uuid.New())
	}
	if err := uuid.Validate(string(c.ID)); err != nil {
		return err
	}
	c.UserID, c.OrgID = scope.UserID, scope.OrgID
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	c.Touch()

	raw, err := json.Marshal(c)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode customer", err)
	}
	return r.write(ctx, models.TableCustomers, models.OpCreate, c.ID, scope, raw)
}

// UpdateCustomer writes new field values for an existing customer.
func (r *Repository) UpdateCustomer(ctx context.Context, scope models.Scope, c *models.Customer) error {
	if err := uuid.Validate(string(c.ID)); err != nil {
		return err
	}
	if c.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "customer name is required")
	}
	c.UserID, c.OrgID = scope.UserID, scope.OrgID
	c.Touch()

	raw, err := json.Marshal(c)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode customer", err)
	}
	return r.write(ctx, models.TableCustomers, models.OpUpdate, c.ID, scope, raw)
}

// DeleteCustomer removes a customer locally and remotely.
func (r *Repository) DeleteCustomer(ctx context.Context, scope models.Scope, id models.UUID) error {
	if err := uuid.Validate(string(id)); err != nil {
		return err
	}
	return r.write(ctx, models.TableCustomers, models.OpDelete, id, scope, nil)
}
