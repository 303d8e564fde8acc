// Package wire is the single place where client-shaped entities (camelCase
// JSON, the app's model) are converted to and from backend-shaped rows
// (snake_case columns). Every known field is listed explicitly in a
// per-entity table; the mapping is pure, deterministic, and invertible, so
// converting a row back and forth reproduces it exactly. Unknown fields are
// dropped on both sides rather than guessed at.
package wire

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/floridasonconsulting/quoteit-sync/internal/errors"
	"github.com/floridasonconsulting/quoteit-sync/internal/models"
	"github.com/floridasonconsulting/quoteit-sync/internal/remote"
)

// field is one client-name/wire-name pair.
type field struct {
	client string
	wire   string
}

var customerFields = []field{
	{"id", "id"},
	{"name", "name"},
	{"email", "email"},
	{"phone", "phone"},
	{"address", "address"},
	{"city", "city"},
	{"state", "state"},
	{"zip", "zip"},
	{"notes", "notes"},
	{"userId", "user_id"},
	{"orgId", "org_id"},
	{"createdAt", "created_at"},
	{"updatedAt", "updated_at"},
}

var itemFields = []field{
	{"id", "id"},
	{"name", "name"},
	{"description", "description"},
	{"unit", "unit"},
	{"unitPrice", "unit_price"},
	{"cost", "cost"},
	{"taxable", "taxable"},
	{"category", "category"},
	{"userId", "user_id"},
	{"orgId", "org_id"},
	{"createdAt", "created_at"},
	{"updatedAt", "updated_at"},
}

var quoteFields = []field{
	{"id", "id"},
	{"number", "number"},
	{"customerId", "customer_id"},
	{"status", "status"},
	// items are handled separately: nested line items map through
	// quoteItemFields under the "quote_items" wire key.
	{"subtotal", "subtotal"},
	{"taxRate", "tax_rate"},
	{"total", "total"},
	{"notes", "notes"},
	{"validUntil", "valid_until"},
	{"userId", "user_id"},
	{"orgId", "org_id"},
	{"createdAt", "created_at"},
	{"updatedAt", "updated_at"},
}

var quoteItemFields = []field{
	{"id", "id"},
	{"itemId", "item_id"},
	{"description", "description"},
	{"quantity", "quantity"},
	{"unitPrice", "unit_price"},
	{"position", "position"},
}

var settingsFields = []field{
	{"id", "id"},
	{"companyName", "company_name"},
	{"email", "email"},
	{"phone", "phone"},
	{"address", "address"},
	{"logoUrl", "logo_url"},
	{"defaultTaxRate", "default_tax_rate"},
	{"quotePrefix", "quote_prefix"},
	{"nextQuoteNumber", "next_quote_number"},
	{"userId", "user_id"},
	{"orgId", "org_id"},
	{"createdAt", "created_at"},
	{"updatedAt", "updated_at"},
}

// tableFields returns the mapping table for a cached entity table.
func tableFields(table string) ([]field, error) {
	switch table {
	case models.TableCustomers:
		return customerFields, nil
	case models.TableItems:
		return itemFields, nil
	case models.TableQuotes:
		return quoteFields, nil
	case models.TableSettings:
		return settingsFields, nil
	}
	return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("no wire mapping for table %q", table))
}

// ToRow converts a client-shaped entity (JSON) into a backend-shaped row.
func ToRow(table string, clientJSON json.RawMessage) (remote.Row, error) {
	fields, err := tableFields(table)
	if err != nil {
		return nil, err
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(clientJSON, &obj); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "malformed entity payload", err)
	}

	row := remote.Row{}
	for _, f := range fields {
		if v, ok := obj[f.client]; ok {
			row[f.wire] = v
		}
	}

	if table == models.TableQuotes {
		if items, ok := obj["items"].([]interface{}); ok {
			row["quote_items"] = mapList(items, quoteItemFields, true)
		}
	}

	return row, nil
}

// FromRow converts a backend-shaped row into client-shaped entity JSON.
func FromRow(table string, row remote.Row) (json.RawMessage, error) {
	fields, err := tableFields(table)
	if err != nil {
		return nil, err
	}

	obj := map[string]interface{}{}
	for _, f := range fields {
		if v, ok := row[f.wire]; ok {
			obj[f.client] = v
		}
	}

	if table == models.TableQuotes {
		if items, ok := row["quote_items"].([]interface{}); ok {
			obj["items"] = mapList(items, quoteItemFields, false)
		}
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode entity", err)
	}
	return data, nil
}

// mapList applies a field table to a list of nested objects. toWire selects
// the direction; non-object elements are dropped.
func mapList(list []interface{}, fields []field, toWire bool) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, el := range list {
		obj, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		mapped := map[string]interface{}{}
		for _, f := range fields {
			from, to := f.client, f.wire
			if !toWire {
				from, to = f.wire, f.client
			}
			if v, ok := obj[from]; ok {
				mapped[to] = v
			}
		}
		out = append(out, mapped)
	}
	return out
}
