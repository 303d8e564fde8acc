// Package models provides data model definitions for the quoting cache and sync layer.
package models

import (
	"database/sql/driver"
	"fmt"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Scope is the (user, organization) pair that restricts which records are
// visible and owned. OrgID may be empty for personal accounts. The cache
// layer treats both values as opaque keys supplied by the caller.
type Scope struct {
	UserID string `json:"userId"`
	OrgID  string `json:"orgId,omitempty"`
}

// Table names for the cached entity types.
const (
	TableCustomers = "customers"
	TableItems     = "items"
	TableQuotes    = "quotes"
	TableSettings  = "company_settings"
)

// KnownTable reports whether table is one of the cached entity tables.
func KnownTable(table string) bool {
	switch table {
	case TableCustomers, TableItems, TableQuotes, TableSettings:
		return true
	}
	return false
}
