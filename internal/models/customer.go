// Package models provides data model definitions for the quoting cache and sync layer.
package models

import "time"

// Customer represents a client the user prepares quotes for.
type Customer struct {
	ID        UUID   `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Notes     string `json:"notes,omitempty"`
	UserID    string `json:"userId"`
	OrgID     string `json:"orgId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// TableName returns the table name for Customer.
func (Customer) TableName() string {
	return TableCustomers
}

// Touch updates the UpdatedAt timestamp.
func (c *Customer) Touch() {
	c.UpdatedAt = time.Now().Unix()
}
