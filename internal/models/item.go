// Package models provides data model definitions for the quoting cache and sync layer.
package models

import "time"

// Item represents a reusable catalog entry priced into quotes.
type Item struct {
	ID          UUID    `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Unit        string  `json:"unit,omitempty"`
	UnitPrice   float64 `json:"unitPrice"`
	Cost        float64 `json:"cost,omitempty"`
	Taxable     bool    `json:"taxable"`
	Category    string  `json:"category,omitempty"`
	UserID      string  `json:"userId"`
	OrgID       string  `json:"orgId,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// TableName returns the table name for Item.
func (Item) TableName() string {
	return TableItems
}

// Touch updates the UpdatedAt timestamp.
func (i *Item) Touch() {
	i.UpdatedAt = time.Now().Unix()
}
