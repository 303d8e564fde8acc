// Package models provides data model definitions for the quoting cache and sync layer.
package models

import "time"

// QuoteItem is a single line item on a quote. Line items are not cached
// independently; they travel with their parent Quote record.
type QuoteItem struct {
	ID          UUID    `json:"id"`
	ItemID      UUID    `json:"itemId,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Position    int     `json:"position"`
}

// Amount returns the extended price of the line item.
func (qi QuoteItem) Amount() float64 {
	return qi.Quantity * qi.UnitPrice
}

// Quote represents a proposal prepared for a customer, with its ordered
// line items embedded.
type Quote struct {
	ID         UUID        `json:"id"`
	Number     string      `json:"number"`
	CustomerID UUID        `json:"customerId"`
	Status     string      `json:"status"` // draft, sent, accepted, declined
	Items      []QuoteItem `json:"items"`
	Subtotal   float64     `json:"subtotal"`
	TaxRate    float64     `json:"taxRate"`
	Total      float64     `json:"total"`
	Notes      string      `json:"notes,omitempty"`
	ValidUntil int64       `json:"validUntil,omitempty"`
	UserID     string      `json:"userId"`
	OrgID      string      `json:"orgId,omitempty"`
	CreatedAt  int64       `json:"createdAt"`
	UpdatedAt  int64       `json:"updatedAt"`
}

// TableName returns the table name for Quote.
func (Quote) TableName() string {
	return TableQuotes
}

// Touch updates the UpdatedAt timestamp.
func (q *Quote) Touch() {
	q.UpdatedAt = time.Now().Unix()
}

// Recalculate recomputes subtotal and total from the line items.
func (q *Quote) Recalculate() {
	var subtotal float64
	for _, li := range q.Items {
		subtotal += li.Amount()
	}
	q.Subtotal = subtotal
	q.Total = subtotal * (1 + q.TaxRate)
}
