// Package models provides data model definitions for the quoting cache and sync layer.
package models

import "time"

// CompanySettings holds the per-user company profile used on quotes.
// There is at most one settings record per scope; writes go through upsert.
type CompanySettings struct {
	ID              UUID    `json:"id"`
	CompanyName     string  `json:"companyName"`
	Email           string  `json:"email,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Address         string  `json:"address,omitempty"`
	LogoURL         string  `json:"logoUrl,omitempty"`
	DefaultTaxRate  float64 `json:"defaultTaxRate"`
	QuotePrefix     string  `json:"quotePrefix,omitempty"`
	NextQuoteNumber int     `json:"nextQuoteNumber"`
	UserID          string  `json:"userId"`
	OrgID           string  `json:"orgId,omitempty"`
	CreatedAt       int64   `json:"createdAt"`
	UpdatedAt       int64   `json:"updatedAt"`
}

// TableName returns the table name for CompanySettings.
func (CompanySettings) TableName() string {
	return TableSettings
}

// Touch updates the UpdatedAt timestamp.
func (s *CompanySettings) Touch() {
	s.UpdatedAt = time.Now().Unix()
}
