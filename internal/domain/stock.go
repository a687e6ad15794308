package domain

import "time"

// Stock represents a tradable instrument with cached pricing metadata.
// Rows are upserted lazily the first time a mention references an unseen
// ticker and refreshed by the price-refresh operations.
type Stock struct {
	Ticker         string     `gorm:"type:text;primaryKey" json:"ticker"`
	Name           string     `gorm:"type:text" json:"name,omitempty"`
	Exchange       string     `gorm:"type:text;not null;default:NYSE" json:"exchange"`
	LastPrice      *float64   `json:"last_price,omitempty"`
	PriceUpdatedAt *time.Time `json:"price_updated_at,omitempty"`
}

// TableName returns the database table name for Stock.
func (Stock) TableName() string {
	return "stocks"
}
