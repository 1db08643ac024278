package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// LowStockThreshold is the stock level below which a product is restocked.
const LowStockThreshold = 10

type Product struct {
	ID        snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time       `gorm:"not null;index" json:"created_at"`
}

func (Product) TableName() string { return "products" }

// MarshalJSON renders the price with exactly two decimals.
func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{alias: alias(p), Price: p.Price.StringFixed(2)})
}
