package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
)

type Order struct {
	ID          snowflake.ID            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID  snowflake.ID            `gorm:"not null;index" json:"customer_id"`
	Customer    customerdomain.Customer `gorm:"foreignKey:CustomerID;constraint:OnDelete:CASCADE" json:"customer"`
	Products    []productdomain.Product `gorm:"many2many:order_products;joinForeignKey:OrderID;joinReferences:ProductID" json:"products"`
	TotalAmount decimal.Decimal         `gorm:"type:decimal(14,2);not null;default:0" json:"total_amount"`
	OrderDate   time.Time               `gorm:"not null;index" json:"order_date"`
	CreatedAt   time.Time               `gorm:"not null;index" json:"created_at"`
}

func (Order) TableName() string { return "orders" }

// MarshalJSON renders the total with exactly two decimals.
func (o Order) MarshalJSON() ([]byte, error) {
	type alias Order
	return json.Marshal(struct {
		alias
		TotalAmount string `json:"total_amount"`
	}{alias: alias(o), TotalAmount: o.TotalAmount.StringFixed(2)})
}

// OrderProduct links an order to one of its products.
type OrderProduct struct {
	OrderID   snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ProductID snowflake.ID `gorm:"primaryKey;autoIncrement:false;index"`
}

func (OrderProduct) TableName() string { return "order_products" }
