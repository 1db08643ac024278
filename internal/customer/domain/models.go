package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/validation"
	"gorm.io/gorm"
)

type Customer struct {
	ID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name      string       `gorm:"size:100;not null" json:"name"`
	Email     string       `gorm:"size:254;not null;uniqueIndex" json:"email"`
	Phone     *string      `gorm:"size:20" json:"phone"`
	CreatedAt time.Time    `gorm:"not null;index" json:"created_at"`
}

func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate enforces the email format for every insert path.
func (c *Customer) BeforeCreate(*gorm.DB) error {
	return validation.EmailFormat(c.Email)
}
