package domain

import (
	"time"

	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Plan is a sellable subscription plan. Amount is the recurring price per
// billing period in Currency.
type Plan struct {
	ID          int64              `json:"id" gorm:"primaryKey"`
	Code        string             `json:"code" gorm:"type:text;not null;uniqueIndex:ux_plans_code"`
	Name        string             `json:"name" gorm:"type:text;not null"`
	Description *string            `json:"description,omitempty" gorm:"type:text"`
	Amount      decimal.Decimal    `json:"amount" gorm:"type:numeric;not null"`
	Currency    string             `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Period      usagedomain.Period `json:"period" gorm:"type:text;not null"`
	Active      bool               `json:"active" gorm:"not null;default:true"`
	Metadata    datatypes.JSONMap  `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plan) TableName() string { return "plans" }
