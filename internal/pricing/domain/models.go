// Package domain contains persistence models for the pricing catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
)

// RuleKind distinguishes flat per-unit pricing from tiered pricing.
type RuleKind string

const (
	RuleKindPerUnit RuleKind = "per_unit"
	RuleKindTiered  RuleKind = "tiered"
)

// PricingRule converts accumulated usage into cost for one (metric, category).
type PricingRule struct {
	ID           snowflake.ID       `gorm:"primaryKey" json:"id"`
	Metric       usagedomain.Metric `gorm:"type:text;not null;uniqueIndex:idx_pricing_rules_key" json:"metric"`
	Category     string             `gorm:"type:text;uniqueIndex:idx_pricing_rules_key" json:"category,omitempty"`
	Kind         RuleKind           `gorm:"type:text;not null" json:"kind"`
	Graduated    bool               `gorm:"not null;default:false" json:"graduated"`
	PricePerUnit decimal.Decimal    `gorm:"type:numeric;not null" json:"price_per_unit"`
	Tiers        []PriceTier        `gorm:"foreignKey:RuleID;constraint:OnDelete:CASCADE" json:"tiers,omitempty"`
	CreatedAt    time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (PricingRule) TableName() string { return "pricing_rules" }

// PriceTier is one contiguous [MinQuantity, MaxQuantity) band of a tiered rule.
// A nil MaxQuantity marks the unbounded last tier.
type PriceTier struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	RuleID       snowflake.ID    `gorm:"not null;index" json:"rule_id"`
	MinQuantity  float64         `gorm:"not null" json:"min_quantity"`
	MaxQuantity  *float64        `gorm:"" json:"max_quantity,omitempty"`
	PricePerUnit decimal.Decimal `gorm:"type:numeric;not null" json:"price_per_unit"`
}

// TableName sets the database table name.
func (PriceTier) TableName() string { return "price_tiers" }

// Width returns the quantity span of the tier, or -1 when unbounded.
func (t PriceTier) Width() float64 {
	if t.MaxQuantity == nil {
		return -1
	}
	return *t.MaxQuantity - t.MinQuantity
}
