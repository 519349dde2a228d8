package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// TierSpec describes one tier of a requested tiered rule.
type TierSpec struct {
	MinQuantity  float64         `json:"min_quantity"`
	MaxQuantity  *float64        `json:"max_quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// PerUnitRuleRequest registers flat per-unit pricing.
type PerUnitRuleRequest struct {
	Metric       string          `json:"metric"`
	Category     string          `json:"category"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// TieredRuleRequest registers tiered pricing. Graduated rules price each
// portion at its own tier; volume rules price the whole quantity at the
// rate of the tier the total lands in.
type TieredRuleRequest struct {
	Metric    string     `json:"metric"`
	Category  string     `json:"category"`
	Graduated bool       `json:"graduated"`
	Tiers     []TierSpec `json:"tiers"`
}

// CostRequest computes the cost of a quantity under the registered rule.
type CostRequest struct {
	Metric   string  `form:"metric" json:"metric"`
	Category string  `form:"category" json:"category"`
	Quantity float64 `form:"quantity" json:"quantity"`
}

// Catalog owns the pricing rules. It is constructed once and passed by
// reference, never a process-global registry.
type Catalog interface {
	CreatePerUnitRule(ctx context.Context, req PerUnitRuleRequest) (*PricingRule, error)
	CreateTieredRule(ctx context.Context, req TieredRuleRequest) (*PricingRule, error)
	ListRules(ctx context.Context) ([]*PricingRule, error)
	CalculateCost(ctx context.Context, req CostRequest) (decimal.Decimal, error)
}

var (
	ErrInvalidMetric   = errors.New("invalid_metric")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidTiers    = errors.New("invalid_tiers")
	ErrNoRule          = errors.New("no_pricing_rule")

	// ErrTierInvariant signals tier contiguity broken after persistence.
	// It can only come from corrupted state and must never be swallowed.
	ErrTierInvariant = errors.New("tier_invariant_violation")
)
