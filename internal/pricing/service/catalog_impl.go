package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/paissive/monetize/internal/clock"
	pricingdomain "github.com/paissive/monetize/internal/pricing/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/paissive/monetize/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CatalogParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Catalog struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock

	ruleRepo repository.Repository[pricingdomain.PricingRule]
}

func NewCatalog(p CatalogParam) pricingdomain.Catalog {
	return &Catalog{
		db:  p.DB,
		log: p.Log.Named("pricing.catalog"),

		genID: p.GenID,
		clock: p.Clock,

		ruleRepo: repository.ProvideStore[pricingdomain.PricingRule](p.DB),
	}
}

func (c *Catalog) CreatePerUnitRule(ctx context.Context, req pricingdomain.PerUnitRuleRequest) (*pricingdomain.PricingRule, error) {
	metric, ok := usagedomain.ParseMetric(req.Metric)
	if !ok {
		return nil, pricingdomain.ErrInvalidMetric
	}
	if req.PricePerUnit.IsNegative() {
		return nil, pricingdomain.ErrInvalidPrice
	}

	now := c.clock.Now()
	rule := &pricingdomain.PricingRule{
		ID:           c.genID.Generate(),
		Metric:       metric,
		Category:     normalizeCategory(req.Category),
		Kind:         pricingdomain.RuleKindPerUnit,
		PricePerUnit: req.PricePerUnit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.replaceRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (c *Catalog) CreateTieredRule(ctx context.Context, req pricingdomain.TieredRuleRequest) (*pricingdomain.PricingRule, error) {
	metric, ok := usagedomain.ParseMetric(req.Metric)
	if !ok {
		return nil, pricingdomain.ErrInvalidMetric
	}
	if err := validateTiers(req.Tiers); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	rule := &pricingdomain.PricingRule{
		ID:        c.genID.Generate(),
		Metric:    metric,
		Category:  normalizeCategory(req.Category),
		Kind:      pricingdomain.RuleKindTiered,
		Graduated: req.Graduated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, spec := range req.Tiers {
		rule.Tiers = append(rule.Tiers, pricingdomain.PriceTier{
			ID:           c.genID.Generate(),
			RuleID:       rule.ID,
			MinQuantity:  spec.MinQuantity,
			MaxQuantity:  spec.MaxQuantity,
			PricePerUnit: spec.PricePerUnit,
		})
	}

	if err := c.replaceRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (c *Catalog) ListRules(ctx context.Context) ([]*pricingdomain.PricingRule, error) {
	var rules []*pricingdomain.PricingRule
	err := c.db.WithContext(ctx).Preload("Tiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("min_quantity ASC")
	}).Order("metric, category").Find(&rules).Error
	return rules, err
}

func (c *Catalog) CalculateCost(ctx context.Context, req pricingdomain.CostRequest) (decimal.Decimal, error) {
	metric, ok := usagedomain.ParseMetric(req.Metric)
	if !ok {
		return decimal.Zero, pricingdomain.ErrInvalidMetric
	}
	if req.Quantity < 0 {
		return decimal.Zero, pricingdomain.ErrInvalidQuantity
	}

	rule, err := c.resolveRule(ctx, metric, normalizeCategory(req.Category))
	if err != nil {
		return decimal.Zero, err
	}

	switch rule.Kind {
	case pricingdomain.RuleKindPerUnit:
		return rule.PricePerUnit.Mul(decimal.NewFromFloat(req.Quantity)), nil
	case pricingdomain.RuleKindTiered:
		// Persisted tiers are re-checked before pricing anything.
		if invariantBroken(rule.Tiers) {
			c.log.Error("pricing tiers lost contiguity",
				zap.String("metric", string(rule.Metric)),
				zap.String("category", rule.Category),
			)
			return decimal.Zero, pricingdomain.ErrTierInvariant
		}
		if rule.Graduated {
			return graduatedCost(rule.Tiers, req.Quantity), nil
		}
		return volumeCost(rule.Tiers, req.Quantity), nil
	default:
		return decimal.Zero, pricingdomain.ErrNoRule
	}
}

// resolveRule prefers a category-specific rule over the bare metric rule.
func (c *Catalog) resolveRule(ctx context.Context, metric usagedomain.Metric, category string) (*pricingdomain.PricingRule, error) {
	if category != "" {
		rule, err := c.loadRule(ctx, metric, category)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}
	}

	rule, err := c.loadRule(ctx, metric, "")
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, pricingdomain.ErrNoRule
	}
	return rule, nil
}

func (c *Catalog) loadRule(ctx context.Context, metric usagedomain.Metric, category string) (*pricingdomain.PricingRule, error) {
	var rule pricingdomain.PricingRule
	err := c.db.WithContext(ctx).Preload("Tiers", func(db *gorm.DB) *gorm.DB {
		return db.Order("min_quantity ASC")
	}).Where("metric = ? AND category = ?", metric, category).First(&rule).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// replaceRule implements last-write-wins per (metric, category).
func (c *Catalog) replaceRule(ctx context.Context, rule *pricingdomain.PricingRule) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing pricingdomain.PricingRule
		err := tx.Where("metric = ? AND category = ?", rule.Metric, rule.Category).First(&existing).Error
		if err == nil {
			if err := tx.Where("rule_id = ?", existing.ID).Delete(&pricingdomain.PriceTier{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		return tx.Create(rule).Error
	})
}

func validateTiers(specs []pricingdomain.TierSpec) error {
	if len(specs) == 0 {
		return pricingdomain.ErrInvalidTiers
	}

	tiers := make([]pricingdomain.TierSpec, len(specs))
	copy(tiers, specs)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })

	if tiers[0].MinQuantity != 0 {
		return pricingdomain.ErrInvalidTiers
	}

	for i, tier := range tiers {
		if tier.PricePerUnit.IsNegative() {
			return pricingdomain.ErrInvalidPrice
		}
		last := i == len(tiers)-1
		if tier.MaxQuantity == nil {
			// Only the final tier may be unbounded, and it must be.
			if !last {
				return pricingdomain.ErrInvalidTiers
			}
			continue
		}
		if *tier.MaxQuantity <= tier.MinQuantity {
			return pricingdomain.ErrInvalidTiers
		}
		if last {
			return pricingdomain.ErrInvalidTiers
		}
		if tiers[i+1].MinQuantity != *tier.MaxQuantity {
			return pricingdomain.ErrInvalidTiers
		}
	}
	return nil
}

func invariantBroken(tiers []pricingdomain.PriceTier) bool {
	if len(tiers) == 0 {
		return true
	}
	if tiers[0].MinQuantity != 0 {
		return true
	}
	for i, tier := range tiers {
		last := i == len(tiers)-1
		if tier.MaxQuantity == nil {
			if !last {
				return true
			}
			continue
		}
		if last {
			return true
		}
		if tiers[i+1].MinQuantity != *tier.MaxQuantity {
			return true
		}
	}
	return false
}

// graduatedCost prices each portion of quantity at its own tier, like a
// progressive tariff.
func graduatedCost(tiers []pricingdomain.PriceTier, quantity float64) decimal.Decimal {
	cost := decimal.Zero
	remaining := quantity
	for _, tier := range tiers {
		if remaining <= 0 {
			break
		}
		portion := remaining
		if width := tier.Width(); width >= 0 && portion > width {
			portion = width
		}
		cost = cost.Add(tier.PricePerUnit.Mul(decimal.NewFromFloat(portion)))
		remaining -= portion
	}
	return cost
}

// volumeCost prices the entire quantity at the rate of the tier it lands in.
func volumeCost(tiers []pricingdomain.PriceTier, quantity float64) decimal.Decimal {
	for _, tier := range tiers {
		if tier.MaxQuantity == nil || quantity < *tier.MaxQuantity {
			return tier.PricePerUnit.Mul(decimal.NewFromFloat(quantity))
		}
	}
	// Unreachable with valid tiers; the last tier is unbounded.
	last := tiers[len(tiers)-1]
	return last.PricePerUnit.Mul(decimal.NewFromFloat(quantity))
}

func normalizeCategory(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return slug.Make(raw)
}
