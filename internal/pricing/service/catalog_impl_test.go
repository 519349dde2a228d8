package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/paissive/monetize/internal/clock"
	pricingdomain "github.com/paissive/monetize/internal/pricing/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalogTest(t *testing.T) pricingdomain.Catalog {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&pricingdomain.PricingRule{}, &pricingdomain.PriceTier{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewCatalog(CatalogParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func f(v float64) *float64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func graduatedTokenTiers() []pricingdomain.TierSpec {
	return []pricingdomain.TierSpec{
		{MinQuantity: 0, MaxQuantity: f(1000), PricePerUnit: dec("0.001")},
		{MinQuantity: 1000, MaxQuantity: f(10000), PricePerUnit: dec("0.0008")},
		{MinQuantity: 10000, MaxQuantity: nil, PricePerUnit: dec("0.0005")},
	}
}

func TestPerUnitCost(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CreatePerUnitRule(ctx, pricingdomain.PerUnitRuleRequest{
		Metric:       "api_call",
		PricePerUnit: dec("0.01"),
	})
	require.NoError(t, err)

	// 100 calls at $0.01 each is exactly $1.00.
	cost, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "api_call", Quantity: 100})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("1.00")), "got %s", cost)
}

func TestGraduatedCost(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CreateTieredRule(ctx, pricingdomain.TieredRuleRequest{
		Metric:    "token",
		Graduated: true,
		Tiers:     graduatedTokenTiers(),
	})
	require.NoError(t, err)

	// 1000*0.001 + 4000*0.0008 = 1.00 + 3.20 = 4.20
	cost, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "token", Quantity: 5000})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("4.20")), "got %s", cost)

	// Quantity spilling into the unbounded tier.
	cost, err = catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "token", Quantity: 20000})
	require.NoError(t, err)
	// 1000*0.001 + 9000*0.0008 + 10000*0.0005 = 1 + 7.2 + 5 = 13.20
	assert.True(t, cost.Equal(dec("13.20")), "got %s", cost)
}

func TestVolumeCost(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CreateTieredRule(ctx, pricingdomain.TieredRuleRequest{
		Metric:    "token",
		Graduated: false,
		Tiers:     graduatedTokenTiers(),
	})
	require.NoError(t, err)

	// Volume pricing: 5000 tokens all priced at the middle tier's rate.
	cost, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "token", Quantity: 5000})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("4.00")), "got %s", cost)

	// A quantity inside the first tier uses the first rate.
	cost, err = catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "token", Quantity: 500})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("0.5")), "got %s", cost)
}

func TestGraduatedCostIsMonotonic(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CreateTieredRule(ctx, pricingdomain.TieredRuleRequest{
		Metric:    "token",
		Graduated: true,
		Tiers:     graduatedTokenTiers(),
	})
	require.NoError(t, err)

	prev := decimal.Zero
	for _, q := range []float64{0, 1, 500, 999, 1000, 1001, 5000, 9999, 10000, 10001, 50000} {
		cost, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "token", Quantity: q})
		require.NoError(t, err)
		assert.True(t, cost.GreaterThanOrEqual(prev), "cost regressed at quantity %v: %s < %s", q, cost, prev)
		prev = cost
	}
}

func TestTierValidation(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		tiers []pricingdomain.TierSpec
	}{
		{"empty", nil},
		{"gap between tiers", []pricingdomain.TierSpec{
			{MinQuantity: 0, MaxQuantity: f(100), PricePerUnit: dec("1")},
			{MinQuantity: 200, MaxQuantity: nil, PricePerUnit: dec("1")},
		}},
		{"overlap", []pricingdomain.TierSpec{
			{MinQuantity: 0, MaxQuantity: f(100), PricePerUnit: dec("1")},
			{MinQuantity: 50, MaxQuantity: nil, PricePerUnit: dec("1")},
		}},
		{"bounded last tier", []pricingdomain.TierSpec{
			{MinQuantity: 0, MaxQuantity: f(100), PricePerUnit: dec("1")},
			{MinQuantity: 100, MaxQuantity: f(200), PricePerUnit: dec("1")},
		}},
		{"unbounded middle tier", []pricingdomain.TierSpec{
			{MinQuantity: 0, MaxQuantity: nil, PricePerUnit: dec("1")},
			{MinQuantity: 100, MaxQuantity: nil, PricePerUnit: dec("1")},
		}},
		{"nonzero first tier", []pricingdomain.TierSpec{
			{MinQuantity: 10, MaxQuantity: nil, PricePerUnit: dec("1")},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.CreateTieredRule(ctx, pricingdomain.TieredRuleRequest{
				Metric: "token", Graduated: true, Tiers: tc.tiers,
			})
			assert.ErrorIs(t, err, pricingdomain.ErrInvalidTiers)
		})
	}

	_, err := catalog.CreateTieredRule(ctx, pricingdomain.TieredRuleRequest{
		Metric: "token", Graduated: true,
		Tiers: []pricingdomain.TierSpec{{MinQuantity: 0, MaxQuantity: nil, PricePerUnit: dec("-1")}},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidPrice)
}

func TestLastWriteWins(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CreatePerUnitRule(ctx, pricingdomain.PerUnitRuleRequest{
		Metric: "api_call", PricePerUnit: dec("0.01"),
	})
	require.NoError(t, err)

	_, err = catalog.CreatePerUnitRule(ctx, pricingdomain.PerUnitRuleRequest{
		Metric: "api_call", PricePerUnit: dec("0.02"),
	})
	require.NoError(t, err)

	cost, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "api_call", Quantity: 100})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("2.00")), "got %s", cost)

	rules, err := catalog.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCategorySpecificRulePreferred(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CreatePerUnitRule(ctx, pricingdomain.PerUnitRuleRequest{
		Metric: "api_call", PricePerUnit: dec("0.01"),
	})
	require.NoError(t, err)
	_, err = catalog.CreatePerUnitRule(ctx, pricingdomain.PerUnitRuleRequest{
		Metric: "api_call", Category: "Search API", PricePerUnit: dec("0.05"),
	})
	require.NoError(t, err)

	cost, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{
		Metric: "api_call", Category: "search-api", Quantity: 10,
	})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("0.5")), "got %s", cost)

	// Unknown categories fall back to the bare metric rule.
	cost, err = catalog.CalculateCost(ctx, pricingdomain.CostRequest{
		Metric: "api_call", Category: "other", Quantity: 10,
	})
	require.NoError(t, err)
	assert.True(t, cost.Equal(dec("0.1")), "got %s", cost)
}

func TestCostWithoutRule(t *testing.T) {
	catalog := setupCatalogTest(t)

	_, err := catalog.CalculateCost(context.Background(), pricingdomain.CostRequest{
		Metric: "api_call", Quantity: 10,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrNoRule)
}

func TestCostValidation(t *testing.T) {
	catalog := setupCatalogTest(t)
	ctx := context.Background()

	_, err := catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "bogus", Quantity: 10})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidMetric)

	_, err = catalog.CalculateCost(ctx, pricingdomain.CostRequest{Metric: "api_call", Quantity: -1})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidQuantity)
}
