package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	analyticsdomain "github.com/paissive/monetize/internal/analytics/domain"
	"github.com/paissive/monetize/internal/clock"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   analyticsdomain.Service
}

func setupAnalyticsTest(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), Clock: fake})
	return &fixture{db: db, node: node, clock: fake, svc: svc}
}

func (f *fixture) plan(t *testing.T, code, amount string, period usagedomain.Period) *plandomain.Plan {
	t.Helper()
	p := &plandomain.Plan{
		ID:       f.node.Generate().Int64(),
		Code:     code,
		Name:     code,
		Amount:   decimal.RequireFromString(amount),
		Currency: "USD",
		Period:   period,
		Active:   true,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) subscription(t *testing.T, planID int64, status subscriptiondomain.SubscriptionStatus, createdAt time.Time, canceledAt *time.Time) {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                 f.node.Generate().Int64(),
		CustomerID:         "cust-" + f.node.Generate().String(),
		PlanID:             planID,
		Status:             status,
		CurrentPeriodStart: createdAt,
		CurrentPeriodEnd:   createdAt.AddDate(0, 1, 0),
		CanceledAt:         canceledAt,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
	require.NoError(t, f.db.Create(sub).Error)
}

func TestChurnRateZeroWhenNoActiveBase(t *testing.T) {
	f := setupAnalyticsTest(t)

	churn, err := f.svc.ChurnRate(context.Background(),
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.Equal(t, 0.0, churn)
}

func TestChurnRateCountsCancellationsInWindow(t *testing.T) {
	f := setupAnalyticsTest(t)
	plan := f.plan(t, "basic", "10.00", usagedomain.PeriodMonthly)

	before := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	inWindow := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	afterWindow := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)

	// Four subscriptions active at the window start; one cancels inside it,
	// one cancels after, two stay.
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionCanceled, before, &inWindow)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionCanceled, before, &afterWindow)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive, before, nil)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive, before, nil)

	// Created mid-window: not part of the starting base.
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive, inWindow, nil)

	churn, err := f.svc.ChurnRate(context.Background(),
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, churn, 1e-9)
}

func TestChurnRateRejectsInvertedRange(t *testing.T) {
	f := setupAnalyticsTest(t)
	_, err := f.svc.ChurnRate(context.Background(),
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	)
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidRange)
}

func TestMRRNormalizesPeriods(t *testing.T) {
	f := setupAnalyticsTest(t)
	monthly := f.plan(t, "monthly", "10.00", usagedomain.PeriodMonthly)
	annual := f.plan(t, "annual", "120.00", usagedomain.PeriodAnnual)

	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.subscription(t, monthly.ID, subscriptiondomain.SubscriptionActive, created, nil)
	f.subscription(t, annual.ID, subscriptiondomain.SubscriptionActive, created, nil)

	// Canceled subscriptions do not contribute.
	canceled := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.subscription(t, monthly.ID, subscriptiondomain.SubscriptionCanceled, created, &canceled)

	mrr, err := f.svc.MRR(context.Background())
	require.NoError(t, err)
	assert.True(t, mrr.Equal(decimal.RequireFromString("20.00")), "got %s", mrr)

	arr, err := f.svc.ARR(context.Background())
	require.NoError(t, err)
	assert.True(t, arr.Equal(decimal.RequireFromString("240.00")), "got %s", arr)
}

func TestLifetimeValueUndefinedWithoutChurn(t *testing.T) {
	f := setupAnalyticsTest(t)
	plan := f.plan(t, "basic", "10.00", usagedomain.PeriodMonthly)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), nil)

	_, defined, err := f.svc.LifetimeValue(context.Background())
	require.NoError(t, err)
	assert.False(t, defined)
}

func TestLifetimeValueFromARPUAndChurn(t *testing.T) {
	f := setupAnalyticsTest(t)
	plan := f.plan(t, "basic", "10.00", usagedomain.PeriodMonthly)

	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive, created, nil)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive, created, nil)

	// Trailing month is May: two of four starting subs cancel -> churn 0.5.
	canceledAt := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionCanceled, created, &canceledAt)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionCanceled, created, &canceledAt)

	ltv, defined, err := f.svc.LifetimeValue(context.Background())
	require.NoError(t, err)
	require.True(t, defined)
	// ARPU = 20/2 = 10; LTV = 10 / 0.5 = 20.
	assert.True(t, ltv.Equal(decimal.RequireFromString("20.00")), "got %s", ltv)
}

func TestForecastRevenueCompounds(t *testing.T) {
	f := setupAnalyticsTest(t)
	plan := f.plan(t, "basic", "100.00", usagedomain.PeriodMonthly)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), nil)

	projections, err := f.svc.ForecastRevenue(context.Background(), analyticsdomain.ForecastRequest{
		Periods:    3,
		GrowthRate: 0.10,
	})
	require.NoError(t, err)
	require.Len(t, projections, 3)
	assert.True(t, projections[0].Revenue.Equal(decimal.RequireFromString("110.00")), "got %s", projections[0].Revenue)
	assert.True(t, projections[1].Revenue.Equal(decimal.RequireFromString("121.00")), "got %s", projections[1].Revenue)
	assert.True(t, projections[2].Revenue.Equal(decimal.RequireFromString("133.10")), "got %s", projections[2].Revenue)

	// Same inputs, same projection.
	again, err := f.svc.ForecastRevenue(context.Background(), analyticsdomain.ForecastRequest{
		Periods:    3,
		GrowthRate: 0.10,
	})
	require.NoError(t, err)
	assert.Equal(t, projections, again)
}

func TestForecastRevenueValidation(t *testing.T) {
	f := setupAnalyticsTest(t)

	_, err := f.svc.ForecastRevenue(context.Background(), analyticsdomain.ForecastRequest{Periods: 0})
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidPeriods)

	_, err = f.svc.ForecastRevenue(context.Background(), analyticsdomain.ForecastRequest{Periods: 3, GrowthRate: -2})
	assert.ErrorIs(t, err, analyticsdomain.ErrInvalidGrowthRate)
}

func TestOverviewAggregates(t *testing.T) {
	f := setupAnalyticsTest(t)
	plan := f.plan(t, "basic", "10.00", usagedomain.PeriodMonthly)
	f.subscription(t, plan.ID, subscriptiondomain.SubscriptionActive,
		time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), nil)

	require.NoError(t, f.db.Create(&paymentdomain.Transaction{
		ID:         f.node.Generate().Int64(),
		CustomerID: "cust-1",
		Amount:     decimal.RequireFromString("10.00"),
		Currency:   "USD",
		Status:     paymentdomain.TransactionSucceeded,
		Provider:   "mock",
	}).Error)
	require.NoError(t, f.db.Create(&paymentdomain.Transaction{
		ID:         f.node.Generate().Int64(),
		CustomerID: "cust-1",
		Amount:     decimal.RequireFromString("99.00"),
		Currency:   "USD",
		Status:     paymentdomain.TransactionFailed,
		Provider:   "mock",
	}).Error)

	overview, err := f.svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), overview.ActiveSubscriptions)
	assert.True(t, overview.MRR.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, overview.ARR.Equal(decimal.RequireFromString("120.00")))
	// Failed charges never count as revenue.
	assert.True(t, overview.TotalRevenue.Equal(decimal.RequireFromString("10.00")), "got %s", overview.TotalRevenue)
	assert.Equal(t, 0.0, overview.ChurnRate)
	assert.False(t, overview.LTVDefined)
}
