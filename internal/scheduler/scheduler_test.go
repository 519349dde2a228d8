package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/paissive/monetize/internal/clock"
	"github.com/paissive/monetize/internal/config"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/internal/payment/processors/mock"
	paymentservice "github.com/paissive/monetize/internal/payment/service"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	planservice "github.com/paissive/monetize/internal/plan/service"
	prorationservice "github.com/paissive/monetize/internal/proration/service"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	subscriptionservice "github.com/paissive/monetize/internal/subscription/service"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	usageservice "github.com/paissive/monetize/internal/usage/service"
)

type schedulerFixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	sched *Scheduler
	usage usagedomain.Service
	subs  subscriptiondomain.Service
	plans plandomain.Service
}

func setupSchedulerTest(t *testing.T) *schedulerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&usagedomain.UsageRecord{},
		&usagedomain.UsageLimit{},
		&usagedomain.UsageQuota{},
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&paymentdomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	usage := usageservice.NewService(usageservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	payments := paymentservice.NewService(paymentservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake, Processor: mock.NewProcessor(),
	})
	plans := planservice.NewService(planservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake,
	})
	proration := prorationservice.NewService(prorationservice.ServiceParam{Log: log})
	subs := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		PlanSvc:      plans,
		ProrationSvc: proration,
		PaymentSvc:   payments,
	})

	sched := New(Params{
		Log:           log,
		Clock:         fake,
		Config:        config.Config{SchedulerInterval: time.Minute},
		Usage:         usage,
		Subscriptions: subs,
	})

	return &schedulerFixture{db: db, clock: fake, sched: sched, usage: usage, subs: subs, plans: plans}
}

func TestTickRollsExpiredQuotaWindows(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	_, err := f.usage.SetLimit(ctx, usagedomain.SetLimitRequest{
		CustomerID:  "cust-1",
		Metric:      "api_call",
		Period:      "monthly",
		MaxQuantity: 1000,
	})
	require.NoError(t, err)

	_, err = f.usage.Track(ctx, usagedomain.TrackRequest{
		CustomerID: "cust-1",
		Metric:     "api_call",
		Quantity:   400,
	})
	require.NoError(t, err)

	// Still inside the April window: nothing to roll.
	f.sched.Tick(ctx)

	var quota usagedomain.UsageQuota
	require.NoError(t, f.db.Where("customer_id = ?", "cust-1").First(&quota).Error)
	assert.Equal(t, 400.0, quota.UsedQuantity)

	f.clock.Set(time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC))
	f.sched.Tick(ctx)

	require.NoError(t, f.db.Where("customer_id = ?", "cust-1").First(&quota).Error)
	assert.Equal(t, 0.0, quota.UsedQuantity)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), quota.PeriodStart.UTC())
}

func TestTickRenewsDueSubscriptions(t *testing.T) {
	f := setupSchedulerTest(t)
	ctx := context.Background()

	_, err := f.plans.Create(ctx, plandomain.CreateRequest{
		Code:   "pro",
		Name:   "Pro",
		Amount: decimal.RequireFromString("29.00"),
		Period: "monthly",
	})
	require.NoError(t, err)

	sub, err := f.subs.Create(ctx, subscriptiondomain.CreateRequest{
		CustomerID: "cust-1",
		PlanCode:   "pro",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd.UTC())

	f.clock.Set(time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC))
	f.sched.Tick(ctx)

	renewed, err := f.subs.Get(ctx, snowflake.ID(sub.ID).String())
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionActive, renewed.Status)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), renewed.CurrentPeriodStart.UTC())
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), renewed.CurrentPeriodEnd.UTC())
}

func TestStopWaitsForLoop(t *testing.T) {
	f := setupSchedulerTest(t)

	f.sched.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))
}
