package service

import (
	"context"
	"testing"
	"time"

	prorationdomain "github.com/paissive/monetize/internal/proration/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProrationService() prorationdomain.Service {
	return NewService(ServiceParam{Log: zap.NewNop()})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlanChangeMidPeriod(t *testing.T) {
	svc := newProrationService()

	// Day 15 of a 30-day month: 16 days remain.
	res, err := svc.CalculatePlanChange(context.Background(), prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("10.00"),
		NewPlanAmount: dec("20.00"),
		PeriodStart:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodMonthly,
	})
	require.NoError(t, err)

	assert.Equal(t, 30, res.DaysInPeriod)
	assert.Equal(t, 16, res.DaysRemaining)
	// 20*16/30 - 10*16/30 = 5.333... -> 5.33
	assert.True(t, res.Amount.Equal(dec("5.33")), "got %s", res.Amount)
	assert.True(t, res.Credit.Equal(dec("5.33")), "got %s", res.Credit)
	assert.True(t, res.Charge.Equal(dec("10.67")), "got %s", res.Charge)
}

func TestPlanChangeAtPeriodStart(t *testing.T) {
	svc := newProrationService()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := svc.CalculatePlanChange(context.Background(), prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("10.00"),
		NewPlanAmount: dec("30.00"),
		PeriodStart:   start,
		CurrentDate:   start,
		Period:        usagedomain.PeriodMonthly,
	})
	require.NoError(t, err)

	// Full period remains: full credit, full charge.
	assert.Equal(t, res.DaysInPeriod, res.DaysRemaining)
	assert.True(t, res.Credit.Equal(dec("10.00")), "got %s", res.Credit)
	assert.True(t, res.Charge.Equal(dec("30.00")), "got %s", res.Charge)
	assert.True(t, res.Amount.Equal(dec("20.00")), "got %s", res.Amount)
}

func TestPlanChangeOnLastDay(t *testing.T) {
	svc := newProrationService()

	res, err := svc.CalculatePlanChange(context.Background(), prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("10.00"),
		NewPlanAmount: dec("20.00"),
		PeriodStart:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodMonthly,
	})
	require.NoError(t, err)

	// Never zero, even on the final day.
	assert.Equal(t, 1, res.DaysRemaining)
}

func TestPlanChangeDowngradeYieldsCredit(t *testing.T) {
	svc := newProrationService()

	res, err := svc.CalculatePlanChange(context.Background(), prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("20.00"),
		NewPlanAmount: dec("10.00"),
		PeriodStart:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodMonthly,
	})
	require.NoError(t, err)
	assert.True(t, res.Amount.IsNegative())
}

func TestPlanChangeAnnualPeriod(t *testing.T) {
	svc := newProrationService()

	res, err := svc.CalculatePlanChange(context.Background(), prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("120.00"),
		NewPlanAmount: dec("240.00"),
		PeriodStart:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodAnnual,
	})
	require.NoError(t, err)
	assert.Equal(t, 365, res.DaysInPeriod)
	assert.Equal(t, 365, res.DaysRemaining)
	assert.True(t, res.Amount.Equal(dec("120.00")), "got %s", res.Amount)
}

func TestPlanChangeFebruaryMonthLength(t *testing.T) {
	svc := newProrationService()

	res, err := svc.CalculatePlanChange(context.Background(), prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("10.00"),
		NewPlanAmount: dec("20.00"),
		PeriodStart:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, 28, res.DaysInPeriod)
}

func TestPlanChangeValidation(t *testing.T) {
	svc := newProrationService()
	ctx := context.Background()

	_, err := svc.CalculatePlanChange(ctx, prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("-1"),
		NewPlanAmount: dec("10"),
		PeriodStart:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodMonthly,
	})
	assert.ErrorIs(t, err, prorationdomain.ErrInvalidAmount)

	_, err = svc.CalculatePlanChange(ctx, prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("1"),
		NewPlanAmount: dec("10"),
		PeriodStart:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Period:        "quarterly",
	})
	assert.ErrorIs(t, err, prorationdomain.ErrInvalidPeriod)

	_, err = svc.CalculatePlanChange(ctx, prorationdomain.PlanChangeRequest{
		OldPlanAmount: dec("1"),
		NewPlanAmount: dec("10"),
		PeriodStart:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		CurrentDate:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
		Period:        usagedomain.PeriodMonthly,
	})
	assert.ErrorIs(t, err, prorationdomain.ErrInvalidDate)
}
