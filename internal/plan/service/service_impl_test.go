package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/paissive/monetize/internal/clock"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPlanTest(t *testing.T) plandomain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&plandomain.Plan{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreatePlanNormalizesCode(t *testing.T) {
	svc := setupPlanTest(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, plandomain.CreateRequest{
		Code:   "Pro Monthly",
		Name:   "Pro",
		Amount: dec("29.00"),
		Period: "monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, "pro-monthly", plan.Code)
	assert.Equal(t, "USD", plan.Currency)
	assert.True(t, plan.Active)

	got, err := svc.GetByCode(ctx, "Pro Monthly")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)
}

func TestCreatePlanRejectsDuplicateCode(t *testing.T) {
	svc := setupPlanTest(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, plandomain.CreateRequest{
		Code: "pro", Name: "Pro", Amount: dec("29.00"), Period: "monthly",
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, plandomain.CreateRequest{
		Code: "pro", Name: "Pro Again", Amount: dec("39.00"), Period: "monthly",
	})
	assert.ErrorIs(t, err, plandomain.ErrDuplicateCode)
}

func TestCreatePlanValidation(t *testing.T) {
	svc := setupPlanTest(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  plandomain.CreateRequest
		want error
	}{
		{"empty code", plandomain.CreateRequest{Name: "Pro", Amount: dec("1"), Period: "monthly"}, plandomain.ErrInvalidCode},
		{"empty name", plandomain.CreateRequest{Code: "pro", Amount: dec("1"), Period: "monthly"}, plandomain.ErrInvalidName},
		{"negative amount", plandomain.CreateRequest{Code: "pro", Name: "Pro", Amount: dec("-1"), Period: "monthly"}, plandomain.ErrInvalidAmount},
		{"bad currency", plandomain.CreateRequest{Code: "pro", Name: "Pro", Amount: dec("1"), Currency: "DOLLARS", Period: "monthly"}, plandomain.ErrInvalidCurrency},
		{"bad period", plandomain.CreateRequest{Code: "pro", Name: "Pro", Amount: dec("1"), Period: "quarterly"}, plandomain.ErrInvalidPeriod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdatePlanAmount(t *testing.T) {
	svc := setupPlanTest(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, plandomain.CreateRequest{
		Code: "pro", Name: "Pro", Amount: dec("29.00"), Period: "monthly",
	})
	require.NoError(t, err)

	amount := dec("39.00")
	updated, err := svc.Update(ctx, plandomain.UpdateRequest{
		ID:     snowflake.ID(plan.ID).String(),
		Amount: &amount,
	})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))

	got, err := svc.Get(ctx, snowflake.ID(plan.ID).String())
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(amount))
}

func TestArchivePlanExcludedFromActiveList(t *testing.T) {
	svc := setupPlanTest(t)
	ctx := context.Background()

	pro, err := svc.Create(ctx, plandomain.CreateRequest{
		Code: "pro", Name: "Pro", Amount: dec("29.00"), Period: "monthly",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, plandomain.CreateRequest{
		Code: "basic", Name: "Basic", Amount: dec("9.00"), Period: "monthly",
	})
	require.NoError(t, err)

	_, err = svc.Archive(ctx, snowflake.ID(pro.ID).String())
	require.NoError(t, err)

	active := true
	items, err := svc.List(ctx, plandomain.ListRequest{Active: &active})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "basic", items[0].Code)

	all, err := svc.List(ctx, plandomain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetPlanNotFound(t *testing.T) {
	svc := setupPlanTest(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "123456789")
	assert.ErrorIs(t, err, plandomain.ErrNotFound)

	_, err = svc.Get(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, plandomain.ErrInvalidID)

	_, err = svc.GetByCode(ctx, "missing")
	assert.ErrorIs(t, err, plandomain.ErrNotFound)
}
