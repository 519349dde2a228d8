package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/paissive/monetize/internal/clock"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/internal/payment/processors/mock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPaymentTest(t *testing.T) (paymentdomain.Service, *mock.Processor, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&paymentdomain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	processor := mock.NewProcessor()
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
		Processor: processor,
	})
	return svc, processor, db
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChargeSucceeds(t *testing.T) {
	svc, _, db := setupPaymentTest(t)

	tx, err := svc.Charge(context.Background(), paymentdomain.ChargeRequest{
		CustomerID:  "cust-1",
		Amount:      dec("29.00"),
		Description: "pro monthly",
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionSucceeded, tx.Status)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "mock", tx.Provider)
	require.NotNil(t, tx.ProviderRef)

	var stored paymentdomain.Transaction
	require.NoError(t, db.First(&stored, "id = ?", tx.ID).Error)
	assert.Equal(t, paymentdomain.TransactionSucceeded, stored.Status)
}

func TestChargeFailureIsPersisted(t *testing.T) {
	svc, processor, db := setupPaymentTest(t)
	processor.FailNextWith("card_declined")

	tx, err := svc.Charge(context.Background(), paymentdomain.ChargeRequest{
		CustomerID: "cust-1",
		Amount:     dec("29.00"),
	})
	require.ErrorIs(t, err, paymentdomain.ErrPaymentProcessing)
	require.NotNil(t, tx)
	assert.Equal(t, paymentdomain.TransactionFailed, tx.Status)
	require.NotNil(t, tx.FailureReason)
	assert.Equal(t, "card_declined", *tx.FailureReason)

	// The failed attempt stays in the ledger.
	var stored paymentdomain.Transaction
	require.NoError(t, db.First(&stored, "id = ?", tx.ID).Error)
	assert.Equal(t, paymentdomain.TransactionFailed, stored.Status)
}

func TestChargeValidation(t *testing.T) {
	svc, _, _ := setupPaymentTest(t)
	ctx := context.Background()

	_, err := svc.Charge(ctx, paymentdomain.ChargeRequest{Amount: dec("1")})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidCustomer)

	_, err = svc.Charge(ctx, paymentdomain.ChargeRequest{CustomerID: "cust-1", Amount: dec("0")})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.Charge(ctx, paymentdomain.ChargeRequest{CustomerID: "cust-1", Amount: dec("-5")})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.Charge(ctx, paymentdomain.ChargeRequest{CustomerID: "cust-1", Amount: dec("1"), Currency: "DOLLARS"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidCurrency)
}

func TestRefundOnlyFromSucceeded(t *testing.T) {
	svc, processor, _ := setupPaymentTest(t)
	ctx := context.Background()

	processor.FailNextWith("card_declined")
	failed, err := svc.Charge(ctx, paymentdomain.ChargeRequest{
		CustomerID: "cust-1", Amount: dec("10.00"),
	})
	require.ErrorIs(t, err, paymentdomain.ErrPaymentProcessing)

	_, err = svc.Refund(ctx, snowflake.ID(failed.ID).String(), dec("10.00"))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)

	ok, err := svc.Charge(ctx, paymentdomain.ChargeRequest{
		CustomerID: "cust-1", Amount: dec("10.00"),
	})
	require.NoError(t, err)

	refunded, err := svc.Refund(ctx, snowflake.ID(ok.ID).String(), dec("10.00"))
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionRefunded, refunded.Status)

	// Refunds are terminal.
	_, err = svc.Refund(ctx, snowflake.ID(ok.ID).String(), dec("10.00"))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidTransition)
}

func TestRefundAmountBounds(t *testing.T) {
	svc, _, _ := setupPaymentTest(t)
	ctx := context.Background()

	tx, err := svc.Charge(ctx, paymentdomain.ChargeRequest{
		CustomerID: "cust-1", Amount: dec("10.00"),
	})
	require.NoError(t, err)

	_, err = svc.Refund(ctx, snowflake.ID(tx.ID).String(), dec("20.00"))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	// Zero amount means refund in full.
	refunded, err := svc.Refund(ctx, snowflake.ID(tx.ID).String(), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.TransactionRefunded, refunded.Status)
}

func TestListFiltersByCustomerAndStatus(t *testing.T) {
	svc, processor, _ := setupPaymentTest(t)
	ctx := context.Background()

	_, err := svc.Charge(ctx, paymentdomain.ChargeRequest{CustomerID: "cust-1", Amount: dec("5")})
	require.NoError(t, err)
	processor.FailNextWith("card_declined")
	_, err = svc.Charge(ctx, paymentdomain.ChargeRequest{CustomerID: "cust-1", Amount: dec("5")})
	require.ErrorIs(t, err, paymentdomain.ErrPaymentProcessing)
	_, err = svc.Charge(ctx, paymentdomain.ChargeRequest{CustomerID: "cust-2", Amount: dec("5")})
	require.NoError(t, err)

	all, err := svc.List(ctx, paymentdomain.ListRequest{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := svc.List(ctx, paymentdomain.ListRequest{CustomerID: "cust-1", Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, paymentdomain.TransactionFailed, failed[0].Status)
}

func TestStatusMachine(t *testing.T) {
	assert.True(t, paymentdomain.CanTransition(paymentdomain.TransactionPending, paymentdomain.TransactionSucceeded))
	assert.True(t, paymentdomain.CanTransition(paymentdomain.TransactionPending, paymentdomain.TransactionFailed))
	assert.True(t, paymentdomain.CanTransition(paymentdomain.TransactionSucceeded, paymentdomain.TransactionRefunded))
	assert.False(t, paymentdomain.CanTransition(paymentdomain.TransactionFailed, paymentdomain.TransactionSucceeded))
	assert.False(t, paymentdomain.CanTransition(paymentdomain.TransactionRefunded, paymentdomain.TransactionSucceeded))
	assert.False(t, paymentdomain.CanTransition(paymentdomain.TransactionPending, paymentdomain.TransactionRefunded))
}
