package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type ChargeRequest struct {
	CustomerID      string          `json:"customer_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethodID *string         `json:"payment_method_id"`
	Description     string          `json:"description"`
	SubscriptionID  *int64          `json:"-"`
	InvoiceID       *int64          `json:"-"`
	Metadata        map[string]any  `json:"metadata"`
}

type ListRequest struct {
	CustomerID string
	Status     string
}

// Service manages the transaction ledger. Charge persists a PENDING row
// before touching the provider; on provider failure the FAILED transaction is
// persisted and returned alongside an error wrapping ErrPaymentProcessing.
type Service interface {
	Charge(ctx context.Context, req ChargeRequest) (*Transaction, error)
	Refund(ctx context.Context, id string, amount decimal.Decimal) (*Transaction, error)
	Get(ctx context.Context, id string) (*Transaction, error)
	List(ctx context.Context, req ListRequest) ([]Transaction, error)
}

var (
	ErrInvalidCustomer   = errors.New("invalid_customer")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidID         = errors.New("invalid_id")
	ErrNotFound          = errors.New("transaction_not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrPaymentProcessing = errors.New("payment_processing_failed")
)
