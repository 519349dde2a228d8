package domain

import (
	"context"
	"errors"
	"io"

	"github.com/shopspring/decimal"
)

type ItemRequest struct {
	Description string          `json:"description"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateRequest struct {
	CustomerID     string         `json:"customer_id"`
	SubscriptionID *int64         `json:"-"`
	Currency       string         `json:"currency"`
	Items          []ItemRequest  `json:"items"`
	Metadata       map[string]any `json:"metadata"`
}

type ListRequest struct {
	CustomerID string
	Status     string
}

// Service owns the invoice lifecycle: DRAFT -> SENT -> PAID | VOID.
// Illegal transitions are conflicts, not validation failures.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Invoice, error)
	Send(ctx context.Context, id string) (*Invoice, error)
	Pay(ctx context.Context, id string, transactionID string) (*Invoice, error)
	Void(ctx context.Context, id string) (*Invoice, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, req ListRequest) ([]Invoice, error)
	RenderPDF(ctx context.Context, id string) (io.Reader, error)
}

var (
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidItems       = errors.New("invalid_items")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("invoice_not_found")
	ErrInvalidTransition  = errors.New("invalid_invoice_transition")
	ErrInvalidTransaction = errors.New("invalid_transaction")
)
