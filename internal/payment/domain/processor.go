package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ProcessorCharge is the provider-side outcome of a charge attempt.
type ProcessorCharge struct {
	ProviderRef string
	Succeeded   bool
	Reason      string
}

// Processor is one payment provider. The variant is resolved once at
// construction from configuration; nothing dispatches on provider strings at
// call time.
type Processor interface {
	Name() string
	CreateCustomer(ctx context.Context, customerID, email string) (string, error)
	CreatePaymentMethod(ctx context.Context, providerCustomerRef, token string) (string, error)
	Charge(ctx context.Context, amount decimal.Decimal, currency, methodID, description string) (*ProcessorCharge, error)
	Refund(ctx context.Context, providerRef string, amount decimal.Decimal) error
}

var (
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_provider_config")
)
