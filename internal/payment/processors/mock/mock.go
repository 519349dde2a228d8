// Package mock is an in-memory payment processor for development and tests.
// It is deterministic: every charge succeeds unless a failure has been armed.
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/paissive/monetize/internal/config"
	"github.com/paissive/monetize/internal/payment/domain"
	"github.com/shopspring/decimal"
)

const ProviderName = "mock"

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Provider() string { return ProviderName }

func (f *Factory) New(cfg config.Config) (domain.Processor, error) {
	return NewProcessor(), nil
}

type Processor struct {
	mu      sync.Mutex
	charges map[string]decimal.Decimal
	failure string
}

func NewProcessor() *Processor {
	return &Processor{charges: map[string]decimal.Decimal{}}
}

func (p *Processor) Name() string { return ProviderName }

// FailNextWith arms a decline for the next Charge call.
func (p *Processor) FailNextWith(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failure = reason
}

func (p *Processor) CreateCustomer(ctx context.Context, customerID, email string) (string, error) {
	return "mock_cus_" + uuid.NewString(), nil
}

func (p *Processor) CreatePaymentMethod(ctx context.Context, providerCustomerRef, token string) (string, error) {
	return "mock_pm_" + uuid.NewString(), nil
}

func (p *Processor) Charge(ctx context.Context, amount decimal.Decimal, currency, methodID, description string) (*domain.ProcessorCharge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failure != "" {
		reason := p.failure
		p.failure = ""
		return &domain.ProcessorCharge{Succeeded: false, Reason: reason}, nil
	}

	ref := "mock_ch_" + uuid.NewString()
	p.charges[ref] = amount
	return &domain.ProcessorCharge{ProviderRef: ref, Succeeded: true}, nil
}

func (p *Processor) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	charged, ok := p.charges[providerRef]
	if !ok {
		return domain.ErrNotFound
	}
	if amount.GreaterThan(charged) {
		return domain.ErrInvalidAmount
	}
	p.charges[providerRef] = charged.Sub(amount)
	return nil
}
