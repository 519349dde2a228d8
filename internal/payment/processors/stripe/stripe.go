// Package stripe adapts the Stripe API to the payment processor interface.
package stripe

import (
	"context"
	"strings"

	"github.com/paissive/monetize/internal/config"
	"github.com/paissive/monetize/internal/payment/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
)

const ProviderName = "stripe"

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Provider() string { return ProviderName }

func (f *Factory) New(cfg config.Config) (domain.Processor, error) {
	apiKey := strings.TrimSpace(cfg.StripeAPIKey)
	if apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}
	return &Processor{client: stripe.NewClient(apiKey)}, nil
}

type Processor struct {
	client *stripe.Client
}

func (p *Processor) Name() string { return ProviderName }

func (p *Processor) CreateCustomer(ctx context.Context, customerID, email string) (string, error) {
	customer, err := p.client.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"customer_id": customerID,
		},
	})
	if err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (p *Processor) CreatePaymentMethod(ctx context.Context, providerCustomerRef, token string) (string, error) {
	method, err := p.client.V1PaymentMethods.Create(ctx, &stripe.PaymentMethodCreateParams{
		Type: stripe.String("card"),
		Card: &stripe.PaymentMethodCreateCardParams{
			Token: stripe.String(token),
		},
	})
	if err != nil {
		return "", err
	}

	_, err = p.client.V1PaymentMethods.Attach(ctx, method.ID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(providerCustomerRef),
	})
	if err != nil {
		return "", err
	}
	return method.ID, nil
}

func (p *Processor) Charge(ctx context.Context, amount decimal.Decimal, currency, methodID, description string) (*domain.ProcessorCharge, error) {
	params := &stripe.PaymentIntentCreateParams{
		// Stripe amounts are integer minor units.
		Amount:      stripe.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart()),
		Currency:    stripe.String(strings.ToLower(currency)),
		Confirm:     stripe.Bool(true),
		OffSession:  stripe.Bool(true),
		Description: stripe.String(description),
	}
	if methodID != "" {
		params.PaymentMethod = stripe.String(methodID)
	}

	intent, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return &domain.ProcessorCharge{
			ProviderRef: intent.ID,
			Succeeded:   false,
			Reason:      string(intent.Status),
		}, nil
	}
	return &domain.ProcessorCharge{ProviderRef: intent.ID, Succeeded: true}, nil
}

func (p *Processor) Refund(ctx context.Context, providerRef string, amount decimal.Decimal) error {
	_, err := p.client.V1Refunds.Create(ctx, &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(providerRef),
		Amount:        stripe.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart()),
	})
	return err
}
