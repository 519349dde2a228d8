package domain

import (
	"context"
	"errors"
	"time"

	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	prorationdomain "github.com/paissive/monetize/internal/proration/domain"
)

type CreateRequest struct {
	CustomerID string         `json:"customer_id"`
	PlanCode   string         `json:"plan_code"`
	Metadata   map[string]any `json:"metadata"`
}

type ChangePlanRequest struct {
	SubscriptionID string `json:"-"`
	NewPlanCode    string `json:"new_plan_code"`
	// Preview computes the proration without charging or swapping plans.
	Preview bool `json:"preview"`
}

type ChangePlanResult struct {
	Subscription *Subscription                     `json:"subscription"`
	Proration    *prorationdomain.PlanChangeResult `json:"proration"`
	Transaction  *paymentdomain.Transaction        `json:"transaction,omitempty"`
}

type ListRequest struct {
	CustomerID string
	Status     string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Subscription, error)
	Cancel(ctx context.Context, id string, atPeriodEnd bool) (*Subscription, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*ChangePlanResult, error)
	Renew(ctx context.Context, id string) (*Subscription, error)
	RenewDue(ctx context.Context, now time.Time) (int, error)
	Get(ctx context.Context, id string) (*Subscription, error)
	GetActiveByCustomer(ctx context.Context, customerID string) (*Subscription, error)
	List(ctx context.Context, req ListRequest) ([]Subscription, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidPlan     = errors.New("invalid_plan")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("subscription_not_found")
	ErrNotActive       = errors.New("subscription_not_active")
	ErrAlreadyCanceled = errors.New("subscription_already_canceled")
	ErrSamePlan        = errors.New("same_plan")
)
