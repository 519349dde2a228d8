// Package domain defines the mid-period plan change calculation.
package domain

import (
	"context"
	"errors"
	"time"

	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
)

// PlanChangeRequest describes a plan switch inside a billing period.
type PlanChangeRequest struct {
	OldPlanAmount decimal.Decimal    `json:"old_plan_amount"`
	NewPlanAmount decimal.Decimal    `json:"new_plan_amount"`
	CurrentDate   time.Time          `json:"current_date"`
	PeriodStart   time.Time          `json:"period_start"`
	Period        usagedomain.Period `json:"period"`
}

// PlanChangeResult is the prorated adjustment. A positive Amount means the
// customer owes more; negative means a credit is due.
type PlanChangeResult struct {
	Amount        decimal.Decimal `json:"amount"`
	Credit        decimal.Decimal `json:"credit"`
	Charge        decimal.Decimal `json:"charge"`
	DaysRemaining int             `json:"days_remaining"`
	DaysInPeriod  int             `json:"days_in_period"`
}

// Service computes prorated charges and credits.
type Service interface {
	CalculatePlanChange(ctx context.Context, req PlanChangeRequest) (*PlanChangeResult, error)
}

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidPeriod = errors.New("invalid_period")
	ErrInvalidDate   = errors.New("invalid_date")
)
