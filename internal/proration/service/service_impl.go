package service

import (
	"context"
	"time"

	prorationdomain "github.com/paissive/monetize/internal/proration/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log *zap.Logger
}

type Service struct {
	log *zap.Logger
}

func NewService(p ServiceParam) prorationdomain.Service {
	return &Service{log: p.Log.Named("proration.service")}
}

func (s *Service) CalculatePlanChange(ctx context.Context, req prorationdomain.PlanChangeRequest) (*prorationdomain.PlanChangeResult, error) {
	_ = ctx

	if req.OldPlanAmount.IsNegative() || req.NewPlanAmount.IsNegative() {
		return nil, prorationdomain.ErrInvalidAmount
	}
	daysInPeriod, ok := DaysInPeriod(req.Period, req.PeriodStart)
	if !ok {
		return nil, prorationdomain.ErrInvalidPeriod
	}
	if req.CurrentDate.Before(req.PeriodStart) {
		return nil, prorationdomain.ErrInvalidDate
	}

	daysElapsed := calendarDaysBetween(req.PeriodStart, req.CurrentDate)
	daysRemaining := daysInPeriod - daysElapsed
	// On the last day of the period one day still remains; a zero-day
	// remainder would produce degenerate charges.
	if daysRemaining < 1 {
		daysRemaining = 1
	}
	if daysRemaining > daysInPeriod {
		daysRemaining = daysInPeriod
	}

	fraction := decimal.NewFromInt(int64(daysRemaining)).Div(decimal.NewFromInt(int64(daysInPeriod)))
	credit := req.OldPlanAmount.Mul(fraction)
	charge := req.NewPlanAmount.Mul(fraction)
	amount := charge.Sub(credit)

	return &prorationdomain.PlanChangeResult{
		Amount:        amount.Round(2),
		Credit:        credit.Round(2),
		Charge:        charge.Round(2),
		DaysRemaining: daysRemaining,
		DaysInPeriod:  daysInPeriod,
	}, nil
}

// DaysInPeriod resolves the billing period length anchored at start.
// Monthly periods use the calendar month length; annual periods are fixed
// at 365 days.
func DaysInPeriod(period usagedomain.Period, start time.Time) (int, bool) {
	switch period {
	case usagedomain.PeriodDaily:
		return 1, true
	case usagedomain.PeriodWeekly:
		return 7, true
	case usagedomain.PeriodMonthly:
		start = start.UTC()
		firstOfMonth := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		return int(firstOfMonth.AddDate(0, 1, 0).Sub(firstOfMonth).Hours() / 24), true
	case usagedomain.PeriodAnnual:
		return 365, true
	default:
		return 0, false
	}
}

func calendarDaysBetween(start, end time.Time) int {
	start = start.UTC()
	end = end.UTC()
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(endDay.Sub(startDay).Hours() / 24)
}
