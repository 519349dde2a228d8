package service

import (
	"context"
	"time"

	analyticsdomain "github.com/paissive/monetize/internal/analytics/domain"
	"github.com/paissive/monetize/internal/clock"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p ServiceParam) analyticsdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("analytics.service"),
		clock: p.Clock,
	}
}

func (s *Service) Overview(ctx context.Context) (*analyticsdomain.Overview, error) {
	var active int64
	err := s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("status = ?", subscriptiondomain.SubscriptionActive).
		Count(&active).Error
	if err != nil {
		return nil, err
	}

	mrr, err := s.MRR(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	churn, err := s.ChurnRate(ctx, now.AddDate(0, -1, 0), now)
	if err != nil {
		return nil, err
	}

	var revenue decimal.NullDecimal
	err = s.db.WithContext(ctx).
		Model(&paymentdomain.Transaction{}).
		Where("status = ?", paymentdomain.TransactionSucceeded).
		Select("SUM(amount)").
		Scan(&revenue).Error
	if err != nil {
		return nil, err
	}

	ltv, defined, err := s.LifetimeValue(ctx)
	if err != nil {
		return nil, err
	}

	overview := &analyticsdomain.Overview{
		ActiveSubscriptions: active,
		MRR:                 mrr,
		ARR:                 mrr.Mul(decimal.NewFromInt(12)),
		ChurnRate:           churn,
		LifetimeValue:       ltv,
		LTVDefined:          defined,
	}
	if revenue.Valid {
		overview.TotalRevenue = revenue.Decimal
	} else {
		overview.TotalRevenue = decimal.Zero
	}
	return overview, nil
}

// ChurnRate is the share of subscriptions active at periodStart that were
// canceled inside [periodStart, periodEnd). No active base means no churn.
func (s *Service) ChurnRate(ctx context.Context, periodStart, periodEnd time.Time) (float64, error) {
	if !periodEnd.After(periodStart) {
		return 0, analyticsdomain.ErrInvalidRange
	}

	var activeAtStart int64
	err := s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("created_at < ?", periodStart).
		Where("canceled_at IS NULL OR canceled_at >= ?", periodStart).
		Count(&activeAtStart).Error
	if err != nil {
		return 0, err
	}
	if activeAtStart == 0 {
		return 0.0, nil
	}

	var canceled int64
	err = s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("created_at < ?", periodStart).
		Where("canceled_at >= ? AND canceled_at < ?", periodStart, periodEnd).
		Count(&canceled).Error
	if err != nil {
		return 0, err
	}

	return float64(canceled) / float64(activeAtStart), nil
}

// MRR sums the plan amounts of active subscriptions, normalized to one
// month: annual amounts divide by 12, weekly and daily scale up.
func (s *Service) MRR(ctx context.Context) (decimal.Decimal, error) {
	type row struct {
		Amount decimal.Decimal
		Period usagedomain.Period
	}

	var rows []row
	err := s.db.WithContext(ctx).
		Table("subscriptions").
		Select("plans.amount AS amount, plans.period AS period").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("subscriptions.status = ?", subscriptiondomain.SubscriptionActive).
		Scan(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}

	mrr := decimal.Zero
	for _, r := range rows {
		mrr = mrr.Add(monthlyAmount(r.Amount, r.Period))
	}
	return mrr.Round(2), nil
}

func (s *Service) ARR(ctx context.Context) (decimal.Decimal, error) {
	mrr, err := s.MRR(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return mrr.Mul(decimal.NewFromInt(12)), nil
}

// LifetimeValue is ARPU divided by the trailing-month churn rate. A zero
// churn rate leaves it undefined rather than infinite.
func (s *Service) LifetimeValue(ctx context.Context) (decimal.Decimal, bool, error) {
	var active int64
	err := s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("status = ?", subscriptiondomain.SubscriptionActive).
		Count(&active).Error
	if err != nil {
		return decimal.Zero, false, err
	}
	if active == 0 {
		return decimal.Zero, false, nil
	}

	mrr, err := s.MRR(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}

	now := s.clock.Now()
	churn, err := s.ChurnRate(ctx, now.AddDate(0, -1, 0), now)
	if err != nil {
		return decimal.Zero, false, err
	}
	if churn == 0 {
		return decimal.Zero, false, nil
	}

	arpu := mrr.Div(decimal.NewFromInt(active))
	ltv := arpu.Div(decimal.NewFromFloat(churn))
	return ltv.Round(2), true, nil
}

// ForecastRevenue compounds current MRR forward. Deterministic: same inputs,
// same projection.
func (s *Service) ForecastRevenue(ctx context.Context, req analyticsdomain.ForecastRequest) ([]analyticsdomain.RevenueProjection, error) {
	if req.Periods <= 0 || req.Periods > 120 {
		return nil, analyticsdomain.ErrInvalidPeriods
	}
	if req.GrowthRate < -1 {
		return nil, analyticsdomain.ErrInvalidGrowthRate
	}

	mrr, err := s.MRR(ctx)
	if err != nil {
		return nil, err
	}

	factor := decimal.NewFromFloat(1 + req.GrowthRate)
	projections := make([]analyticsdomain.RevenueProjection, 0, req.Periods)
	revenue := mrr
	for period := 1; period <= req.Periods; period++ {
		revenue = revenue.Mul(factor)
		projections = append(projections, analyticsdomain.RevenueProjection{
			Period:  period,
			Revenue: revenue.Round(2),
		})
	}
	return projections, nil
}

func monthlyAmount(amount decimal.Decimal, period usagedomain.Period) decimal.Decimal {
	switch period {
	case usagedomain.PeriodAnnual:
		return amount.Div(decimal.NewFromInt(12))
	case usagedomain.PeriodWeekly:
		return amount.Mul(decimal.NewFromInt(52)).Div(decimal.NewFromInt(12))
	case usagedomain.PeriodDaily:
		return amount.Mul(decimal.NewFromInt(365)).Div(decimal.NewFromInt(12))
	default:
		return amount
	}
}
