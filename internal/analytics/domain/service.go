// Package domain defines read-only revenue metrics derived from
// subscriptions and the transaction ledger.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Overview is the headline metric set for a dashboard.
type Overview struct {
	ActiveSubscriptions int64           `json:"active_subscriptions"`
	MRR                 decimal.Decimal `json:"mrr"`
	ARR                 decimal.Decimal `json:"arr"`
	ChurnRate           float64         `json:"churn_rate"`
	TotalRevenue        decimal.Decimal `json:"total_revenue"`
	LifetimeValue       decimal.Decimal `json:"lifetime_value"`
	// LTVDefined is false when churn is zero and lifetime value has no
	// meaningful denominator.
	LTVDefined bool `json:"ltv_defined"`
}

// RevenueProjection is one forecast period.
type RevenueProjection struct {
	Period  int             `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
}

type ForecastRequest struct {
	Periods    int     `json:"periods"`
	GrowthRate float64 `json:"growth_rate"`
}

type Service interface {
	Overview(ctx context.Context) (*Overview, error)
	ChurnRate(ctx context.Context, periodStart, periodEnd time.Time) (float64, error)
	MRR(ctx context.Context) (decimal.Decimal, error)
	ARR(ctx context.Context) (decimal.Decimal, error)
	LifetimeValue(ctx context.Context) (decimal.Decimal, bool, error)
	ForecastRevenue(ctx context.Context, req ForecastRequest) ([]RevenueProjection, error)
}

var (
	ErrInvalidPeriods    = errors.New("invalid_periods")
	ErrInvalidGrowthRate = errors.New("invalid_growth_rate")
	ErrInvalidRange      = errors.New("invalid_range")
)
