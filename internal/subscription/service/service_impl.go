package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/paissive/monetize/internal/clock"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	prorationdomain "github.com/paissive/monetize/internal/proration/domain"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/paissive/monetize/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	PlanSvc      plandomain.Service
	ProrationSvc prorationdomain.Service
	PaymentSvc   paymentdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	planSvc      plandomain.Service
	prorationSvc prorationdomain.Service
	paymentSvc   paymentdomain.Service

	repo repository.Repository[subscriptiondomain.Subscription]
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("subscription.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		planSvc:      p.PlanSvc,
		prorationSvc: p.ProrationSvc,
		paymentSvc:   p.PaymentSvc,
		repo:         repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateRequest) (*subscriptiondomain.Subscription, error) {
	customer := strings.TrimSpace(req.CustomerID)
	if customer == "" {
		return nil, subscriptiondomain.ErrInvalidCustomer
	}

	plan, err := s.planSvc.GetByCode(ctx, req.PlanCode)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	if !plan.Active {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	now := s.clock.Now()
	sub := &subscriptiondomain.Subscription{
		ID:                 s.genID.Generate().Int64(),
		CustomerID:         customer,
		PlanID:             plan.ID,
		Status:             subscriptiondomain.SubscriptionActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   advancePeriod(plan.Period, now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.Metadata != nil {
		sub.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	// The first period is charged immediately. A declined charge does not
	// roll back the subscription; it starts out past due instead.
	if plan.Amount.IsPositive() {
		if err := s.chargePeriod(ctx, sub, plan, "subscription created"); err != nil {
			if !errors.Is(err, paymentdomain.ErrPaymentProcessing) {
				return nil, err
			}
			if err := s.setStatus(ctx, sub, subscriptiondomain.SubscriptionPastDue); err != nil {
				return nil, err
			}
		}
	}

	s.log.Info("subscription created",
		zap.String("customer_id", customer),
		zap.String("plan", plan.Code),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

func (s *Service) Cancel(ctx context.Context, id string, atPeriodEnd bool) (*subscriptiondomain.Subscription, error) {
	sub, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscriptiondomain.SubscriptionCanceled {
		return nil, subscriptiondomain.ErrAlreadyCanceled
	}

	now := s.clock.Now()
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		sub.UpdatedAt = now
		if err := s.save(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	sub.Status = subscriptiondomain.SubscriptionCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}

	s.log.Info("subscription canceled", zap.String("customer_id", sub.CustomerID))
	return sub, nil
}

func (s *Service) ChangePlan(ctx context.Context, req subscriptiondomain.ChangePlanRequest) (*subscriptiondomain.ChangePlanResult, error) {
	sub, err := s.findByID(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscriptiondomain.SubscriptionActive {
		return nil, subscriptiondomain.ErrNotActive
	}

	newPlan, err := s.planSvc.GetByCode(ctx, req.NewPlanCode)
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	if !newPlan.Active {
		return nil, subscriptiondomain.ErrInvalidPlan
	}
	if newPlan.ID == sub.PlanID {
		return nil, subscriptiondomain.ErrSamePlan
	}

	oldPlan, err := s.planSvc.Get(ctx, snowflake.ID(sub.PlanID).String())
	if err != nil {
		return nil, err
	}

	proration, err := s.prorationSvc.CalculatePlanChange(ctx, prorationdomain.PlanChangeRequest{
		OldPlanAmount: oldPlan.Amount,
		NewPlanAmount: newPlan.Amount,
		CurrentDate:   s.clock.Now(),
		PeriodStart:   sub.CurrentPeriodStart,
		Period:        oldPlan.Period,
	})
	if err != nil {
		return nil, err
	}

	result := &subscriptiondomain.ChangePlanResult{
		Subscription: sub,
		Proration:    proration,
	}
	if req.Preview {
		return result, nil
	}

	// Charge before the swap; a declined proration charge leaves the
	// subscription on its old plan. Credits are carried on the result and
	// settled against the next renewal invoice, not refunded.
	if proration.Amount.IsPositive() {
		tx, err := s.paymentSvc.Charge(ctx, paymentdomain.ChargeRequest{
			CustomerID:     sub.CustomerID,
			Amount:         proration.Amount,
			Currency:       newPlan.Currency,
			Description:    "plan change: " + oldPlan.Code + " -> " + newPlan.Code,
			SubscriptionID: &sub.ID,
		})
		if err != nil {
			return nil, err
		}
		result.Transaction = tx
	}

	sub.PlanID = newPlan.ID
	sub.UpdatedAt = s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&subscriptiondomain.Subscription{}).
			Where("id = ?", sub.ID).
			Updates(map[string]any{
				"plan_id":    sub.PlanID,
				"updated_at": sub.UpdatedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan changed",
		zap.String("customer_id", sub.CustomerID),
		zap.String("from", oldPlan.Code),
		zap.String("to", newPlan.Code),
		zap.String("prorated_amount", proration.Amount.String()),
	)
	return result, nil
}

func (s *Service) Renew(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	sub, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscriptiondomain.SubscriptionCanceled {
		return nil, subscriptiondomain.ErrNotActive
	}

	now := s.clock.Now()
	if sub.CancelAtPeriodEnd {
		sub.Status = subscriptiondomain.SubscriptionCanceled
		sub.CanceledAt = &now
		sub.UpdatedAt = now
		if err := s.save(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	plan, err := s.planSvc.Get(ctx, snowflake.ID(sub.PlanID).String())
	if err != nil {
		return nil, err
	}

	sub.CurrentPeriodStart = sub.CurrentPeriodEnd
	sub.CurrentPeriodEnd = advancePeriod(plan.Period, sub.CurrentPeriodStart)
	sub.Status = subscriptiondomain.SubscriptionActive
	sub.UpdatedAt = now
	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}

	if plan.Amount.IsPositive() {
		if err := s.chargePeriod(ctx, sub, plan, "subscription renewal"); err != nil {
			if !errors.Is(err, paymentdomain.ErrPaymentProcessing) {
				return nil, err
			}
			if err := s.setStatus(ctx, sub, subscriptiondomain.SubscriptionPastDue); err != nil {
				return nil, err
			}
		}
	}
	return sub, nil
}

// RenewDue renews every subscription whose period has ended. The scheduler
// calls this on its tick.
func (s *Service) RenewDue(ctx context.Context, now time.Time) (int, error) {
	var due []subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).
		Where("status <> ?", subscriptiondomain.SubscriptionCanceled).
		Where("current_period_end <= ?", now).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	renewed := 0
	for _, sub := range due {
		if _, err := s.Renew(ctx, snowflake.ID(sub.ID).String()); err != nil {
			s.log.Warn("renewal failed",
				zap.String("customer_id", sub.CustomerID),
				zap.Error(err),
			)
			continue
		}
		renewed++
	}
	return renewed, nil
}

func (s *Service) Get(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	return s.findByID(ctx, id)
}

func (s *Service) GetActiveByCustomer(ctx context.Context, customerID string) (*subscriptiondomain.Subscription, error) {
	customer := strings.TrimSpace(customerID)
	if customer == "" {
		return nil, subscriptiondomain.ErrInvalidCustomer
	}

	sub, err := s.repo.FindOne(ctx, &subscriptiondomain.Subscription{
		CustomerID: customer,
		Status:     subscriptiondomain.SubscriptionActive,
	})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return sub, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListRequest) ([]subscriptiondomain.Subscription, error) {
	stmt := s.db.WithContext(ctx).Model(&subscriptiondomain.Subscription{})
	if customer := strings.TrimSpace(req.CustomerID); customer != "" {
		stmt = stmt.Where("customer_id = ?", customer)
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var items []subscriptiondomain.Subscription
	if err := stmt.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) chargePeriod(ctx context.Context, sub *subscriptiondomain.Subscription, plan *plandomain.Plan, description string) error {
	_, err := s.paymentSvc.Charge(ctx, paymentdomain.ChargeRequest{
		CustomerID:     sub.CustomerID,
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Description:    description + ": " + plan.Code,
		SubscriptionID: &sub.ID,
	})
	return err
}

func (s *Service) setStatus(ctx context.Context, sub *subscriptiondomain.Subscription, status subscriptiondomain.SubscriptionStatus) error {
	sub.Status = status
	sub.UpdatedAt = s.clock.Now()
	return s.save(ctx, sub)
}

func (s *Service) save(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	return s.db.WithContext(ctx).
		Model(&subscriptiondomain.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"plan_id":              sub.PlanID,
			"status":               sub.Status,
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"canceled_at":          sub.CanceledAt,
			"updated_at":           sub.UpdatedAt,
		}).Error
}

func (s *Service) findByID(ctx context.Context, id string) (*subscriptiondomain.Subscription, error) {
	subID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, subscriptiondomain.ErrInvalidID
	}

	sub, err := s.repo.FindOne(ctx, &subscriptiondomain.Subscription{ID: subID.Int64()})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return sub, nil
}

func advancePeriod(period usagedomain.Period, start time.Time) time.Time {
	switch period {
	case usagedomain.PeriodDaily:
		return start.AddDate(0, 0, 1)
	case usagedomain.PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case usagedomain.PeriodAnnual:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}
