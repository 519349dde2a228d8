package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/paissive/monetize/internal/clock"
	obsmetrics "github.com/paissive/monetize/internal/observability/metrics"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Processor paymentdomain.Processor
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	processor paymentdomain.Processor
	metrics   *obsmetrics.Metrics

	repo repository.Repository[paymentdomain.Transaction]
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		processor: p.Processor,
		metrics:   p.Metrics,
		repo:      repository.ProvideStore[paymentdomain.Transaction](p.DB),
	}
}

func (s *Service) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.Transaction, error) {
	customer := strings.TrimSpace(req.CustomerID)
	if customer == "" {
		return nil, paymentdomain.ErrInvalidCustomer
	}
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, paymentdomain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	tx := &paymentdomain.Transaction{
		ID:              s.genID.Generate().Int64(),
		CustomerID:      customer,
		SubscriptionID:  req.SubscriptionID,
		InvoiceID:       req.InvoiceID,
		Amount:          req.Amount,
		Currency:        currency,
		PaymentMethodID: req.PaymentMethodID,
		Status:          paymentdomain.TransactionPending,
		Provider:        s.processor.Name(),
		Description:     strings.TrimSpace(req.Description),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Metadata != nil {
		tx.Metadata = datatypes.JSONMap(req.Metadata)
	}

	// The PENDING row lands before the provider is touched so a crash
	// mid-charge leaves an auditable trail.
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	methodID := ""
	if req.PaymentMethodID != nil {
		methodID = *req.PaymentMethodID
	}
	charge, err := s.processor.Charge(ctx, req.Amount, currency, methodID, tx.Description)
	if err != nil {
		return s.failCharge(ctx, tx, err.Error())
	}
	if !charge.Succeeded {
		if charge.ProviderRef != "" {
			tx.ProviderRef = &charge.ProviderRef
		}
		return s.failCharge(ctx, tx, charge.Reason)
	}

	tx.ProviderRef = &charge.ProviderRef
	if err := s.transition(ctx, tx, paymentdomain.TransactionSucceeded, nil); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObservePayment(string(paymentdomain.TransactionSucceeded))
	}
	s.log.Info("charge succeeded",
		zap.String("customer_id", customer),
		zap.String("amount", req.Amount.String()),
		zap.String("provider", s.processor.Name()),
	)
	return tx, nil
}

func (s *Service) Refund(ctx context.Context, id string, amount decimal.Decimal) (*paymentdomain.Transaction, error) {
	tx, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != paymentdomain.TransactionSucceeded {
		return nil, paymentdomain.ErrInvalidTransition
	}
	if amount.IsZero() {
		amount = tx.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(tx.Amount) {
		return nil, paymentdomain.ErrInvalidAmount
	}

	ref := ""
	if tx.ProviderRef != nil {
		ref = *tx.ProviderRef
	}
	if err := s.processor.Refund(ctx, ref, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrPaymentProcessing, err)
	}

	if err := s.transition(ctx, tx, paymentdomain.TransactionRefunded, nil); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObservePayment(string(paymentdomain.TransactionRefunded))
	}
	return tx, nil
}

func (s *Service) Get(ctx context.Context, id string) (*paymentdomain.Transaction, error) {
	return s.findByID(ctx, id)
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListRequest) ([]paymentdomain.Transaction, error) {
	stmt := s.db.WithContext(ctx).Model(&paymentdomain.Transaction{})
	if customer := strings.TrimSpace(req.CustomerID); customer != "" {
		stmt = stmt.Where("customer_id = ?", customer)
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var items []paymentdomain.Transaction
	if err := stmt.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) failCharge(ctx context.Context, tx *paymentdomain.Transaction, reason string) (*paymentdomain.Transaction, error) {
	if err := s.transition(ctx, tx, paymentdomain.TransactionFailed, &reason); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObservePayment(string(paymentdomain.TransactionFailed))
	}
	s.log.Warn("charge failed",
		zap.String("customer_id", tx.CustomerID),
		zap.String("reason", reason),
	)
	return tx, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentProcessing, reason)
}

func (s *Service) transition(ctx context.Context, tx *paymentdomain.Transaction, target paymentdomain.TransactionStatus, reason *string) error {
	if !paymentdomain.CanTransition(tx.Status, target) {
		return paymentdomain.ErrInvalidTransition
	}
	tx.Status = target
	tx.FailureReason = reason
	tx.UpdatedAt = s.clock.Now()

	return s.db.WithContext(ctx).
		Model(&paymentdomain.Transaction{}).
		Where("id = ?", tx.ID).
		Updates(map[string]any{
			"status":         tx.Status,
			"provider_ref":   tx.ProviderRef,
			"failure_reason": tx.FailureReason,
			"updated_at":     tx.UpdatedAt,
		}).Error
}

func (s *Service) findByID(ctx context.Context, id string) (*paymentdomain.Transaction, error) {
	txID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, paymentdomain.ErrInvalidID
	}

	tx, err := s.repo.FindOne(ctx, &paymentdomain.Transaction{ID: txID.Int64()})
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, paymentdomain.ErrNotFound
	}
	return tx, nil
}
