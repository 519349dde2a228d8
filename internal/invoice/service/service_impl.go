package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/paissive/monetize/internal/clock"
	invoicedomain "github.com/paissive/monetize/internal/invoice/domain"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	"github.com/paissive/monetize/internal/providers/pdf"
	"github.com/paissive/monetize/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// invoices default to net-30 terms
const defaultPaymentTermDays = 30

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	PaymentSvc paymentdomain.Service
	PDF        pdf.Provider
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	pdf        pdf.Provider

	repo repository.Repository[invoicedomain.Invoice]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		paymentSvc: p.PaymentSvc,
		pdf:        p.PDF,
		repo:       repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateRequest) (*invoicedomain.Invoice, error) {
	customer := strings.TrimSpace(req.CustomerID)
	if customer == "" {
		return nil, invoicedomain.ErrInvalidCustomer
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, invoicedomain.ErrInvalidCurrency
	}
	if len(req.Items) == 0 {
		return nil, invoicedomain.ErrInvalidItems
	}

	now := s.clock.Now()
	invoiceID := s.genID.Generate().Int64()

	subtotal := decimal.Zero
	items := make([]invoicedomain.InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		description := strings.TrimSpace(item.Description)
		if description == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return nil, invoicedomain.ErrInvalidItems
		}
		amount := item.UnitPrice.Mul(decimal.NewFromFloat(item.Quantity)).Round(2)
		subtotal = subtotal.Add(amount)
		items = append(items, invoicedomain.InvoiceItem{
			ID:          s.genID.Generate().Int64(),
			InvoiceID:   invoiceID,
			Description: description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      amount,
			CreatedAt:   now,
		})
	}

	invoice := &invoicedomain.Invoice{
		ID:             invoiceID,
		Number:         "INV-" + ulid.Make().String(),
		CustomerID:     customer,
		SubscriptionID: req.SubscriptionID,
		Status:         invoicedomain.InvoiceDraft,
		Currency:       currency,
		Subtotal:       subtotal,
		Total:          subtotal,
		AmountPaid:     decimal.Zero,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Metadata != nil {
		invoice.Metadata = datatypes.JSONMap(req.Metadata)
	}

	// Invoice and items land atomically; items are never shared.
	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("number", invoice.Number),
		zap.String("customer_id", customer),
		zap.String("total", invoice.Total.String()),
	)
	return invoice, nil
}

func (s *Service) Send(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.InvoiceDraft {
		return nil, invoicedomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	due := now.AddDate(0, 0, defaultPaymentTermDays)
	invoice.Status = invoicedomain.InvoiceSent
	invoice.IssuedAt = &now
	invoice.DueAt = &due
	invoice.UpdatedAt = now
	if err := s.save(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) Pay(ctx context.Context, id string, transactionID string) (*invoicedomain.Invoice, error) {
	invoice, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.InvoiceSent {
		return nil, invoicedomain.ErrInvalidTransition
	}

	tx, err := s.paymentSvc.Get(ctx, transactionID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidTransaction
	}
	if tx.Status != paymentdomain.TransactionSucceeded {
		return nil, invoicedomain.ErrInvalidTransaction
	}

	now := s.clock.Now()
	payment := invoicedomain.InvoicePayment{
		ID:            s.genID.Generate().Int64(),
		InvoiceID:     invoice.ID,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		CreatedAt:     now,
	}

	invoice.AmountPaid = invoice.AmountPaid.Add(tx.Amount)
	invoice.UpdatedAt = now
	if invoice.AmountPaid.GreaterThanOrEqual(invoice.Total) {
		invoice.Status = invoicedomain.InvoicePaid
		invoice.PaidAt = &now
	}

	err = s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := dbtx.Create(&payment).Error; err != nil {
			return err
		}
		return dbtx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]any{
				"status":      invoice.Status,
				"amount_paid": invoice.AmountPaid,
				"paid_at":     invoice.PaidAt,
				"updated_at":  invoice.UpdatedAt,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	invoice.Payments = append(invoice.Payments, payment)
	s.log.Info("invoice payment recorded",
		zap.String("number", invoice.Number),
		zap.String("amount", tx.Amount.String()),
		zap.String("status", string(invoice.Status)),
	)
	return invoice, nil
}

func (s *Service) Void(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.InvoiceDraft && invoice.Status != invoicedomain.InvoiceSent {
		return nil, invoicedomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	invoice.Status = invoicedomain.InvoiceVoid
	invoice.VoidedAt = &now
	invoice.UpdatedAt = now
	if err := s.save(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.findByID(ctx, id)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	stmt := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).Preload("Items")
	if customer := strings.TrimSpace(req.CustomerID); customer != "" {
		stmt = stmt.Where("customer_id = ?", customer)
	}
	if status := strings.ToUpper(strings.TrimSpace(req.Status)); status != "" {
		stmt = stmt.Where("status = ?", status)
	}

	var items []invoicedomain.Invoice
	if err := stmt.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Service) RenderPDF(ctx context.Context, id string) (io.Reader, error) {
	invoice, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data := pdf.InvoiceData{
		SellerName:    "monetize",
		InvoiceNumber: invoice.Number,
		BillToName:    invoice.CustomerID,
		Subtotal:      s.money(invoice, invoice.Subtotal),
		Total:         s.money(invoice, invoice.Total),
		AmountDue:     s.money(invoice, invoice.Total.Sub(invoice.AmountPaid)),
	}
	if invoice.IssuedAt != nil {
		data.IssueDate = invoice.IssuedAt.Format("January 2, 2006")
	}
	if invoice.DueAt != nil {
		data.DueDate = invoice.DueAt.Format("January 2, 2006")
	}
	for _, item := range invoice.Items {
		data.Items = append(data.Items, pdf.LineItem{
			Description: item.Description,
			Qty:         strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", item.Quantity), "0"), "."),
			UnitPrice:   s.money(invoice, item.UnitPrice),
			Amount:      s.money(invoice, item.Amount),
		})
	}

	if invoice.Status == invoicedomain.InvoicePaid {
		receipt := pdf.ReceiptData{InvoiceData: data}
		if invoice.PaidAt != nil {
			receipt.DatePaid = invoice.PaidAt.Format("January 2, 2006")
		}
		return s.pdf.GenerateReceipt(ctx, receipt)
	}
	return s.pdf.GenerateInvoice(ctx, data)
}

func (s *Service) money(invoice *invoicedomain.Invoice, amount decimal.Decimal) string {
	return invoice.Currency + " " + amount.StringFixed(2)
}

func (s *Service) save(ctx context.Context, invoice *invoicedomain.Invoice) error {
	return s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"status":     invoice.Status,
			"issued_at":  invoice.IssuedAt,
			"due_at":     invoice.DueAt,
			"paid_at":    invoice.PaidAt,
			"voided_at":  invoice.VoidedAt,
			"updated_at": invoice.UpdatedAt,
		}).Error
}

func (s *Service) findByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		First(&invoice, "id = ?", invoiceID.Int64()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}
