// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "DRAFT"
	InvoiceSent  InvoiceStatus = "SENT"
	InvoicePaid  InvoiceStatus = "PAID"
	InvoiceVoid  InvoiceStatus = "VOID"
)

// Invoice is a bill issued to a customer. Items and payments are owned
// exclusively by their invoice.
type Invoice struct {
	ID             int64             `json:"id" gorm:"primaryKey"`
	Number         string            `json:"number" gorm:"type:text;not null;uniqueIndex:ux_invoices_number"`
	CustomerID     string            `json:"customer_id" gorm:"type:text;not null;index"`
	SubscriptionID *int64            `json:"subscription_id,omitempty" gorm:"index"`
	Status         InvoiceStatus     `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	Currency       string            `json:"currency" gorm:"type:text;not null;default:'USD'"`
	Subtotal       decimal.Decimal   `json:"subtotal" gorm:"type:numeric;not null"`
	Total          decimal.Decimal   `json:"total" gorm:"type:numeric;not null"`
	AmountPaid     decimal.Decimal   `json:"amount_paid" gorm:"type:numeric;not null"`
	IssuedAt       *time.Time        `json:"issued_at,omitempty"`
	DueAt          *time.Time        `json:"due_at,omitempty"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	VoidedAt       *time.Time        `json:"voided_at,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	Items          []InvoiceItem     `json:"items" gorm:"foreignKey:InvoiceID"`
	Payments       []InvoicePayment  `json:"payments,omitempty" gorm:"foreignKey:InvoiceID"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one line on an invoice.
type InvoiceItem struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	InvoiceID   int64           `json:"invoice_id" gorm:"not null;index"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Quantity    float64         `json:"quantity" gorm:"not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric;not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoicePayment links a settled transaction to an invoice.
type InvoicePayment struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	InvoiceID     int64           `json:"invoice_id" gorm:"not null;index"`
	TransactionID int64           `json:"transaction_id" gorm:"not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }
