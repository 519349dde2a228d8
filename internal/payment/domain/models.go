package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionStatus is the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionSucceeded TransactionStatus = "SUCCEEDED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

// validTransitions encodes the status machine. Transactions are append-only
// otherwise; only the status, failure reason and provider reference move.
var validTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:   {TransactionSucceeded, TransactionFailed},
	TransactionSucceeded: {TransactionRefunded},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transaction records one charge or refund attempt against a customer.
type Transaction struct {
	ID              int64             `json:"id" gorm:"primaryKey"`
	CustomerID      string            `json:"customer_id" gorm:"type:text;not null;index"`
	SubscriptionID  *int64            `json:"subscription_id,omitempty" gorm:"index"`
	InvoiceID       *int64            `json:"invoice_id,omitempty" gorm:"index"`
	Amount          decimal.Decimal   `json:"amount" gorm:"type:numeric;not null"`
	Currency        string            `json:"currency" gorm:"type:text;not null;default:'USD'"`
	PaymentMethodID *string           `json:"payment_method_id,omitempty" gorm:"type:text"`
	Status          TransactionStatus `json:"status" gorm:"type:text;not null;index"`
	Provider        string            `json:"provider" gorm:"type:text;not null"`
	ProviderRef     *string           `json:"provider_ref,omitempty" gorm:"type:text"`
	FailureReason   *string           `json:"failure_reason,omitempty" gorm:"type:text"`
	Description     string            `json:"description" gorm:"type:text"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Transaction) TableName() string { return "transactions" }
