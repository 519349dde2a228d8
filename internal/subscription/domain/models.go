// Package domain contains the subscription lifecycle models.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
// Subscriptions are never deleted; cancellation is a status.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Subscription captures a customer's recurring billing agreement to a plan.
type Subscription struct {
	ID                 int64              `json:"id" gorm:"primaryKey"`
	CustomerID         string             `json:"customer_id" gorm:"type:text;not null;index"`
	PlanID             int64              `json:"plan_id" gorm:"not null;index"`
	Status             SubscriptionStatus `json:"status" gorm:"type:text;not null;index"`
	CurrentPeriodStart time.Time          `json:"current_period_start" gorm:"not null"`
	CurrentPeriodEnd   time.Time          `json:"current_period_end" gorm:"not null;index"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end" gorm:"not null;default:false"`
	CanceledAt         *time.Time         `json:"canceled_at,omitempty"`
	Metadata           datatypes.JSONMap  `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }
