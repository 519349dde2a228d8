// Package domain contains persistence models for metered usage accounting.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Metric is a countable unit of usage.
type Metric string

const (
	MetricAPICall       Metric = "api_call"
	MetricToken         Metric = "token"
	MetricStorageMB     Metric = "storage_mb"
	MetricBandwidthMB   Metric = "bandwidth_mb"
	MetricComputeMinute Metric = "compute_minute"
)

// ParseMetric validates and normalizes a metric value.
func ParseMetric(raw string) (Metric, bool) {
	m := Metric(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case MetricAPICall, MetricToken, MetricStorageMB, MetricBandwidthMB, MetricComputeMinute:
		return m, true
	default:
		return "", false
	}
}

// Period identifies a quota accounting window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

// ParsePeriod validates and normalizes a period value.
func ParsePeriod(raw string) (Period, bool) {
	p := Period(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAnnual:
		return p, true
	default:
		return "", false
	}
}

// Window returns the [start, end) accounting window containing t.
func (p Period) Window(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	switch p {
	case PeriodDaily:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	case PeriodWeekly:
		// ISO week, Monday anchored.
		offset := (int(t.Weekday()) + 6) % 7
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	case PeriodAnnual:
		start := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	default:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

// UsageRecord stores a single unit of metered activity. Immutable once created.
type UsageRecord struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID   string            `gorm:"type:text;not null;index" json:"customer_id"`
	Metric       Metric            `gorm:"type:text;not null;index" json:"metric"`
	Quantity     float64           `gorm:"not null" json:"quantity"`
	Category     string            `gorm:"type:text" json:"category,omitempty"`
	ResourceID   string            `gorm:"type:text" json:"resource_id,omitempty"`
	ResourceType string            `gorm:"type:text" json:"resource_type,omitempty"`
	Exceeded     bool              `gorm:"not null;default:false" json:"exceeded"`
	RecordedAt   time.Time         `gorm:"not null;index" json:"recorded_at"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// UsageLimit is the administrator-defined ceiling for a quota.
type UsageLimit struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID   string       `gorm:"type:text;not null;uniqueIndex:idx_usage_limits_key" json:"customer_id"`
	Metric       Metric       `gorm:"type:text;not null;uniqueIndex:idx_usage_limits_key" json:"metric"`
	Period       Period       `gorm:"type:text;not null;uniqueIndex:idx_usage_limits_key" json:"period"`
	Category     string       `gorm:"type:text;uniqueIndex:idx_usage_limits_key" json:"category,omitempty"`
	ResourceType string       `gorm:"type:text;uniqueIndex:idx_usage_limits_key" json:"resource_type,omitempty"`
	MaxQuantity  float64      `gorm:"not null" json:"max_quantity"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageLimit) TableName() string { return "usage_limits" }

// UsageQuota tracks the running total against an allocated ceiling for one
// window. Each UsageLimit owns exactly one quota row, so the key carries the
// limit's full scope including category and resource type.
type UsageQuota struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID        string       `gorm:"type:text;not null;uniqueIndex:idx_usage_quotas_key" json:"customer_id"`
	Metric            Metric       `gorm:"type:text;not null;uniqueIndex:idx_usage_quotas_key" json:"metric"`
	Period            Period       `gorm:"type:text;not null;uniqueIndex:idx_usage_quotas_key" json:"period"`
	Category          string       `gorm:"type:text;uniqueIndex:idx_usage_quotas_key" json:"category,omitempty"`
	ResourceType      string       `gorm:"type:text;uniqueIndex:idx_usage_quotas_key" json:"resource_type,omitempty"`
	PeriodStart       time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd         time.Time    `gorm:"not null" json:"period_end"`
	AllocatedQuantity float64      `gorm:"not null" json:"allocated_quantity"`
	UsedQuantity      float64      `gorm:"not null" json:"used_quantity"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageQuota) TableName() string { return "usage_quotas" }

// Remaining reports the quantity left before the ceiling, floored at zero.
func (q UsageQuota) Remaining() float64 {
	remaining := q.AllocatedQuantity - q.UsedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}
