package domain

import (
	"context"
	"errors"
	"time"

	"github.com/paissive/monetize/pkg/db/pagination"
)

// TrackRequest records a metered usage event.
type TrackRequest struct {
	CustomerID   string         `json:"customer_id"`
	Metric       string         `json:"metric"`
	Quantity     float64        `json:"quantity"`
	Category     string         `json:"category"`
	ResourceID   string         `json:"resource_id"`
	ResourceType string         `json:"resource_type"`
	Metadata     map[string]any `json:"metadata"`
}

// TrackResult reports the persisted record and post-update quota state.
type TrackResult struct {
	Record   *UsageRecord `json:"record"`
	Quota    *UsageQuota  `json:"quota,omitempty"`
	Exceeded bool         `json:"exceeded"`
}

// CheckRequest asks whether a prospective usage amount fits the quota.
type CheckRequest struct {
	CustomerID   string  `form:"customer_id" json:"customer_id"`
	Metric       string  `form:"metric" json:"metric"`
	Quantity     float64 `form:"quantity" json:"quantity"`
	Category     string  `form:"category" json:"category"`
	ResourceType string  `form:"resource_type" json:"resource_type"`
}

// CheckResult is the outcome of a quota pre-check. Read-only, no side effects.
type CheckResult struct {
	Allowed bool        `json:"allowed"`
	Reason  string      `json:"reason,omitempty"`
	Quota   *UsageQuota `json:"quota,omitempty"`
}

// SetLimitRequest creates or replaces a usage ceiling.
type SetLimitRequest struct {
	CustomerID   string  `json:"customer_id"`
	Metric       string  `json:"metric"`
	Period       string  `json:"period"`
	MaxQuantity  float64 `json:"max_quantity"`
	Category     string  `json:"category"`
	ResourceType string  `json:"resource_type"`
}

// SummaryRequest filters aggregate usage for one customer.
type SummaryRequest struct {
	CustomerID string    `form:"customer_id" json:"customer_id"`
	Metric     string    `form:"metric" json:"metric"`
	From       time.Time `form:"from" json:"from"`
	To         time.Time `form:"to" json:"to"`
}

// ListRecordsRequest pages through raw usage events, newest first.
type ListRecordsRequest struct {
	CustomerID string `form:"customer_id" json:"customer_id"`
	Metric     string `form:"metric" json:"metric"`

	pagination.Pagination
}

// RecordPage is one page of usage events plus the cursor to the next.
type RecordPage struct {
	Records  []*UsageRecord       `json:"records"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// MetricTotal is one aggregate row of a usage summary.
type MetricTotal struct {
	Metric   Metric  `json:"metric"`
	Category string  `json:"category,omitempty"`
	Total    float64 `json:"total"`
	Events   int64   `json:"events"`
}

// Summary aggregates usage per metric and category.
type Summary struct {
	CustomerID string        `json:"customer_id"`
	Totals     []MetricTotal `json:"totals"`
}

// TrendDirection classifies how usage moved across the requested window.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendFlat       TrendDirection = "flat"
)

// TrendsRequest buckets usage over trailing intervals.
type TrendsRequest struct {
	CustomerID   string `form:"customer_id" json:"customer_id"`
	Metric       string `form:"metric" json:"metric"`
	Interval     string `form:"interval" json:"interval"`
	NumIntervals int    `form:"num_intervals" json:"num_intervals"`
}

// TrendBucket is the usage total for one interval.
type TrendBucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Total float64   `json:"total"`
}

// Trends carries bucketed usage plus the computed direction.
type Trends struct {
	CustomerID string         `json:"customer_id"`
	Metric     Metric         `json:"metric"`
	Buckets    []TrendBucket  `json:"buckets"`
	Direction  TrendDirection `json:"direction"`
}

// Service is the usage tracker contract.
type Service interface {
	// CheckAllowed is idempotent and mutates nothing.
	CheckAllowed(ctx context.Context, req CheckRequest) (*CheckResult, error)
	// Track always persists the record, flagging rather than rejecting overages.
	Track(ctx context.Context, req TrackRequest) (*TrackResult, error)
	SetLimit(ctx context.Context, req SetLimitRequest) (*UsageLimit, error)
	ListLimits(ctx context.Context, customerID string) ([]*UsageLimit, error)
	ListRecords(ctx context.Context, req ListRecordsRequest) (*RecordPage, error)
	GetSummary(ctx context.Context, req SummaryRequest) (*Summary, error)
	GetTrends(ctx context.Context, req TrendsRequest) (*Trends, error)
	// RolloverExpired resets quota windows whose period has ended.
	RolloverExpired(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrInvalidCustomer  = errors.New("invalid_customer")
	ErrInvalidMetric    = errors.New("invalid_metric")
	ErrInvalidPeriod    = errors.New("invalid_period")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidInterval  = errors.New("invalid_interval")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
