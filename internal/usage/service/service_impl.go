package service

import (
	"context"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/paissive/monetize/internal/clock"
	obsmetrics "github.com/paissive/monetize/internal/observability/metrics"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
	"github.com/paissive/monetize/pkg/db/option"
	"github.com/paissive/monetize/pkg/db/pagination"
	"github.com/paissive/monetize/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockShards = 64

// keyLock serializes quota read-modify-write per (customer, metric) key so
// concurrent Track calls cannot drift the running total.
type keyLock struct {
	shards [lockShards]sync.Mutex
}

func (l *keyLock) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.shards[h.Sum32()%lockShards]
	mu.Lock()
	return mu
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.Metrics

	recordRepo repository.Repository[usagedomain.UsageRecord]
	limitRepo  repository.Repository[usagedomain.UsageLimit]
	quotaRepo  repository.Repository[usagedomain.UsageQuota]

	locks keyLock
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,

		recordRepo: repository.ProvideStore[usagedomain.UsageRecord](p.DB),
		limitRepo:  repository.ProvideStore[usagedomain.UsageLimit](p.DB),
		quotaRepo:  repository.ProvideStore[usagedomain.UsageQuota](p.DB),
	}
}

func (s *Service) CheckAllowed(ctx context.Context, req usagedomain.CheckRequest) (*usagedomain.CheckResult, error) {
	customerID, metric, err := validateKey(req.CustomerID, req.Metric)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, usagedomain.ErrInvalidQuantity
	}

	limits, err := s.matchingLimits(ctx, customerID, metric, normalizeCode(req.Category), normalizeCode(req.ResourceType))
	if err != nil {
		return nil, err
	}
	if len(limits) == 0 {
		// No configured ceiling means unmetered by default.
		s.log.Debug("no usage limit configured",
			zap.String("customer_id", customerID),
			zap.String("metric", string(metric)),
		)
		return &usagedomain.CheckResult{Allowed: true}, nil
	}

	now := s.clock.Now()
	var binding *usagedomain.UsageQuota
	for _, limit := range limits {
		quota, err := s.peekQuota(ctx, limit, now)
		if err != nil {
			return nil, err
		}
		if binding == nil || quota.Remaining() < binding.Remaining() {
			binding = quota
		}
		if quota.UsedQuantity+req.Quantity > quota.AllocatedQuantity {
			return &usagedomain.CheckResult{
				Allowed: false,
				Reason:  "limit exceeded",
				Quota:   quota,
			}, nil
		}
	}

	return &usagedomain.CheckResult{Allowed: true, Quota: binding}, nil
}

func (s *Service) Track(ctx context.Context, req usagedomain.TrackRequest) (*usagedomain.TrackResult, error) {
	customerID, metric, err := validateKey(req.CustomerID, req.Metric)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, usagedomain.ErrInvalidQuantity
	}

	category := normalizeCode(req.Category)
	resourceType := normalizeCode(req.ResourceType)

	mu := s.locks.lock(customerID + "|" + string(metric))
	defer mu.Unlock()

	now := s.clock.Now()
	record := &usagedomain.UsageRecord{
		ID:           s.genID.Generate(),
		CustomerID:   customerID,
		Metric:       metric,
		Quantity:     req.Quantity,
		Category:     category,
		ResourceID:   strings.TrimSpace(req.ResourceID),
		ResourceType: resourceType,
		RecordedAt:   now,
		Metadata:     req.Metadata,
		CreatedAt:    now,
	}

	result := &usagedomain.TrackResult{Record: record}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		limits, err := s.matchingLimitsTx(ctx, tx, customerID, metric, category, resourceType)
		if err != nil {
			return err
		}

		var binding *usagedomain.UsageQuota
		exceeded := false
		for _, limit := range limits {
			quota, err := s.currentQuota(ctx, tx, limit, now)
			if err != nil {
				return err
			}
			quota.UsedQuantity += req.Quantity
			quota.UpdatedAt = now
			if err := tx.Save(quota).Error; err != nil {
				return err
			}
			if quota.UsedQuantity > quota.AllocatedQuantity {
				exceeded = true
			}
			if binding == nil || quota.Remaining() < binding.Remaining() {
				binding = quota
			}
		}

		// The record is persisted even when the quota is exhausted; callers
		// decide whether to reject the originating request.
		record.Exceeded = exceeded
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		result.Quota = binding
		result.Exceeded = exceeded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveUsageEvent(string(metric), result.Exceeded)
	}
	if result.Exceeded {
		s.log.Warn("usage quota exceeded",
			zap.String("customer_id", customerID),
			zap.String("metric", string(metric)),
			zap.Float64("used", result.Quota.UsedQuantity),
			zap.Float64("allocated", result.Quota.AllocatedQuantity),
		)
	}

	return result, nil
}

func (s *Service) SetLimit(ctx context.Context, req usagedomain.SetLimitRequest) (*usagedomain.UsageLimit, error) {
	customerID, metric, err := validateKey(req.CustomerID, req.Metric)
	if err != nil {
		return nil, err
	}
	period, ok := usagedomain.ParsePeriod(req.Period)
	if !ok {
		return nil, usagedomain.ErrInvalidPeriod
	}
	if req.MaxQuantity <= 0 {
		return nil, usagedomain.ErrInvalidQuantity
	}

	category := normalizeCode(req.Category)
	resourceType := normalizeCode(req.ResourceType)
	now := s.clock.Now()

	existing, err := s.limitRepo.FindOne(ctx, &usagedomain.UsageLimit{
		CustomerID:   customerID,
		Metric:       metric,
		Period:       period,
		Category:     category,
		ResourceType: resourceType,
	})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.MaxQuantity = req.MaxQuantity
		existing.UpdatedAt = now
		if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
			return nil, err
		}
		// Re-anchor only this limit's quota ceiling; the running total and
		// quotas owned by overlapping limits stay untouched.
		if err := s.db.WithContext(ctx).Model(&usagedomain.UsageQuota{}).
			Where("customer_id = ? AND metric = ? AND period = ? AND category = ? AND resource_type = ?",
				customerID, metric, period, category, resourceType).
			Update("allocated_quantity", req.MaxQuantity).Error; err != nil {
			return nil, err
		}
		return existing, nil
	}

	limit := &usagedomain.UsageLimit{
		ID:           s.genID.Generate(),
		CustomerID:   customerID,
		Metric:       metric,
		Period:       period,
		Category:     category,
		ResourceType: resourceType,
		MaxQuantity:  req.MaxQuantity,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.limitRepo.Create(ctx, limit); err != nil {
		return nil, err
	}
	return limit, nil
}

func (s *Service) ListLimits(ctx context.Context, customerID string) ([]*usagedomain.UsageLimit, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}
	return s.limitRepo.Find(ctx, &usagedomain.UsageLimit{CustomerID: customerID})
}

func (s *Service) ListRecords(ctx context.Context, req usagedomain.ListRecordsRequest) (*usagedomain.RecordPage, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}

	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 250 {
		pageSize = 25
	}

	query := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("id DESC").
		Limit(pageSize + 1)

	if req.Metric != "" {
		metric, ok := usagedomain.ParseMetric(req.Metric)
		if !ok {
			return nil, usagedomain.ErrInvalidMetric
		}
		query = query.Where("metric = ?", metric)
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, usagedomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, usagedomain.ErrInvalidPageToken
		}
		query = query.Where("id < ?", id)
	}

	var records []*usagedomain.UsageRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	records, pageInfo := pagination.BuildCursorPageInfo(records, pageSize, func(r *usagedomain.UsageRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})

	return &usagedomain.RecordPage{Records: records, PageInfo: pageInfo}, nil
}

func (s *Service) GetSummary(ctx context.Context, req usagedomain.SummaryRequest) (*usagedomain.Summary, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}

	query := s.db.WithContext(ctx).Model(&usagedomain.UsageRecord{}).
		Select("metric, category, COALESCE(SUM(quantity), 0) AS total, COUNT(*) AS events").
		Where("customer_id = ?", customerID).
		Group("metric, category").
		Order("metric, category")

	if req.Metric != "" {
		metric, ok := usagedomain.ParseMetric(req.Metric)
		if !ok {
			return nil, usagedomain.ErrInvalidMetric
		}
		query = query.Where("metric = ?", metric)
	}
	if !req.From.IsZero() {
		query = query.Where("recorded_at >= ?", req.From.UTC())
	}
	if !req.To.IsZero() {
		query = query.Where("recorded_at < ?", req.To.UTC())
	}

	var totals []usagedomain.MetricTotal
	if err := query.Scan(&totals).Error; err != nil {
		return nil, err
	}

	// Missing customers yield an empty summary, never an error.
	return &usagedomain.Summary{CustomerID: customerID, Totals: totals}, nil
}

func (s *Service) GetTrends(ctx context.Context, req usagedomain.TrendsRequest) (*usagedomain.Trends, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return nil, usagedomain.ErrInvalidCustomer
	}
	metric, ok := usagedomain.ParseMetric(req.Metric)
	if !ok {
		return nil, usagedomain.ErrInvalidMetric
	}
	step, ok := intervalDuration(req.Interval)
	if !ok {
		return nil, usagedomain.ErrInvalidInterval
	}
	n := req.NumIntervals
	if n <= 0 || n > 366 {
		return nil, usagedomain.ErrInvalidInterval
	}

	end := s.clock.Now().Truncate(step).Add(step)
	buckets := make([]usagedomain.TrendBucket, 0, n)
	for i := n; i > 0; i-- {
		bucketStart := end.Add(-time.Duration(i) * step)
		bucketEnd := bucketStart.Add(step)

		var total float64
		err := s.db.WithContext(ctx).Model(&usagedomain.UsageRecord{}).
			Select("COALESCE(SUM(quantity), 0)").
			Where("customer_id = ? AND metric = ? AND recorded_at >= ? AND recorded_at < ?",
				customerID, metric, bucketStart, bucketEnd).
			Scan(&total).Error
		if err != nil {
			return nil, err
		}

		buckets = append(buckets, usagedomain.TrendBucket{Start: bucketStart, End: bucketEnd, Total: total})
	}

	return &usagedomain.Trends{
		CustomerID: customerID,
		Metric:     metric,
		Buckets:    buckets,
		Direction:  trendDirection(buckets),
	}, nil
}

func (s *Service) RolloverExpired(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()

	var expired []usagedomain.UsageQuota
	if err := s.db.WithContext(ctx).
		Where("period_end <= ?", now).
		Find(&expired).Error; err != nil {
		return 0, err
	}

	rolled := 0
	for i := range expired {
		quota := &expired[i]
		mu := s.locks.lock(quota.CustomerID + "|" + string(quota.Metric))

		start, end := quota.Period.Window(now)
		err := s.db.WithContext(ctx).Model(quota).Updates(map[string]any{
			"period_start":  start,
			"period_end":    end,
			"used_quantity": 0,
			"updated_at":    now,
		}).Error
		mu.Unlock()
		if err != nil {
			return rolled, err
		}
		rolled++
	}

	if rolled > 0 {
		s.log.Info("rolled over expired quota windows", zap.Int("count", rolled))
	}
	return rolled, nil
}

// currentQuota loads the quota row owned by the limit, creating or re-anchoring
// it when the accounting window has moved past the stored one. Category and
// resource type are matched exactly so overlapping limits never share a row.
func (s *Service) currentQuota(ctx context.Context, tx *gorm.DB, limit *usagedomain.UsageLimit, now time.Time) (*usagedomain.UsageQuota, error) {
	start, end := limit.Period.Window(now)

	quota, err := s.findQuota(ctx, tx, limit)
	if err != nil {
		return nil, err
	}

	if quota == nil {
		quota = &usagedomain.UsageQuota{
			ID:                s.genID.Generate(),
			CustomerID:        limit.CustomerID,
			Metric:            limit.Metric,
			Period:            limit.Period,
			Category:          limit.Category,
			ResourceType:      limit.ResourceType,
			PeriodStart:       start,
			PeriodEnd:         end,
			AllocatedQuantity: limit.MaxQuantity,
			UsedQuantity:      0,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.WithContext(ctx).Create(quota).Error; err != nil {
			return nil, err
		}
		return quota, nil
	}

	if !now.Before(quota.PeriodEnd) {
		quota.PeriodStart = start
		quota.PeriodEnd = end
		quota.UsedQuantity = 0
		quota.AllocatedQuantity = limit.MaxQuantity
		quota.UpdatedAt = now
		if err := tx.WithContext(ctx).Save(quota).Error; err != nil {
			return nil, err
		}
	}

	return quota, nil
}

// findQuota resolves the single quota row keyed by the limit's full scope.
// An empty category or resource type is a distinct key, not a wildcard.
func (s *Service) findQuota(ctx context.Context, tx *gorm.DB, limit *usagedomain.UsageLimit) (*usagedomain.UsageQuota, error) {
	return s.quotaRepo.WithTrx(tx).FindOne(ctx, &usagedomain.UsageQuota{
		CustomerID: limit.CustomerID,
		Metric:     limit.Metric,
		Period:     limit.Period,
	},
		option.WithWhere("category = ?", limit.Category),
		option.WithWhere("resource_type = ?", limit.ResourceType),
	)
}

// peekQuota returns the limit's live quota when its window covers now, or a
// synthetic zero-usage view of the current window. Nothing is persisted; the
// first Track creates the row.
func (s *Service) peekQuota(ctx context.Context, limit *usagedomain.UsageLimit, now time.Time) (*usagedomain.UsageQuota, error) {
	quota, err := s.findQuota(ctx, s.db, limit)
	if err != nil {
		return nil, err
	}
	if quota != nil && now.Before(quota.PeriodEnd) {
		return quota, nil
	}

	start, end := limit.Period.Window(now)
	return &usagedomain.UsageQuota{
		CustomerID:        limit.CustomerID,
		Metric:            limit.Metric,
		Period:            limit.Period,
		Category:          limit.Category,
		ResourceType:      limit.ResourceType,
		PeriodStart:       start,
		PeriodEnd:         end,
		AllocatedQuantity: limit.MaxQuantity,
		UsedQuantity:      0,
	}, nil
}

func (s *Service) matchingLimits(ctx context.Context, customerID string, metric usagedomain.Metric, category, resourceType string) ([]*usagedomain.UsageLimit, error) {
	return s.matchingLimitsTx(ctx, s.db, customerID, metric, category, resourceType)
}

// matchingLimitsTx returns limits applicable to the event, most specific first.
// A limit with an empty category or resource type matches any value.
func (s *Service) matchingLimitsTx(ctx context.Context, tx *gorm.DB, customerID string, metric usagedomain.Metric, category, resourceType string) ([]*usagedomain.UsageLimit, error) {
	all, err := s.limitRepo.WithTrx(tx).Find(ctx, &usagedomain.UsageLimit{
		CustomerID: customerID,
		Metric:     metric,
	})
	if err != nil {
		return nil, err
	}

	matched := make([]*usagedomain.UsageLimit, 0, len(all))
	for _, limit := range all {
		if limit.Category != "" && limit.Category != category {
			continue
		}
		if limit.ResourceType != "" && limit.ResourceType != resourceType {
			continue
		}
		matched = append(matched, limit)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return specificity(matched[i]) > specificity(matched[j])
	})
	return matched, nil
}

func specificity(limit *usagedomain.UsageLimit) int {
	score := 0
	if limit.Category != "" {
		score += 2
	}
	if limit.ResourceType != "" {
		score++
	}
	return score
}

func validateKey(rawCustomer, rawMetric string) (string, usagedomain.Metric, error) {
	customerID := strings.TrimSpace(rawCustomer)
	if customerID == "" {
		return "", "", usagedomain.ErrInvalidCustomer
	}
	metric, ok := usagedomain.ParseMetric(rawMetric)
	if !ok {
		return "", "", usagedomain.ErrInvalidMetric
	}
	return customerID, metric, nil
}

func normalizeCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return slug.Make(raw)
}

func intervalDuration(raw string) (time.Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hourly":
		return time.Hour, true
	case "daily", "":
		return 24 * time.Hour, true
	case "weekly":
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// trendDirection compares first-half and second-half bucket sums. Movement
// inside a 5% band counts as flat.
func trendDirection(buckets []usagedomain.TrendBucket) usagedomain.TrendDirection {
	if len(buckets) < 2 {
		return usagedomain.TrendFlat
	}

	half := len(buckets) / 2
	var first, second float64
	for _, b := range buckets[:half] {
		first += b.Total
	}
	for _, b := range buckets[len(buckets)-half:] {
		second += b.Total
	}

	switch {
	case first == 0 && second == 0:
		return usagedomain.TrendFlat
	case first == 0:
		return usagedomain.TrendIncreasing
	case second > first*1.05:
		return usagedomain.TrendIncreasing
	case second < first*0.95:
		return usagedomain.TrendDecreasing
	default:
		return usagedomain.TrendFlat
	}
}
