package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/paissive/monetize/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyUsageIngestCustomer = "usage:ingest:customer:%s"

// UsageIngestLimiter throttles usage event ingestion per customer. Without a
// configured redis it is a no-op and every request passes.
type UsageIngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewUsageIngestLimiter(cfg config.Config) *UsageIngestLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return &UsageIngestLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &UsageIngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    cfg.IngestRatePerSec,
		burst:   cfg.IngestBurst,
	}
}

func (l *UsageIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UsageIngestLimiter) AllowCustomer(ctx context.Context, customerID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyUsageIngestCustomer, strings.TrimSpace(customerID))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
