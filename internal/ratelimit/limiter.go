package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/homekeep/internal/config"
)

const keyHouseholdWrites = "ratelimit:writes:%s"

// WriteLimiter throttles mutating requests per household.
type WriteLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

func NewWriteLimiter(bucket Bucket, rate float64, burst int) *WriteLimiter {
	return &WriteLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// AllowHousehold spends one write token for the household. A disabled
// limiter allows everything.
func (l *WriteLimiter) AllowHousehold(ctx context.Context, householdID string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyHouseholdWrites, strings.TrimSpace(householdID)), l.rate, l.burst)
}

// limitsFromConfig returns zero values when write limiting is switched off.
func limitsFromConfig(cfg config.Config) (float64, int) {
	if !cfg.WriteRateLimitEnabled {
		return 0, 0
	}
	return cfg.WriteRateLimitRate, cfg.WriteRateLimitBurst
}
