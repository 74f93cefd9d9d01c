package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/config"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
)

const defaultPricingTTL = 30 * time.Second

// PricingConfigCache keeps recently used pricing configurations. Entries are
// keyed by the day they were resolved for, so a tier set that becomes active
// at midnight is never served stale past the TTL.
type PricingConfigCache struct {
	entries Cache[string, utilitydomain.PricingConfig]
	ttl     time.Duration
}

func NewPricingConfigCache(cfg config.Config) *PricingConfigCache {
	ttl := cfg.PricingCacheTTL
	if ttl <= 0 {
		ttl = defaultPricingTTL
	}
	return &PricingConfigCache{
		entries: NewTTLCache[string, utilitydomain.PricingConfig](),
		ttl:     ttl,
	}
}

func (c *PricingConfigCache) Get(householdID, utilityTypeID snowflake.ID, day time.Time) (utilitydomain.PricingConfig, bool) {
	if c == nil {
		return utilitydomain.PricingConfig{}, false
	}
	return c.entries.Get(pricingKey(householdID, utilityTypeID, day))
}

func (c *PricingConfigCache) Set(householdID, utilityTypeID snowflake.ID, day time.Time, pc utilitydomain.PricingConfig) {
	if c == nil {
		return
	}
	c.entries.Set(pricingKey(householdID, utilityTypeID, day), pc, c.ttl)
}

// Invalidate drops every cached day for the household and utility type.
func (c *PricingConfigCache) Invalidate(householdID, utilityTypeID snowflake.ID) {
	if c == nil {
		return
	}
	prefix := cacheKey(householdID.String(), utilityTypeID.String()) + "|"
	c.entries.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func pricingKey(householdID, utilityTypeID snowflake.ID, day time.Time) string {
	return cacheKey(householdID.String(), utilityTypeID.String(), day.UTC().Format(time.DateOnly))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
