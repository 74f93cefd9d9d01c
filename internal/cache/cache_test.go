package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/homekeep/internal/config"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTTLCacheWithClock[string, int](func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})

	c.Set("a", 1, time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Set("b", 2, 0)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestTTLCacheDeleteFunc(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("1|2|x", 1, time.Minute)
	c.Set("1|3|x", 2, time.Minute)
	c.DeleteFunc(func(k string) bool { return k == "1|2|x" })

	_, ok := c.Get("1|2|x")
	assert.False(t, ok)
	_, ok = c.Get("1|3|x")
	assert.True(t, ok)
}

func TestPricingConfigCacheInvalidate(t *testing.T) {
	c := NewPricingConfigCache(config.Config{PricingCacheTTL: time.Minute})
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	hh, ut := snowflake.ID(10), snowflake.ID(1)
	pc := utilitydomain.PricingConfig{Setting: utilitydomain.UtilitySetting{BaseFee: decimal.NewFromInt(2500)}}

	c.Set(hh, ut, day, pc)
	c.Set(hh, ut, day.AddDate(0, 0, 1), pc)
	c.Set(snowflake.ID(100), ut, day, pc)

	got, ok := c.Get(hh, ut, day)
	assert.True(t, ok)
	assert.True(t, got.Setting.BaseFee.Equal(decimal.NewFromInt(2500)))

	c.Invalidate(hh, ut)
	_, ok = c.Get(hh, ut, day)
	assert.False(t, ok)
	_, ok = c.Get(hh, ut, day.AddDate(0, 0, 1))
	assert.False(t, ok)
	// household 100 shares the "10" prefix only textually
	_, ok = c.Get(snowflake.ID(100), ut, day)
	assert.True(t, ok)

	var nilCache *PricingConfigCache
	_, ok = nilCache.Get(hh, ut, day)
	assert.False(t, ok)
}
