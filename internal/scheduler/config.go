package scheduler

import (
	"time"

	"github.com/smallbiznis/homekeep/internal/config"
)

// Config controls the suggestion sweep schedule and batch sizes.
type Config struct {
	Enabled          bool
	SweepSpec        string
	BatchSize        int
	HouseholdTimeout time.Duration
	JobTimeout       time.Duration
	LockTTL          time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		SweepSpec:        "0 7 * * *",
		BatchSize:        500,
		HouseholdTimeout: 10 * time.Second,
		JobTimeout:       30 * time.Minute,
		LockTTL:          35 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:   cfg.SchedulerEnabled,
		SweepSpec: cfg.SuggestionSweepCron,
		BatchSize: cfg.SuggestionSweepLimit,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SweepSpec == "" {
		c.SweepSpec = defaults.SweepSpec
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.HouseholdTimeout <= 0 {
		c.HouseholdTimeout = defaults.HouseholdTimeout
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
