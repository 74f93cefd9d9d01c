package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TrackingConfig holds the household-independent defaults of consumption
// tracking. Per-household settings rows override MinDataPoints and HistoryMonths.
type TrackingConfig struct {
	MinDataPoints         int           `mapstructure:"minDataPoints"`
	HistoryMonths         int           `mapstructure:"historyMonths"`
	ShoppingHistoryMonths int           `mapstructure:"shoppingHistoryMonths"`
	InventoryEventLimit   int           `mapstructure:"inventoryEventLimit"`
	ShoppingEventLimit    int           `mapstructure:"shoppingEventLimit"`
	InventoryOutlierDays  float64       `mapstructure:"inventoryOutlierDays"`
	ShoppingOutlierDays   float64       `mapstructure:"shoppingOutlierDays"`
	SuggestionHorizonDays float64       `mapstructure:"suggestionHorizonDays"`
	StatsTimeout          time.Duration `mapstructure:"statsTimeout"`
}

func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		MinDataPoints:         5,
		HistoryMonths:         6,
		ShoppingHistoryMonths: 3,
		InventoryEventLimit:   50,
		ShoppingEventLimit:    30,
		InventoryOutlierDays:  365,
		ShoppingOutlierDays:   90,
		SuggestionHorizonDays: 7,
		StatsTimeout:          3 * time.Second,
	}
}

// WithDefaults fills zero values from DefaultTrackingConfig.
func (c TrackingConfig) WithDefaults() TrackingConfig {
	d := DefaultTrackingConfig()
	if c.MinDataPoints <= 0 {
		c.MinDataPoints = d.MinDataPoints
	}
	if c.HistoryMonths <= 0 {
		c.HistoryMonths = d.HistoryMonths
	}
	if c.ShoppingHistoryMonths <= 0 {
		c.ShoppingHistoryMonths = d.ShoppingHistoryMonths
	}
	if c.InventoryEventLimit <= 0 {
		c.InventoryEventLimit = d.InventoryEventLimit
	}
	if c.ShoppingEventLimit <= 0 {
		c.ShoppingEventLimit = d.ShoppingEventLimit
	}
	if c.InventoryOutlierDays <= 0 {
		c.InventoryOutlierDays = d.InventoryOutlierDays
	}
	if c.ShoppingOutlierDays <= 0 {
		c.ShoppingOutlierDays = d.ShoppingOutlierDays
	}
	if c.SuggestionHorizonDays <= 0 {
		c.SuggestionHorizonDays = d.SuggestionHorizonDays
	}
	if c.StatsTimeout <= 0 {
		c.StatsTimeout = d.StatsTimeout
	}
	return c
}

type TrackingConfigHolder struct {
	current atomic.Value // holds TrackingConfig
}

// NewStaticTrackingConfigHolder returns a holder that never reloads.
func NewStaticTrackingConfigHolder(cfg TrackingConfig) *TrackingConfigHolder {
	holder := &TrackingConfigHolder{}
	holder.current.Store(cfg.WithDefaults())
	return holder
}

func NewTrackingConfigHolder(log *zap.Logger) (*TrackingConfigHolder, error) {
	log = log.Named("config.tracking")
	v := viper.New()

	v.SetConfigName("tracking")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/homekeep/config")
	v.AddConfigPath("/etc/homekeep")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HOMEKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultTrackingConfig()
	v.SetDefault("tracking.minDataPoints", defaults.MinDataPoints)
	v.SetDefault("tracking.historyMonths", defaults.HistoryMonths)
	v.SetDefault("tracking.shoppingHistoryMonths", defaults.ShoppingHistoryMonths)
	v.SetDefault("tracking.inventoryEventLimit", defaults.InventoryEventLimit)
	v.SetDefault("tracking.shoppingEventLimit", defaults.ShoppingEventLimit)
	v.SetDefault("tracking.inventoryOutlierDays", defaults.InventoryOutlierDays)
	v.SetDefault("tracking.shoppingOutlierDays", defaults.ShoppingOutlierDays)
	v.SetDefault("tracking.suggestionHorizonDays", defaults.SuggestionHorizonDays)
	v.SetDefault("tracking.statsTimeout", defaults.StatsTimeout)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg TrackingConfig
	if err := v.UnmarshalKey("tracking", &cfg); err != nil {
		return nil, err
	}
	if err := validateTrackingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &TrackingConfigHolder{}
	holder.current.Store(cfg.WithDefaults())

	if !fileLoaded {
		log.Info("tracking config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated TrackingConfig
		if err := v.UnmarshalKey("tracking", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		if err := validateTrackingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated.WithDefaults())
		log.Info("reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *TrackingConfigHolder) Get() TrackingConfig {
	if h == nil {
		return DefaultTrackingConfig()
	}
	cfg, ok := h.current.Load().(TrackingConfig)
	if !ok {
		return DefaultTrackingConfig()
	}
	return cfg
}

func validateTrackingConfig(cfg TrackingConfig) error {
	if cfg.MinDataPoints < 0 {
		return errors.New("tracking.minDataPoints cannot be negative")
	}
	if cfg.HistoryMonths < 0 || cfg.ShoppingHistoryMonths < 0 {
		return errors.New("tracking history windows cannot be negative")
	}
	if cfg.InventoryEventLimit < 0 || cfg.ShoppingEventLimit < 0 {
		return errors.New("tracking event limits cannot be negative")
	}
	return nil
}
