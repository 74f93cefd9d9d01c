package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewTrackingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr     string
	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PricingCacheTTL time.Duration

	WriteRateLimitEnabled bool
	WriteRateLimitRate    float64
	WriteRateLimitBurst   int

	SchedulerEnabled     bool
	SuggestionSweepCron  string
	SuggestionSweepLimit int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:               getenv("APP_SERVICE", "homekeep"),
		AppVersion:            getenv("APP_VERSION", "0.1.0"),
		Environment:           getenv("ENVIRONMENT", "development"),
		HTTPAddr:              getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:          getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:                getenv("DATABASE_TYPE", "postgres"),
		DBHost:                getenv("DATABASE_HOST", "localhost"),
		DBPort:                getenv("DATABASE_PORT", "5432"),
		DBName:                getenv("DATABASE_NAME", "homekeep"),
		DBUser:                getenv("DATABASE_USER", "postgres"),
		DBPassword:            getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:             getenv("DATABASE_SSLMODE", "disable"),
		DBPath:                getenv("DATABASE_PATH", "homekeep.db"),
		DBMaxIdleConn:         getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:         getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime:     getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime:     getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		RedisAddr:             strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:         getenv("REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("REDIS_DB", 0),
		PricingCacheTTL:       getenvDuration("PRICING_CACHE_TTL", 30*time.Second),
		WriteRateLimitEnabled: getenvBool("WRITE_RATE_LIMIT_ENABLED", true),
		WriteRateLimitRate:    getenvFloat("WRITE_RATE_LIMIT_RATE", 5),
		WriteRateLimitBurst:   getenvInt("WRITE_RATE_LIMIT_BURST", 20),
		SchedulerEnabled:      getenvBool("SCHEDULER_ENABLED", true),
		SuggestionSweepCron:   getenv("SUGGESTION_SWEEP_CRON", "0 7 * * *"),
		SuggestionSweepLimit:  getenvInt("SUGGESTION_SWEEP_LIMIT", 500),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
