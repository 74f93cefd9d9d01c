package observability

import (
	"strings"

	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/spf13/viper"
)

const defaultSamplingRatio = 0.1

// Config is the resolved telemetry setup shared by the logger, tracer and
// meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	MetricsEnabled       bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig starts from the application config and lets the standard OTEL_*
// variables override it. Export defaults to on only in production;
// OTEL_METRICS_ENABLED can turn metric export off while traces stay on.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_ENABLED", cfg.IsProduction())
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", defaultSamplingRatio)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "homekeep"
	}
	enabled := v.GetBool("OTEL_ENABLED")
	v.SetDefault("OTEL_METRICS_ENABLED", enabled)

	ratio := v.GetFloat64("OTEL_SAMPLING_RATIO")
	if ratio <= 0 || ratio > 1 {
		ratio = defaultSamplingRatio
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             normalized(v.GetString("LOG_LEVEL")),
		LogFormat:            normalized(v.GetString("LOG_FORMAT")),
		OtelEnabled:          enabled,
		MetricsEnabled:       enabled && v.GetBool("OTEL_METRICS_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: normalized(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")),
		OtelSamplingRatio:    ratio,
	}
}

// Debug is true for debug logging and for dev and test environments, where
// request logs carry error stacks.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch normalized(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func normalized(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
