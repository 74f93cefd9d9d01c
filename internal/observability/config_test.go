package observability

import (
	"testing"

	"github.com/smallbiznis/homekeep/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_METRICS_ENABLED", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")

	cfg := LoadConfig(config.Config{AppName: "", Environment: "development", AppVersion: "1.2.3"})
	assert.Equal(t, "homekeep", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.True(t, cfg.Debug())

	prod := LoadConfig(config.Config{Environment: "production"})
	assert.True(t, prod.OtelEnabled)
	assert.True(t, prod.MetricsEnabled)
	assert.False(t, prod.Debug())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_METRICS_ENABLED", "false")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "HTTP")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, defaultSamplingRatio, cfg.OtelSamplingRatio)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.True(t, cfg.Debug())
}
