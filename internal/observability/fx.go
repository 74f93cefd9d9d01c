package observability

import (
	"github.com/smallbiznis/homekeep/internal/observability/logger"
	"github.com/smallbiznis/homekeep/internal/observability/metrics"
	"github.com/smallbiznis/homekeep/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the OTel tracer and meter providers, the
// household-core domain counters and the Prometheus HTTP and scheduler
// collectors. Every app under apps/ and cmd/ loads it first.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		loggerConfig,
		logger.New,
		tracingConfig,
		tracing.NewProvider,
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		func(cfg metrics.Config) *metrics.SchedulerMetrics { return metrics.SchedulerWithConfig(cfg) },
	),
	// the tracer provider registers itself globally on construction
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func loggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

func tracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

// metricsConfig only gates OTLP export. Prometheus collectors are always
// registered and served on /metrics.
func metricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.MetricsEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}
