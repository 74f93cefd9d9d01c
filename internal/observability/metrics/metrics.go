package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes domain instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	costCalculations metric.Int64Counter
	predictions      metric.Int64Counter
	suggestions      metric.Int64Counter
	expirySamples    metric.Int64Counter
	statsTimeouts    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New creates the domain instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "homekeep"
	}
	meter := provider.Meter(name)

	costCalculations, err := meter.Int64Counter("homekeep_utility_cost_calculations_total")
	if err != nil {
		return nil, err
	}
	predictions, err := meter.Int64Counter("homekeep_consumption_predictions_total")
	if err != nil {
		return nil, err
	}
	suggestions, err := meter.Int64Counter("homekeep_shopping_suggestions_total")
	if err != nil {
		return nil, err
	}
	expirySamples, err := meter.Int64Counter("homekeep_expiry_samples_total")
	if err != nil {
		return nil, err
	}
	statsTimeouts, err := meter.Int64Counter("homekeep_consumption_stats_timeouts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		costCalculations: costCalculations,
		predictions:      predictions,
		suggestions:      suggestions,
		expirySamples:    expirySamples,
		statsTimeouts:    statsTimeouts,
	}, nil
}

// RecordCostCalculation counts a calculator run by utility kind and pricing mode.
func (m *Metrics) RecordCostCalculation(ctx context.Context, utilityType, pricingMode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("utility_type", strings.TrimSpace(utilityType)),
		attribute.String("pricing_mode", strings.TrimSpace(pricingMode)),
	)
	m.costCalculations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPrediction counts depletion predictions by outcome status and method.
func (m *Metrics) RecordPrediction(ctx context.Context, status, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(status)),
		attribute.String("method", strings.TrimSpace(method)),
	)
	m.predictions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSuggestions(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.suggestions.Add(ctx, int64(count))
}

// RecordExpirySample counts shelf-life samples; outcome is recorded, ignored or failed.
func (m *Metrics) RecordExpirySample(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.expirySamples.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStatsTimeout(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.statsTimeouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// household and product identifiers never become labels
var allowedLabelKeys = map[attribute.Key]struct{}{
	"utility_type": {},
	"pricing_mode": {},
	"status":       {},
	"method":       {},
	"outcome":      {},
	"source":       {},
	"route":        {},
	"status_code":  {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
