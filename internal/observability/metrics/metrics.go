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

// Metrics exposes the CRM domain instruments.
type Metrics struct {
	mutations        metric.Int64Counter
	bulkRejected     metric.Int64Counter
	productsRestock  metric.Int64Counter
	orderRevenueCent metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "crm"
	}
	meter := provider.Meter(name)

	mutations, err := meter.Int64Counter("crm_mutations_total",
		metric.WithDescription("Mutations by operation and outcome."))
	if err != nil {
		return nil, err
	}
	bulkRejected, err := meter.Int64Counter("crm_bulk_customers_rejected_total",
		metric.WithDescription("Bulk customer rows rejected by reason."))
	if err != nil {
		return nil, err
	}
	productsRestock, err := meter.Int64Counter("crm_products_restocked_total")
	if err != nil {
		return nil, err
	}
	orderRevenueCent, err := meter.Int64Counter("crm_order_revenue_cents_total",
		metric.WithUnit("{cent}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		mutations:        mutations,
		bulkRejected:     bulkRejected,
		productsRestock:  productsRestock,
		orderRevenueCent: orderRevenueCent,
	}, nil
}

// RecordMutation counts a resolved mutation. ok is the result flag returned to the caller.
func (m *Metrics) RecordMutation(ctx context.Context, operation string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome),
	)
	m.mutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBulkRejected counts rows skipped by a bulk customer import.
func (m *Metrics) RecordBulkRejected(ctx context.Context, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.bulkRejected.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRestocked(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.productsRestock.Add(ctx, int64(count))
}

func (m *Metrics) RecordOrderRevenue(ctx context.Context, cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.orderRevenueCent.Add(ctx, cents)
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"operation":   {},
	"outcome":     {},
	"reason":      {},
	"route":       {},
	"method":      {},
	"status_code": {},
	"job":         {},
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
