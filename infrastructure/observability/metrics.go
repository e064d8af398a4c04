package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wagerbook/config"
	"wagerbook/models"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages the OpenTelemetry business counters
type MetricsProvider struct {
	config        config.MetricsConfig
	environment   string
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	disputesCounter        metric.Int64Counter
	settlementsCounter     metric.Int64Counter
	settledVolumeCounter   metric.Int64Counter
	platformFeesCounter    metric.Int64Counter
	reconciliationsCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg config.MetricsConfig, environment string) *MetricsProvider {
	return &MetricsProvider{
		config:      cfg,
		environment: environment,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.Enabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	var exporter sdkmetric.Exporter
	var err error
	switch mp.config.ExporterType {
	case ExporterConsole:
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case ExporterOTLP:
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(dialCtx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.WithField("endpoint", mp.config.OTLPEndpoint).Info("Using OTLP metric exporter")

	case ExporterNone:
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.ExporterType)
	}

	interval := time.Duration(mp.config.ExportIntervalMillis) * time.Millisecond
	return mp.start(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
}

// start builds the meter provider around a reader. Callers hold mp.mu.
func (mp *MetricsProvider) start(reader sdkmetric.Reader) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.ServiceName),
			attribute.String("environment", mp.environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("wagerbook")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.disputesCounter, err = mp.meter.Int64Counter(
		WagerDisputesTotal,
		metric.WithDescription("Total number of contested prize claims"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create disputes counter: %w", err)
	}

	mp.settlementsCounter, err = mp.meter.Int64Counter(
		WagerSettlementsTotal,
		metric.WithDescription("Total number of settled wagers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create settlements counter: %w", err)
	}

	mp.settledVolumeCounter, err = mp.meter.Int64Counter(
		WagerSettledVolume,
		metric.WithDescription("Total wager pots settled, in cents"),
		metric.WithUnit("{cent}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create settled volume counter: %w", err)
	}

	mp.platformFeesCounter, err = mp.meter.Int64Counter(
		WagerPlatformFees,
		metric.WithDescription("Total platform fees retained, in cents"),
		metric.WithUnit("{cent}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create platform fees counter: %w", err)
	}

	mp.reconciliationsCounter, err = mp.meter.Int64Counter(
		ReconciliationsTotal,
		metric.WithDescription("Total number of rail reconciliation attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create reconciliations counter: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordDispute counts a contested claim
func (mp *MetricsProvider) RecordDispute(ctx context.Context, category string) {
	if !mp.isEnabled() {
		return
	}

	mp.disputesCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(LabelCategory, category),
		),
	)
}

// RecordSettlement counts a settled wager with its pot and fee
func (mp *MetricsProvider) RecordSettlement(ctx context.Context, reason string, amount, fee int64) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(attribute.String(LabelReason, reason))
	mp.settlementsCounter.Add(ctx, 1, attrs)
	mp.settledVolumeCounter.Add(ctx, amount, attrs)
	mp.platformFeesCounter.Add(ctx, fee, attrs)
}

// RecordReconciliation counts one reconciliation outcome
func (mp *MetricsProvider) RecordReconciliation(ctx context.Context, rail models.Rail, outcome string) {
	if !mp.isEnabled() {
		return
	}

	mp.reconciliationsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(LabelRail, string(rail)),
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// isEnabled checks that instruments exist
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}
