package metrics

import (
	"context"
	"os"
	"sync"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/gleanhub/go-claimsync/common"
	"github.com/gleanhub/go-claimsync/models"
)

// OtlMetricService ships engine metrics through an OTel meter: counters for
// lifecycle events, histograms for sync batch sizes, and observable gauges
// polled from resource monitors. Without a collector endpoint configured it
// falls back to the stdout exporter.
type OtlMetricService struct {
	logger        models.Logger
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	counters      map[models.MetricName]metric.Int64Counter
	histograms    map[models.MetricName]metric.Int64Histogram
	instrumentsMu sync.Mutex
}

var _ models.MetricService = &OtlMetricService{}

func NewMetricService(ctx context.Context, logger models.Logger) (*OtlMetricService, error) {
	var exporter sdkmetric.Exporter
	var err error
	if endpoint := os.Getenv(common.Env_MetricsEndpoint); len(endpoint) > 0 {
		exporter, err = otlpmetrichttp.New(ctx)
	} else {
		exporter, err = stdoutmetric.New()
	}
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(common.ServiceName))),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	return &OtlMetricService{
		logger:        logger,
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(models.MetricsCallerName),
		counters:      make(map[models.MetricName]metric.Int64Counter),
		histograms:    make(map[models.MetricName]metric.Int64Histogram),
	}, nil
}

func (o *OtlMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	counter, err := o.counter(name)
	if err != nil {
		return err
	}
	counter.Add(ctx, int64(val))
	return nil
}

func (o *OtlMetricService) Gauge(ctx context.Context, name models.MetricName, monitor models.ResourceMonitor) error {
	gauge, err := o.meter.Int64ObservableGauge(string(name))
	if err != nil {
		return err
	}
	_, err = o.meter.RegisterCallback(func(ctx context.Context, observer metric.Observer) error {
		value, err := monitor.GetValue(ctx)
		if err != nil {
			return err
		}
		observer.ObserveInt64(gauge, int64(value))
		return nil
	}, gauge)
	return err
}

func (o *OtlMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	histogram, err := o.histogram(name)
	if err != nil {
		return err
	}
	histogram.Record(ctx, int64(val))
	return nil
}

func (o *OtlMetricService) Shutdown(ctx context.Context) {
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		o.logger.Errorf("metrics: error shutting down meter provider: %v", err)
	}
}

// Instruments are cached so hot paths do not recreate them on every call.
func (o *OtlMetricService) counter(name models.MetricName) (metric.Int64Counter, error) {
	o.instrumentsMu.Lock()
	defer o.instrumentsMu.Unlock()
	if counter, found := o.counters[name]; found {
		return counter, nil
	}
	counter, err := o.meter.Int64Counter(string(name))
	if err != nil {
		return nil, err
	}
	o.counters[name] = counter
	return counter, nil
}

func (o *OtlMetricService) histogram(name models.MetricName) (metric.Int64Histogram, error) {
	o.instrumentsMu.Lock()
	defer o.instrumentsMu.Unlock()
	if histogram, found := o.histograms[name]; found {
		return histogram, nil
	}
	histogram, err := o.meter.Int64Histogram(string(name))
	if err != nil {
		return nil, err
	}
	o.histograms[name] = histogram
	return histogram, nil
}
