// Package otel sets up the OpenTelemetry log and metric pipelines. The
// controller and dispatcher instruments use the global meter, so New installs
// its meter provider globally.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultMetricInterval = 10 * time.Second

// Config holds OTel configuration
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	// Writer receives logs and metrics as JSON. Required unless Endpoint is set.
	Writer   io.Writer
	Endpoint string // OTLP/HTTP host:port
	Insecure bool
}

// Provider owns the log and meter providers. The zero value is disabled.
type Provider struct {
	logs    *sdklog.LoggerProvider
	metrics *sdkmetric.MeterProvider
}

// New builds both pipelines. When cfg.Enabled is false it returns a disabled
// provider.
func New(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if cfg.Writer == nil && cfg.Endpoint == "" {
		return nil, errors.New("OTel enabled but no writer or endpoint configured")
	}
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = defaultMetricInterval
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.Writer != nil {
		logExp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create log writer exporter: %w", err)
		}
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("failed to create metric writer exporter: %w", err)
		}
		logOpts = append(logOpts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(logExp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(cfg.MetricInterval))))
	}

	if cfg.Endpoint != "" {
		logHTTP := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		metricHTTP := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			logHTTP = append(logHTTP, otlploghttp.WithInsecure())
			metricHTTP = append(metricHTTP, otlpmetrichttp.WithInsecure())
		}
		logExp, err := otlploghttp.New(ctx, logHTTP...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		metricExp, err := otlpmetrichttp.New(ctx, metricHTTP...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		logOpts = append(logOpts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(logExp, sdklog.WithExportTimeout(cfg.BatchTimeout))))
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(cfg.MetricInterval))))
	}

	p := &Provider{
		logs:    sdklog.NewLoggerProvider(logOpts...),
		metrics: sdkmetric.NewMeterProvider(metricOpts...),
	}
	otel.SetMeterProvider(p.metrics)
	return p, nil
}

// LoggerProvider returns the log provider for the otelslog bridge, or nil
// when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Meter returns a meter from the SDK provider, or a no-op meter when disabled.
func (p *Provider) Meter(name string) metric.Meter {
	if p.metrics == nil {
		return noop.Meter{}
	}
	return p.metrics.Meter(name)
}

// Flush exports pending logs and collects metrics once.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	var errs []error
	if err := p.logs.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log flush failed: %w", err))
	}
	if err := p.metrics.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metric flush failed: %w", err))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	var errs []error
	if err := p.metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metric shutdown failed: %w", err))
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log shutdown failed: %w", err))
	}
	return errors.Join(errs...)
}

// Enabled returns whether OTel is enabled
func (p *Provider) Enabled() bool {
	return p.logs != nil
}
