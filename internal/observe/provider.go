// Package observe wires OpenTelemetry metrics to a Prometheus scrape
// endpoint and exposes the instruments the presence pipeline records into.
package observe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ProviderConfig holds settings for InitProvider.
type ProviderConfig struct {
	// ServiceName is recorded as the service.name resource attribute.
	// Defaults to "presenced".
	ServiceName string

	// ServiceVersion is recorded as service.version when non-empty.
	ServiceVersion string

	// GoCollectors adds the Go runtime and process collectors to the registry.
	GoCollectors bool
}

// Provider owns the meter provider and the registry it exports into.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Registry      *prometheus.Registry

	handler  http.Handler
	shutdown func(context.Context) error
}

// InitProvider creates a meter provider backed by a Prometheus exporter on a
// private registry and installs it as the global otel meter provider.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "presenced"
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: create resource: %w", err)
	}

	reg := prometheus.NewRegistry()
	if cfg.GoCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("observe: create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	otel.SetMeterProvider(mp)

	return &Provider{
		MeterProvider: mp,
		Registry:      reg,
		handler:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		shutdown:      mp.Shutdown,
	}, nil
}

// Handler serves the registry in the Prometheus text format.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
