// Package telemetry wires OpenTelemetry metrics into the Prometheus registry.
package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "go.pilab.hu/oidcstore"

// Instruments are created on the global meter provider, which forwards them
// to the provider installed by InitMeterProvider.
var operationDuration, _ = otel.Meter(meterName).Float64Histogram(
	"oidcstore.store.operation.duration",
	metric.WithDescription("Duration of store operations."),
	metric.WithUnit("s"),
)

// RecordOperation records how long a store operation took and whether it
// failed.
func RecordOperation(ctx context.Context, operation string, failed bool, d time.Duration) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	operationDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// InitMeterProvider initializes the OpenTelemetry meter provider with a Prometheus exporter.
func InitMeterProvider(reg prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	log.Info().Msg("OpenTelemetry MeterProvider initialized with Prometheus exporter")
	return mp, nil
}

// Shutdown gracefully shuts down the meter provider.
func Shutdown(ctx context.Context, mp *sdkmetric.MeterProvider) {
	if mp == nil {
		return
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down OpenTelemetry MeterProvider")
		return
	}
	log.Info().Msg("OpenTelemetry MeterProvider shut down successfully")
}
