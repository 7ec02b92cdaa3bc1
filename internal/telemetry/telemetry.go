// Package telemetry initializes the OpenTelemetry metrics exporter.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"battle-tracker/internal/config"
	"battle-tracker/internal/constants"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
)

type Shutdown func(ctx context.Context) error

// Init installs a global meter provider exporting over OTLP/HTTP. With an
// empty endpoint the global no-op provider stays in place.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp,
				sdkmetric.WithInterval(15*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Int64Counter creates a counter on meter. A rejected instrument is logged
// and replaced by a no-op counter so callers never hold a nil instrument.
func Int64Counter(meter metric.Meter, name, description string, logger zerolog.Logger) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Warn().Err(err).Str("instrument", name).Msg("failed to create counter")
		if counter == nil {
			return noop.Int64Counter{}
		}
	}
	return counter
}

// Register ties the exporter to the application lifecycle.
func Register(lc fx.Lifecycle, cfg *config.Config, logger zerolog.Logger) {
	var shutdown Shutdown

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = Init(ctx, cfg.OTLPEndpoint, constants.ServiceName, constants.ServiceVersion, cfg.OTLPInsecure)
			if err != nil {
				return err
			}
			if cfg.OTLPEndpoint != "" {
				logger.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("metrics export enabled")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
}
