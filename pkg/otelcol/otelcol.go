package otelcol

import (
	"context"

	"progression-engine/pkg/config"
	"progression-engine/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	metricapi "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	traceapi "go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module exports spans to OTEL.ADDR and installs the providers globally so
// otelgorm and otelgrpc pick them up.
var Module = fx.Module("otelcol",
	fx.Provide(
		exporters.Provide,
		NewResource,
		fx.Annotate(ProvideTrace, fx.As(new(traceapi.TracerProvider))),
		fx.Annotate(ProvideMetric, fx.As(new(metricapi.MeterProvider))),
	),
	fx.Invoke(func(traceapi.TracerProvider, metricapi.MeterProvider) {}),
)

func NewResource(cfg *config.Config) *resource.Resource {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		zap.L().Warn("failed to merge otel resource", zap.Error(err))
		return resource.Default()
	}
	return res
}

func ProvideTrace(lc fx.Lifecycle, exporter trace.SpanExporter, res *resource.Resource) *trace.TracerProvider {
	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp
}

func ProvideMetric(lc fx.Lifecycle, res *resource.Resource) *metric.MeterProvider {
	mp := metric.NewMeterProvider(metric.WithResource(res))
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})
	return mp
}
