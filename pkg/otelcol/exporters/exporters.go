package exporters

import (
	"context"
	"strings"
	"time"

	"progression-engine/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const dialTimeout = 10 * time.Second

// Provide builds the OTLP span exporter for OTEL.ADDR. OTEL.PROTOCOL selects
// "http", anything else uses grpc.
func Provide(cfg *config.Config) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	var client otlptrace.Client
	if strings.EqualFold(cfg.Otel.Protocol, "http") {
		client = otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Otel.Addr),
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		)
	} else {
		client = otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Otel.Addr),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithCompressor("gzip"),
		)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		zap.L().Error("failed to create span exporter", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol), zap.Error(err))
		return nil, err
	}
	return exporter, nil
}
