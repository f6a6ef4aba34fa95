package main

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/dataverse/internal/config"
)

// newTracerProvider builds the provider tick spans are exported through.
// With the "none" exporter the global provider is returned unchanged.
func newTracerProvider(cfg config.TracingConfig, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	switch cfg.Exporter {
	case "", "none":
		return otel.GetTracerProvider(), func(context.Context) error { return nil }, nil

	case "stdout":
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("create exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		return tp, tp.Shutdown, nil

	default:
		return nil, nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}
