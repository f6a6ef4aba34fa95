package observe

import (
	"context"

	"github.com/vango-dev/dataverse/pkg/dataverse"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name.
const defaultTracerName = "dataverse"

// TracerConfig configures tick tracing.
type TracerConfig struct {
	// TracerName is the name of the tracer (default: "dataverse").
	TracerName string

	// Provider is the tracer provider. Default: the global provider.
	Provider trace.TracerProvider

	// SkipIdle drops spans of ticks that had nothing to propagate.
	SkipIdle bool

	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// TracerOption configures tick tracing.
type TracerOption func(*TracerConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracerOption {
	return func(c *TracerConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(c *TracerConfig) {
		c.Provider = tp
	}
}

// WithSkipIdle enables or disables dropping idle ticks.
func WithSkipIdle(skip bool) TracerOption {
	return func(c *TracerConfig) {
		c.SkipIdle = skip
	}
}

// WithAttributes adds constant span attributes.
func WithAttributes(attrs ...attribute.KeyValue) TracerOption {
	return func(c *TracerConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// Tracer is a dataverse.Observer emitting one span per tick.
//
// Spans are created after the tick completed, with the tick's start time
// and duration, and carry the tick statistics as attributes. Failed ticks
// record every error and set the span status.
type Tracer struct {
	config TracerConfig
	tracer trace.Tracer
}

// NewTracer resolves a tracer from the configured provider.
func NewTracer(opts ...TracerOption) *Tracer {
	config := TracerConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	provider := config.Provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{
		config: config,
		tracer: provider.Tracer(config.TracerName),
	}
}

// ObserveTick implements dataverse.Observer.
func (t *Tracer) ObserveTick(stats dataverse.TickStats, err error) {
	if t.config.SkipIdle && err == nil && stats.Changed == 0 && stats.Dirty == 0 {
		return
	}

	attrs := append([]attribute.KeyValue{
		attribute.Int64("dataverse.tick", int64(stats.Seq)),
		attribute.Int("dataverse.changed", stats.Changed),
		attribute.Int("dataverse.dirty", stats.Dirty),
		attribute.Int("dataverse.recomputed", stats.Recomputed),
		attribute.Int("dataverse.delivered", stats.Delivered),
		attribute.Int("dataverse.failures", stats.Failures),
		attribute.Int("dataverse.hot", stats.Hot),
	}, t.config.Attributes...)

	_, span := t.tracer.Start(
		context.Background(),
		"dataverse.tick",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(stats.Started),
	)

	if err != nil {
		for _, e := range unjoin(err) {
			span.RecordError(e, trace.WithAttributes(
				attribute.String("dataverse.error_type", categorizeError(e)),
			))
		}
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(stats.Started.Add(stats.Duration)))
}

// Multi combines observers. Nil entries are skipped.
func Multi(observers ...dataverse.Observer) dataverse.Observer {
	return dataverse.ObserverFunc(func(stats dataverse.TickStats, err error) {
		for _, o := range observers {
			if o != nil {
				o.ObserveTick(stats, err)
			}
		}
	})
}
