// Package telemetry installs the tracer provider whose finished spans are
// written to the structured log.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Output owns a tracer provider that logs every ended span at debug level.
type Output struct {
	provider *sdktrace.TracerProvider
}

// New returns an Output logging to logger, or to the default logger when
// logger is nil.
func New(logger *slog.Logger) *Output {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&logSpanProcessor{log: logger}))
	return &Output{provider: provider}
}

func (o *Output) Tracer(name string) trace.Tracer {
	if o == nil || o.provider == nil {
		return otel.Tracer(name)
	}
	return o.provider.Tracer(name)
}

// Close flushes and shuts down the provider.
func (o *Output) Close(ctx context.Context) error {
	if o == nil || o.provider == nil {
		return nil
	}
	return o.provider.Shutdown(ctx)
}

type logSpanProcessor struct {
	log *slog.Logger
}

func (p *logSpanProcessor) logger() *slog.Logger {
	if p.log != nil {
		return p.log
	}
	return slog.Default()
}

func (p *logSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	attrs := []any{
		"span", span.Name(),
		"trace_id", span.SpanContext().TraceID().String(),
		"duration", span.EndTime().Sub(span.StartTime()),
	}
	for _, kv := range span.Attributes() {
		attrs = append(attrs, string(kv.Key), kv.Value.Emit())
	}
	if status := span.Status(); status.Code == codes.Error {
		attrs = append(attrs, "error", status.Description)
	}
	p.logger().Debug("span ended", attrs...)
}

func (p *logSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *logSpanProcessor) ForceFlush(context.Context) error {
	return nil
}
