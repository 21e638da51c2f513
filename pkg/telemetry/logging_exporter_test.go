package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type captureWriter struct {
	entries []string
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

func TestLoggingExporterEmitsSpanAttributes(t *testing.T) {
	writer := &captureWriter{}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(newLoggingExporter(zerolog.New(writer)))),
	)
	ctx := context.Background()
	_, span := provider.Tracer("test").Start(ctx, "mediator.set_password_quality")
	span.SetAttributes(attribute.String("dpc.outcome", "denied"))
	span.End()
	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(writer.entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(writer.entries))
	}
	if !strings.Contains(writer.entries[0], `"dpc.outcome":"denied"`) {
		t.Fatalf("attribute missing from %s", writer.entries[0])
	}
}

func TestLoggingExporterWarnsOnErrorStatus(t *testing.T) {
	writer := &captureWriter{}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(newLoggingExporter(zerolog.New(writer)))),
	)
	ctx := context.Background()
	_, span := provider.Tracer("test").Start(ctx, "mediator.lock_now")
	span.SetStatus(codes.Error, "lock refused")
	span.End()
	_ = provider.Shutdown(ctx)
	if len(writer.entries) != 1 || !strings.Contains(writer.entries[0], `"level":"warn"`) {
		t.Fatalf("expected warn entry, got %v", writer.entries)
	}
}
