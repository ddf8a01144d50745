package otelx

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false, Endpoint: "ignored:4317"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown %d: %v", i, err)
		}
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("provider = %T", otel.GetTracerProvider())
	}
	fields := otel.GetTextMapPropagator().Fields()
	if len(fields) == 0 {
		t.Fatal("no propagator fields")
	}
}

func TestInit_Disabled_SpansCarryContext(t *testing.T) {
	_, _ = Init(context.Background(), Options{})
	_, span := Tracer("test").Start(context.Background(), "op")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("span context invalid")
	}
}

func TestInit_EnabledWithoutEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Options{Enabled: true})
	if !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("err = %v", err)
	}
}

func TestServiceName(t *testing.T) {
	if got := (Options{Service: "pageman", Component: "server"}).ServiceName(); got != "pageman.server" {
		t.Fatalf("got %q", got)
	}
	if got := (Options{Service: "pageman"}).ServiceName(); got != "pageman" {
		t.Fatalf("got %q", got)
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v", in, got)
		}
	}
}
