package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	_, _ = sw.Write([]byte("body"))
	sw.WriteHeader(http.StatusTeapot)

	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, first Write should pin 200", sw.status)
	}
	if sw.n != 4 {
		t.Fatalf("bytes = %d, want 4", sw.n)
	}
	if sw.Unwrap() != rec {
		t.Fatal("Unwrap should return the underlying writer")
	}
}

// Middleware

func TestMiddleware_Labels(t *testing.T) {
	cases := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus string
		wantErrors float64
	}{
		{"explicit 404", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, "404", 0},
		{"implicit 200", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("x")) }, "200", 0},
		{"no write", func(w http.ResponseWriter, r *http.Request) {}, "200", 0},
		{"500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, "500", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			m.Middleware(tc.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/x", http.NoBody))

			f := gatherMetric(t, m.reg, "http_requests_total")
			l := labelsOf(f.GetMetric()[0])
			if l["status"] != tc.wantStatus || l["method"] != http.MethodPost || l["route"] != "unmatched" {
				t.Fatalf("labels = %v", l)
			}
			var errs float64
			if ef := gatherMetric(t, m.reg, "http_errors_total"); ef != nil && len(ef.GetMetric()) > 0 {
				errs = ef.GetMetric()[0].GetCounter().GetValue()
			}
			if errs != tc.wantErrors {
				t.Fatalf("http_errors_total = %v, want %v", errs, tc.wantErrors)
			}
		})
	}
}

func TestMiddleware_InflightAndHistograms(t *testing.T) {
	m := New()

	var inflightDuring float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflightDuring = gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
		_, _ = w.Write([]byte("hello world"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if inflightDuring != 1 {
		t.Fatalf("inflight during request = %v, want 1", inflightDuring)
	}
	if after := gatherMetric(t, m.reg, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue(); after != 0 {
		t.Fatalf("inflight after = %v, want 0", after)
	}
	if c := gatherMetric(t, m.reg, "http_request_duration_seconds").GetMetric()[0].GetHistogram().GetSampleCount(); c != 1 {
		t.Fatalf("duration samples = %d, want 1", c)
	}
	if s := gatherMetric(t, m.reg, "http_response_size_bytes").GetMetric()[0].GetHistogram().GetSampleSum(); s != 11 {
		t.Fatalf("response size sum = %v, want 11", s)
	}
}

func TestMiddleware_ChiRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/pages/{page}/versions/{version}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/pages/home/versions/2024-01-01_00-00-00", http.NoBody))

	l := labelsOf(gatherMetric(t, m.reg, "http_requests_total").GetMetric()[0])
	if l["route"] != "/api/pages/{page}/versions/{version}" {
		t.Fatalf("route = %q", l["route"])
	}
}

func TestMiddleware_CreatesRouteContext(t *testing.T) {
	m := New()
	var rc *chi.Context
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc = chi.RouteContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if rc == nil {
		t.Fatal("route context should be injected outside chi")
	}
}

// traceExemplar

func TestTraceExemplar(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")

	sampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled,
	}))
	if ex := traceExemplar(sampled); ex == nil || ex["trace_id"] != tid.String() {
		t.Fatalf("sampled exemplar = %v", ex)
	}

	unsampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid, SpanID: sid,
	}))
	if ex := traceExemplar(unsampled); ex != nil {
		t.Fatalf("unsampled exemplar = %v, want nil", ex)
	}
	if ex := traceExemplar(context.Background()); ex != nil {
		t.Fatalf("no trace exemplar = %v, want nil", ex)
	}
}
