package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/pageman/internal/health"
	"github.com/keithlinneman/pageman/internal/log"
)

// test helpers

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// serve runs one request through NewHandler from a loopback peer.
func serve(t *testing.T, opts *Options, path string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(log.Nop(), opts)
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Start - lifecycle

func TestStart_ServesAndShutsDown(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), &Options{Port: port, Health: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("healthy: %d %q", resp.StatusCode, body)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := stop(sctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(sctx); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := http.Get(url); err == nil {
		t.Fatal("server still accepting connections after shutdown")
	}
}

func TestStart_PortConflict(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()
	stop1, err := Start(ctx, log.Nop(), &Options{Port: port})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer stop1(ctx)

	if _, err := Start(ctx, log.Nop(), &Options{Port: port}); err == nil {
		t.Fatal("expected error for port conflict")
	}
}

// endpoints

func TestHandler_Endpoints(t *testing.T) {
	fakeMetrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP pages_operations_total\n"))
	})

	cases := []struct {
		name     string
		opts     Options
		path     string
		wantCode int
		wantBody string
	}{
		{"healthy", Options{Health: health.Fixed(true, "")}, "/-/healthy", 200, "ok"},
		{"unhealthy", Options{Health: health.Fixed(false, "something broke")}, "/-/healthy", 503, "something broke"},
		{"ready", Options{Readiness: health.Fixed(true, "")}, "/-/ready", 200, "ready"},
		{"not ready", Options{Readiness: health.Fixed(false, "content: directory pages missing")}, "/-/ready", 503, "directory pages missing"},
		{"metrics", Options{Metrics: fakeMetrics}, "/metrics", 200, "pages_operations_total"},
		{"metrics nil", Options{}, "/metrics", 404, ""},
		{"pprof enabled", Options{EnablePprof: true}, "/debug/pprof/", 200, ""},
		{"pprof disabled", Options{}, "/debug/pprof/", 404, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, &tc.opts, tc.path)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestHandler_ShutdownGateFlipsReadiness(t *testing.T) {
	var gate health.ShutdownGate
	opts := &Options{Readiness: gate.Probe()}

	if rec := serve(t, opts, "/-/ready"); rec.Code != http.StatusOK {
		t.Fatalf("initially: status = %d, want 200", rec.Code)
	}
	gate.Set("draining")
	if rec := serve(t, opts, "/-/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("after drain: status = %d, want 503", rec.Code)
	}
}

func TestHandler_PanicRecovered(t *testing.T) {
	called := false
	opts := &Options{
		Health:  health.CheckFunc(func(context.Context) error { panic("boom") }),
		OnPanic: func() { called = true },
	}
	rec := serve(t, opts, "/-/healthy")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !called {
		t.Fatal("OnPanic not called")
	}
}

func TestHandler_PublicPeerRefused(t *testing.T) {
	h := NewHandler(log.Nop(), &Options{})
	req := httptest.NewRequest(http.MethodGet, "/-/healthy", http.NoBody)
	req.RemoteAddr = "8.8.8.8:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	h = NewHandler(log.Nop(), &Options{AllowPublic: true})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("AllowPublic: status = %d, want 200", rec.Code)
	}
}

// requireNonPublicNetwork

func TestRequireNonPublicNetwork(t *testing.T) {
	cases := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:12345", 200},
		{"[::1]:12345", 200},
		{"10.0.0.1:8080", 200},
		{"172.16.0.1:8080", 200},
		{"192.168.1.1:8080", 200},
		{"169.254.1.1:8080", 200},
		{"[::ffff:10.0.0.1]:12345", 200},
		{"8.8.8.8:12345", 403},
		{"203.0.113.1:80", 403},
		{"[::ffff:8.8.8.8]:12345", 403},
		{"not-an-address", 403},
		{"", 403},
		{"999.999.999.999:8080", 403},
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := requireNonPublicNetwork(log.Nop(), inner)

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/-/healthy", http.NoBody)
		req.RemoteAddr = tc.remote
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("remote %q: status = %d, want %d", tc.remote, rec.Code, tc.want)
		}
	}
}
