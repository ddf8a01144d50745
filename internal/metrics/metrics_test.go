package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/pageman/internal/version"
)

// helpers

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

// counterWith sums counter samples whose labels include want.
func counterWith(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil {
		t.Fatalf("metric %q not found", name)
	}
	var total float64
outer:
	for _, m := range f.GetMetric() {
		got := labelsOf(m)
		for k, v := range want {
			if got[k] != v {
				continue outer
			}
		}
		total += m.GetCounter().GetValue()
	}
	return total
}

// New

func TestNew_RegistersCollectors(t *testing.T) {
	m := New()
	for _, name := range []string{"go_goroutines", "process_start_time_seconds", "http_inflight_requests"} {
		if gatherMetric(t, m.reg, name) == nil {
			t.Errorf("%s not registered", name)
		}
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncHttpPanic()
	if f := gatherMetric(t, b.reg, "http_panic_total"); f.GetMetric()[0].GetCounter().GetValue() != 0 {
		t.Fatal("registries should not share state")
	}
}

// Handler

func TestHandler_Scrape(t *testing.T) {
	m := New()
	m.ObserveOp("publish", "ok", 3*time.Millisecond)
	m.VersionCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, want := range []string{
		`pages_operations_total{op="publish",result="ok"} 1`,
		"pages_versions_created_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

// build info

func TestSetBuildInfoFromVersion(t *testing.T) {
	m := New()
	dirty := true
	m.SetBuildInfoFromVersion("pageman", "pagemand", &version.Info{
		Version: "1.0.0", Commit: "abc123", GoVersion: "go1.24", VCSDirty: &dirty,
	})

	f := gatherMetric(t, m.reg, "build_info")
	if f == nil || len(f.GetMetric()) != 1 {
		t.Fatal("build_info not set")
	}
	l := labelsOf(f.GetMetric()[0])
	if l["app"] != "pageman" || l["component"] != "pagemand" || l["commit"] != "abc123" || l["vcs_dirty"] != "true" {
		t.Fatalf("labels = %v", l)
	}
}

func TestSetBuildInfoFromVersion_NilVCSDirty(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion("pageman", "pagemand", &version.Info{})
	l := labelsOf(gatherMetric(t, m.reg, "build_info").GetMetric()[0])
	if l["vcs_dirty"] != "unknown" {
		t.Fatalf("vcs_dirty = %q, want unknown", l["vcs_dirty"])
	}
}

// counters

func TestSimpleCounters(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncRateLimitDenied()
	m.IncRateLimitDenied()
	m.IncRateLimitCapacity()
	m.IncCrossOriginRejected()
	m.IncAuthThrottled()

	cases := map[string]float64{
		"http_panic_total":                          1,
		"http_requests_rate_limited_total":          2,
		"http_requests_rate_limited_capacity_total": 1,
		"http_cross_origin_rejected_total":          1,
		"auth_throttled_total":                      1,
	}
	for name, want := range cases {
		if got := counterWith(t, m.reg, name, nil); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if v := gatherMetric(t, m.reg, "profiling_active").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Fatalf("profiling_active = %v, want 1", v)
	}
	m.SetProfilingActive(false)
	if v := gatherMetric(t, m.reg, "profiling_active").GetMetric()[0].GetGauge().GetValue(); v != 0 {
		t.Fatalf("profiling_active = %v, want 0", v)
	}
}

// pages

func TestObserveOp(t *testing.T) {
	m := New()
	m.ObserveOp("save_draft", "ok", time.Millisecond)
	m.ObserveOp("save_draft", "ok", time.Millisecond)
	m.ObserveOp("save_draft", "not_found", time.Millisecond)
	m.ObserveOp("publish", "io", time.Millisecond)

	if got := counterWith(t, m.reg, "pages_operations_total", map[string]string{"op": "save_draft", "result": "ok"}); got != 2 {
		t.Fatalf("save_draft ok = %v, want 2", got)
	}
	if got := counterWith(t, m.reg, "pages_operations_total", map[string]string{"result": "io"}); got != 1 {
		t.Fatalf("io results = %v, want 1", got)
	}

	f := gatherMetric(t, m.reg, "pages_operation_duration_seconds")
	var samples uint64
	for _, mm := range f.GetMetric() {
		samples += mm.GetHistogram().GetSampleCount()
	}
	if samples != 4 {
		t.Fatalf("duration samples = %d, want 4", samples)
	}
}

func TestTrashArchivedAndAuthDenied(t *testing.T) {
	m := New()
	m.TrashArchived(true)
	m.TrashArchived(false)
	m.TrashArchived(false)
	m.IncAuthDenied("missing_credential")
	m.IncAuthDenied("mismatch")
	m.IncAuthDenied("mismatch")

	if got := counterWith(t, m.reg, "pages_trash_archive_total", map[string]string{"result": "error"}); got != 2 {
		t.Fatalf("archive errors = %v, want 2", got)
	}
	if got := counterWith(t, m.reg, "pages_trash_archive_total", map[string]string{"result": "ok"}); got != 1 {
		t.Fatalf("archive ok = %v, want 1", got)
	}
	if got := counterWith(t, m.reg, "auth_denied_total", map[string]string{"reason": "mismatch"}); got != 2 {
		t.Fatalf("auth denied mismatch = %v, want 2", got)
	}
}

func TestIncAdminSecretReload(t *testing.T) {
	m := New()
	m.IncAdminSecretReload("unchanged")
	m.IncAdminSecretReload("unchanged")
	m.IncAdminSecretReload("rotated")

	if got := counterWith(t, m.reg, "auth_admin_secret_reload_total", map[string]string{"result": "unchanged"}); got != 2 {
		t.Fatalf("reload unchanged = %v, want 2", got)
	}
	if got := counterWith(t, m.reg, "auth_admin_secret_reload_total", map[string]string{"result": "rotated"}); got != 1 {
		t.Fatalf("reload rotated = %v, want 1", got)
	}
}
