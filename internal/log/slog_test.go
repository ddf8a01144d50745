package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/pageman/internal/xerrors"
)

// helpers

func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) *slogLogger {
	t.Helper()
	opts.Writer = buf
	opts.JsonFormat = true
	l, err := newSlog(opts)
	if err != nil {
		t.Fatalf("newSlog: %v", err)
	}
	return l.(*slogLogger)
}

func jsonRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("parse JSON log line: %v\nraw: %s", err, last)
	}
	return m
}

// construction

func TestNew_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman", Component: "pages", Version: "1.2.3"})

	l.Info(context.Background(), "hello")

	m := jsonRecord(t, &buf)
	for k, want := range map[string]string{"msg": "hello", "app": "pageman", "component": "pages", "version": "1.2.3"} {
		if m[k] != want {
			t.Fatalf("%s = %v, want %s", k, m[k], want)
		}
	}
}

func TestNew_OmitsEmptyComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})
	l.Info(context.Background(), "x")
	if _, ok := jsonRecord(t, &buf)["component"]; ok {
		t.Fatal("component should be omitted when empty")
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{App: "pageman", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info(context.Background(), "plain text")
	if !strings.Contains(buf.String(), `msg="plain text"`) {
		t.Fatalf("expected text output, got: %s", buf.String())
	}
}

func TestNew_DefaultsMaxErrorLinks(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})
	if l.maxErrorLinks != 8 {
		t.Fatalf("maxErrorLinks = %d, want 8", l.maxErrorLinks)
	}
}

// levels

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman", Level: slog.LevelWarn})

	l.Debug(context.Background(), "debug")
	l.Info(context.Background(), "info")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got: %s", buf.String())
	}
	l.Warn(context.Background(), "warn")
	if jsonRecord(t, &buf)["msg"] != "warn" {
		t.Fatal("warn record missing")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, " INFO ": slog.LevelInfo,
		"warn": slog.LevelWarn, "warning": slog.LevelWarn, "Error": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

// With

func TestWith_DoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := newTestLogger(t, &buf, Options{App: "pageman"})
	child := parent.With("page", "home")

	child.Info(context.Background(), "child")
	if jsonRecord(t, &buf)["page"] != "home" {
		t.Fatal("child should carry page attr")
	}

	buf.Reset()
	parent.Info(context.Background(), "parent")
	if _, ok := jsonRecord(t, &buf)["page"]; ok {
		t.Fatal("parent must not see child attrs")
	}
}

func TestWith_DropsNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})
	l.Info(context.Background(), "x", 42, "ignored", "ok", true, "dangling")

	m := jsonRecord(t, &buf)
	if m["ok"] != true {
		t.Fatalf("ok = %v, want true", m["ok"])
	}
	if _, found := m["dangling"]; found {
		t.Fatal("dangling key without value should be dropped")
	}
}

// Error

func TestError_ChainAndTypes(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})

	root := errors.New("disk full")
	err := xerrors.Wrap(fmt.Errorf("write draft: %w", root), "save draft")
	l.Error(context.Background(), err, "operation failed")

	m := jsonRecord(t, &buf)
	if m["err"] != "save draft: write draft: disk full" {
		t.Fatalf("err = %v", m["err"])
	}
	chain, ok := m["error_chain"].([]any)
	if !ok || len(chain) != 3 {
		t.Fatalf("error_chain = %v, want 3 entries", m["error_chain"])
	}
	if m["cause_type"] != "*errors.errorString" {
		t.Fatalf("cause_type = %v", m["cause_type"])
	}
	if m["error_type"] != "*errors.errorString" {
		t.Fatalf("error_type = %v, want wrappers skipped", m["error_type"])
	}
}

func TestError_StackAttached(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})
	l.Error(context.Background(), xerrors.New("boom"), "failed")

	stack, _ := jsonRecord(t, &buf)["stack"].(string)
	// frames from this package are trimmed, so the first frame is the test runner
	if !strings.Contains(stack, "testing.tRunner") {
		t.Fatalf("stack missing caller frames, got: %s", stack)
	}
	if strings.Contains(stack, "/internal/xerrors.") {
		t.Fatalf("stack should skip xerrors frames, got: %s", stack)
	}
}

func TestWarn_NoStackBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})
	l.Warn(context.Background(), "careful")
	if _, ok := jsonRecord(t, &buf)["stack"]; ok {
		t.Fatal("warn should not carry a stack at default threshold")
	}
}

func TestError_Links(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman", IncludeErrorLinks: true, MaxErrorLinks: 2})

	err := xerrors.Wrap(xerrors.Wrap(xerrors.New("root"), "mid"), "top")
	l.Error(context.Background(), err, "failed")

	links, ok := jsonRecord(t, &buf)["error_links"].([]any)
	if !ok || len(links) == 0 || len(links) > 2 {
		t.Fatalf("error_links = %v, want 1..2 entries", links)
	}
	first := links[0].(map[string]any)
	if first["msg"] != "top: mid: root" || first["line"] == nil {
		t.Fatalf("first link = %v", first)
	}
}

func TestError_NilErr(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})
	l.Error(context.Background(), nil, "no error")
	if _, ok := jsonRecord(t, &buf)["err"]; ok {
		t.Fatal("nil err should not add err attr")
	}
}

// trace correlation

func TestOtelHandler_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "pageman"})

	tid, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	sid, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Info(ctx, "traced")
	m := jsonRecord(t, &buf)
	if m["trace_id"] != tid.String() || m["span_id"] != sid.String() {
		t.Fatalf("trace ids = %v/%v", m["trace_id"], m["span_id"])
	}
}
