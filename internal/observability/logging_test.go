package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return buf
}

func TestWithSessionID(t *testing.T) {
	ctx := WithSessionID(context.Background(), "abc12345")
	if got := GetContext(ctx).SessionID; got != "abc12345" {
		t.Errorf("SessionID = %q, want abc12345", got)
	}
}

func TestWithTargetKey(t *testing.T) {
	ctx := WithTargetKey(context.Background(), "app|tests")
	if got := GetContext(ctx).TargetKey; got != "app|tests" {
		t.Errorf("TargetKey = %q, want app|tests", got)
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "abc12345")
	ctx = WithTargetKey(ctx, "full_build")
	ctx = WithStage(ctx, "configure")
	ctx = WithTraceID(ctx, "trace-1")

	lc := GetContext(ctx)
	if lc.SessionID != "abc12345" || lc.TargetKey != "full_build" ||
		lc.Stage != "configure" || lc.TraceID != "trace-1" {
		t.Errorf("chained context incomplete: %+v", lc)
	}
}

func TestOverwriteContextValue(t *testing.T) {
	ctx := WithStage(context.Background(), "configure")
	ctx = WithStage(ctx, "build")
	if got := GetContext(ctx).Stage; got != "build" {
		t.Errorf("Stage = %q, want build", got)
	}
}

func TestEmptyContext(t *testing.T) {
	lc := GetContext(context.Background())
	if lc != (LogContext{}) {
		t.Errorf("expected zero LogContext, got %+v", lc)
	}
}

func TestInfoContextCarriesAttrs(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	ctx := WithSessionID(context.Background(), "abc12345")
	InfoContext(ctx, "Build started", slog.Int("jobs", 4))

	out := buf.String()
	if !strings.Contains(out, "session.id=abc12345") {
		t.Errorf("missing session id attr: %s", out)
	}
	if !strings.Contains(out, "jobs=4") {
		t.Errorf("missing explicit attr: %s", out)
	}
}

func TestWarnContextLevel(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	WarnContext(context.Background(), "Build slow")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected WARN level: %s", buf.String())
	}
}

func TestDebugContextFilteredAtInfo(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	DebugContext(context.Background(), "noise")
	if buf.Len() != 0 {
		t.Errorf("debug line should be filtered: %s", buf.String())
	}
}

func TestLogBuilder(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	ctx := WithSessionID(context.Background(), "abc12345")
	NewLogBuilder(ctx).
		With("target", "app").
		With("jobs", 8).
		With("background", true).
		Info("Build session starting")

	out := buf.String()
	for _, want := range []string{"session.id=abc12345", "target=app", "jobs=8", "background=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output: %s", want, out)
		}
	}
}

func TestLogBuilderReuse(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	lb := NewLogBuilder(context.Background()).With("duration_seconds", 12.5)
	lb.Info("first")
	lb.Warn("second")

	out := buf.String()
	if strings.Count(out, "duration_seconds=12.5") != 2 {
		t.Errorf("expected attr on both lines: %s", out)
	}
}
