package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/fatih/color"

	coreconfig "github.com/m3rciful/stater/core/config"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	if len(tokens) < 6 {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	log := slog.New(handler).With("component", "service.test")
	LogEvent(ctx, log, slog.LevelError, "service.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "TEST_FAIL"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.test"`, `"event":"service.failed"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	rawRID := "123:456:789"
	ctx := WithRID(Background(), rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	rawRID := "12:34:56"
	ctx := WithRID(Background(), rawRID)
	log := slog.New(handler).With("component", "app")
	LogEvent(ctx, log, slog.LevelInfo, "rid.test",
		slog.String("status", "ok"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano to be present in JSON output, got %s", line)
	}
}

func TestStructuredHandlerPretty(t *testing.T) {
	color.NoColor = true
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   formatPretty,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithTrace(Background(), "trace-1", "")
	log := slog.New(handler).With("component", "fsm")
	LogEvent(ctx, log, slog.LevelDebug, "event.handled",
		slog.String("status", "ok"),
		slog.String("kind", "command"),
	)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	tokens := strings.Fields(line)
	if len(tokens) < 6 {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	if tokens[1] != "DEBUG" || tokens[2] != "fsm" || tokens[3] != "event.handled" {
		t.Fatalf("unexpected prefix: %s", line)
	}
	if !strings.Contains(line, "status=ok") || !strings.Contains(line, "trace_id=trace-1") {
		t.Fatalf("missing fields in %s", line)
	}
	if strings.Contains(line, "ts_unix_nano") {
		t.Fatalf("pretty output should omit ts_unix_nano: %s", line)
	}
}

func TestSelectFormat(t *testing.T) {
	cfg := &coreconfig.Config{}
	if got := selectFormat(cfg); got != formatJSON {
		t.Fatalf("default format = %s", got)
	}
	cfg.Logging.Profile = "dev"
	if got := selectFormat(cfg); got != formatPretty {
		t.Fatalf("dev profile format = %s", got)
	}
	cfg.Logging.Format = "kv"
	if got := selectFormat(cfg); got != formatKV {
		t.Fatalf("explicit kv format = %s", got)
	}
}

func TestStructuredHandlerConversationScope(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithConversation(Background(), "{chat=5, thread=3}", 3)
	ctx = WithGroup(ctx, "state:askName", "askName")
	ctx = WithHandler(ctx, "takeName")
	log := slog.New(handler).With("component", "fsm")
	LogEvent(ctx, log, slog.LevelInfo, "handler.failed", slog.String("group", "explicit"))
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := buf.String()
	for _, want := range []string{"thread_id=3", "variant=askName", "handler=takeName", "group=explicit"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %s", want, line)
		}
	}
	if strings.Contains(line, "state:askName") {
		t.Fatalf("explicit attr should win over context group: %s", line)
	}
}

func TestScopeCopiesOnWrite(t *testing.T) {
	parent := WithRID(Background(), "parent")
	child := WithHandler(WithRID(parent, "child"), "h")
	if RIDFrom(parent) != "parent" || HandlerFrom(parent) != "" {
		t.Fatalf("parent scope mutated: rid=%s handler=%s", RIDFrom(parent), HandlerFrom(parent))
	}
	if RIDFrom(child) != "child" || HandlerFrom(child) != "h" {
		t.Fatalf("child scope = %s/%s", RIDFrom(child), HandlerFrom(child))
	}
	if got := WithTrace(WithTrace(Background(), "t1", "s1"), "", "s2"); TraceIDFrom(got) != "t1" || SpanIDFrom(got) != "s2" {
		t.Fatalf("trace = %s/%s", TraceIDFrom(got), SpanIDFrom(got))
	}
	if FromContext(nil) != L {
		t.Fatal("nil context should yield base logger")
	}
}

func TestEventSamplerPerEvent(t *testing.T) {
	s := newEventSampler(1, 3)
	var passed []bool
	for i := 0; i < 4; i++ {
		passed = append(passed, s.Allow("chatty"))
	}
	want := []bool{true, false, false, true}
	for i := range want {
		if passed[i] != want[i] {
			t.Fatalf("chatty[%d] = %v, want %v", i, passed[i], want[i])
		}
	}
	if !s.Allow("rare") {
		t.Fatal("first occurrence of a new event should pass")
	}

	s.Set(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow("chatty") {
			t.Fatal("disabled sampler should pass everything")
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/10": {1, 10},
		" 20 ": {1, 20},
		"0":    {0, 0},
		"x/2":  {0, 0},
		"":     {0, 0},
	}
	for spec, want := range cases {
		n, d := parseRatioSpec(spec)
		if n != want[0] || d != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", spec, n, d, want[0], want[1])
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("héllo\x00​world\n", 7); got != "héllowo" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("ok", 10); got != "ok" {
		t.Fatalf("short input changed: %q", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("zero limit = %q", got)
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID(BuildRID(36, -1, 35)); got != "10.-1.z" {
		t.Fatalf("CompactRID = %s", got)
	}
	if got := CompactRID("not-a-rid"); got != "not-a-rid" {
		t.Fatalf("foreign rid rewritten: %s", got)
	}
}

func TestAsyncWriterFlushCoversQueuedLines(t *testing.T) {
	var a, b bytes.Buffer
	aw := newAsyncWriter([]io.Writer{&a, &b}, 16)
	for i := 0; i < 100; i++ {
		if err := aw.Write([]byte("line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := strings.Count(a.String(), "line\n"); got != 100 {
		t.Fatalf("sink a has %d lines", got)
	}
	if a.String() != b.String() {
		t.Fatal("sinks diverged")
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSelectLevelTrace(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Logging.Level = "trace"
	if got := selectLevel(cfg); got != slog.LevelDebug {
		t.Fatalf("trace level = %v", got)
	}
	if !detectTraceFlag(cfg) {
		t.Fatal("trace level should force full debug output")
	}
	cfg.Logging.Level = "bogus"
	if got := selectLevel(cfg); got != slog.LevelInfo {
		t.Fatalf("unknown level = %v", got)
	}
}

func TestStructuredHandlerFieldShapes(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:  slog.LevelInfo,
		writer: aw,
		format: formatKV,
	})
	log := slog.New(handler).With("component", "fsm")
	LogEvent(Background(), log, slog.LevelInfo, "state.saved",
		slog.Group("store",
			slog.Duration("duration", 1500*time.Microsecond),
			slog.Any("lock_duration", 3*time.Millisecond),
			slog.Duration("wait_ms", 2*time.Millisecond),
			slog.Group("backend", slog.String("name", "postgres")),
		),
		slog.String("cache", "bogus"),
		slog.String("status", "weird"),
	)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := buf.String()
	for _, want := range []string{
		"store.duration_ms=2",
		"store.lock_duration_ms=3",
		"store.wait_ms=2",
		"store.backend.name=postgres",
		"status=weird",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %s", want, line)
		}
	}
	if strings.Contains(line, "cache=") {
		t.Fatalf("unknown cache value should be dropped: %s", line)
	}
}
