package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON   logFormat = "json"
	formatKV     logFormat = "kv"
	formatPretty logFormat = "pretty"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

var errNoWriter = errors.New("logger: writer not initialized")

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as one flat line of fields. Groups become dotted key
// prefixes, durations become *_ms integers, and the update scope carried in ctx fills in
// correlation fields the call site did not set.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle formats the slog.Record and writes it using the configured writer.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errNoWriter
	}
	line, err := h.render(ctx, r)
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(line)
}

// render builds the newline terminated line for r.
func (h *structuredHandler) render(ctx context.Context, r slog.Record) ([]byte, error) {
	fields := h.fields(ctx, r)
	line, err := h.encode(fields)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	return line, nil
}

func (h *structuredHandler) fields(ctx context.Context, r slog.Record) map[string]any {
	fields := make(map[string]any, 16+r.NumAttrs())
	ts := r.Time.UTC()
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.attrs {
		h.collect(fields, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(fields, a)
		return true
	})
	addContextFields(ctx, fields)

	h.compactRID(fields)
	setDefault(fields, "event", r.Message, "unknown")
	setDefault(fields, "component", "app")

	sanitizeEnumerations(fields)
	pruneEmpty(fields)
	return fields
}

// compactRID shortens the rid; JSON output also keeps the original as rid_full.
func (h *structuredHandler) compactRID(fields map[string]any) {
	rid, ok := stringField(fields, "rid")
	if !ok || rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if _, seen := fields["rid_full"]; !seen && h.cfg.format == formatJSON {
		fields["rid_full"] = rid
	}
	fields["rid"] = compact
}

// setDefault fills key with the first non-empty candidate when the record left it empty.
func setDefault(fields map[string]any, key string, candidates ...string) {
	if v, ok := stringField(fields, key); ok && v != "" {
		return
	}
	for _, c := range candidates {
		if c != "" {
			fields[key] = c
			return
		}
	}
}

// WithAttrs returns a shallow copy of the handler enriched with attrs.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a shallow copy of the handler with an additional group prefix.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *structuredHandler) collect(fields map[string]any, attr slog.Attr) {
	flattenAttr(strings.Join(h.groups, "."), attr, func(k string, v slog.Value) {
		if key, val, ok := normalizeAttr(k, v); ok {
			fields[key] = val
		}
	})
}

func (h *structuredHandler) encode(fields map[string]any) ([]byte, error) {
	switch h.cfg.format {
	case formatJSON:
		return formatJSONLine(fields, h.cfg.keyOrder)
	case formatPretty:
		return formatPrettyLine(fields, h.cfg.keyOrder), nil
	default:
		return formatKVLine(fields, h.cfg.keyOrder), nil
	}
}

// flattenAttr walks group attrs depth first and reports leaves with dotted keys.
func flattenAttr(prefix string, attr slog.Attr, fn func(string, slog.Value)) {
	key := attr.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	val := attr.Value.Resolve()
	if val.Kind() != slog.KindGroup {
		fn(key, val)
		return
	}
	for _, child := range val.Group() {
		flattenAttr(key, child, fn)
	}
}

// durationField renames key to its *_ms form and converts d to whole milliseconds.
func durationField(key string, d time.Duration) (string, int64) {
	ms := RoundMS(d).Milliseconds()
	switch {
	case key == "duration":
		return "duration_ms", ms
	case strings.HasSuffix(key, "_duration"):
		return key + "_ms", ms
	case strings.HasSuffix(key, "_ms"):
		return key, ms
	}
	return key + "_ms", ms
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	if key == "" {
		return "", nil, false
	}
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u > math.MaxInt64 {
			return key, u, true
		}
		return key, int64(val.Uint64()), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		k, ms := durationField(key, val.Duration())
		return k, ms, true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		k, ms := durationField(key, x)
		return k, ms, true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// addContextFields copies the update scope from ctx without overriding explicit attrs.
func addContextFields(ctx context.Context, fields map[string]any) {
	scopeFrom(ctx).fields(func(key string, val any) {
		if _, ok := fields[key]; !ok {
			fields[key] = val
		}
	})
}
