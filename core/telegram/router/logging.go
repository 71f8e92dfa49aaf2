package router

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"log/slog"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/state"
)

type dispatchSummary struct {
	endpoint Endpoint
	key      state.Key
	state    string
	status   string
	selected int
	invoked  int
	took     time.Duration
	err      error
}

func logDispatchSummary(ctx context.Context, s dispatchSummary) {
	status := s.status
	if status == "" {
		switch {
		case s.err != nil:
			status = "fail"
		case s.selected == 0:
			status = "skip"
		default:
			status = "ok"
		}
	}
	stateName := s.state
	if stateName == "" {
		stateName = "none"
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("kind", s.endpoint.Kind.String()),
	}
	if s.endpoint.Command != "" {
		attrs = append(attrs, slog.String("command", s.endpoint.Command))
	}
	attrs = append(attrs,
		slog.String("key", s.key.String()),
		slog.String("state", stateName),
		slog.Int("handlers", s.selected),
		slog.Int("invoked", s.invoked),
		slog.Int64("duration_ms", logger.RoundMS(s.took).Milliseconds()),
	)
	if s.err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(s.err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(s.err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("fsm"), slog.LevelInfo, "event.handled", attrs...)
}

func logHandlerFailure(ctx context.Context, err error) {
	attrs := []slog.Attr{slog.String("status", "fail")}
	var herr *HandlerError
	if errors.As(err, &herr) {
		attrs = append(attrs,
			slog.String("handler", herr.Handler),
			slog.String("group", herr.Group),
			slog.String("key", herr.Key.String()),
		)
		if herr.Panic != nil {
			attrs = append(attrs, slog.Bool("panic", true))
		}
	}
	attrs = append(attrs,
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", deriveErrorCode(err)),
	)
	logger.LogEvent(ctx, logger.Component("fsm"), slog.LevelError, "handler.failed", attrs...)
}

func logEventDropped(ctx context.Context, ep Endpoint, key state.Key, reason string, err error) {
	attrs := []slog.Attr{
		slog.String("status", "drop"),
		slog.String("reason", reason),
	}
	if ep != (Endpoint{}) {
		attrs = append(attrs, slog.String("kind", ep.String()))
	}
	if key != (state.Key{}) {
		attrs = append(attrs, slog.String("key", key.String()))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("fsm"), slog.LevelWarn, "event.dropped", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		code := strings.TrimSpace(c.Code())
		if code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(strings.ReplaceAll(t.Name(), " ", "_"))
	}
	return "UNKNOWN_ERROR"
}
