package logger

import (
	"context"
	"log/slog"
)

// scope is the logging metadata of one update as it travels from the poller through
// the router into a handler. With* helpers copy it, so parents are never mutated.
type scope struct {
	log *slog.Logger

	rid      string
	traceID  string
	spanID   string
	updateID int
	userID   int64
	chatID   int64
	threadID int

	// conversation key, variant and handler group currently running
	conv    string
	variant string
	group   string
	handler string
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func withScope(ctx context.Context, fn func(*scope)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	s := scopeFrom(ctx)
	fn(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.log = log })
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if l := scopeFrom(ctx).log; l != nil {
		return l
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return withScope(ctx, func(s *scope) { s.rid = rid })
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string { return scopeFrom(ctx).rid }

// WithUpdateMeta attaches common update identifiers to context.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withScope(ctx, func(s *scope) {
		s.updateID = updateID
		s.userID = userID
		s.chatID = chatID
	})
}

// WithConversation records the conversation key an update was routed to.
func WithConversation(ctx context.Context, key string, threadID int) context.Context {
	return withScope(ctx, func(s *scope) {
		s.conv = key
		s.threadID = threadID
	})
}

// ConversationFrom returns the formatted conversation key, or "".
func ConversationFrom(ctx context.Context) string { return scopeFrom(ctx).conv }

// ThreadIDFrom returns the forum topic id of the conversation, or 0.
func ThreadIDFrom(ctx context.Context) int { return scopeFrom(ctx).threadID }

// WithGroup records the handler group being run and the state variant it matched.
func WithGroup(ctx context.Context, group, variant string) context.Context {
	return withScope(ctx, func(s *scope) {
		s.group = group
		s.variant = variant
	})
}

// GroupFrom returns the handler group and state variant recorded by WithGroup.
func GroupFrom(ctx context.Context) (group, variant string) {
	s := scopeFrom(ctx)
	return s.group, s.variant
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withScope(ctx, func(s *scope) { s.handler = handler })
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string { return scopeFrom(ctx).handler }

// WithTrace attaches trace and span identifiers to context. Empty values keep the current ones.
func WithTrace(ctx context.Context, traceID, spanID string) context.Context {
	return withScope(ctx, func(s *scope) {
		if traceID != "" {
			s.traceID = traceID
		}
		if spanID != "" {
			s.spanID = spanID
		}
	})
}

// TraceIDFrom extracts trace id from context.
func TraceIDFrom(ctx context.Context) string { return scopeFrom(ctx).traceID }

// SpanIDFrom extracts span id from context.
func SpanIDFrom(ctx context.Context) string { return scopeFrom(ctx).spanID }

// UserIDFrom extracts Telegram user ID from context.
func UserIDFrom(ctx context.Context) int64 { return scopeFrom(ctx).userID }

// ChatIDFrom extracts chat id from context.
func ChatIDFrom(ctx context.Context) int64 { return scopeFrom(ctx).chatID }

// UpdateIDFrom extracts update identifier from context.
func UpdateIDFrom(ctx context.Context) int { return scopeFrom(ctx).updateID }

// fields lists the scope as log keys, skipping zero values.
func (s scope) fields(put func(key string, val any)) {
	for _, kv := range []struct {
		key string
		val string
	}{
		{"rid", s.rid},
		{"trace_id", s.traceID},
		{"span_id", s.spanID},
		{"conv", s.conv},
		{"variant", s.variant},
		{"group", s.group},
		{"handler", s.handler},
	} {
		if kv.val != "" {
			put(kv.key, kv.val)
		}
	}
	if s.updateID != 0 {
		put("update_id", s.updateID)
	}
	if s.userID != 0 {
		put("user_id", s.userID)
	}
	if s.chatID != 0 {
		put("chat_id", s.chatID)
	}
	if s.threadID != 0 {
		put("thread_id", s.threadID)
	}
}
