package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/events"
	tghelpers "github.com/m3rciful/stater/core/telegram/helpers"
	"github.com/m3rciful/stater/core/telegram/router"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	// GC old entries
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware logs a single receipt line per update.
// It deduplicates by update_id so redelivered updates are logged once.
func LoggerMiddleware(next router.Handler) router.Handler {
	return func(ctx context.Context, upd tele.Update, c events.Classification) error {
		if logger.ShouldSample("update.received") && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("rid", logger.RIDFrom(ctx)),
				slog.Int("update_id", upd.ID),
				slog.String("key", c.Key.String()),
				slog.String("kind", entryKinds(c)),
			}
			if chat := tghelpers.ChatOf(upd); chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := tghelpers.SenderOf(upd); user != nil {
				attrs = append(attrs, slog.Int64("user_id", user.ID))
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}

			// Enrich by kind
			switch {
			case upd.Callback != nil:
				key, payload := parseCallback(upd.Callback)
				if key != "" {
					attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				}
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil:
				if t := upd.Message.Text; t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
			}
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)
		}

		return next(ctx, upd, c)
	}
}

func entryKinds(c events.Classification) string {
	names := make([]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		if e.Kind == events.KindCommand {
			names = append(names, "command:"+e.Command)
			continue
		}
		names = append(names, e.Kind.String())
	}
	return strings.Join(names, ",")
}

func parseCallback(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	key := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return key, payload
}
