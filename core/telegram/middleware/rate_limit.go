package middleware

import (
	"context"
	"sync"
	"time"

	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/router"
	"github.com/m3rciful/stater/core/telegram/state"
)

// DefaultRateLimitKeys bounds how many conversations the limiter remembers.
const DefaultRateLimitKeys = 10000

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// MaxKeys caps the remembered conversations; the least recently seen is forgotten
	// first. 0 -> DefaultRateLimitKeys
	MaxKeys int
	// Exclude lists update types ("message", "callback", "inline_query") that bypass limiting.
	Exclude   map[string]struct{}
	OnLimited func(ctx context.Context, upd tele.Update, key state.Key) error
	now       func() time.Time
}

// RateLimitMiddleware returns a middleware that enforces a minimum interval between
// updates of the same conversation. Limited updates are dropped.
func RateLimitMiddleware(opts RateLimitOptions) router.Middleware {
	size := opts.MaxKeys
	if size <= 0 {
		size = DefaultRateLimitKeys
	}
	// size is positive, New cannot fail
	lastSeen, _ := lru.New[state.Key, time.Time](size)
	var lastSeenMu sync.Mutex
	now := opts.now
	if now == nil {
		now = time.Now
	}
	return func(next router.Handler) router.Handler {
		return func(ctx context.Context, upd tele.Update, c events.Classification) error {
			if opts.Interval <= 0 {
				return next(ctx, upd, c)
			}
			if _, skip := opts.Exclude[updateKind(c)]; skip {
				return next(ctx, upd, c)
			}

			ts := now()
			lastSeenMu.Lock()
			if last, ok := lastSeen.Get(c.Key); ok && ts.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				logger.Warn(ctx, "tg", "tg.rate_limit",
					slog.String("key", c.Key.String()),
					slog.Int("update_id", upd.ID),
				)
				if opts.OnLimited != nil {
					_ = opts.OnLimited(ctx, upd, c.Key)
				}
				return nil
			}
			lastSeen.Add(c.Key, ts)
			lastSeenMu.Unlock()
			return next(ctx, upd, c)
		}
	}
}

func updateKind(c events.Classification) string {
	switch c.Category {
	case events.CategoryCallbackQuery:
		return "callback"
	case events.CategoryMessage:
		return "message"
	case events.CategoryInlineQuery:
		return "inline_query"
	}
	return "other"
}
