package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/router"
)

// RecoverMiddleware turns a panic anywhere in the delivery chain into an error so one
// update cannot take the worker down. Handler panics are already caught per group.
func RecoverMiddleware(next router.Handler) router.Handler {
	return func(ctx context.Context, upd tele.Update, c events.Classification) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "tg", "tg.panic",
					slog.Int("update_id", upd.ID),
					slog.String("key", c.Key.String()),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("delivery panic: %v", r)
			}
		}()
		return next(ctx, upd, c)
	}
}
