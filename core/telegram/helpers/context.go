package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/state"
)

// BuildContext enriches ctx with the RID, update metadata and conversation key for logging.
// An RID already present in ctx is kept.
func BuildContext(ctx context.Context, upd tele.Update, key state.Key) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	var userID int64
	if user := SenderOf(upd); user != nil {
		userID = user.ID
	}
	chatID := key.ChatID

	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(upd.ID, chatID, userID))
	}
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithConversation(ctx, key.String(), key.ThreadID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	return ctx
}
