package helpers

import tele "gopkg.in/telebot.v4"

// SenderOf returns the user who caused upd, or nil when the update carries none.
func SenderOf(upd tele.Update) *tele.User {
	switch {
	case upd.Message != nil:
		return upd.Message.Sender
	case upd.EditedMessage != nil:
		return upd.EditedMessage.Sender
	case upd.Callback != nil:
		return upd.Callback.Sender
	case upd.Query != nil:
		return upd.Query.Sender
	case upd.InlineResult != nil:
		return upd.InlineResult.Sender
	case upd.ShippingQuery != nil:
		return upd.ShippingQuery.Sender
	case upd.PreCheckoutQuery != nil:
		return upd.PreCheckoutQuery.Sender
	case upd.PollAnswer != nil:
		return upd.PollAnswer.Sender
	case upd.MyChatMember != nil:
		return upd.MyChatMember.Sender
	case upd.ChatMember != nil:
		return upd.ChatMember.Sender
	case upd.ChatJoinRequest != nil:
		return upd.ChatJoinRequest.Sender
	}
	return nil
}

// ChatOf returns the chat upd happened in, or nil for chat-less updates.
func ChatOf(upd tele.Update) *tele.Chat {
	switch {
	case upd.Message != nil:
		return upd.Message.Chat
	case upd.EditedMessage != nil:
		return upd.EditedMessage.Chat
	case upd.Callback != nil && upd.Callback.Message != nil:
		return upd.Callback.Message.Chat
	case upd.PollAnswer != nil:
		return upd.PollAnswer.Chat
	case upd.MyChatMember != nil:
		return upd.MyChatMember.Chat
	case upd.ChatMember != nil:
		return upd.ChatMember.Chat
	case upd.ChatJoinRequest != nil:
		return upd.ChatJoinRequest.Chat
	}
	return nil
}
