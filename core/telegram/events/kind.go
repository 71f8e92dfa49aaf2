// Package events turns Telegram updates into the event kinds handlers subscribe to and
// derives the conversation key each update belongs to.
package events

import "fmt"

// Kind is an event a handler can subscribe to.
type Kind int

const (
	KindMessage Kind = iota
	KindCommand
	KindUnknownCommand
	KindAnyMessage
	KindEditedMessage
	KindInlineQuery
	KindChosenInlineResult
	KindCallbackQuery
	KindShippingQuery
	KindPreCheckoutQuery
	KindPollAnswer
	KindMyChatMember
	KindChatMember
	KindChatJoinRequest
)

// Category groups kinds sharing one payload type and one update field.
type Category int

const (
	CategoryMessage Category = iota
	CategoryInlineQuery
	CategoryChosenInlineResult
	CategoryCallbackQuery
	CategoryShippingQuery
	CategoryPreCheckoutQuery
	CategoryPollAnswer
	CategoryChatMemberUpdated
	CategoryChatJoinRequest
)

var kindNames = [...]string{
	KindMessage:            "message",
	KindCommand:            "command",
	KindUnknownCommand:     "unknown_command",
	KindAnyMessage:         "any_message",
	KindEditedMessage:      "edited_message",
	KindInlineQuery:        "inline_query",
	KindChosenInlineResult: "chosen_inline_result",
	KindCallbackQuery:      "callback_query",
	KindShippingQuery:      "shipping_query",
	KindPreCheckoutQuery:   "pre_checkout_query",
	KindPollAnswer:         "poll_answer",
	KindMyChatMember:       "my_chat_member",
	KindChatMember:         "chat_member",
	KindChatJoinRequest:    "chat_join_request",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Category returns the payload category of k.
func (k Kind) Category() Category {
	switch k {
	case KindMessage, KindCommand, KindUnknownCommand, KindAnyMessage, KindEditedMessage:
		return CategoryMessage
	case KindInlineQuery:
		return CategoryInlineQuery
	case KindChosenInlineResult:
		return CategoryChosenInlineResult
	case KindCallbackQuery:
		return CategoryCallbackQuery
	case KindShippingQuery:
		return CategoryShippingQuery
	case KindPreCheckoutQuery:
		return CategoryPreCheckoutQuery
	case KindPollAnswer:
		return CategoryPollAnswer
	case KindMyChatMember, KindChatMember:
		return CategoryChatMemberUpdated
	default:
		return CategoryChatJoinRequest
	}
}

// UpdateType is the Bot API allowed_updates name carrying k.
func (k Kind) UpdateType() string {
	switch k {
	case KindMessage, KindCommand, KindUnknownCommand, KindAnyMessage:
		return "message"
	default:
		return k.String()
	}
}

func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "message"
	case CategoryInlineQuery:
		return "inline_query"
	case CategoryChosenInlineResult:
		return "chosen_inline_result"
	case CategoryCallbackQuery:
		return "callback_query"
	case CategoryShippingQuery:
		return "shipping_query"
	case CategoryPreCheckoutQuery:
		return "pre_checkout_query"
	case CategoryPollAnswer:
		return "poll_answer"
	case CategoryChatMemberUpdated:
		return "chat_member_updated"
	case CategoryChatJoinRequest:
		return "chat_join_request"
	}
	return fmt.Sprintf("category(%d)", int(c))
}
