package events

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Descriptor names the kind, and for commands the command text, a handler subscribes to.
type Descriptor interface {
	Kind() Kind
	Command() string
}

// Event binds a kind to the payload type P its handlers receive.
type Event[P any] struct {
	kind    Kind
	command string
}

func (e Event[P]) Kind() Kind { return e.kind }

// Command returns the command without the leading slash; empty for other kinds.
func (e Event[P]) Command() string { return e.command }

func (e Event[P]) String() string {
	if e.kind == KindCommand {
		return "command /" + e.command
	}
	return e.kind.String()
}

var (
	Message            = Event[*tele.Message]{kind: KindMessage}
	UnknownCommand     = Event[*tele.Message]{kind: KindUnknownCommand}
	AnyMessage         = Event[*tele.Message]{kind: KindAnyMessage}
	EditedMessage      = Event[*tele.Message]{kind: KindEditedMessage}
	InlineQuery        = Event[*tele.Query]{kind: KindInlineQuery}
	ChosenInlineResult = Event[*tele.InlineResult]{kind: KindChosenInlineResult}
	CallbackQuery      = Event[*tele.Callback]{kind: KindCallbackQuery}
	ShippingQuery      = Event[*tele.ShippingQuery]{kind: KindShippingQuery}
	PreCheckoutQuery   = Event[*tele.PreCheckoutQuery]{kind: KindPreCheckoutQuery}
	PollAnswer         = Event[*tele.PollAnswer]{kind: KindPollAnswer}
	MyChatMember       = Event[*tele.ChatMemberUpdate]{kind: KindMyChatMember}
	ChatMember         = Event[*tele.ChatMemberUpdate]{kind: KindChatMember}
	ChatJoinRequest    = Event[*tele.ChatJoinRequest]{kind: KindChatJoinRequest}
)

// Command is the event of one bot command, given with or without the leading slash.
func Command(cmd string) Event[*tele.Message] {
	return Event[*tele.Message]{kind: KindCommand, command: strings.TrimPrefix(strings.TrimSpace(cmd), "/")}
}
