package events

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/telegram/state"
)

// JoinRequestKeying selects which id keys a chat join request.
type JoinRequestKeying int

const (
	// JoinRequestByRequester keys join requests by the requesting user.
	JoinRequestByRequester JoinRequestKeying = iota
	// JoinRequestByChat keys join requests by the chat being joined.
	JoinRequestByChat
)

// DefaultJoinRequestKeying is used by a zero Classifier.
const DefaultJoinRequestKeying = JoinRequestByRequester

// ParseJoinRequestKeying maps the config values "requester" and "chat".
func ParseJoinRequestKeying(s string) (JoinRequestKeying, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "requester":
		return JoinRequestByRequester, nil
	case "chat":
		return JoinRequestByChat, nil
	}
	return DefaultJoinRequestKeying, fmt.Errorf("events: unknown join request keying %q", s)
}

func (k JoinRequestKeying) String() string {
	if k == JoinRequestByChat {
		return "chat"
	}
	return "requester"
}

// Entry is one event an update fans out to.
type Entry struct {
	Kind    Kind
	Command string
	Payload any
}

// Classification is the result of classifying one update.
type Classification struct {
	Key      state.Key
	Category Category
	Entries  []Entry
}

// Classifier derives keys and event kinds from updates. It holds no mutable state.
type Classifier struct {
	// BotUsername, when set, drops commands addressed to other bots (/start@otherbot).
	BotUsername       string
	JoinRequestKeying JoinRequestKeying
}

// Classify returns the conversation key of upd and the ordered list of events it raises.
// Message updates raise AnyMessage first, then Command or Message.
func (c Classifier) Classify(upd tele.Update) (Classification, error) {
	switch {
	case upd.Message != nil:
		return c.message(upd.Message)
	case upd.EditedMessage != nil:
		key, err := messageKey(upd.EditedMessage)
		if err != nil {
			return Classification{}, err
		}
		return single(key, KindEditedMessage, upd.EditedMessage), nil
	case upd.Query != nil:
		if upd.Query.Sender == nil {
			return Classification{}, malformed(CategoryInlineQuery, "from")
		}
		return single(state.ChatKey(upd.Query.Sender.ID), KindInlineQuery, upd.Query), nil
	case upd.InlineResult != nil:
		if upd.InlineResult.Sender == nil {
			return Classification{}, malformed(CategoryChosenInlineResult, "from")
		}
		return single(state.ChatKey(upd.InlineResult.Sender.ID), KindChosenInlineResult, upd.InlineResult), nil
	case upd.Callback != nil:
		if upd.Callback.Sender == nil {
			return Classification{}, malformed(CategoryCallbackQuery, "from")
		}
		return single(state.ChatKey(upd.Callback.Sender.ID), KindCallbackQuery, upd.Callback), nil
	case upd.ShippingQuery != nil:
		if upd.ShippingQuery.Sender == nil {
			return Classification{}, malformed(CategoryShippingQuery, "from")
		}
		return single(state.ChatKey(upd.ShippingQuery.Sender.ID), KindShippingQuery, upd.ShippingQuery), nil
	case upd.PreCheckoutQuery != nil:
		if upd.PreCheckoutQuery.Sender == nil {
			return Classification{}, malformed(CategoryPreCheckoutQuery, "from")
		}
		return single(state.ChatKey(upd.PreCheckoutQuery.Sender.ID), KindPreCheckoutQuery, upd.PreCheckoutQuery), nil
	case upd.PollAnswer != nil:
		pa := upd.PollAnswer
		switch {
		case pa.Chat != nil:
			return single(state.ChatKey(pa.Chat.ID), KindPollAnswer, pa), nil
		case pa.Sender != nil:
			return single(state.ChatKey(pa.Sender.ID), KindPollAnswer, pa), nil
		}
		return Classification{}, malformed(CategoryPollAnswer, "user")
	case upd.MyChatMember != nil:
		if upd.MyChatMember.Chat == nil {
			return Classification{}, malformed(CategoryChatMemberUpdated, "chat")
		}
		return single(state.ChatKey(upd.MyChatMember.Chat.ID), KindMyChatMember, upd.MyChatMember), nil
	case upd.ChatMember != nil:
		if upd.ChatMember.Chat == nil {
			return Classification{}, malformed(CategoryChatMemberUpdated, "chat")
		}
		return single(state.ChatKey(upd.ChatMember.Chat.ID), KindChatMember, upd.ChatMember), nil
	case upd.ChatJoinRequest != nil:
		return c.joinRequest(upd.ChatJoinRequest)
	}
	return Classification{}, ErrUnsupportedUpdate
}

func (c Classifier) message(msg *tele.Message) (Classification, error) {
	key, err := messageKey(msg)
	if err != nil {
		return Classification{}, err
	}
	out := Classification{
		Key:      key,
		Category: CategoryMessage,
		Entries:  []Entry{{Kind: KindAnyMessage, Payload: msg}},
	}
	cmd, addressee, ok := ParseCommand(msg.Text)
	switch {
	case !ok:
		out.Entries = append(out.Entries, Entry{Kind: KindMessage, Payload: msg})
	case addressee != "" && c.BotUsername != "" && !strings.EqualFold(addressee, strings.TrimPrefix(c.BotUsername, "@")):
		// addressed to another bot in the same chat
	default:
		out.Entries = append(out.Entries, Entry{Kind: KindCommand, Command: cmd, Payload: msg})
	}
	return out, nil
}

// joinRequest requires both the chat and the requester whichever one keys the event;
// handlers approve or decline with the pair.
func (c Classifier) joinRequest(req *tele.ChatJoinRequest) (Classification, error) {
	if req.Chat == nil {
		return Classification{}, malformed(CategoryChatJoinRequest, "chat")
	}
	if req.Sender == nil {
		return Classification{}, malformed(CategoryChatJoinRequest, "from")
	}
	if c.JoinRequestKeying == JoinRequestByChat {
		return single(state.ChatKey(req.Chat.ID), KindChatJoinRequest, req), nil
	}
	return single(state.ChatKey(req.Sender.ID), KindChatJoinRequest, req), nil
}

func messageKey(msg *tele.Message) (state.Key, error) {
	if msg.Chat == nil {
		return state.Key{}, malformed(CategoryMessage, "chat")
	}
	if msg.TopicMessage {
		return state.ThreadKey(msg.Chat.ID, msg.ThreadID), nil
	}
	return state.ChatKey(msg.Chat.ID), nil
}

func single(key state.Key, kind Kind, payload any) Classification {
	return Classification{
		Key:      key,
		Category: kind.Category(),
		Entries:  []Entry{{Kind: kind, Payload: payload}},
	}
}

// ParseCommand splits "/cmd@bot args" into the command and the addressed bot username.
// ok is false when text is not a command.
func ParseCommand(text string) (cmd, addressee string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head := text[1:]
	if i := strings.IndexAny(head, " \t\n"); i >= 0 {
		head = head[:i]
	}
	if i := strings.IndexByte(head, '@'); i >= 0 {
		return head[:i], head[i+1:], true
	}
	return head, "", true
}
