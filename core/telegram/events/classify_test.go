package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/telegram/state"
)

func kinds(c Classification) []Kind {
	out := make([]Kind, 0, len(c.Entries))
	for _, e := range c.Entries {
		out = append(out, e.Kind)
	}
	return out
}

func textMessage(chatID int64, text string) *tele.Message {
	return &tele.Message{
		Chat:   &tele.Chat{ID: chatID},
		Sender: &tele.User{ID: 500},
		Text:   text,
	}
}

func TestClassifyMessageFanOut(t *testing.T) {
	c := Classifier{BotUsername: "stater_bot"}

	got, err := c.Classify(tele.Update{Message: textMessage(42, "hello")})
	require.NoError(t, err)
	assert.Equal(t, state.ChatKey(42), got.Key)
	assert.Equal(t, CategoryMessage, got.Category)
	assert.Equal(t, []Kind{KindAnyMessage, KindMessage}, kinds(got))

	got, err = c.Classify(tele.Update{Message: textMessage(42, "/start ref")})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindAnyMessage, KindCommand}, kinds(got))
	assert.Equal(t, "start", got.Entries[1].Command)

	got, err = c.Classify(tele.Update{Message: textMessage(42, "/start@Stater_Bot")})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindAnyMessage, KindCommand}, kinds(got))

	got, err = c.Classify(tele.Update{Message: textMessage(42, "/start@other_bot")})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindAnyMessage}, kinds(got))
}

func TestClassifyPayloadIsTheMessage(t *testing.T) {
	msg := textMessage(1, "/help")
	got, err := Classifier{}.Classify(tele.Update{Message: msg})
	require.NoError(t, err)
	for _, e := range got.Entries {
		assert.Same(t, msg, e.Payload)
	}
}

func TestClassifyTopicMessageKeyedByThread(t *testing.T) {
	msg := textMessage(-100, "hi")
	msg.TopicMessage = true
	msg.ThreadID = 17

	got, err := Classifier{}.Classify(tele.Update{Message: msg})
	require.NoError(t, err)
	assert.Equal(t, state.ThreadKey(-100, 17), got.Key)

	got, err = Classifier{}.Classify(tele.Update{EditedMessage: msg})
	require.NoError(t, err)
	assert.Equal(t, state.ThreadKey(-100, 17), got.Key)
	assert.Equal(t, []Kind{KindEditedMessage}, kinds(got))
}

func TestClassifyIsPure(t *testing.T) {
	upd := tele.Update{Callback: &tele.Callback{Sender: &tele.User{ID: 9}, Data: "x"}}
	c := Classifier{}
	first, err := c.Classify(upd)
	require.NoError(t, err)
	second, err := c.Classify(upd)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, state.ChatKey(9), first.Key)
}

func TestClassifyUserKeyedKinds(t *testing.T) {
	user := &tele.User{ID: 77}
	cases := []struct {
		name string
		upd  tele.Update
		kind Kind
	}{
		{"inline", tele.Update{Query: &tele.Query{Sender: user}}, KindInlineQuery},
		{"chosen", tele.Update{InlineResult: &tele.InlineResult{Sender: user}}, KindChosenInlineResult},
		{"callback", tele.Update{Callback: &tele.Callback{Sender: user}}, KindCallbackQuery},
		{"shipping", tele.Update{ShippingQuery: &tele.ShippingQuery{Sender: user}}, KindShippingQuery},
		{"checkout", tele.Update{PreCheckoutQuery: &tele.PreCheckoutQuery{Sender: user}}, KindPreCheckoutQuery},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Classifier{}.Classify(tc.upd)
			require.NoError(t, err)
			assert.Equal(t, state.ChatKey(77), got.Key)
			assert.Equal(t, []Kind{tc.kind}, kinds(got))
		})
	}
}

func TestClassifyPollAnswerPrefersVoterChat(t *testing.T) {
	got, err := Classifier{}.Classify(tele.Update{PollAnswer: &tele.PollAnswer{
		Sender: &tele.User{ID: 3},
		Chat:   &tele.Chat{ID: -55},
	}})
	require.NoError(t, err)
	assert.Equal(t, state.ChatKey(-55), got.Key)

	got, err = Classifier{}.Classify(tele.Update{PollAnswer: &tele.PollAnswer{Sender: &tele.User{ID: 3}}})
	require.NoError(t, err)
	assert.Equal(t, state.ChatKey(3), got.Key)
}

func TestClassifyChatMemberUpdates(t *testing.T) {
	upd := &tele.ChatMemberUpdate{Chat: &tele.Chat{ID: -7}, Sender: &tele.User{ID: 1}}

	got, err := Classifier{}.Classify(tele.Update{MyChatMember: upd})
	require.NoError(t, err)
	assert.Equal(t, state.ChatKey(-7), got.Key)
	assert.Equal(t, []Kind{KindMyChatMember}, kinds(got))

	got, err = Classifier{}.Classify(tele.Update{ChatMember: upd})
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindChatMember}, kinds(got))
}

func TestClassifyJoinRequestKeying(t *testing.T) {
	upd := tele.Update{ChatJoinRequest: &tele.ChatJoinRequest{
		Chat:   &tele.Chat{ID: -1001},
		Sender: &tele.User{ID: 808},
	}}

	got, err := Classifier{}.Classify(upd)
	require.NoError(t, err)
	assert.Equal(t, state.ChatKey(808), got.Key)

	got, err = Classifier{JoinRequestKeying: JoinRequestByChat}.Classify(upd)
	require.NoError(t, err)
	assert.Equal(t, state.ChatKey(-1001), got.Key)
}

func TestClassifyMalformed(t *testing.T) {
	byChat := Classifier{JoinRequestKeying: JoinRequestByChat}
	cases := []struct {
		name  string
		cl    Classifier
		upd   tele.Update
		field string
	}{
		{"message", Classifier{}, tele.Update{Message: &tele.Message{Text: "x"}}, "chat"},
		{"callback", Classifier{}, tele.Update{Callback: &tele.Callback{Data: "x"}}, "from"},
		{"poll", Classifier{}, tele.Update{PollAnswer: &tele.PollAnswer{}}, "user"},
		{"member", Classifier{}, tele.Update{ChatMember: &tele.ChatMemberUpdate{}}, "chat"},
		{"join without sender", Classifier{}, tele.Update{ChatJoinRequest: &tele.ChatJoinRequest{Chat: &tele.Chat{ID: 1}}}, "from"},
		{"join without chat", Classifier{}, tele.Update{ChatJoinRequest: &tele.ChatJoinRequest{Sender: &tele.User{ID: 7}}}, "chat"},
		{"join by chat without sender", byChat, tele.Update{ChatJoinRequest: &tele.ChatJoinRequest{Chat: &tele.Chat{ID: 1}}}, "from"},
		{"join by chat without chat", byChat, tele.Update{ChatJoinRequest: &tele.ChatJoinRequest{Sender: &tele.User{ID: 7}}}, "chat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cl.Classify(tc.upd)
			require.ErrorIs(t, err, ErrMalformedEvent)
			var me *MalformedError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tc.field, me.Field)
		})
	}

	_, err := Classifier{}.Classify(tele.Update{ID: 1})
	assert.ErrorIs(t, err, ErrUnsupportedUpdate)
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text, cmd, to string
		ok            bool
	}{
		{"/start", "start", "", true},
		{"/start payload", "start", "", true},
		{"/start@bot payload", "start", "bot", true},
		{"/", "", "", true},
		{"start", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		cmd, to, ok := ParseCommand(tc.text)
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.cmd, cmd, tc.text)
		assert.Equal(t, tc.to, to, tc.text)
	}
}

func TestParseJoinRequestKeying(t *testing.T) {
	k, err := ParseJoinRequestKeying("Chat")
	require.NoError(t, err)
	assert.Equal(t, JoinRequestByChat, k)

	k, err = ParseJoinRequestKeying("")
	require.NoError(t, err)
	assert.Equal(t, DefaultJoinRequestKeying, k)

	_, err = ParseJoinRequestKeying("thread")
	assert.Error(t, err)
}

func TestParseJoinRequestKeyingMatchesConfig(t *testing.T) {
	for _, v := range []string{"", "requester", "chat", "user", "Chat "} {
		cfg := &coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "123:abc"},
			Stater:   coreconfig.StaterConfig{JoinRequestKey: v},
		}
		cfgErr := coreconfig.Normalize(cfg)
		_, parseErr := ParseJoinRequestKeying(v)
		assert.Equal(t, cfgErr == nil, parseErr == nil, "value %q", v)
		if cfgErr == nil {
			_, err := ParseJoinRequestKeying(cfg.Stater.JoinRequestKey)
			assert.NoError(t, err, "normalized %q", cfg.Stater.JoinRequestKey)
		}
	}
}

func TestEventDescriptors(t *testing.T) {
	assert.Equal(t, KindCommand, Command("/start").Kind())
	assert.Equal(t, "start", Command("/start").Command())
	assert.Equal(t, "command /start", Command("start").String())
	assert.Equal(t, CategoryChatMemberUpdated, MyChatMember.Kind().Category())
	assert.Equal(t, "message", KindAnyMessage.UpdateType())
	assert.Equal(t, "callback_query", KindCallbackQuery.UpdateType())
	assert.Len(t, Kinds(), 14)
}
