package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/middleware"
	"github.com/m3rciful/stater/core/telegram/router"
	"github.com/m3rciful/stater/core/telegram/state"
)

// Sender is the slice of the Bot API the onboarding handlers call. *tele.Bot satisfies it.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
	ApproveJoinRequest(chat tele.Recipient, user *tele.User) error
}

// onboarding is the conversation state of the demo flow.
type onboarding interface{ onboardingStep() }

type askName struct{}

type askAge struct {
	Name string `json:"name"`
}

type confirming struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

type registered struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func (askName) onboardingStep()    {}
func (askAge) onboardingStep()     {}
func (confirming) onboardingStep() {}
func (registered) onboardingStep() {}

var onboardingSchema = state.MustSchema[onboarding](
	state.VariantOf[askName](),
	state.VariantOf[askAge](),
	state.VariantOf[confirming](),
	state.VariantOf[registered](),
)

const (
	dataConfirm = "confirm"
	dataRestart = "restart"
)

type deps struct {
	metrics *middleware.Metrics
	started time.Time
	now     func() time.Time
}

type registry = router.Registry[onboarding, Sender, deps]

func registerHandlers(reg *registry) error {
	router.OnNoState(reg, events.Command("start"), startFresh, router.Describe("Start onboarding"))
	router.OnState[registered](reg, events.Command("start"), startRegistered)
	router.OnState[askAge](reg, events.Command("start"), startMidway)
	router.OnAnyState(reg, events.Command("cancel"), cancel, router.Describe("Forget the current conversation"))
	router.OnAnyState(reg, events.Command("stats"), stats, router.Describe("Delivery counters"), router.Hidden())

	router.OnState[askName](reg, events.Message, takeName)
	router.OnState[askAge](reg, events.Message, takeAge)
	router.OnState[confirming](reg, events.CallbackQuery, confirm)
	router.OnNoState(reg, events.CallbackQuery, staleButton)

	router.OnAnyState(reg, events.UnknownCommand, unknownCommand)
	router.OnAnyState(reg, events.AnyMessage, traceMessage, router.Name("trace"))
	router.OnAnyState(reg, events.MyChatMember, membership)
	router.OnNoState(reg, events.ChatJoinRequest, approveJoin)
	return reg.Err()
}

func reply(api Sender, msg *tele.Message, text string, extra ...interface{}) error {
	opts := &tele.SendOptions{}
	if msg.TopicMessage {
		opts.ThreadID = msg.ThreadID
	}
	_, err := api.Send(msg.Chat, text, append([]interface{}{opts}, extra...)...)
	return err
}

func startFresh(ctx context.Context, msg *tele.Message, api Sender, proxy *state.Proxy[onboarding]) error {
	if _, err := proxy.Put(ctx, askName{}); err != nil {
		return err
	}
	return reply(api, msg, "Hi! What's your name?")
}

func startRegistered(_ context.Context, cur registered, msg *tele.Message, api Sender) error {
	return reply(api, msg, fmt.Sprintf("You are already registered as %s (%d). Send /cancel to start over.", cur.Name, cur.Age))
}

func startMidway(_ context.Context, cur askAge, msg *tele.Message, api Sender) error {
	return reply(api, msg, fmt.Sprintf("Still waiting for your age, %s.", cur.Name))
}

func cancel(ctx context.Context, msg *tele.Message, api Sender, proxy *state.Proxy[onboarding]) error {
	if err := proxy.Erase(ctx); err != nil {
		return err
	}
	return reply(api, msg, "Cancelled. Send /start to begin again.")
}

func takeName(ctx context.Context, msg *tele.Message, api Sender, proxy *state.Proxy[onboarding]) error {
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		return reply(api, msg, "Please send your name as text.")
	}
	if _, err := proxy.Put(ctx, askAge{Name: name}); err != nil {
		return err
	}
	return reply(api, msg, fmt.Sprintf("Nice to meet you, %s. How old are you?", name))
}

func takeAge(ctx context.Context, cur askAge, msg *tele.Message, api Sender, proxy *state.Proxy[onboarding]) error {
	age, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil || age <= 0 || age > 150 {
		return reply(api, msg, "Age must be a number between 1 and 150.")
	}
	if _, err := proxy.Put(ctx, confirming{Name: cur.Name, Age: age}); err != nil {
		return err
	}
	markup := &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
		{Text: "Confirm", Data: dataConfirm},
		{Text: "Start over", Data: dataRestart},
	}}}
	return reply(api, msg, fmt.Sprintf("%s, %d. Is that right?", cur.Name, age), markup)
}

func confirm(ctx context.Context, cur confirming, cb *tele.Callback, api Sender, proxy *state.Proxy[onboarding]) error {
	var next onboarding
	var text string
	switch strings.TrimSpace(cb.Data) {
	case dataConfirm:
		next, text = registered(cur), "Registered. Welcome aboard!"
	case dataRestart:
		next, text = askName{}, "OK, what's your name?"
	default:
		return api.Respond(cb, &tele.CallbackResponse{Text: "Unknown action"})
	}
	if _, err := proxy.Put(ctx, next); err != nil {
		return err
	}
	if err := api.Respond(cb); err != nil {
		return err
	}
	_, err := api.Send(cb.Sender, text)
	return err
}

func staleButton(_ context.Context, cb *tele.Callback, api Sender) error {
	return api.Respond(cb, &tele.CallbackResponse{Text: "This button has expired"})
}

func stats(_ context.Context, msg *tele.Message, api Sender, d deps) error {
	snap := d.metrics.Snapshot()
	kinds := make([]string, 0, len(snap.ByKind))
	for k := range snap.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var b strings.Builder
	fmt.Fprintf(&b, "uptime %s\nupdates %d, failed %d", d.now().Sub(d.started).Round(time.Second), snap.Updates, snap.Failed)
	for _, k := range kinds {
		fmt.Fprintf(&b, "\n%s: %d", k, snap.ByKind[k])
	}
	return reply(api, msg, b.String())
}

func unknownCommand(_ context.Context, msg *tele.Message, api Sender) error {
	return reply(api, msg, "Unknown command. Try /start.")
}

func traceMessage(ctx context.Context, msg *tele.Message) error {
	logger.Debug(ctx, "app", "demo.message",
		slog.Int("len", len(msg.Text)),
		slog.Bool("topic", msg.TopicMessage),
	)
	return nil
}

func membership(ctx context.Context, upd *tele.ChatMemberUpdate) error {
	status := ""
	if upd.NewChatMember != nil {
		status = string(upd.NewChatMember.Role)
	}
	logger.Info(ctx, "app", "demo.membership",
		slog.Int64("chat_id", upd.Chat.ID),
		slog.String("status", status),
	)
	return nil
}

func approveJoin(ctx context.Context, req *tele.ChatJoinRequest, api Sender) error {
	if req.Sender == nil {
		return nil
	}
	logger.Info(ctx, "app", "demo.join_approved", slog.Int64("user_id", req.Sender.ID))
	return api.ApproveJoinRequest(req.Chat, req.Sender)
}
