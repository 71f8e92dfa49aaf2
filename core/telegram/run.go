package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"log/slog"

	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/pool"
	"github.com/m3rciful/stater/core/telegram/router"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// redactToken prevents accidental leakage of bot tokens in logs.
func redactToken(msg string) string {
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

// Preparer classifies updates into runnable deliveries; router.Mux implements it.
type Preparer interface {
	Prepare(upd tele.Update) (router.Delivery, error)
}

// Wiring is what Setup hands back to the runtime.
type Wiring struct {
	Mux Preparer
	// Commands are published with SetCommands when non-empty.
	Commands []tele.Command
	// AllowedUpdates narrows the polled update types.
	AllowedUpdates []string
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config

	// Setup wires handlers once the bot handle exists. Required.
	Setup func(ctx context.Context, bot *tele.Bot) (Wiring, error)

	PoolOptions pool.Options
	Pool        *pool.Pool

	// Offline skips the getMe call; used by tests and dry runs.
	Offline               bool
	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot  *tele.Bot
	Pool *pool.Pool
}

// RunTelegram builds the bot, polls updates and hands each one to the per-key worker pool
// until ctx is done. Queued deliveries finish before it returns.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Setup == nil {
		return fmt.Errorf("telegram: nil setup provided")
	}
	cfg := opts.Config
	timeout := longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)
	client := BuildHTTPClient(cfg.HTTP, timeout)

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Client:  client,
		Offline: opts.Offline,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %s", redactToken(err.Error()))
	}
	buildTook := time.Since(buildStart)

	username := ""
	if bot.Me != nil {
		username = bot.Me.Username
	}
	logger.Info(ctx, "tg", "bot.ready",
		slog.String("status", "ok"),
		slog.String("username", username),
		slog.Duration("duration", logger.RoundMS(buildTook)),
	)

	wiring, err := opts.Setup(ctx, bot)
	if err != nil {
		return fmt.Errorf("telegram: setup failed: %w", err)
	}
	if wiring.Mux == nil {
		return fmt.Errorf("telegram: setup returned no mux")
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		LongPollLimit:          cfg.Telegram.LongPollLimit,
		AllowedUpdates:         wiring.AllowedUpdates,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	// Log adapter configuration (INFO aggregates only)
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Int("allowed_updates", len(wiring.AllowedUpdates)),
		)
	default:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", "polling"),
			slog.Int("timeout_seconds", int(timeout/time.Second)),
			slog.Int("limit", cfg.Telegram.LongPollLimit),
			slog.Int("allowed_updates", len(wiring.AllowedUpdates)),
		)

		if !opts.DisableWebhookCleanup && !opts.Offline {
			if err := deleteWebhook(ctx, client, cfg.Telegram.Token, false); err != nil {
				logger.Warn(ctx, "tg", "delete_webhook",
					slog.String("status", "fail"),
					slog.String("err", logger.SanitizeLimit(redactToken(err.Error()), 256)),
				)
			} else {
				logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
			}
		}
	}

	if len(wiring.Commands) > 0 && !opts.Offline {
		if err := bot.SetCommands(wiring.Commands); err != nil {
			logger.Error(ctx, "tg", "register.commands.set_failed",
				slog.String("err", logger.SanitizeLimit(redactToken(err.Error()), 256)),
			)
		}
	}

	workers := opts.Pool
	ownPool := workers == nil
	if ownPool {
		workers = pool.New(opts.PoolOptions)
	}
	rt := Runtime{Bot: bot, Pool: workers}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			if ownPool {
				workers.Close()
			}
			return err
		}
	}

	runErr := pump(ctx, bot, poller, wiring.Mux, workers)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	if ownPool {
		workers.Close()
	}

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// pump drives the poller and submits every prepared update to the pool. It keeps draining
// the poller after ctx is done so the poller can observe the stop signal. Updates the
// poller hands over while stopping are still submitted: their offset is already confirmed
// and Telegram will not send them again.
func pump(ctx context.Context, bot *tele.Bot, poller tele.Poller, mux Preparer, workers *pool.Pool) error {
	updates := make(chan tele.Update, 100)
	stop := make(chan struct{})
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Poll(bot, updates, stop)
	}()

	runCtx := context.WithoutCancel(ctx)
	submit := func(upd tele.Update) {
		d, err := mux.Prepare(upd)
		if err != nil {
			return
		}
		if err := workers.Submit(runCtx, d.Key, "update", d.Run); err != nil {
			logger.Error(ctx, "tg", "update.submit",
				slog.String("status", "fail"),
				slog.Int("update_id", upd.ID),
				slog.String("key", d.Key.String()),
				slog.String("err", err.Error()),
			)
		}
	}

	done := ctx.Done()
	stopping := false
	for {
		select {
		case <-done:
			done = nil
			stopping = true
			go func() {
				select {
				case stop <- struct{}{}:
				case <-pollDone:
				}
			}()
		case upd := <-updates:
			submit(upd)
		case <-pollDone:
			for drained := false; !drained; {
				select {
				case upd := <-updates:
					submit(upd)
				default:
					drained = true
				}
			}
			if stopping {
				return ctx.Err()
			}
			return errors.New("telegram: poller stopped")
		}
	}
}

func deleteWebhook(ctx context.Context, client *http.Client, token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
