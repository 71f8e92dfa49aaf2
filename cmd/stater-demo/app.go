package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/stater/core/bootstrap"
	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/logger"
	coretelegram "github.com/m3rciful/stater/core/telegram"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/middleware"
	"github.com/m3rciful/stater/core/telegram/pool"
	"github.com/m3rciful/stater/core/telegram/router"
	"github.com/m3rciful/stater/core/telegram/state"
	"github.com/m3rciful/stater/core/telegram/state/sqlstore"
)

type app struct {
	cfg     *coreconfig.Config
	res     *bootstrap.Result
	store   state.Store[onboarding]
	metrics *middleware.Metrics
	deps    deps
}

func newApp(cfg *coreconfig.Config, opts bootstrap.Options) (*app, error) {
	opts.Config = cfg
	res, err := bootstrap.Run(opts)
	if err != nil {
		return nil, err
	}
	store, err := bootstrap.OpenStore(res, onboardingSchema)
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	metrics := middleware.NewMetrics()
	modules := bootstrap.Modules[deps]{
		Seeders: []bootstrap.Seeder{bootstrap.SeederFunc(reportPending)},
		Deps: bootstrap.DepsProviderFunc[deps](func(context.Context, *coreconfig.Config, *bootstrap.Result) (deps, error) {
			return deps{metrics: metrics, started: time.Now(), now: time.Now}, nil
		}),
	}
	d, err := modules.Apply(context.Background(), cfg, res)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return &app{cfg: cfg, res: res, store: store, metrics: metrics, deps: d}, nil
}

// reportPending logs how many conversations are parked in each step of a persistent store.
func reportPending(ctx context.Context, res *bootstrap.Result) error {
	if res.DB == nil {
		return nil
	}
	keys := sqlstore.New(res.DB, onboardingSchema)
	for _, v := range onboardingSchema.Variants() {
		found, err := keys.KeysIn(ctx, v)
		if err != nil {
			return fmt.Errorf("pending %s: %w", v, err)
		}
		if len(found) > 0 {
			logger.Info(ctx, "app", "state.pending", slog.String("variant", v.Name()), slog.Int("count", len(found)))
		}
	}
	return nil
}

// Close releases the state database.
func (a *app) Close() error { return a.res.Close() }

// wire builds the router and the mux delivering to it.
func (a *app) wire(api Sender, username string) (*router.Mux[Sender], coretelegram.Wiring, error) {
	keying, err := events.ParseJoinRequestKeying(a.cfg.Stater.JoinRequestKey)
	if err != nil {
		return nil, coretelegram.Wiring{}, err
	}

	reg := router.NewRegistry[onboarding, Sender, deps](onboardingSchema)
	if err := registerHandlers(reg); err != nil {
		return nil, coretelegram.Wiring{}, err
	}
	rt, err := reg.Build(a.store, a.deps)
	if err != nil {
		return nil, coretelegram.Wiring{}, err
	}

	mux := router.NewMux[Sender](api, events.Classifier{BotUsername: username, JoinRequestKeying: keying})
	onLimited := func(_ context.Context, upd tele.Update, _ state.Key) error {
		if upd.Message == nil || upd.Message.Chat == nil {
			return nil
		}
		return reply(api, upd.Message, "Slow down a little.")
	}
	mux.Use(coretelegram.DefaultMiddlewares(a.cfg, onLimited, a.metrics)...)
	if err := rt.Setup(mux); err != nil {
		return nil, coretelegram.Wiring{}, err
	}

	return mux, coretelegram.Wiring{
		Mux:            mux,
		Commands:       rt.BotCommands(),
		AllowedUpdates: rt.AllowedUpdates(),
	}, nil
}

// TelegramRunOptions satisfies the runner's TelegramApp.
func (a *app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		Config: a.cfg,
		PoolOptions: pool.Options{
			Workers:   a.cfg.Stater.Workers,
			QueueSize: a.cfg.Stater.QueueSize,
		},
		Setup: func(_ context.Context, bot *tele.Bot) (coretelegram.Wiring, error) {
			username := ""
			if bot.Me != nil {
				username = bot.Me.Username
			}
			_, wiring, err := a.wire(bot, username)
			return wiring, err
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			snap := a.metrics.Snapshot()
			logger.Info(ctx, "app", "app.metrics",
				slog.Uint64("updates", snap.Updates),
				slog.Uint64("failed", snap.Failed),
			)
			return nil
		},
	}, nil
}
