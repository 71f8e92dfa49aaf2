package telegram

import (
	"context"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/telegram/middleware"
	"github.com/m3rciful/stater/core/telegram/router"
	"github.com/m3rciful/stater/core/telegram/state"
)

// DefaultMiddlewares builds the shared delivery chain: recover, rate limit, logger and,
// when metrics is non-nil, delivery counters.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(ctx context.Context, upd tele.Update, key state.Key) error, metrics *middleware.Metrics) []router.Middleware {
	mws := []router.Middleware{middleware.RecoverMiddleware}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			mws = append(mws, middleware.RateLimitMiddleware(middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   ex,
				OnLimited: onLimited,
			}))
		}
	}

	mws = append(mws, middleware.LoggerMiddleware)
	if metrics != nil {
		mws = append(mws, metrics.Middleware)
	}
	return mws
}
