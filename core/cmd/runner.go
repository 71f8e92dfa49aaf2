package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/logger"
	coretelegram "github.com/m3rciful/stater/core/telegram"
)

const defaultConfigEnvVar = "CONFIG_PATH"

// ErrNoConfigPath is returned when neither the options, the environment nor the default
// name a configuration file.
var ErrNoConfigPath = errors.New("cmd: config path not provided")

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
// Apps that also implement io.Closer are closed after the runtime returns.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath, when set, wins over the environment variable and the default path.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

func (o Options) validate() error {
	switch {
	case o.LoadConfig == nil:
		return errors.New("cmd: LoadConfig is required")
	case o.Bootstrap == nil:
		return errors.New("cmd: Bootstrap is required")
	}
	return nil
}

// configPath resolves the file to load: explicit path, then environment, then default.
func (o Options) configPath() (string, error) {
	env := o.ConfigEnvVar
	if env == "" {
		env = defaultConfigEnvVar
	}
	for _, candidate := range []string{o.ConfigPath, os.Getenv(env), o.DefaultConfigPath} {
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w via %s or DefaultConfigPath", ErrNoConfigPath, env)
}

// Run loads configuration, bootstraps the Telegram app, and blocks in the bot runtime
// until SIGINT or SIGTERM.
func Run(opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	path, err := opts.configPath()
	if err != nil {
		return err
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	if closer, ok := application.(io.Closer); ok {
		defer closeQuietly("app close", closer.Close)
	}
	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer closeQuietly("logger shutdown", shutdownLogger)

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, withLifecycleEvents(runOpts, time.Now()))
}

// withLifecycleEvents logs "ready" after the app's OnStart succeeds and "shutdown"
// before its OnStop runs.
func withLifecycleEvents(runOpts coretelegram.RunOptions, startedAt time.Time) coretelegram.RunOptions {
	onStart, onStop := runOpts.OnStart, runOpts.OnStop

	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
		return nil
	}
	runOpts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if onStop == nil {
			return nil
		}
		return onStop(ctx, rt)
	}
	return runOpts
}

func closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("%s error: %v", what, err)
	}
}
