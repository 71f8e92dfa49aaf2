package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/stater/core/config"
	coretelegram "github.com/m3rciful/stater/core/telegram"
)

type fakeApp struct {
	calls  *[]string
	closed bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error {
			*a.calls = append(*a.calls, "app.start")
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			*a.calls = append(*a.calls, "app.stop")
			return nil
		},
	}, nil
}

func (a *fakeApp) Close() error {
	a.closed = true
	return nil
}

func baseOptions(calls *[]string, app *fakeApp) Options {
	return Options{
		LoadConfig: func(path string) (ConfigCarrier, error) {
			*calls = append(*calls, "load:"+path)
			return &coreconfig.Config{}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { *calls = append(*calls, "logger.shutdown"); return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	}
}

func TestRunRequiresHooks(t *testing.T) {
	assert.Error(t, Run(Options{}))
	assert.Error(t, Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}))
}

func TestRunConfigPathPrecedence(t *testing.T) {
	t.Setenv("STATER_CONFIG", "/env/config.yaml")

	var calls []string
	opts := baseOptions(&calls, &fakeApp{calls: &calls})
	opts.ConfigEnvVar = "STATER_CONFIG"
	opts.DefaultConfigPath = "/default/config.yaml"
	require.NoError(t, Run(opts))
	assert.Equal(t, "load:/env/config.yaml", calls[0])

	calls = nil
	opts.ConfigPath = "/flag/config.yaml"
	require.NoError(t, Run(opts))
	assert.Equal(t, "load:/flag/config.yaml", calls[0])
}

func TestRunMissingConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	var calls []string
	err := Run(baseOptions(&calls, &fakeApp{calls: &calls}))
	assert.ErrorIs(t, err, ErrNoConfigPath)
	assert.ErrorContains(t, err, "CONFIG_PATH")
}

func TestRunWrapsLifecycleAndCloses(t *testing.T) {
	var calls []string
	app := &fakeApp{calls: &calls}
	opts := baseOptions(&calls, app)
	opts.ConfigPath = "config.yaml"

	require.NoError(t, Run(opts))
	assert.Equal(t, []string{"load:config.yaml", "app.start", "app.stop", "logger.shutdown"}, calls)
	assert.True(t, app.closed)
}

func TestRunBootstrapFailure(t *testing.T) {
	var calls []string
	opts := baseOptions(&calls, nil)
	opts.ConfigPath = "config.yaml"
	opts.Bootstrap = func(ConfigCarrier) (TelegramApp, error) { return nil, errors.New("no db") }
	assert.ErrorContains(t, Run(opts), "bootstrap failed")
}

func TestRunStartFailureStillCloses(t *testing.T) {
	var calls []string
	app := &fakeApp{calls: &calls}
	opts := baseOptions(&calls, app)
	opts.ConfigPath = "config.yaml"
	opts.Bootstrap = func(ConfigCarrier) (TelegramApp, error) { return startFailingApp{app}, nil }

	err := Run(opts)
	assert.ErrorContains(t, err, "webhook refused")
	assert.Equal(t, []string{"load:config.yaml", "logger.shutdown"}, calls)
	assert.True(t, app.closed)
}

type startFailingApp struct{ *fakeApp }

func (a startFailingApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	opts, err := a.fakeApp.TelegramRunOptions()
	opts.OnStart = func(context.Context, coretelegram.Runtime) error { return errors.New("webhook refused") }
	return opts, err
}
