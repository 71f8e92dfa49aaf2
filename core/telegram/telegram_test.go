package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/stater/core/config"
	"github.com/m3rciful/stater/core/telegram/events"
	"github.com/m3rciful/stater/core/telegram/middleware"
	"github.com/m3rciful/stater/core/telegram/pool"
	"github.com/m3rciful/stater/core/telegram/router"
	"github.com/m3rciful/stater/core/telegram/state"
)

func TestBuildPollerLongPoll(t *testing.T) {
	p := BuildPoller(PollerOptions{LongPollLimit: 50, AllowedUpdates: []string{"message"}})
	lp, ok := p.(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)
	assert.Equal(t, 50, lp.Limit)
	assert.Equal(t, []string{"message"}, lp.AllowedUpdates)
}

func TestBuildPollerWebhook(t *testing.T) {
	p := BuildPoller(PollerOptions{
		RunMode: "Webhook",
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://example.org/hook"},
	})
	wh, ok := p.(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://example.org/hook", wh.Endpoint.PublicURL)
}

func TestBuildHTTPClientOutlivesLongPoll(t *testing.T) {
	c := BuildHTTPClient(coreconfig.HTTPConfig{TimeoutSeconds: 5}, 50*time.Second)
	assert.Equal(t, 60*time.Second, c.Timeout)

	c = BuildHTTPClient(coreconfig.HTTPConfig{}, 10*time.Second)
	assert.Equal(t, defaultClientTimeout, c.Timeout)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, shouldRetry(nil))
	assert.False(t, shouldRetry(errors.New("plain")))
	assert.True(t, shouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, shouldRetry(&url.Error{Op: "Post", URL: "x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}))
}

type flakyTransport struct {
	fails int
	calls int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func TestRetryTransport(t *testing.T) {
	base := &flakyTransport{fails: 2}
	rt := &retryTransport{base: base, maxRetries: 3}
	req, err := http.NewRequest(http.MethodGet, "https://api.telegram.org/", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, base.calls)

	base = &flakyTransport{fails: 10}
	rt = &retryTransport{base: base, maxRetries: 1}
	_, err = rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Equal(t, 2, base.calls)
}

func TestRedactToken(t *testing.T) {
	got := redactToken(`Post "https://api.telegram.org/bot123456:AA-bb_cc/deleteWebhook": dial tcp`)
	assert.NotContains(t, got, "123456:AA-bb_cc")
	assert.Contains(t, got, "bot<redacted>")
}

func TestDefaultMiddlewares(t *testing.T) {
	assert.Len(t, DefaultMiddlewares(nil, nil, nil), 2)

	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{IntervalMS: 500, ExcludeUpdates: []string{"callback"}}}
	assert.Len(t, DefaultMiddlewares(cfg, nil, middleware.NewMetrics()), 4)
}

// scriptedPoller feeds fixed updates and then waits for the stop signal.
type scriptedPoller struct {
	updates []tele.Update
}

func (p *scriptedPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	for _, u := range p.updates {
		dest <- u
	}
	<-stop
}

// lastBatchPoller hands over one more update after it is asked to stop, like a long
// poll that returns while shutdown is in progress.
type lastBatchPoller struct {
	first, late tele.Update
}

func (p *lastBatchPoller) Poll(_ *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	dest <- p.first
	<-stop
	dest <- p.late
}

func TestPumpSubmitsUpdatesReceivedWhileStopping(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	mux := router.NewMux[struct{}](struct{}{}, events.Classifier{})
	require.NoError(t, mux.Listen(router.Endpoint{Kind: events.KindMessage}, func(_ context.Context, _ struct{}, _ state.Key, payload any) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(*tele.Message).Text)
		return nil
	}))
	poller := &lastBatchPoller{
		first: tele.Update{ID: 1, Message: &tele.Message{Chat: &tele.Chat{ID: 1}, Text: "first"}},
		late:  tele.Update{ID: 2, Message: &tele.Message{Chat: &tele.Chat{ID: 2}, Text: "late"}},
	}

	workers := pool.New(pool.Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- pump(ctx, nil, poller, mux, workers) }()

	require.Eventually(t, func() bool { return workers.Completed() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}
	workers.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"first", "late"}, got)
}

func TestPumpDeliversThroughPool(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	mux := router.NewMux[struct{}](struct{}{}, events.Classifier{})
	require.NoError(t, mux.Listen(router.Endpoint{Kind: events.KindMessage}, func(_ context.Context, _ struct{}, key state.Key, payload any) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, key.String()+":"+payload.(*tele.Message).Text)
		return nil
	}))

	msg := func(id int, chat int64, text string) tele.Update {
		return tele.Update{ID: id, Message: &tele.Message{Chat: &tele.Chat{ID: chat}, Text: text}}
	}
	poller := &scriptedPoller{updates: []tele.Update{
		msg(1, 1, "a"),
		{ID: 2},
		msg(3, 1, "b"),
		msg(4, 2, "c"),
	}}

	workers := pool.New(pool.Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- pump(ctx, nil, poller, mux, workers) }()

	require.Eventually(t, func() bool { return workers.Completed() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}
	workers.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"{chat=1}:a", "{chat=1}:b", "{chat=2}:c"}, got)
	var chat1 []string
	for _, g := range got {
		if g[:8] == "{chat=1}" {
			chat1 = append(chat1, g)
		}
	}
	assert.Equal(t, []string{"{chat=1}:a", "{chat=1}:b"}, chat1)
}
