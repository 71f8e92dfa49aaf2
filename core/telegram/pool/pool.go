// Package pool runs deliveries on a fixed set of serial workers sharded by conversation key:
// work for one key runs in submission order, different keys run concurrently.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/m3rciful/stater/core/logger"
	"github.com/m3rciful/stater/core/telegram/state"
)

var (
	// ErrClosed is returned when work is submitted after Close.
	ErrClosed = errors.New("pool: closed")
	// ErrQueueFull is returned by TrySubmit when the key's shard is saturated.
	ErrQueueFull = errors.New("pool: queue full")
)

// Options controls the pool size.
type Options struct {
	Workers   int
	QueueSize int
}

type job struct {
	ctx  context.Context
	key  state.Key
	name string
	run  func(ctx context.Context) error
}

// Pool executes jobs on per-shard workers.
type Pool struct {
	opts   Options
	queues []chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	done atomic.Uint64
	errs atomic.Uint64
}

// New starts a pool with sane defaults if options are zeroed.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	p := &Pool{
		opts:   opts,
		queues: make([]chan job, opts.Workers),
	}
	p.wg.Add(opts.Workers)
	for i := range p.queues {
		p.queues[i] = make(chan job, opts.QueueSize)
		go p.worker(i, p.queues[i])
	}
	return p
}

// Submit queues run on the worker owning key, blocking while that worker's queue is full.
func (p *Pool) Submit(ctx context.Context, key state.Key, name string, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("pool: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queues[key.Shard(len(p.queues))] <- job{ctx: ctx, key: key, name: name, run: run}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit is Submit without blocking; it fails with ErrQueueFull instead.
func (p *Pool) TrySubmit(ctx context.Context, key state.Key, name string, run func(ctx context.Context) error) error {
	if run == nil {
		return errors.New("pool: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queues[key.Shard(len(p.queues))] <- job{ctx: ctx, key: key, name: name, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Completed returns the number of finished jobs.
func (p *Pool) Completed() uint64 { return p.done.Load() }

// ErrorCount returns the number of failed jobs.
func (p *Pool) ErrorCount() uint64 { return p.errs.Load() }

// Close stops accepting work and waits for queued jobs to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
		p.mu.Unlock()
		p.wg.Wait()
		logger.Info(context.Background(), "pool", "pool.stop",
			slog.String("status", "ok"),
			slog.Uint64("completed", p.done.Load()),
			slog.Uint64("failed", p.errs.Load()),
		)
	})
}

func (p *Pool) worker(id int, jobs <-chan job) {
	defer p.wg.Done()
	for j := range jobs {
		p.handle(id, j)
	}
}

func (p *Pool) handle(id int, j job) {
	start := time.Now()
	err := p.safeRun(j)
	p.done.Add(1)
	if err == nil {
		return
	}
	p.errs.Add(1)
	logger.Error(j.ctx, "pool", "job.fail",
		slog.Int("worker", id),
		slog.String("action", j.name),
		slog.String("key", j.key.String()),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
}

func (p *Pool) safeRun(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return j.run(j.ctx)
}

// PanicError wraps a value recovered from a job.
type PanicError struct{ Value any }

func (e *PanicError) Error() string { return fmt.Sprintf("pool: job panicked: %v", e.Value) }
