package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter fans log lines out to every sink from a single goroutine. Lines queued
// while a write is in progress are written as one batch and flushed once.
// Flush drains the queue first, so it covers every line written before the call.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}
	once     sync.Once

	sinks []*bufio.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			open := ok
			if ok {
				w.write(line)
				open = w.drain()
			}
			w.setErr(w.flush())
			if !open {
				return
			}
		case ack := <-w.flushReq:
			open := w.drain()
			ack <- w.flush()
			if !open {
				return
			}
		}
	}
}

// drain writes every line already queued without waiting for more. It reports false
// once the queue is closed.
func (w *asyncWriter) drain() bool {
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return false
			}
			w.write(line)
		default:
			return true
		}
	}
}

func (w *asyncWriter) write(p []byte) {
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			w.setErr(err)
		}
	}
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Write copies p and queues it. It blocks when the queue is full rather than drop lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.getErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush waits until everything queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.getErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.getErr()
	}
}

// Close drains the queue and reports the first encountered write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) getErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
