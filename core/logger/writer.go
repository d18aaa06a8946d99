package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter decouples log production from sink IO. Lines are queued and
// written by a single background goroutine that owns the buffered sinks
// (stdout plus the optional log file). A failing sink is remembered in
// writeErr but does not stop delivery to the remaining sinks.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	stopped chan struct{}

	closeOnce sync.Once

	errMu    sync.Mutex
	writeErr error

	sinks []*bufio.Writer
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	var sinks []*bufio.Writer
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		lines:   make(chan []byte, 256),
		flushes: make(chan chan error),
		stopped: make(chan struct{}),
		sinks:   sinks,
	}
	go aw.run()
	return aw
}

// run is the only goroutine touching the sinks. Buffers are flushed when
// the queue momentarily drains, so bursts are batched into few syscalls.
func (w *asyncWriter) run() {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.recordErr(w.flushSinks())
				close(w.stopped)
				return
			}
			w.recordErr(w.writeSinks(line))
			if len(w.lines) == 0 {
				w.recordErr(w.flushSinks())
			}
		case ack := <-w.flushes:
			ack <- w.drainThenFlush()
		}
	}
}

func (w *asyncWriter) drainThenFlush() error {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return w.flushSinks()
			}
			w.recordErr(w.writeSinks(line))
		default:
			return w.flushSinks()
		}
	}
}

// Write queues one line for the background goroutine. It blocks when the
// queue is full, trading a stalled producer for never dropping a line.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.loadErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush drains queued lines and flushes every sink buffer.
func (w *asyncWriter) Flush() error {
	if err := w.loadErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.stopped:
		return w.loadErr()
	}
}

// Close stops the background goroutine after draining the queue and
// reports the first write error seen over the writer's lifetime.
func (w *asyncWriter) Close() error {
	w.closeOnce.Do(func() { close(w.lines) })
	<-w.stopped
	return w.loadErr()
}

func (w *asyncWriter) writeSinks(line []byte) error {
	var errs []error
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) loadErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.writeErr
}

func (w *asyncWriter) recordErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
