package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// writeOp is either a log line or a flush barrier.
type writeOp struct {
	data []byte
	ack  chan error
}

// asyncWriter fans log lines out to one or more sinks from a single goroutine.
// Flush requests travel through the same queue, so a flush observes every line written before it.
type asyncWriter struct {
	queue  chan writeOp
	done   chan struct{}
	closed sync.Once
	sinks  []*bufio.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		queue: make(chan writeOp, 256),
		done:  make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for op := range w.queue {
		if op.ack != nil {
			op.ack <- w.flushSinks()
			continue
		}
		for _, sink := range w.sinks {
			if _, err := sink.Write(op.data); err != nil {
				w.setErr(err)
				break
			}
		}
		// Keep sinks current when the queue drains.
		if len(w.queue) == 0 {
			if err := w.flushSinks(); err != nil {
				w.setErr(err)
			}
		}
	}
	if err := w.flushSinks(); err != nil {
		w.setErr(err)
	}
}

// Write enqueues a copy of p. It blocks when the queue is full rather than dropping lines.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.getErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	data := make([]byte, len(p))
	copy(data, p)
	w.queue <- writeOp{data: data}
	return nil
}

// Flush waits until every previously written line reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.getErr(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.queue <- writeOp{ack: ack}
	return <-ack
}

// Close drains the queue and reports the first encountered write error.
func (w *asyncWriter) Close() error {
	w.closed.Do(func() { close(w.queue) })
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) getErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
