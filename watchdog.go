package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// errReadTimeout reports that the render endpoint went quiet for longer than
// the read timeout. It wraps context.DeadlineExceeded so describeCause
// reports it as a timeout.
var errReadTimeout = fmt.Errorf("no data from upstream within read timeout: %w", context.DeadlineExceeded)

// readWatchdog fires onExpire when touch has not been called for timeout.
// It bounds each wait for upstream data, not the exchange as a whole.
type readWatchdog struct {
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newReadWatchdog(timeout time.Duration, onExpire func()) *readWatchdog {
	w := &readWatchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.expired.Store(true)
		onExpire()
	})
	return w
}

// touch restarts the countdown.
func (w *readWatchdog) touch() {
	if !w.expired.Load() {
		w.timer.Reset(w.timeout)
	}
}

// stop halts the countdown until the next touch.
func (w *readWatchdog) stop() {
	w.timer.Stop()
}

func (w *readWatchdog) fired() bool {
	return w.expired.Load()
}

// watchedReader runs the watchdog only while a Read is blocked on upstream,
// so time spent writing to a slow caller does not count. A cancellation
// caused by an expired watchdog is reported as errReadTimeout.
type watchedReader struct {
	r        io.Reader
	watchdog *readWatchdog
}

func (r *watchedReader) Read(p []byte) (int, error) {
	r.watchdog.touch()
	n, err := r.r.Read(p)
	r.watchdog.stop()
	if err != nil && !errors.Is(err, io.EOF) && r.watchdog.fired() {
		err = errReadTimeout
	}
	return n, err
}
