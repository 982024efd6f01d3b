package verify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the polling cadence between verification passes.
const DefaultInterval = 15 * time.Second

// Watcher drives periodic verification until the transfer completes,
// fails terminally, or the context is canceled. Transient errors do not
// stop the timer.
type Watcher struct {
	verifier *Verifier
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher builds a Watcher around the verifier.
func NewWatcher(verifier *Verifier, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		verifier: verifier,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the polling loop. The loop stops when ctx is canceled
// or the verifier reaches a terminal state.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx)
}

// Stop cancels the polling loop and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// Done is closed when the polling loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("transfer watch canceled")
			return
		case <-ticker.C:
			done, err := w.verifier.VerifyTransfer(ctx)
			if done {
				return
			}
			if err != nil && IsTerminal(err) {
				return
			}
		}
	}
}
