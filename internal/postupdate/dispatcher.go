package postupdate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
)

// Dispatcher runs the configured Action in the background, once per IP
// change. The caller never waits for the outcome; it is logged and counted.
type Dispatcher struct {
	action  Action
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for action outcomes.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTimeout bounds each propagation. Zero means no bound.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher creates a Dispatcher for action. A nil action turns
// Dispatch into a no-op.
func NewDispatcher(action Action, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		action: action,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enabled reports whether an action is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.action != nil
}

// Strategy returns the configured strategy name, or "none".
func (d *Dispatcher) Strategy() string {
	if !d.Enabled() {
		return "none"
	}
	return d.action.Name()
}

// Action returns the configured action, which may be nil.
func (d *Dispatcher) Action() Action {
	if d == nil {
		return nil
	}
	return d.action
}

// Dispatch starts the action for ip and returns immediately. The action's
// context keeps ctx's values but not its cancellation, so it outlives the
// session that triggered it. After Wait has been called the change is
// logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, ip string) {
	if !d.Enabled() {
		return
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		d.logger.Warn("post-update skipped, shutting down",
			slog.String("strategy", d.action.Name()),
			slog.String("ip", ip),
		)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.run(context.WithoutCancel(ctx), ip)
	}()
}

func (d *Dispatcher) run(ctx context.Context, ip string) {
	strategy := d.action.Name()
	logger := d.logger.With(slog.String("strategy", strategy), slog.String("ip", ip))

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = WrapError(strategy, fmt.Errorf("panic: %v", r))
		}
		elapsed := time.Since(start)
		metrics.RecordPostUpdate(strategy, err, elapsed.Seconds())

		if err != nil {
			logger.Warn("post-update failed",
				slog.String("error", err.Error()),
				slog.Duration("duration", elapsed),
			)
			return
		}
		logger.Info("post-update succeeded", slog.Duration("duration", elapsed))
	}()

	logger.Debug("post-update started")
	err = WrapError(strategy, d.action.Propagate(ctx, ip))
}

// Wait stops further dispatches and blocks until every dispatched action
// has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}

	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for post-update actions: %w", ctx.Err())
	}
}
