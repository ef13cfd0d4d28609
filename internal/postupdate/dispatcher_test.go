package postupdate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"gitlab.bluewillows.net/root/ddnsnotify/internal/metrics"
)

// recordingAction records every IP it is asked to propagate.
type recordingAction struct {
	name  string
	err   error
	delay time.Duration
	panic bool

	mu    sync.Mutex
	calls []string
	ctxs  []context.Context
}

func (a *recordingAction) Name() string { return a.name }

func (a *recordingAction) Propagate(ctx context.Context, ip string) error {
	a.mu.Lock()
	a.calls = append(a.calls, ip)
	a.ctxs = append(a.ctxs, ctx)
	a.mu.Unlock()

	if a.panic {
		panic("provider exploded")
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return a.err
}

func (a *recordingAction) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
}

func TestDispatcher_RunsAction(t *testing.T) {
	metrics.PostUpdateTotal.Reset()
	action := &recordingAction{name: "fake-ok"}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	d.Dispatch(context.Background(), "1.2.3.4")
	waitDispatcher(t, d)

	calls := action.Calls()
	if len(calls) != 1 || calls[0] != "1.2.3.4" {
		t.Errorf("calls = %v, want [1.2.3.4]", calls)
	}
	if v := testutil.ToFloat64(metrics.PostUpdateTotal.WithLabelValues("fake-ok", metrics.ResultSuccess)); v != 1 {
		t.Errorf("success counter = %f, want 1", v)
	}
}

func TestDispatcher_FailureIsCounted(t *testing.T) {
	metrics.PostUpdateTotal.Reset()
	action := &recordingAction{name: "fake-fail", err: errors.New("bad response")}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	d.Dispatch(context.Background(), "1.2.3.4")
	waitDispatcher(t, d)

	if v := testutil.ToFloat64(metrics.PostUpdateTotal.WithLabelValues("fake-fail", metrics.ResultFailure)); v != 1 {
		t.Errorf("failure counter = %f, want 1", v)
	}
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	metrics.PostUpdateTotal.Reset()
	action := &recordingAction{name: "fake-panic", panic: true}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	d.Dispatch(context.Background(), "1.2.3.4")
	waitDispatcher(t, d)

	if v := testutil.ToFloat64(metrics.PostUpdateTotal.WithLabelValues("fake-panic", metrics.ResultFailure)); v != 1 {
		t.Errorf("failure counter = %f, want 1", v)
	}
}

func TestDispatcher_DetachedFromCallerCancel(t *testing.T) {
	action := &recordingAction{name: "fake-slow", delay: 50 * time.Millisecond}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, "1.2.3.4")
	cancel()
	waitDispatcher(t, d)

	action.mu.Lock()
	defer action.mu.Unlock()
	if len(action.ctxs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(action.ctxs))
	}
	if err := action.ctxs[0].Err(); err != nil {
		t.Errorf("action context error = %v, want nil after caller cancel", err)
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	metrics.PostUpdateTotal.Reset()
	action := &recordingAction{name: "fake-timeout", delay: time.Minute}
	d := NewDispatcher(action, WithLogger(discardLogger()), WithTimeout(20*time.Millisecond))

	d.Dispatch(context.Background(), "1.2.3.4")
	waitDispatcher(t, d)

	if v := testutil.ToFloat64(metrics.PostUpdateTotal.WithLabelValues("fake-timeout", metrics.ResultFailure)); v != 1 {
		t.Errorf("failure counter = %f, want 1", v)
	}
}

func TestDispatcher_NilAction(t *testing.T) {
	d := NewDispatcher(nil)

	if d.Enabled() {
		t.Error("Enabled() = true for nil action")
	}
	if d.Strategy() != "none" {
		t.Errorf("Strategy() = %q, want none", d.Strategy())
	}

	d.Dispatch(context.Background(), "1.2.3.4")
	waitDispatcher(t, d)

	var nilDispatcher *Dispatcher
	nilDispatcher.Dispatch(context.Background(), "1.2.3.4")
	if err := nilDispatcher.Wait(context.Background()); err != nil {
		t.Errorf("Wait() on nil dispatcher = %v", err)
	}
}

func TestDispatcher_WaitHonorsContext(t *testing.T) {
	action := &recordingAction{name: "fake-hang", delay: time.Minute}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	d.Dispatch(context.Background(), "1.2.3.4")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}

func TestDispatcher_DispatchAfterWait(t *testing.T) {
	action := &recordingAction{name: "fake"}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	d.Dispatch(context.Background(), "1.2.3.4")
	waitDispatcher(t, d)

	// Sessions still running after shutdown began must not start new work
	d.Dispatch(context.Background(), "5.6.7.8")
	waitDispatcher(t, d)

	if got := action.Calls(); len(got) != 1 || got[0] != "1.2.3.4" {
		t.Errorf("calls = %v, want only the dispatch before Wait", got)
	}
}

func TestDispatcher_ConcurrentDispatchAndWait(t *testing.T) {
	action := &recordingAction{name: "fake", delay: time.Millisecond}
	d := NewDispatcher(action, WithLogger(discardLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(context.Background(), "1.2.3.4")
		}()
	}
	waitDispatcher(t, d)
	wg.Wait()

	// Whatever was admitted before Wait has run to completion
	waitDispatcher(t, d)
	if n := len(action.Calls()); n > 50 {
		t.Errorf("calls = %d, want at most 50", n)
	}
}
