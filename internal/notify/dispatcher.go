package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polyinsider/tradewatch/internal/metrics"
	"github.com/polyinsider/tradewatch/internal/store"
)

const (
	// DefaultSendDelay keeps steady-state throughput under the chat limit.
	DefaultSendDelay = 600 * time.Millisecond
	// DefaultMaxAttempts is the total number of tries per message.
	DefaultMaxAttempts = 3
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dispatcher serializes deliveries to one Endpoint, throttles after every
// success and retries rate-limited sends using the provider's cooldown.
type Dispatcher struct {
	mu          sync.Mutex
	endpoint    Endpoint
	sendDelay   time.Duration
	maxAttempts int
	sleep       Sleeper
	logger      *slog.Logger
	tracker     *metrics.Tracker
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSendDelay sets the pause after each successful send.
func WithSendDelay(d time.Duration) DispatcherOption {
	return func(di *Dispatcher) {
		di.sendDelay = d
	}
}

// WithMaxAttempts sets the total attempt budget per message.
func WithMaxAttempts(n int) DispatcherOption {
	return func(di *Dispatcher) {
		if n > 0 {
			di.maxAttempts = n
		}
	}
}

// WithSleeper replaces the clock used for throttling and backoff.
func WithSleeper(s Sleeper) DispatcherOption {
	return func(di *Dispatcher) {
		di.sleep = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(di *Dispatcher) {
		di.logger = logger
	}
}

// WithTracker records delivery outcomes.
func WithTracker(t *metrics.Tracker) DispatcherOption {
	return func(di *Dispatcher) {
		di.tracker = t
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(endpoint Endpoint, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		endpoint:    endpoint,
		sendDelay:   DefaultSendDelay,
		maxAttempts: DefaultMaxAttempts,
		sleep:       SleepContext,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// retryState is the bounded retry machine for one message.
type retryState struct {
	attempt int
	lastErr error
	backoff time.Duration
}

// step records the outcome of an attempt and reports whether another one
// should follow.
func (s *retryState) step(err error, maxAttempts int) bool {
	s.lastErr = err
	s.backoff = 0

	var de *DeliveryError
	if !errors.As(err, &de) || !de.IsRateLimited() {
		return false
	}
	if s.attempt >= maxAttempts {
		return false
	}
	s.backoff = RetryAfterDuration(de.RetryAfter)
	return true
}

// Send delivers msg. Failures are logged here; callers treat a non-nil error
// as "not delivered" and move on.
func (d *Dispatcher) Send(ctx context.Context, msg store.DeliveryMessage) (*Ack, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var st retryState
	for st.attempt < d.maxAttempts {
		st.attempt++

		ack, err := d.endpoint.SendMessage(ctx, msg)
		if err == nil {
			d.tracker.IncDelivery(metrics.ResultOK)
			// Throttle; a cancelled context only cuts the pause short.
			_ = d.sleep(ctx, d.sendDelay)
			return ack, nil
		}

		if !st.step(err, d.maxAttempts) {
			break
		}

		d.tracker.IncRateLimited()
		d.logger.Warn("telegram_rate_limited",
			"attempt", st.attempt,
			"max_attempts", d.maxAttempts,
			"backoff", st.backoff,
		)

		if err := d.sleep(ctx, st.backoff); err != nil {
			st.lastErr = err
			break
		}
	}

	d.tracker.IncDelivery(metrics.ResultFailed)
	d.logger.Error("telegram_send_failed",
		"attempts", st.attempt,
		"error", st.lastErr,
	)
	return nil, fmt.Errorf("deliver after %d attempt(s): %w", st.attempt, st.lastErr)
}

// Notify sends an informational rich-text line.
func (d *Dispatcher) Notify(ctx context.Context, text string) error {
	_, err := d.Send(ctx, store.DeliveryMessage{Text: text, RichText: true})
	return err
}
