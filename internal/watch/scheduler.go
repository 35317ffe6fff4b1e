// Package watch runs the poll loop: one reconciliation and delivery pass per
// tracked identity on every tick.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/polyinsider/tradewatch/internal/metrics"
	"github.com/polyinsider/tradewatch/internal/notify"
	"github.com/polyinsider/tradewatch/internal/store"
)

// StartupBanner is delivered once before the first tick.
const StartupBanner = "Wallet tracker active ✅."

const (
	DefaultPollInterval = 20 * time.Second
	DefaultFeedTimeout  = 30 * time.Second
)

// TradeSource returns a wallet's most recent trades, newest first.
type TradeSource interface {
	FetchTrades(ctx context.Context, wallet string) ([]store.TradeEvent, error)
}

// MarketSource returns cosmetic market metadata, empty on any failure.
type MarketSource interface {
	MarketInfo(ctx context.Context, conditionID string) store.MarketInfo
}

// WalletResolver maps a handle to a wallet address.
type WalletResolver interface {
	Resolve(ctx context.Context, handle string) (string, error)
}

// Sender delivers messages to the shared chat.
type Sender interface {
	Send(ctx context.Context, msg store.DeliveryMessage) (*notify.Ack, error)
	Notify(ctx context.Context, text string) error
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Feed      TradeSource
	Markets   MarketSource
	Resolver  WalletResolver
	Sender    Sender
	Cursors   store.CursorStore
	Formatter *notify.Formatter
	Names     store.Names
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval sets the wait between ticks.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithFeedTimeout bounds each trade feed call.
func WithFeedTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.feedTimeout = d
		}
	}
}

// WithFlushEachEvent persists the cursor after every event instead of once
// per batch.
func WithFlushEachEvent(on bool) Option {
	return func(s *Scheduler) {
		s.flushEachEvent = on
	}
}

// WithNudges lets a live listener wake the loop before the period elapses.
// Nudges received while a tick runs coalesce into one early tick.
func WithNudges(ch <-chan struct{}) Option {
	return func(s *Scheduler) {
		s.nudges = ch
	}
}

// WithWalletSink is called after each tick with every resolved wallet.
func WithWalletSink(fn func(wallets []string)) Option {
	return func(s *Scheduler) {
		s.walletSink = fn
	}
}

// WithTracker records tick and pass metrics.
func WithTracker(t *metrics.Tracker) Option {
	return func(s *Scheduler) {
		s.tracker = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler owns the tracked identities and drives the poll loop.
type Scheduler struct {
	Deps

	identities     []*store.Identity
	period         time.Duration
	feedTimeout    time.Duration
	flushEachEvent bool
	nudges         <-chan struct{}
	walletSink     func([]string)
	tracker        *metrics.Tracker
	logger         *slog.Logger
}

// New creates a scheduler for handles. Duplicate handles are kept as
// configured; each one gets its own identity.
func New(handles []string, deps Deps, opts ...Option) *Scheduler {
	s := &Scheduler{
		Deps:        deps,
		period:      DefaultPollInterval,
		feedTimeout: DefaultFeedTimeout,
		logger:      slog.Default(),
	}
	for _, h := range handles {
		s.identities = append(s.identities, &store.Identity{Handle: h})
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracker.SetIdentities(len(s.identities))
	return s
}

// Identities returns the tracked identities. Callers must not mutate them
// while the loop runs.
func (s *Scheduler) Identities() []*store.Identity {
	return s.identities
}

// Run announces startup, ticks immediately and then every period until ctx
// is cancelled. A failing tick never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("watch_started",
		"identities", len(s.identities),
		"poll_interval", s.period,
		"flush_each_event", s.flushEachEvent,
	)

	if err := s.Sender.Notify(ctx, StartupBanner); err != nil {
		s.logger.Warn("startup_banner_failed", "error", err)
	}

	for {
		s.Tick(ctx)

		if !s.wait(ctx) {
			s.logger.Info("watch_stopped")
			return nil
		}
	}
}

// wait blocks for one period or an early nudge. It returns false once ctx
// is done.
func (s *Scheduler) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.period)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-s.nudges:
		s.logger.Debug("tick_nudged")
		return true
	}
}

// TickSummary aggregates the passes of one tick.
type TickSummary struct {
	ID        string
	Passes    int
	Failed    int
	Skipped   int
	NewTrades int
	Delivered int
	Duration  time.Duration
}

// Tick runs one pass per identity concurrently and waits for all of them.
func (s *Scheduler) Tick(ctx context.Context) TickSummary {
	start := time.Now()
	sum := TickSummary{ID: uuid.NewString(), Passes: len(s.identities)}
	s.tracker.IncTick()

	results := make([]passResult, len(s.identities))
	var wg conc.WaitGroup
	for i, id := range s.identities {
		wg.Go(func() {
			results[i] = s.runPass(ctx, sum.ID, id)
		})
	}
	wg.Wait()

	var wallets []string
	for i, r := range results {
		switch {
		case r.err != nil:
			sum.Failed++
		case r.skipped:
			sum.Skipped++
		}
		sum.NewTrades += r.newTrades
		sum.Delivered += r.delivered
		if w := s.identities[i].Wallet; w != "" {
			wallets = append(wallets, w)
		}
	}
	if s.walletSink != nil {
		s.walletSink(wallets)
	}

	sum.Duration = time.Since(start)
	s.logger.Info("tick_complete",
		"tick_id", sum.ID,
		"identities", sum.Passes,
		"new_trades", sum.NewTrades,
		"delivered", sum.Delivered,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	return sum
}

// runPass isolates one pass: errors and panics are logged and counted here
// and never reach the loop.
func (s *Scheduler) runPass(ctx context.Context, tickID string, id *store.Identity) (res passResult) {
	var pc panics.Catcher
	pc.Try(func() {
		res = s.pass(ctx, id)
	})
	if r := pc.Recovered(); r != nil {
		res.err = r.AsError()
	}

	switch {
	case res.err != nil:
		s.tracker.IncPass(metrics.ResultFailed)
		s.logger.Error("pass_failed",
			"tick_id", tickID,
			"handle", id.Handle,
			"error", res.err,
		)
	case res.skipped:
		s.tracker.IncPass(metrics.ResultSkipped)
	default:
		s.tracker.IncPass(metrics.ResultOK)
	}
	s.tracker.AddTradesNew(res.newTrades)
	return res
}
