// Package metrics provides counters for the watch loop and exposes them to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// Snapshot is a point-in-time view of metrics.
type Snapshot struct {
	Ticks            int64
	PassesOK         int64
	PassesFailed     int64
	TradesNew        int64
	DeliveriesOK     int64
	DeliveriesFailed int64
	RateLimited      int64
	LastTick         time.Time
	Uptime           time.Duration
}

// Tracker provides thread-safe metrics tracking. All methods are safe on a
// nil *Tracker so components can run without metrics.
type Tracker struct {
	mu        sync.RWMutex
	snap      Snapshot
	startTime time.Time

	registry    *prometheus.Registry
	ticks       prometheus.Counter
	passes      *prometheus.CounterVec
	tradesNew   prometheus.Counter
	deliveries  *prometheus.CounterVec
	rateLimited prometheus.Counter
	identities  prometheus.Gauge
}

// NewTracker creates a Tracker with its own registry.
func NewTracker() *Tracker {
	t := &Tracker{
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradewatch_ticks_total",
			Help: "Poll ticks started.",
		}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradewatch_passes_total",
			Help: "Per-identity passes by result.",
		}, []string{"result"}),
		tradesNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradewatch_trades_new_total",
			Help: "Trades found after the stored cursor.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradewatch_deliveries_total",
			Help: "Outbound messages by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradewatch_rate_limited_total",
			Help: "Rate-limit responses from the messaging endpoint.",
		}),
		identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradewatch_identities",
			Help: "Tracked identities.",
		}),
	}

	t.registry.MustRegister(t.ticks, t.passes, t.tradesNew, t.deliveries, t.rateLimited, t.identities)
	return t
}

// Registry returns the registry holding the tracker's collectors.
func (t *Tracker) Registry() *prometheus.Registry {
	if t == nil {
		return nil
	}
	return t.registry
}

// IncTick records the start of a tick.
func (t *Tracker) IncTick() {
	if t == nil {
		return
	}
	t.ticks.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Ticks++
	t.snap.LastTick = time.Now()
}

// IncPass records the end of one identity's pass.
func (t *Tracker) IncPass(result string) {
	if t == nil {
		return
	}
	t.passes.WithLabelValues(result).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	if result == ResultFailed {
		t.snap.PassesFailed++
	} else {
		t.snap.PassesOK++
	}
}

// AddTradesNew records trades found after the cursor.
func (t *Tracker) AddTradesNew(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.tradesNew.Add(float64(n))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.TradesNew += int64(n)
}

// IncDelivery records a delivery outcome.
func (t *Tracker) IncDelivery(result string) {
	if t == nil {
		return
	}
	t.deliveries.WithLabelValues(result).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	if result == ResultOK {
		t.snap.DeliveriesOK++
	} else {
		t.snap.DeliveriesFailed++
	}
}

// IncRateLimited records a rate-limit response.
func (t *Tracker) IncRateLimited() {
	if t == nil {
		return
	}
	t.rateLimited.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RateLimited++
}

// SetIdentities sets the tracked identity gauge.
func (t *Tracker) SetIdentities(n int) {
	if t == nil {
		return
	}
	t.identities.Set(float64(n))
}

// Snapshot returns a point-in-time snapshot of metrics.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.snap
	s.Uptime = time.Since(t.startTime)
	return s
}
