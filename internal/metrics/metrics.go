// Package metrics tracks per-settlement-method success/failure history and
// exposes it both as an in-process circuit breaker signal (spec.md §4.G)
// and as Prometheus counters/gauges for external scraping.
package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
	"gitlab.com/warrant1/warrant/settlement-core/internal/config"
)

// outcome is a single recorded settlement attempt, kept only long enough to
// fall out of the sliding window.
type outcome struct {
	at      time.Time
	success bool
	latency time.Duration
}

// methodWindow is the sliding-window history for one settlement method
// ("evm", "xrp", or any other key the coordinator scores).
type methodWindow struct {
	mu       sync.Mutex
	outcomes []outcome

	totalCalls      int64
	successfulCalls int64
	failedCalls     int64
	totalLatency    time.Duration
}

func (w *methodWindow) record(now time.Time, success bool, latency time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.outcomes = append(w.outcomes, outcome{at: now, success: success, latency: latency})
	w.totalCalls++
	w.totalLatency += latency
	if success {
		w.successfulCalls++
	} else {
		w.failedCalls++
	}
}

// prune drops outcomes older than window, assuming w.mu is held.
func (w *methodWindow) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(w.outcomes); i++ {
		if w.outcomes[i].at.After(cutoff) {
			break
		}
	}
	w.outcomes = w.outcomes[i:]
}

// recentFailureRate returns the fraction of failures within window,
// assuming w.mu is held and pruning has already run.
func (w *methodWindow) recentFailureRate() float64 {
	if len(w.outcomes) == 0 {
		return 0
	}
	failures := 0
	for _, o := range w.outcomes {
		if !o.success {
			failures++
		}
	}
	return float64(failures) / float64(len(w.outcomes))
}

// successRate returns the fraction of successes within the current
// sliding window, assuming w.mu is held and pruning has already run. An
// untried method (no attempts in the window) returns 1.0, per spec.md
// §4.E: the Coordinator must not score a method it has never tried worse
// than one with a proven track record.
func (w *methodWindow) successRate() float64 {
	if len(w.outcomes) == 0 {
		return 1.0
	}
	successes := 0
	for _, o := range w.outcomes {
		if o.success {
			successes++
		}
	}
	return float64(successes) / float64(len(w.outcomes))
}

func (w *methodWindow) avgLatency() time.Duration {
	if w.totalCalls == 0 {
		return 0
	}
	return w.totalLatency / time.Duration(w.totalCalls)
}

// Collector is the Metrics Collector of spec.md §4.G/E: it records
// settlement outcomes per method, answers circuit-breaker queries for the
// Settlement Coordinator, and registers Prometheus instrumentation.
type Collector struct {
	clock            clock.Clock
	log              *slog.Logger
	window           time.Duration
	breakerThreshold float64

	mu       sync.RWMutex
	windows  map[string]*methodWindow
	registry *prometheus.Registry

	callsTotal   *prometheus.CounterVec
	latencySecs  *prometheus.HistogramVec
	successGauge *prometheus.GaugeVec
	breakerGauge *prometheus.GaugeVec
}

// New builds a Collector from the coordinator's scoring configuration. A
// zero MetricsWindow or CircuitBreakerThreshold falls back to spec.md §4.G's
// defaults (5 minutes, 10%).
func New(cfg config.CoordinatorConfig, clk clock.Clock, log *slog.Logger) *Collector {
	window := cfg.MetricsWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	threshold := cfg.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = 0.10
	}

	reg := prometheus.NewRegistry()
	c := &Collector{
		clock:            clk,
		log:              log,
		window:           window,
		breakerThreshold: threshold,
		windows:          make(map[string]*methodWindow),
		registry:         reg,
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_calls_total",
			Help: "Total settlement attempts per method and outcome.",
		}, []string{"method", "status"}),
		latencySecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_latency_seconds",
			Help:    "Settlement attempt latency in seconds, per method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		successGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settlement_success_rate",
			Help: "Success rate within the sliding metrics window, per settlement method.",
		}, []string{"method"}),
		breakerGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settlement_circuit_breaker_open",
			Help: "1 if the circuit breaker is open for this method, else 0.",
		}, []string{"method"}),
	}
	reg.MustRegister(c.callsTotal, c.latencySecs, c.successGauge, c.breakerGauge)
	return c
}

// Registry exposes the Prometheus registry for wiring a promhttp handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) windowFor(method string) *methodWindow {
	c.mu.RLock()
	w, ok := c.windows[method]
	c.mu.RUnlock()
	if ok {
		return w
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[method]; ok {
		return w
	}
	w = &methodWindow{}
	c.windows[method] = w
	return w
}

// RecordSuccess records a successful settlement attempt for method.
func (c *Collector) RecordSuccess(method string, latency time.Duration) {
	c.record(method, true, latency)
}

// RecordFailure records a failed settlement attempt for method.
func (c *Collector) RecordFailure(method string, latency time.Duration) {
	c.record(method, false, latency)
}

func (c *Collector) record(method string, success bool, latency time.Duration) {
	now := c.clock.Now()
	w := c.windowFor(method)

	w.mu.Lock()
	w.outcomes = append(w.outcomes, outcome{at: now, success: success, latency: latency})
	w.totalCalls++
	w.totalLatency += latency
	if success {
		w.successfulCalls++
	} else {
		w.failedCalls++
	}
	w.prune(now, c.window)
	rate := w.successRate()
	w.mu.Unlock()

	status := "success"
	if !success {
		status = "failure"
	}
	c.callsTotal.WithLabelValues(method, status).Inc()
	c.latencySecs.WithLabelValues(method).Observe(latency.Seconds())
	c.successGauge.WithLabelValues(method).Set(rate)
	if c.CircuitOpen(method) {
		c.breakerGauge.WithLabelValues(method).Set(1)
	} else {
		c.breakerGauge.WithLabelValues(method).Set(0)
	}
}

// SuccessRate returns the success rate within the configured sliding
// window for method, or 1.0 if method has no attempts in the window.
func (c *Collector) SuccessRate(method string) float64 {
	now := c.clock.Now()
	w := c.windowFor(method)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now, c.window)
	return w.successRate()
}

// RecentFailureRate returns the fraction of failures within the configured
// sliding window for method.
func (c *Collector) RecentFailureRate(method string) float64 {
	now := c.clock.Now()
	w := c.windowFor(method)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now, c.window)
	return w.recentFailureRate()
}

// AvgLatency returns the lifetime average latency recorded for method.
func (c *Collector) AvgLatency(method string) time.Duration {
	w := c.windowFor(method)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.avgLatency()
}

// CircuitOpen reports whether method's recent failure rate exceeds the
// configured circuit-breaker threshold (default 10%, spec.md §4.G).
func (c *Collector) CircuitOpen(method string) bool {
	return c.RecentFailureRate(method) > c.breakerThreshold
}

// Cleanup prunes every tracked method's sliding window, dropping outcomes
// that have aged out. Intended to run on a scheduler.Scheduler tick
// (config.SchedulerConfig.MetricsCleanupInterval) so idle methods don't
// hold stale entries indefinitely between calls to RecentFailureRate.
func (c *Collector) Cleanup() {
	now := c.clock.Now()
	c.mu.RLock()
	windows := make([]*methodWindow, 0, len(c.windows))
	for _, w := range c.windows {
		windows = append(windows, w)
	}
	c.mu.RUnlock()

	for _, w := range windows {
		w.mu.Lock()
		w.prune(now, c.window)
		w.mu.Unlock()
	}
}

// Snapshot is a point-in-time view of one method's metrics, used for
// structured logging in the Settlement Coordinator's decision log.
type Snapshot struct {
	Method            string
	TotalCalls        int64
	SuccessfulCalls   int64
	FailedCalls       int64
	SuccessRate       float64
	RecentFailureRate float64
	AvgLatency        time.Duration
	CircuitOpen       bool
}

// SnapshotFor builds a Snapshot for method from the collector's current
// state.
func (c *Collector) SnapshotFor(method string) Snapshot {
	now := c.clock.Now()
	w := c.windowFor(method)

	w.mu.Lock()
	w.prune(now, c.window)
	s := Snapshot{
		Method:            method,
		TotalCalls:        w.totalCalls,
		SuccessfulCalls:   w.successfulCalls,
		FailedCalls:       w.failedCalls,
		SuccessRate:       w.successRate(),
		RecentFailureRate: w.recentFailureRate(),
		AvgLatency:        w.avgLatency(),
	}
	w.mu.Unlock()

	s.CircuitOpen = s.RecentFailureRate > c.breakerThreshold
	return s
}

// String renders a Snapshot for log lines.
func (s Snapshot) String() string {
	return fmt.Sprintf("method=%s calls=%d success_rate=%.3f recent_failure_rate=%.3f avg_latency=%s breaker_open=%t",
		s.Method, s.TotalCalls, s.SuccessRate, s.RecentFailureRate, s.AvgLatency, s.CircuitOpen)
}
