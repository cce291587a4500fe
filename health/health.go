// Package health tracks per-handler rolling counters and latency
// percentiles, process-level gauges, and the readiness predicate used
// by the liveness/readiness endpoints.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fame-ai/orchestrator/orchestrator"
)

// windowSize bounds the per-handler latency sample window used for
// percentile computation. A fixed-size ring keeps memory bounded while
// still producing real p50/p95/p99, unlike a naive running average.
const windowSize = 1000

// readinessOKRate is the minimum ok-rate a core capability's best
// handler must clear for readiness. The ok-rate counts every invocation
// recorded for the handler; it is not limited to the latency window.
const readinessOKRate = 0.5

// handlerStats is one handler's rolling counters and latency window.
type handlerStats struct {
	mu            sync.Mutex
	invocations   int64
	ok            int64
	errorsByKind  map[string]int64
	latenciesMs   []float64 // ring buffer, oldest overwritten first
	latencyCursor int
	latencyFilled int
}

func newHandlerStats() *handlerStats {
	return &handlerStats{
		errorsByKind: make(map[string]int64),
		latenciesMs:  make([]float64, windowSize),
	}
}

func (h *handlerStats) record(ok bool, errorKind string, latencyMs int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.invocations++
	if ok {
		h.ok++
	} else if errorKind != "" {
		h.errorsByKind[errorKind]++
	}

	h.latenciesMs[h.latencyCursor] = float64(latencyMs)
	h.latencyCursor = (h.latencyCursor + 1) % windowSize
	if h.latencyFilled < windowSize {
		h.latencyFilled++
	}
}

func (h *handlerStats) snapshot() HandlerSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	okRate := 1.0
	if h.invocations > 0 {
		okRate = float64(h.ok) / float64(h.invocations)
	}

	errors := make(map[string]int64, len(h.errorsByKind))
	for k, v := range h.errorsByKind {
		errors[k] = v
	}

	samples := make([]float64, h.latencyFilled)
	copy(samples, h.latenciesMs[:h.latencyFilled])
	sort.Float64s(samples)

	return HandlerSnapshot{
		Invocations:  h.invocations,
		OK:           h.ok,
		OKRate:       okRate,
		ErrorsByKind: errors,
		P50Ms:        percentile(samples, 0.50),
		P95Ms:        percentile(samples, 0.95),
		P99Ms:        percentile(samples, 0.99),
	}
}

// percentile returns the p-th percentile (0..1) of a pre-sorted sample
// set using nearest-rank interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// HandlerSnapshot is a point-in-time read of one handler's rolling
// stats.
type HandlerSnapshot struct {
	Invocations  int64
	OK           int64
	OKRate       float64
	ErrorsByKind map[string]int64
	P50Ms        float64
	P95Ms        float64
	P99Ms        float64
}

// CapabilityResolver reports which handler ids declare a capability,
// used by Readiness to find the best handler per core capability.
type CapabilityResolver interface {
	FindByCapability(tag string) []string
}

// Monitor aggregates per-handler rolling stats and process-level
// gauges, and exposes them both as a snapshot API and as Prometheus
// collectors.
type Monitor struct {
	mu       sync.RWMutex
	handlers map[string]*handlerStats
	resolver CapabilityResolver

	coreCapabilities []string
	registryLoaded   func() bool
	activeRequests   func() int64
	sessionCount     func() int
	startTime        time.Time

	sandboxExecutions prometheus.Counter
	invocationsTotal  *prometheus.CounterVec
	latencyHistogram  *prometheus.HistogramVec
	stageLatency      *prometheus.HistogramVec
}

// Config supplies the callbacks Monitor needs to compute readiness and
// process-level gauges without importing the registry package; the
// orchestrator package is imported only for its Stage type.
type Config struct {
	CoreCapabilities []string
	RegistryLoaded   func() bool
	ActiveRequests   func() int64
	SessionCount     func() int
	Resolver         CapabilityResolver
}

// New builds a Monitor and registers its Prometheus collectors with reg
// (pass prometheus.NewRegistry() or prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer, cfg Config) *Monitor {
	m := &Monitor{
		handlers:         make(map[string]*handlerStats),
		resolver:         cfg.Resolver,
		coreCapabilities: cfg.CoreCapabilities,
		registryLoaded:   cfg.RegistryLoaded,
		activeRequests:   cfg.ActiveRequests,
		sessionCount:     cfg.SessionCount,
		startTime:        time.Now(),

		sandboxExecutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fame_sandbox_executions_total",
			Help: "Total sandbox invocations across all handlers.",
		}),
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fame_handler_invocations_total",
			Help: "Total handler invocations by handler id and outcome.",
		}, []string{"handler_id", "outcome"}),
		latencyHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fame_handler_latency_seconds",
			Help:    "Handler invocation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler_id"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fame_orchestrator_stage_seconds",
			Help:    "Elapsed time since request start when each pipeline stage completed.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	if reg != nil {
		reg.MustRegister(m.sandboxExecutions, m.invocationsTotal, m.latencyHistogram, m.stageLatency)
	}

	return m
}

// RecordInvocation updates a handler's rolling stats and Prometheus
// collectors after a dispatch completes.
func (m *Monitor) RecordInvocation(handlerID string, ok bool, errorKind string, latencyMs int64) {
	m.mu.Lock()
	stats, exists := m.handlers[handlerID]
	if !exists {
		stats = newHandlerStats()
		m.handlers[handlerID] = stats
	}
	m.mu.Unlock()

	stats.record(ok, errorKind, latencyMs)

	outcome := "ok"
	if !ok {
		outcome = errorKind
		if outcome == "" {
			outcome = "error"
		}
	}
	m.invocationsTotal.WithLabelValues(handlerID, outcome).Inc()
	m.latencyHistogram.WithLabelValues(handlerID).Observe(float64(latencyMs) / 1000.0)
}

// RecordSandboxExecution increments the process-level sandbox counter.
func (m *Monitor) RecordSandboxExecution() {
	m.sandboxExecutions.Inc()
}

// OnTransition satisfies orchestrator.TransitionObserver: it records how
// long a request has been in flight each time it reaches a new stage.
func (m *Monitor) OnTransition(stage orchestrator.Stage, queryID string, elapsed time.Duration) {
	m.stageLatency.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// HandlerSnapshot returns the current rolling stats for handlerID, if
// any invocation has been recorded.
func (m *Monitor) HandlerSnapshot(handlerID string) (HandlerSnapshot, bool) {
	m.mu.RLock()
	stats, ok := m.handlers[handlerID]
	m.mu.RUnlock()
	if !ok {
		return HandlerSnapshot{}, false
	}
	return stats.snapshot(), true
}

// ProcessSnapshot is a point-in-time read of process-level metrics.
type ProcessSnapshot struct {
	UptimeSeconds  float64
	ActiveRequests int64
	SessionCount   int
}

// Process returns the current process-level snapshot.
func (m *Monitor) Process() ProcessSnapshot {
	snap := ProcessSnapshot{UptimeSeconds: time.Since(m.startTime).Seconds()}
	if m.activeRequests != nil {
		snap.ActiveRequests = m.activeRequests()
	}
	if m.sessionCount != nil {
		snap.SessionCount = m.sessionCount()
	}
	return snap
}

// Healthy always reports true: the health endpoint always returns 200;
// it indicates the process is up, not that it is useful.
func (m *Monitor) Healthy() bool {
	return true
}

// Ready reports whether the registry is loaded and every core
// capability has at least one handler whose ok-rate, across all of its
// recorded invocations, is at or above readinessOKRate. A handler with
// no recorded invocation does not count.
func (m *Monitor) Ready() bool {
	if m.registryLoaded != nil && !m.registryLoaded() {
		return false
	}

	for _, capability := range m.coreCapabilities {
		if !m.capabilityReady(capability) {
			return false
		}
	}
	return true
}

func (m *Monitor) capabilityReady(capability string) bool {
	if m.resolver == nil {
		return true
	}

	handlerIDs := m.resolver.FindByCapability(capability)
	if len(handlerIDs) == 0 {
		return false
	}

	for _, id := range handlerIDs {
		if snap, ok := m.HandlerSnapshot(id); ok && snap.OKRate >= readinessOKRate {
			return true
		}
	}
	return false
}
