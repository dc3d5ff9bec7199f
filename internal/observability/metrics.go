package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vocabrec_active_sessions",
		Help: "Number of running recognition sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vocabrec_sessions_total",
		Help: "Total number of recognition sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vocabrec_session_duration_seconds",
		Help:    "Duration of recognition sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
	})

	// Audio metrics
	framesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vocabrec_frames_total",
		Help: "Total audio frames fed to the decoder",
	})

	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vocabrec_audio_bytes_total",
		Help: "Total audio bytes fed to the decoder",
	})

	framesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vocabrec_frames_skipped_total",
		Help: "Audio frames dropped before decoding",
	}, []string{"reason"})

	// Decoder metrics
	hypotheses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vocabrec_hypotheses_total",
		Help: "Hypotheses emitted",
	}, []string{"kind"}) // kind: "partial" or "final"

	matchedTerms = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vocabrec_matched_terms_total",
		Help: "Vocabulary terms found in final transcripts",
	})

	decodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vocabrec_decode_latency_seconds",
		Help:    "Time spent decoding one audio frame",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1.0},
	})

	grammarAlternatives = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vocabrec_grammar_rule_alternatives",
		Help: "Alternatives in each grammar category rule of the active constraint",
	}, []string{"category"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vocabrec_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vocabrec_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vocabrec_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Event stream metrics
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vocabrec_events_dropped_total",
		Help: "Hypothesis events dropped for slow subscribers",
	})

	eventClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vocabrec_event_clients",
		Help: "Connected event stream subscribers",
	})
)

// SessionMetrics tracks metrics for a single session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	ended     bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session; repeated calls are ignored
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordFrame records one decoded frame and how long decoding took
func (m *SessionMetrics) RecordFrame(bytes int, latency time.Duration) {
	framesProcessed.Inc()
	audioBytesProcessed.Add(float64(bytes))
	decodeLatency.Observe(latency.Seconds())
}

// RecordSkippedFrame records a frame dropped before decoding
func (m *SessionMetrics) RecordSkippedFrame(reason string) {
	framesSkipped.WithLabelValues(reason).Inc()
}

// RecordHypothesis records an emitted hypothesis and its matched terms
func (m *SessionMetrics) RecordHypothesis(kind string, matches int) {
	hypotheses.WithLabelValues(kind).Inc()
	if matches > 0 {
		matchedTerms.Add(float64(matches))
	}
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// SetGrammarAlternatives publishes per-category rule sizes of the active grammar
func SetGrammarAlternatives(counts map[string]int) {
	grammarAlternatives.Reset()
	for category, n := range counts {
		grammarAlternatives.WithLabelValues(category).Set(float64(n))
	}
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

// IncrementEventsDropped counts an event not delivered to a slow subscriber
func IncrementEventsDropped() {
	eventsDropped.Inc()
}

// SetEventClients sets the number of connected event subscribers
func SetEventClients(n int) {
	eventClients.Set(float64(n))
}
