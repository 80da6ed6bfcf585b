package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cafescout/cafescout/pkg/metrics"
)

// Emission stages and drop reasons used as metric labels.
const (
	stageKeyword     = "keyword"
	stagePassthrough = "passthrough"
	stageAI          = "ai"

	dropDuplicate  = "duplicate"
	dropKeyword    = "keyword_miss"
	dropAIRejected = "ai_rejected"
	dropError      = "error"
	dropStopped    = "stopped"
)

// Metrics are the run counters. A nil *Metrics records nothing.
type Metrics struct {
	pages     *prometheus.CounterVec
	emitted   *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	chunks    *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	active    *prometheus.GaugeVec
}

// NewMetrics registers the pipeline metrics on reg.
func NewMetrics(reg *metrics.Registry) *Metrics {
	return &Metrics{
		pages:     reg.Counter("search_pages_total", "Search result pages fetched."),
		emitted:   reg.Counter("posts_emitted_total", "Posts emitted, by stage.", "stage"),
		dropped:   reg.Counter("posts_dropped_total", "Posts dropped, by reason.", "reason"),
		chunks:    reg.Counter("ai_chunks_total", "AI batch chunks, by outcome.", "outcome"),
		fallbacks: reg.Counter("content_fallbacks_total", "Content fetches that fell back to the snippet."),
		runs:      reg.Counter("runs_total", "Finished runs, by status.", "status"),
		duration:  reg.Histogram("run_duration_seconds", "Run wall time.", prometheus.ExponentialBuckets(1, 2, 10)),
		active:    reg.Gauge("runs_active", "Runs currently executing."),
	}
}

func (m *Metrics) pagesFetched(n int) {
	if m != nil && n > 0 {
		m.pages.WithLabelValues().Add(float64(n))
	}
}

func (m *Metrics) postEmitted(stage string) {
	if m != nil {
		m.emitted.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) postDropped(reason string, n int) {
	if m != nil && n > 0 {
		m.dropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) chunkDone(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.chunks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) contentFallback() {
	if m != nil {
		m.fallbacks.WithLabelValues().Inc()
	}
}

func (m *Metrics) runStarted() {
	if m != nil {
		m.active.WithLabelValues().Inc()
	}
}

func (m *Metrics) runFinished(s Status, d time.Duration) {
	if m == nil {
		return
	}
	m.active.WithLabelValues().Dec()
	m.runs.WithLabelValues(string(s)).Inc()
	m.duration.WithLabelValues().Observe(d.Seconds())
}
