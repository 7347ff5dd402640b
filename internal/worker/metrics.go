package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome statuses used as metric labels
const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusCached  = "cached"
)

// Metrics holds the batch runner's Prometheus collectors
type Metrics struct {
	Outcomes     *prometheus.CounterVec
	Attempts     prometheus.Counter
	CallDuration prometheus.Histogram
	CacheHits    prometheus.Counter
	Skipped      prometheus.Counter
	InFlight     prometheus.Gauge
}

// NewMetrics registers the collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulelabel_outcomes_total",
			Help: "Records classified, by final status",
		}, []string{"status"}),
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulelabel_classifier_attempts_total",
			Help: "External classifier calls, retries included",
		}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rulelabel_record_duration_seconds",
			Help:    "Time to classify one record including retries",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulelabel_cache_hits_total",
			Help: "Records answered from the response cache",
		}),
		Skipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulelabel_records_skipped_total",
			Help: "Records skipped because they have no content",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rulelabel_records_in_flight",
			Help: "Records currently being classified",
		}),
	}
}

func (m *Metrics) observe(status string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(status).Inc()
	m.Attempts.Add(float64(attempts))
	if status != statusCached {
		m.CallDuration.Observe(d.Seconds())
	}
	if status == statusCached {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) skip() {
	if m != nil {
		m.Skipped.Inc()
	}
}

func (m *Metrics) begin() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) end() {
	if m != nil {
		m.InFlight.Dec()
	}
}
