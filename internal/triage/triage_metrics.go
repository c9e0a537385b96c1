package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	BatchesTotal     *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	BatchItems       prometheus.Histogram
	ItemsTotal       *prometheus.CounterVec
	AgreementTotal   *prometheus.CounterVec
	RemoteCallsTotal *prometheus.CounterVec
	RemoteDuration   prometheus.Histogram
	RemoteTokens     prometheus.Counter
	SubmitsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbtriage_batches_total",
			Help: "Total batch runs by final status.",
		}, []string{"status"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fbtriage_batch_duration_seconds",
			Help:    "Duration of batch runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s .. ~1024s
		}, []string{"status"}),
		BatchItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fbtriage_batch_items",
			Help:    "Feedback items per batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. 2048
		}),
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbtriage_items_total",
			Help: "Classified feedback items by outcome.",
		}, []string{"outcome"}),
		AgreementTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbtriage_agreement_total",
			Help: "AI vs baseline field comparisons by field and result.",
		}, []string{"field", "match"}),
		RemoteCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbtriage_llm_calls_total",
			Help: "Total remote classifier calls by status.",
		}, []string{"status"}),
		RemoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fbtriage_llm_call_duration_seconds",
			Help:    "Duration of individual remote classifier calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. 64s
		}),
		RemoteTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fbtriage_llm_tokens_total",
			Help: "Total tokens reported by the remote classifier.",
		}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fbtriage_submits_total",
			Help: "Total batch submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.BatchDuration,
		m.BatchItems,
		m.ItemsTotal,
		m.AgreementTotal,
		m.RemoteCallsTotal,
		m.RemoteDuration,
		m.RemoteTokens,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnRemoteCall: func(duration float64, tokens int, err error) {
			status := "success"
			if err != nil {
				status = "error"
			}
			m.RemoteCallsTotal.WithLabelValues(status).Inc()
			m.RemoteDuration.Observe(duration)
			m.RemoteTokens.Add(float64(tokens))
		},
		OnRecord: func(outcome string, cmp Comparison) {
			m.ItemsTotal.WithLabelValues(outcome).Inc()
			if outcome != OutcomeCompared {
				return
			}
			m.AgreementTotal.WithLabelValues("category", boolLabel(cmp.CategoryMatch)).Inc()
			m.AgreementTotal.WithLabelValues("urgency", boolLabel(cmp.UrgencyMatch)).Inc()
			m.AgreementTotal.WithLabelValues("action", boolLabel(cmp.ActionMatch)).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			m.BatchesTotal.WithLabelValues(string(e.Status)).Inc()
			m.BatchDuration.WithLabelValues(string(e.Status)).Observe(e.Duration)
			m.BatchItems.Observe(float64(e.Items))
		},
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
