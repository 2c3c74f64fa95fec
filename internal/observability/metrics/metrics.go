package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	namespace = "caliu"
	subsystem = "leads"

	submissionsMetric = namespace + "_" + subsystem + "_submissions_total"
)

// LeadMetrics exposes counters/histograms for the lead-capture pipeline.
type LeadMetrics struct {
	submissionsTotal     *prometheus.CounterVec
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	dispatchTotal        *prometheus.CounterVec
	dispatchDuration     *prometheus.HistogramVec
	rateLimitedTotal     prometheus.Counter
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "submissions_total",
			Help:      "Lead submissions by final outcome",
		}, []string{"outcome"}),
		verificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verifications_total",
			Help:      "Anti-bot token verifications by provider and outcome",
		}, []string{"provider", "outcome"}),
		verificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "verification_duration_seconds",
			Help:      "Latency of siteverify calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "email_dispatch_total",
			Help:      "Lead notification emails by provider and status",
		}, []string{"provider", "status"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "email_dispatch_duration_seconds",
			Help:      "Latency of lead notification email sends",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		rateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.submissionsTotal,
		m.verificationsTotal,
		m.verificationDuration,
		m.dispatchTotal,
		m.dispatchDuration,
		m.rateLimitedTotal,
	)
	return m
}

func (m *LeadMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *LeadMetrics) ObserveVerification(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(provider, outcome).Inc()
	m.verificationDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *LeadMetrics) ObserveDispatch(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(provider, status).Inc()
	m.dispatchDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *LeadMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}

// SubmissionSnapshot summarizes submission counters by outcome.
type SubmissionSnapshot struct {
	Total     float64            `json:"total"`
	ByOutcome map[string]float64 `json:"by_outcome"`
	Outcomes  []string           `json:"outcomes"`
}

// SnapshotSubmissions reads the submission counter back out of a gatherer.
func SnapshotSubmissions(gatherer prometheus.Gatherer) (SubmissionSnapshot, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	snap := SubmissionSnapshot{ByOutcome: map[string]float64{}, Outcomes: []string{}}

	mfs, err := gatherer.Gather()
	if err != nil {
		return snap, err
	}

	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == submissionsMetric {
			family = mf
			break
		}
	}
	if family == nil {
		return snap, nil
	}

	for _, metric := range family.GetMetric() {
		outcome := labelValue(metric, "outcome")
		value := metric.GetCounter().GetValue()
		snap.ByOutcome[outcome] += value
		snap.Total += value
	}
	for outcome := range snap.ByOutcome {
		snap.Outcomes = append(snap.Outcomes, outcome)
	}
	sort.Strings(snap.Outcomes)
	return snap, nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}
