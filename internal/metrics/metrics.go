// Package metrics exposes Prometheus counters for submissions, attachments
// and feedback.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	submissions    *prometheus.CounterVec
	submitDuration prometheus.Histogram
	attachments    prometheus.Counter
	feedback       *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "problemtrack",
			Name:      "submissions_total",
			Help:      "Form submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "problemtrack",
			Name:      "intake_request_seconds",
			Help:      "Time spent posting a submission to the intake endpoint.",
			Buckets:   prometheus.DefBuckets,
		}),
		attachments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "problemtrack",
			Name:      "attachments_sent_total",
			Help:      "Attachments included in successful submissions.",
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "problemtrack",
			Name:      "feedback_total",
			Help:      "Feedback messages handed to the mail client, by type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.submissions, m.submitDuration, m.attachments, m.feedback)
	return m
}

// ObserveSubmission records one submission attempt.
func (m *Metrics) ObserveSubmission(outcome string, files int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRejected {
		return
	}
	m.submitDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess {
		m.attachments.Add(float64(files))
	}
}

// ObserveFeedback records one feedback handoff.
func (m *Metrics) ObserveFeedback(feedbackType string) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(feedbackType).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
