package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSubmission(t *testing.T) {
	m := New()

	m.ObserveSubmission(OutcomeSuccess, 2, 100*time.Millisecond)
	m.ObserveSubmission(OutcomeFailure, 1, time.Second)
	m.ObserveSubmission(OutcomeRejected, 0, 0)

	if got := testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeSuccess)); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.submissions.WithLabelValues(OutcomeFailure)); got != 1 {
		t.Errorf("failure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.attachments); got != 2 {
		t.Errorf("attachments = %v, want 2 (failures not counted)", got)
	}
}

func TestObserveFeedback(t *testing.T) {
	m := New()
	m.ObserveFeedback("bug")
	m.ObserveFeedback("bug")

	if got := testutil.ToFloat64(m.feedback.WithLabelValues("bug")); got != 2 {
		t.Errorf("feedback{bug} = %v, want 2", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission(OutcomeSuccess, 1, time.Second)
	m.ObserveFeedback("other")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSubmission(OutcomeSuccess, 0, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `problemtrack_submissions_total{outcome="success"} 1`) {
		t.Errorf("metrics output missing submission counter:\n%s", rec.Body.String())
	}
}
