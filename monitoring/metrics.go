package monitoring

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hdm"

// Stretch outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Submission results.
const (
	SubmissionAccepted = "accepted"
	SubmissionRejected = "rejected"
	SubmissionReplaced = "replaced"
)

// Metrics holds the collectors of the wallet core. A nil *Metrics is valid
// and records nothing, so every consumer can take one unconditionally.
type Metrics struct {
	stretchSeconds    prometheus.Histogram
	stretchOutcomes   *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	bindTransitions   *prometheus.CounterVec
	finalizedSessions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stretchSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bip38",
				Name:      "stretch_duration_seconds",
				Help:      "Time spent stretching passphrases.",
				Buckets: prometheus.ExponentialBuckets(
					0.05, 2, 10,
				),
			},
		),
		stretchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bip38",
				Name:      "stretch_total",
				Help:      "Passphrase stretches by outcome.",
			}, []string{"outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "multisig",
				Name:      "submissions_total",
				Help:      "Signature set submissions by result.",
			}, []string{"result"},
		),
		finalizedSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "multisig",
				Name:      "finalized_total",
				Help:      "Finalize calls by outcome.",
			}, []string{"outcome"},
		),
		bindTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "binding",
				Name:      "transitions_total",
				Help:      "Binding protocol transitions by target state.",
			}, []string{"state"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.stretchSeconds, m.stretchOutcomes, m.submissions,
		m.finalizedSessions, m.bindTransitions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveStretch records a passphrase stretch that started at start and
// ended with err. Errors matching cancelled count as cancellations.
func (m *Metrics) ObserveStretch(start time.Time, err, cancelled error) {
	if m == nil {
		return
	}

	m.stretchSeconds.Observe(time.Since(start).Seconds())

	outcome := OutcomeOK
	switch {
	case err == nil:
	case cancelled != nil && errors.Is(err, cancelled):
		outcome = OutcomeCancelled
	default:
		outcome = OutcomeError
	}
	m.stretchOutcomes.WithLabelValues(outcome).Inc()
}

// Submission counts one signature set submission.
func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}

	m.submissions.WithLabelValues(result).Inc()
}

// Finalized counts one finalize attempt.
func (m *Metrics) Finalized(ok bool) {
	if m == nil {
		return
	}

	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	m.finalizedSessions.WithLabelValues(outcome).Inc()
}

// BindingTransition counts one binding protocol transition into state.
func (m *Metrics) BindingTransition(state string) {
	if m == nil {
		return
	}

	m.bindTransitions.WithLabelValues(state).Inc()
}
