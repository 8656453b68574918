package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var errCancelled = errors.New("cancelled")

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	start := time.Now()
	m.ObserveStretch(start, nil, errCancelled)
	m.ObserveStretch(start, nil, errCancelled)
	m.ObserveStretch(
		start, errors.Join(errCancelled, context.Canceled),
		errCancelled,
	)
	m.ObserveStretch(start, errors.New("boom"), errCancelled)

	require.Equal(t, 2.0, testutil.ToFloat64(
		m.stretchOutcomes.WithLabelValues(OutcomeOK),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.stretchOutcomes.WithLabelValues(OutcomeCancelled),
	))
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.stretchOutcomes.WithLabelValues(OutcomeError),
	))

	m.Submission(SubmissionAccepted)
	m.Submission(SubmissionRejected)
	m.Submission(SubmissionRejected)
	require.Equal(t, 2.0, testutil.ToFloat64(
		m.submissions.WithLabelValues(SubmissionRejected),
	))

	m.Finalized(true)
	m.Finalized(false)
	require.Equal(t, 2, testutil.CollectAndCount(m.finalizedSessions))

	m.BindingTransition("Complete")
	require.Equal(t, 1.0, testutil.ToFloat64(
		m.bindTransitions.WithLabelValues("Complete"),
	))

	// The histogram saw every stretch.
	require.Equal(t, 1, testutil.CollectAndCount(m.stretchSeconds))

	// A second set of collectors cannot share the registry.
	_, err = NewMetrics(reg)
	require.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveStretch(time.Now(), nil, nil)
		m.Submission(SubmissionAccepted)
		m.Finalized(true)
		m.BindingTransition("Idle")
	})
}
