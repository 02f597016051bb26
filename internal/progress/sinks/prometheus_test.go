package sinks

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSinkCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), runEvents("2026-08-27")))

	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, float64(3), testutil.ToFloat64(sink.papersListed))
	require.Equal(t, float64(2), testutil.ToFloat64(sink.downloads.WithLabelValues("succeeded")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.downloads.WithLabelValues("failed")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.dispatches.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
	require.Equal(t, float64(0), testutil.ToFloat64(sink.runsRunning))
}

func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
