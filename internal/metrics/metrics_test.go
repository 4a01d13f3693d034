package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("blockcraft", reg)

	m.Mutation("place", "ok")
	m.Mutation("place", "ok")
	m.Mutation("place", "occupied")
	m.WorldBlocks(101)
	m.Build("house", "animated", "ok", 80, 1, 4.2)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Rejected("E_RATE_LIMIT")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutations.WithLabelValues("place", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("place", "occupied")))
	assert.Equal(t, 101.0, testutil.ToFloat64(m.worldBlocks))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.buildBlocks.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Mutation("place", "ok")
	m.WorldBlocks(1)
	m.Build("x", "immediate", "ok", 1, 0, 0)
	m.SessionOpened()
	m.SessionClosed()
	m.Rejected("x")
}
