package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesIn.WithLabelValues("Heartbeat.Alive").Inc()
	m.RequestTimeouts.Add(2)
	m.LoginOutcomes.WithLabelValues("Authenticated").Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(m.FramesIn.WithLabelValues("Heartbeat.Alive")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestTimeouts), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "goicq_frames_in_total")
	assert.Contains(t, names, "goicq_login_outcomes_total")
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestDiscard_Independent(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard()
		Discard()
	})
}
