package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSinkDiscardsEverything(t *testing.T) {
	var s Sink = NoopSink{}
	s.IncRevisionsUploaded(5)
	s.IncRevisionsFailed(1)
	s.ObserveBatchDiffDuration(time.Second)
	s.ObserveUploadDuration(time.Second)
	s.SetLastSequence(42)
	s.SetState("running")
}

func TestPrometheusSinkRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg, "test")

	s.IncRevisionsUploaded(3)
	s.IncRevisionsFailed(1)
	s.SetLastSequence(7)
	s.SetState("idle")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range mfs {
		byName[mf.GetName()] = mf
	}

	require.Contains(t, byName, "test_pushrepl_revisions_uploaded_total")
	assert.Equal(t, 3.0, byName["test_pushrepl_revisions_uploaded_total"].Metric[0].GetCounter().GetValue())

	require.Contains(t, byName, "test_pushrepl_last_sequence")
	assert.Equal(t, 7.0, byName["test_pushrepl_last_sequence"].Metric[0].GetGauge().GetValue())
}
