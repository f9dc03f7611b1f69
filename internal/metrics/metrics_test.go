package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.Outcome("success")
	r.Outcome("success")
	r.Outcome("rate_limited")
	r.Calls(1)
	r.Calls(2)
	r.Calls(0)
	r.Records(5)
	r.Records(0)
	r.DroppedHit("outside_tile")
	r.Pause("rate_limited", 15*time.Minute)
	r.Pause("rate_limited", 15*time.Minute)
	r.DeadLetter()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.calls))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.droppedHits.WithLabelValues("outside_tile")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.pauses.WithLabelValues("rate_limited")))
	assert.Equal(t, 1800.0, testutil.ToFloat64(r.pauseTime.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deadLetters))
}

func TestRecorder_FinalEdge(t *testing.T) {
	r := New()
	r.FinalEdge(100)
	r.FinalEdge(50)
	r.FinalEdge(2.5)

	assert.Equal(t, 1, testutil.CollectAndCount(r.finalEdges))

	families, err := r.registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "poi_extractor_harvest_final_tile_edge_meters" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			assert.Equal(t, uint64(3), h.GetSampleCount())
			assert.InDelta(t, 152.5, h.GetSampleSum(), 1e-9)
		}
	}
	assert.True(t, found)
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Outcome("success")
		r.Calls(1)
		r.Records(3)
		r.DroppedHit("malformed")
		r.Pause("transient", time.Second)
		r.DeadLetter()
		r.FinalEdge(10)
	})
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.Calls(1)
	r.Outcome("empty")

	path := filepath.Join(t.TempDir(), "poi.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poi_extractor_search_calls_total 1")
	assert.Contains(t, string(data), `poi_extractor_search_outcomes_total{kind="empty"} 1`)
}
