// Package metrics records harvest run metrics on a private Prometheus
// registry. A run is a batch job, so the registry is exported to a node
// exporter textfile when the run ends rather than scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

const namespace = "poi_extractor"

// Recorder holds the run's collectors. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	outcomes    *prometheus.CounterVec
	calls       prometheus.Counter
	records     prometheus.Counter
	droppedHits *prometheus.CounterVec
	pauses      *prometheus.CounterVec
	pauseTime   *prometheus.CounterVec
	deadLetters prometheus.Counter
	finalEdges  prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "outcomes_total",
			Help:      "Search outcomes by kind",
		}, []string{"kind"}),
		calls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "calls_total",
			Help:      "Search requests issued, retries and follow-up pages included",
		}),
		records: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "records_total",
			Help:      "Records emitted before deduplication",
		}),
		droppedHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "dropped_hits_total",
			Help:      "Hits discarded before becoming records",
		}, []string{"reason"}),
		pauses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "pauses_total",
			Help:      "Retry pauses by reason",
		}, []string{"reason"}),
		pauseTime: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "pause_seconds_total",
			Help:      "Time spent waiting before retries",
		}, []string{"reason"}),
		deadLetters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "dead_letters_total",
			Help:      "Tiles abandoned after exhausting retries",
		}),
		finalEdges: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harvest",
			Name:      "final_tile_edge_meters",
			Help:      "Edge length of resolved tiles",
			Buckets:   prometheus.ExponentialBuckets(1.25, 2, 12),
		}),
	}
}

// Outcome counts one classified search outcome.
func (r *Recorder) Outcome(kind string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(kind).Inc()
}

// Calls counts n search requests.
func (r *Recorder) Calls(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.calls.Add(float64(n))
}

// Records counts emitted records.
func (r *Recorder) Records(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.records.Add(float64(n))
}

// DroppedHit counts a discarded hit.
func (r *Recorder) DroppedHit(reason string) {
	if r == nil {
		return
	}
	r.droppedHits.WithLabelValues(reason).Inc()
}

// Pause counts a retry wait.
func (r *Recorder) Pause(reason string, d time.Duration) {
	if r == nil {
		return
	}
	r.pauses.WithLabelValues(reason).Inc()
	r.pauseTime.WithLabelValues(reason).Add(d.Seconds())
}

// DeadLetter counts an abandoned tile.
func (r *Recorder) DeadLetter() {
	if r == nil {
		return
	}
	r.deadLetters.Inc()
}

// FinalEdge observes the edge of a resolved tile.
func (r *Recorder) FinalEdge(edge float64) {
	if r == nil {
		return
	}
	r.finalEdges.Observe(edge)
}

// WriteTextfile writes the registry in the text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return eris.Wrapf(err, "metrics: write %s", path)
	}
	return nil
}
