// Package metrics exposes pipeline run counters over Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"clipgif/internal/pipeline"
	"clipgif/internal/progress"
	"clipgif/internal/services"
)

// Collector holds the run metrics and implements pipeline.Observer.
type Collector struct {
	RunsTotal     *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	FramesTotal   prometheus.Counter
	OutputBytes   prometheus.Histogram
	ActiveRuns    prometheus.Gauge
	RunProgress   prometheus.Gauge
}

// NewCollector registers the metrics with reg. A nil reg uses the default
// registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipgif_runs_total",
			Help: "Total number of capture runs, by outcome",
		}, []string{"outcome"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clipgif_run_failures_total",
			Help: "Failed runs by failure kind",
		}, []string{"kind"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipgif_run_duration_seconds",
			Help:    "Wall time from start to terminal event",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		FramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "clipgif_frames_captured_total",
			Help: "Total number of frames handed to encoders",
		}),
		OutputBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clipgif_output_bytes",
			Help:    "Size of rendered GIFs",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clipgif_active_runs",
			Help: "Number of runs currently in progress",
		}),
		RunProgress: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clipgif_run_progress_ratio",
			Help: "Combined progress of the active run",
		}),
	}
}

func (c *Collector) Started(pipeline.RunInfo) {
	c.ActiveRuns.Inc()
	c.RunProgress.Set(0)
}

func (c *Collector) Progress(_ progress.Status, percent float64) {
	c.RunProgress.Set(percent / 100)
}

func (c *Collector) Completed(res pipeline.Result) {
	c.OutputBytes.Observe(float64(len(res.Blob)))
	c.finish(res)
}

func (c *Collector) Aborted(res pipeline.Result) {
	c.finish(res)
}

func (c *Collector) Failed(res pipeline.Result) {
	c.FailuresTotal.WithLabelValues(string(services.FailureKind(res.Err))).Inc()
	c.finish(res)
}

func (c *Collector) finish(res pipeline.Result) {
	outcome := res.Outcome.String()
	c.ActiveRuns.Dec()
	c.RunsTotal.WithLabelValues(outcome).Inc()
	c.RunDuration.WithLabelValues(outcome).Observe(res.Elapsed.Seconds())
	c.FramesTotal.Add(float64(res.Frames))
}
