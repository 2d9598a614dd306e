package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/simple-imagegen/internal/job"
)

// Metrics exports queue activity to Prometheus.
type Metrics struct {
	Submitted prometheus.Counter
	Finished  *prometheus.CounterVec
	Jobs      *prometheus.GaugeVec
	Duration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "imagegen_jobs_submitted_total",
			Help: "Total number of generation jobs submitted",
		}),
		Finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imagegen_jobs_finished_total",
			Help: "Total number of generation jobs that reached a terminal status",
		}, []string{"status"}),
		Jobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imagegen_jobs",
			Help: "Current number of jobs per status",
		}, []string{"status"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "imagegen_generation_duration_seconds",
			Help:    "Time from a job starting generation to its terminal status",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
	}
}

// Observe is a Listener.
func (m *Metrics) Observe(j job.Job, prev job.Status) {
	if prev == "" {
		m.Submitted.Inc()
	} else {
		m.Jobs.WithLabelValues(string(prev)).Dec()
	}
	m.Jobs.WithLabelValues(string(j.Status)).Inc()

	if !j.Status.Terminal() {
		return
	}
	m.Finished.WithLabelValues(string(j.Status)).Inc()
	if prev == job.StatusGenerating {
		m.Duration.Observe(elapsed(j).Seconds())
	}
}
