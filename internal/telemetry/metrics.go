package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobs_started_total", Help: "Jobs accepted and started, by class"},
		[]string{"class"},
	)
	JobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobs_finished_total", Help: "Jobs settled, by class and outcome"},
		[]string{"class", "outcome"},
	)
	JobConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jobs_conflict_rejects_total", Help: "Start requests rejected because a job was already running"},
		[]string{"class"},
	)
	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_duration_seconds",
			Help:    "Wall time of external worker processes",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"script"},
	)
	RecordsInserted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "records_inserted_total", Help: "KPI records newly inserted"})
	RecordsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{Name: "records_duplicate_total", Help: "KPI records skipped as duplicates"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsStarted,
			JobsFinished,
			JobConflicts,
			WorkerDuration,
			RecordsInserted,
			RecordsDuplicate,
		)
	})
	return promhttp.Handler()
}
