package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creddispatcher",
			Name:      "jobs_total",
			Help:      "Jobs finished by terminal state (completed, failed, cancelled)",
		},
		[]string{"state"},
	)

	downloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creddispatcher",
			Name:      "download_bytes_total",
			Help:      "Total bytes fetched by the download engine",
		},
	)

	downloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "creddispatcher",
			Name:      "download_duration_seconds",
			Help:      "Duration of completed downloads",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	extractDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "creddispatcher",
			Name:      "extract_duration_seconds",
			Help:      "Duration of credential extraction runs",
			Buckets:   prometheus.DefBuckets,
		},
	)

	credentialsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creddispatcher",
			Name:      "credentials_total",
			Help:      "Credential pairs produced across all jobs",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "creddispatcher",
			Name:      "queue_depth",
			Help:      "Queue depth gauges for pending and active jobs",
		},
		[]string{"state"},
	)

	progressEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creddispatcher",
			Name:      "progress_events_total",
			Help:      "Progress samples delivered to submitters",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(jobsTotal, downloadBytes, downloadDuration, extractDuration, credentialsTotal, queueDepth, progressEvents)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncJob(state string) { jobsTotal.WithLabelValues(state).Inc() }

func AddDownloadBytes(n int) { downloadBytes.Add(float64(n)) }

func ObserveDownload(d time.Duration) { downloadDuration.Observe(d.Seconds()) }

func ObserveExtract(d time.Duration) { extractDuration.Observe(d.Seconds()) }

func AddCredentials(n int) { credentialsTotal.Add(float64(n)) }

func SetQueueDepth(state string, v int64) { queueDepth.WithLabelValues(state).Set(float64(v)) }

func IncProgressEvent() { progressEvents.Inc() }
