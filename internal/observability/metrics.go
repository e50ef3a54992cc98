package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels used by resolution counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Cache lookup labels.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics mengumpulkan metrik Prometheus untuk resolusi otorisasi.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	resolutionsTotal  *prometheus.CounterVec
	superManagerTotal prometheus.Counter
	hierarchyFailures prometheus.Counter
	catalogLookups    *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_resolutions_total",
		Help: "Jumlah resolusi otorisasi berdasarkan operasi dan hasil.",
	}, []string{"op", "outcome"})
	superManager := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_super_manager_resolutions_total",
		Help: "Jumlah resolusi yang memakai katalog penuh karena peran super manager.",
	})
	hierarchy := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_hierarchy_failures_total",
		Help: "Jumlah hierarki modul yang tidak berujung (siklus).",
	})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_catalog_cache_lookups_total",
		Help: "Jumlah pencarian cache katalog berdasarkan hasil.",
	}, []string{"result"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authz_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	registry.MustRegister(resolutions, superManager, hierarchy, lookups, runs, duration)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		resolutionsTotal:  resolutions,
		superManagerTotal: superManager,
		hierarchyFailures: hierarchy,
		catalogLookups:    lookups,
		jobRuns:           runs,
		jobDuration:       duration,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveResolution mencatat satu resolusi untuk operasi tertentu.
func (m *Metrics) ObserveResolution(op string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.resolutionsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveSuperManager mencatat resolusi jalur super manager.
func (m *Metrics) ObserveSuperManager() {
	if m == nil {
		return
	}
	m.superManagerTotal.Inc()
}

// ObserveHierarchyFailure mencatat siklus pada rantai modul induk.
func (m *Metrics) ObserveHierarchyFailure() {
	if m == nil {
		return
	}
	m.hierarchyFailures.Inc()
}

// ObserveCacheLookup mencatat hasil pencarian cache katalog.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.catalogLookups.WithLabelValues(result).Inc()
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and status and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.jobRuns.WithLabelValues(t.job, status).Inc()
	t.metrics.jobDuration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}
