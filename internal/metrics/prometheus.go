// Package metrics exposes netsweep's Prometheus collectors.
// A single PrometheusMetrics instance owns its own registry so tests can
// build isolated instances without touching the global default.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "netsweep"

	subsystemSweep    = "sweep"
	subsystemProbe    = "probe"
	subsystemPorts    = "ports"
	subsystemWorkers  = "workers"
	subsystemDatabase = "database"
	subsystemAPI      = "api"
)

// PrometheusMetrics holds all Prometheus metric collectors.
type PrometheusMetrics struct {
	// Sweep metrics
	sweepsTotal   *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	sweepRejected prometheus.Counter
	activeSweeps  prometheus.Gauge
	devicesFound  prometheus.Gauge

	// Probe metrics
	probesTotal *prometheus.CounterVec
	probeRTT    prometheus.Histogram

	// Port metrics
	portsChecked *prometheus.CounterVec

	// Worker metrics
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  prometheus.Gauge

	// Database metrics
	dbErrors *prometheus.CounterVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	wsClients    prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new metrics instance with its own registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{registry: prometheus.NewRegistry()}

	pm.initSweepMetrics()
	pm.initWorkerMetrics()
	pm.initAPIMetrics()

	pm.registry.MustRegister(
		pm.sweepsTotal, pm.sweepDuration, pm.sweepRejected, pm.activeSweeps, pm.devicesFound,
		pm.probesTotal, pm.probeRTT, pm.portsChecked,
		pm.jobsTotal, pm.jobDuration, pm.queueDepth,
		pm.dbErrors,
		pm.httpRequests, pm.httpDuration, pm.wsClients,
	)
	pm.registry.MustRegister(collectors.NewGoCollector())
	pm.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initSweepMetrics() {
	pm.sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSweep,
			Name:      "total",
			Help:      "Sweeps run, by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)
	pm.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemSweep,
		Name:      "duration_seconds",
		Help:      "Wall time of completed sweeps",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	})
	pm.sweepRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemSweep,
		Name:      "rejected_total",
		Help:      "Sweep requests rejected because another sweep was running",
	})
	pm.activeSweeps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemSweep,
		Name:      "active",
		Help:      "1 while a sweep is running",
	})
	pm.devicesFound = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemSweep,
		Name:      "last_devices_found",
		Help:      "Live hosts found by the most recent sweep",
	})

	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Liveness probes sent, by method and result",
		},
		[]string{"method", "result"},
	)
	pm.probeRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemProbe,
		Name:      "rtt_seconds",
		Help:      "Round-trip time of successful liveness probes",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	pm.portsChecked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemPorts,
			Name:      "checked_total",
			Help:      "TCP ports checked, by state",
		},
		[]string{"state"},
	)

	pm.dbErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemDatabase,
			Name:      "errors_total",
			Help:      "Database errors by operation",
		},
		[]string{"operation"},
	)
}

func (pm *PrometheusMetrics) initWorkerMetrics() {
	pm.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemWorkers,
			Name:      "jobs_total",
			Help:      "Jobs executed by the worker pool, by type and status",
		},
		[]string{"job_type", "status"},
	)
	pm.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemWorkers,
			Name:      "job_duration_seconds",
			Help:      "Job execution time",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)
	pm.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemWorkers,
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker",
	})
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)
	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	pm.wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemAPI,
		Name:      "event_clients",
		Help:      "Connected event-stream clients",
	})
}

// Registry returns the Prometheus registry backing this instance.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordSweep records a finished sweep.
func (pm *PrometheusMetrics) RecordSweep(trigger, status string, duration time.Duration, devices int) {
	pm.sweepsTotal.WithLabelValues(trigger, status).Inc()
	if status == "completed" {
		pm.sweepDuration.Observe(duration.Seconds())
		pm.devicesFound.Set(float64(devices))
	}
}

// IncrementSweepRejected counts a rejected overlapping sweep request.
func (pm *PrometheusMetrics) IncrementSweepRejected() {
	pm.sweepRejected.Inc()
}

// SetSweepActive flips the active-sweep gauge.
func (pm *PrometheusMetrics) SetSweepActive(active bool) {
	if active {
		pm.activeSweeps.Set(1)
		return
	}
	pm.activeSweeps.Set(0)
}

// RecordProbe records one liveness probe outcome.
func (pm *PrometheusMetrics) RecordProbe(method string, alive bool, rtt time.Duration) {
	result := "offline"
	if alive {
		result = "alive"
		if rtt > 0 {
			pm.probeRTT.Observe(rtt.Seconds())
		}
	}
	pm.probesTotal.WithLabelValues(method, result).Inc()
}

// RecordPort records one TCP port check.
func (pm *PrometheusMetrics) RecordPort(open bool) {
	state := "closed"
	if open {
		state = "open"
	}
	pm.portsChecked.WithLabelValues(state).Inc()
}

// RecordJob records a worker pool job.
func (pm *PrometheusMetrics) RecordJob(jobType string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pm.jobsTotal.WithLabelValues(jobType, status).Inc()
	pm.jobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// SetQueueDepth reports how many jobs are queued.
func (pm *PrometheusMetrics) SetQueueDepth(n int) {
	pm.queueDepth.Set(float64(n))
}

// IncrementDatabaseErrors counts a failed repository call.
func (pm *PrometheusMetrics) IncrementDatabaseErrors(operation string) {
	pm.dbErrors.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records one served request.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	pm.httpRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
	pm.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetEventClients reports connected event-stream clients.
func (pm *PrometheusMetrics) SetEventClients(n int) {
	pm.wsClients.Set(float64(n))
}

var (
	globalMetrics *PrometheusMetrics
	metricsOnce   sync.Once
)

// GetGlobalMetrics returns the process-wide metrics instance.
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}

// Timer measures an operation and hands the elapsed time to a callback.
type Timer struct {
	start  time.Time
	record func(time.Duration)
}

// NewTimer starts a timer.
func NewTimer(record func(time.Duration)) *Timer {
	return &Timer{start: time.Now(), record: record}
}

// Stop records and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.record != nil {
		t.record(d)
	}
	return d
}
