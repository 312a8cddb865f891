package service

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/exam-scheduler/internal/dto"
)

// MetricsService encapsulates Prometheus instrumentation for scheduling runs
// and provides lightweight snapshots for batch summaries.
type MetricsService struct {
	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	searchNodes   prometheus.Histogram
	examsAssigned prometheus.Counter

	runCount      uint64
	runDurationNs uint64
	solvedCount   uint64
	failedCount   uint64
}

// NewMetricsService registers scheduler collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_scheduler_runs_total",
		Help: "Scheduling runs by solver verdict",
	}, []string{"verdict"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exam_scheduler_run_duration_seconds",
		Help:    "Wall time spent building and solving a scheduling run",
		Buckets: prometheus.DefBuckets,
	})

	searchNodes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "exam_scheduler_search_nodes",
		Help:    "Search nodes explored per run",
		Buckets: prometheus.ExponentialBuckets(1, 10, 8),
	})

	examsAssigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_scheduler_exams_scheduled_total",
		Help: "Exams placed by successful runs",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(runsTotal, runDuration, searchNodes, examsAssigned, goroutines)

	return &MetricsService{
		registry:      registry,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		searchNodes:   searchNodes,
		examsAssigned: examsAssigned,
	}
}

// Registry exposes the underlying gatherer.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile dumps the current metrics in text exposition format, for the
// node exporter textfile collector.
func (m *MetricsService) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ObserveSchedulerRun records one run.
func (m *MetricsService) ObserveSchedulerRun(verdict string, elapsed time.Duration, nodes int64, scheduled int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(verdict).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.searchNodes.Observe(float64(nodes))
	atomic.AddUint64(&m.runCount, 1)
	atomic.AddUint64(&m.runDurationNs, uint64(elapsed.Nanoseconds()))
	if scheduled > 0 {
		m.examsAssigned.Add(float64(scheduled))
		atomic.AddUint64(&m.solvedCount, 1)
	} else {
		atomic.AddUint64(&m.failedCount, 1)
	}
}

// Snapshot returns aggregated run statistics.
func (m *MetricsService) Snapshot() dto.SchedulerMetricsSnapshot {
	if m == nil {
		return dto.SchedulerMetricsSnapshot{}
	}
	runs := atomic.LoadUint64(&m.runCount)
	total := atomic.LoadUint64(&m.runDurationNs)

	var avgMs float64
	if runs > 0 {
		avgMs = float64(total) / float64(runs) / float64(time.Millisecond)
	}

	return dto.SchedulerMetricsSnapshot{
		Runs:         runs,
		Solved:       atomic.LoadUint64(&m.solvedCount),
		Failed:       atomic.LoadUint64(&m.failedCount),
		AverageRunMs: avgMs,
		Goroutines:   runtime.NumGoroutine(),
		GeneratedAt:  time.Now().UTC(),
	}
}
