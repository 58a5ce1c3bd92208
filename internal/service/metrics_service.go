package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/noah-isme/course-feedback-api/internal/models"
	appErrors "github.com/noah-isme/course-feedback-api/pkg/errors"
)

// MetricsService encapsulates Prometheus instrumentation for batch runs. Collected values are
// pushed to a Pushgateway because the process exits before any scrape could happen.
type MetricsService struct {
	registry           *prometheus.Registry
	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	lastSuccess        *prometheus.GaugeVec
	enrollmentsCreated prometheus.Counter
	enrollmentsSkipped prometheus.Counter
	studentsAdvanced   prometheus.Counter
	studentErrors      prometheus.Counter

	pushURL string
	jobName string
}

// NewMetricsService registers the batch collectors. An empty pushURL disables Push.
func NewMetricsService(pushURL, jobName string) *MetricsService {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "period_transition_runs_total",
		Help: "Total number of transition and advancement runs",
	}, []string{"operation", "mode", "outcome"})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "period_transition_run_duration_seconds",
		Help:    "Duration of transition and advancement runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "period_transition_last_success_timestamp_seconds",
		Help: "Unix time of the last successful execute-mode run",
	}, []string{"operation"})

	enrollmentsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "period_transition_enrollments_created_total",
		Help: "Enrollments written into target periods",
	})

	enrollmentsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "period_transition_enrollments_skipped_total",
		Help: "Enrollments skipped because they already existed in the target period",
	})

	studentsAdvanced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "period_transition_students_advanced_total",
		Help: "Students whose year level was advanced",
	})

	studentErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "period_transition_student_errors_total",
		Help: "Per-student advancement failures",
	})

	registry.MustRegister(runs, runDuration, lastSuccess, enrollmentsCreated, enrollmentsSkipped, studentsAdvanced, studentErrors)

	if jobName == "" {
		jobName = "period_transition"
	}

	return &MetricsService{
		registry:           registry,
		runs:               runs,
		runDuration:        runDuration,
		lastSuccess:        lastSuccess,
		enrollmentsCreated: enrollmentsCreated,
		enrollmentsSkipped: enrollmentsSkipped,
		studentsAdvanced:   studentsAdvanced,
		studentErrors:      studentErrors,
		pushURL:            pushURL,
		jobName:            jobName,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTransition records the outcome of an enrollment transition.
func (m *MetricsService) ObserveTransition(dryRun bool, summary *models.TransitionSummary, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.observeRun("transition", dryRun, err, duration)
	if summary == nil || dryRun {
		return
	}
	m.enrollmentsCreated.Add(float64(summary.EnrollmentsCreated))
	m.enrollmentsSkipped.Add(float64(summary.EnrollmentsSkipped))
}

// ObserveAdvancement records the outcome of a year-level advancement.
func (m *MetricsService) ObserveAdvancement(dryRun bool, summary *models.AdvancementSummary, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.observeRun("advancement", dryRun, err, duration)
	if summary == nil || dryRun {
		return
	}
	m.studentsAdvanced.Add(float64(summary.Advanced))
	m.studentErrors.Add(float64(len(summary.Errors)))
}

func (m *MetricsService) observeRun(operation string, dryRun bool, err error, duration time.Duration) {
	mode := "execute"
	if dryRun {
		mode = "dry_run"
	}
	outcome := "success"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	m.runs.WithLabelValues(operation, mode, outcome).Inc()
	m.runDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err == nil && !dryRun {
		m.lastSuccess.WithLabelValues(operation).SetToCurrentTime()
	}
}

// Push sends the collected metrics to the configured Pushgateway.
func (m *MetricsService) Push(ctx context.Context) error {
	if m == nil || m.pushURL == "" {
		return nil
	}
	return push.New(m.pushURL, m.jobName).Gatherer(m.registry).PushContext(ctx)
}
