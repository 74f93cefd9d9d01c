package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonDB                   = "db"
	SchedulerJobReasonUnknown              = "unknown"
)

const (
	SchedulerSkipReasonOverlap  = "overlap"
	SchedulerSkipReasonDisabled = "tracking_disabled"
)

// SchedulerMetrics captures background job health on the Prometheus registry.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobSkipped     *prometheus.CounterVec
	itemsProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer
	lastSuccess    *prometheus.GaugeVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton, creating it with cfg labels on first use.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = NewSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// NewSchedulerMetrics registers a fresh set of collectors on registerer.
func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "homekeep"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "homekeep_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "homekeep_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "homekeep_scheduler_job_timeouts_total",
		Help:        "Scheduler job timeouts.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "homekeep_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "homekeep_scheduler_job_skipped_total",
		Help:        "Scheduler work skipped by reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	itemsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "homekeep_scheduler_items_processed_total",
		Help:        "Items handled by scheduler jobs, per resource.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "homekeep_scheduler_runloop_lag_seconds",
		Help:        "Delay between the scheduled tick and the actual job start.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "homekeep_scheduler_last_success_timestamp_seconds",
		Help:        "Unix time of the last successful run per job.",
		ConstLabels: constLabels,
	}, []string{"job"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		jobSkipped,
		itemsProcessed,
		runLoopLag,
		lastSuccess,
	)

	return &SchedulerMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		jobSkipped:     jobSkipped,
		itemsProcessed: itemsProcessed,
		runLoopLag:     runLoopLag,
		lastSuccess:    lastSuccess,
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError counts a failed job or item under its classified reason.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.jobSkipped.WithLabelValues(job, reason).Inc()
}

// AddItemsProcessed adds count to the processed counter of job and resource.
func (m *SchedulerMetrics) AddItemsProcessed(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// ObserveRunLoopLag records how late a tick started. Negative lag counts as zero.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(max(duration, 0).Seconds())
}

func (m *SchedulerMetrics) MarkJobSuccess(job string, at time.Time) {
	if m == nil {
		return
	}
	m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
}

// ClassifySchedulerJobReason maps job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return SchedulerJobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return SchedulerJobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return SchedulerJobReasonUniqueViolation
	case isDBError(err):
		return SchedulerJobReasonDB
	default:
		return SchedulerJobReasonUnknown
	}
}

// IsSchedulerErrorRetryable reports whether a later tick may succeed where this one failed.
func IsSchedulerErrorRetryable(err error) bool {
	switch ClassifySchedulerJobReason(err) {
	case SchedulerJobReasonDeadlineExceeded, SchedulerJobReasonDBLockTimeout, SchedulerJobReasonSerializationFailure:
		return true
	}
	return false
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
