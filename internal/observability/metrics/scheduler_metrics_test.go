package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("household 4: %w", context.DeadlineExceeded), want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "other_pg", err: &pgconn.PgError{Code: "42P01"}, want: SchedulerJobReasonDB},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	assert.True(t, IsSchedulerErrorRetryable(context.DeadlineExceeded))
	assert.True(t, IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsSchedulerErrorRetryable(gorm.ErrDuplicatedKey))
	assert.False(t, IsSchedulerErrorRetryable(nil))
}

func TestSchedulerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "homekeep", Environment: "test"})

	m.AddItemsProcessed("suggestion_sweep", "households", 3)
	m.AddItemsProcessed("suggestion_sweep", "households", 0)
	m.IncJobError("suggestion_sweep", &pgconn.PgError{Code: "55P03"})
	m.IncJobSkipped("suggestion_sweep", SchedulerSkipReasonOverlap)
	m.ObserveRunLoopLag(-time.Second)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.itemsProcessed.WithLabelValues("suggestion_sweep", "households")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobErrors.WithLabelValues("suggestion_sweep", SchedulerJobReasonDBLockTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobSkipped.WithLabelValues("suggestion_sweep", SchedulerSkipReasonOverlap)))

	var nilMetrics *SchedulerMetrics
	nilMetrics.IncJobRun("noop")
	nilMetrics.MarkJobSuccess("noop", time.Now())
}
