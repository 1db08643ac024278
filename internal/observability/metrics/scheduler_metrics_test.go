package metrics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
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
		{name: "wrapped_deadline", err: fmt.Errorf("low_stock: %w", context.DeadlineExceeded), want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "db", err: gorm.ErrInvalidDB, want: SchedulerJobReasonDB},
		{name: "io", err: &fs.PathError{Op: "open", Path: "/tmp/x", Err: fs.ErrPermission}, want: SchedulerJobReasonIO},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestSchedulerCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetricsForTest(registry)

	m.IncJobRun("heartbeat")
	m.IncJobRun("heartbeat")
	m.AddBatchProcessed("low_stock", "products", 3)
	m.AddBatchProcessed("low_stock", "products", 0)
	m.IncJobError("low_stock", context.DeadlineExceeded)
	m.SetLastSuccess("heartbeat", time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("heartbeat")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.batchProcessed.WithLabelValues("low_stock", "products")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobErrors.WithLabelValues("low_stock", SchedulerJobReasonDeadlineExceeded)))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSuccess.WithLabelValues("heartbeat")))
}

func TestHTTPMetricsReuseRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := newHTTPMetrics(registry, Config{})
	assert.NoError(t, err)
	second, err := newHTTPMetrics(registry, Config{})
	assert.NoError(t, err)
	assert.Same(t, first.requests, second.requests)
}
