package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/crm/internal/clock"
	"github.com/smallbiznis/crm/internal/config"
	customerrepo "github.com/smallbiznis/crm/internal/customer/repository"
	customerservice "github.com/smallbiznis/crm/internal/customer/service"
	"github.com/smallbiznis/crm/internal/dbtest"
	obsmetrics "github.com/smallbiznis/crm/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
	orderrepo "github.com/smallbiznis/crm/internal/order/repository"
	orderservice "github.com/smallbiznis/crm/internal/order/service"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	productrepo "github.com/smallbiznis/crm/internal/product/repository"
	productservice "github.com/smallbiznis/crm/internal/product/service"
	"github.com/smallbiznis/crm/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var startTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sched    *Scheduler
	seed     seed.Params
	clk      *clock.FakeClock
	registry *prometheus.Registry
	dir      string
	jobs     config.JobsConfig
}

type fixtureOption func(*Params)

func withLocker(l JobLocker) fixtureOption {
	return func(p *Params) { p.Locker = l }
}

func withEnabledJobs(jobs ...string) fixtureOption {
	return func(p *Params) { p.Config.EnabledJobs = jobs }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	conn := dbtest.Open(t)
	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(startTime)
	dir := t.TempDir()

	jobs := config.DefaultJobsConfig()
	jobs.Heartbeat.LogPath = filepath.Join(dir, "heartbeat.txt")
	jobs.LowStock.LogPath = filepath.Join(dir, "low_stock.txt")
	jobs.OrderReminders.LogPath = filepath.Join(dir, "reminders.txt")
	jobs.Report.LogPath = filepath.Join(dir, "report.txt")

	customers := customerrepo.Provide()
	products := productrepo.Provide()
	sp := seed.Params{
		DB:  conn,
		Log: log,
		Customers: customerservice.New(customerservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: customers,
		}),
		Products: productservice.New(productservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk, Repo: products,
		}),
		Orders: orderservice.New(orderservice.Params{
			DB: conn, Log: log, GenID: node, Clock: clk,
			Repo: orderrepo.Provide(), CustomerRepo: customers, ProductRepo: products,
		}),
	}

	registry := prometheus.NewRegistry()
	p := Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Jobs:      config.NewStaticJobsConfigHolder(jobs),
		Customers: sp.Customers,
		Products:  sp.Products,
		Orders:    sp.Orders,
		Metrics:   obsmetrics.NewSchedulerMetricsForTest(registry),
	}
	for _, opt := range opts {
		opt(&p)
	}
	sched, err := New(p)
	require.NoError(t, err)

	return &fixture{sched: sched, seed: sp, clk: clk, registry: registry, dir: dir, jobs: jobs}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(body), "\n"), "\n")
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHeartbeatAppendsAliveLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.RunJob(ctx, JobHeartbeat))
	f.clk.Advance(5 * time.Minute)
	require.NoError(t, f.sched.RunJob(ctx, JobHeartbeat))

	assert.Equal(t, []string{
		"10/03/2024-12:00:00 CRM is alive",
		"10/03/2024-12:05:00 CRM is alive",
	}, readLines(t, f.jobs.Heartbeat.LogPath))
}

func TestHeartbeatKeepsLineWhenDatabaseIsDown(t *testing.T) {
	f := newFixture(t)
	sqlDB, err := f.sched.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	require.NoError(t, f.sched.RunJob(context.Background(), JobHeartbeat))
	assert.Equal(t, []string{"10/03/2024-12:00:00 CRM is alive"}, readLines(t, f.jobs.Heartbeat.LogPath))
}

func TestLowStockRestocksAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stock := 3
	res, err := f.seed.Products.Create(ctx, productdomain.CreateProductRequest{Name: "Cable", Price: "4.99", Stock: &stock})
	require.NoError(t, err)
	require.True(t, res.OK)
	full := 50
	_, err = f.seed.Products.Create(ctx, productdomain.CreateProductRequest{Name: "Desk", Price: "120", Stock: &full})
	require.NoError(t, err)

	require.NoError(t, f.sched.RunJob(ctx, JobLowStock))
	assert.Equal(t, []string{"10/03/2024-12:00:00 Updated: Cable -> stock 13"}, readLines(t, f.jobs.LowStock.LogPath))

	got, err := f.seed.Products.Get(ctx, res.Product.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 13, got.Stock)
}

func TestLowStockWithNothingToRestockWritesNothing(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sched.RunJob(context.Background(), JobLowStock))
	assert.Empty(t, readLines(t, f.jobs.LowStock.LogPath))
}

func TestOrderRemindersUseLookbackWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := seed.Demo(ctx, f.seed, false)
	require.NoError(t, err)
	recent, err := f.seed.Orders.List(ctx, orderdomain.ListOrderRequest{})
	require.NoError(t, err)
	require.Len(t, recent.Edges, 1)
	order := recent.Edges[0].Node

	old := startTime.AddDate(0, 0, -30)
	stale, err := f.seed.Orders.Create(ctx, orderdomain.CreateOrderRequest{
		CustomerID: order.CustomerID.String(),
		ProductIDs: []string{order.Products[0].ID.String()},
		OrderDate:  &old,
	})
	require.NoError(t, err)
	require.True(t, stale.OK)

	require.NoError(t, f.sched.RunJob(ctx, JobOrderReminders))
	assert.Equal(t, []string{
		"10/03/2024-12:00:00 Reminder for order " + order.ID.String() + " -> alice@example.com",
	}, readLines(t, f.jobs.OrderReminders.LogPath))
}

func TestReportWritesSummaryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := seed.Demo(ctx, f.seed, false)
	require.NoError(t, err)

	require.NoError(t, f.sched.RunJob(ctx, JobCRMReport))
	assert.Equal(t, []string{
		"2024-03-10 12:00:00 - Report: 2 customers, 1 orders, $1025.49 revenue",
	}, readLines(t, f.jobs.Report.LogPath))

	summary, err := f.seed.Orders.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Revenue.Equal(decimal.RequireFromString("1025.49")))
}

func TestReportWritesPDFWhenConfigured(t *testing.T) {
	f := newFixture(t)
	jobs := f.jobs
	jobs.Report.PDFDir = filepath.Join(f.dir, "pdf")
	f.sched.jobsCfg = config.NewStaticJobsConfigHolder(jobs)

	require.NoError(t, f.sched.RunJob(context.Background(), JobCRMReport))

	entries, err := os.ReadDir(jobs.Report.PDFDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "crm_report_20240310_120000.pdf", entries[0].Name())
}

func TestRunJobUnknown(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.sched.RunJob(context.Background(), "nope"), ErrUnknownJob)
}

func TestRunOnceHonoursIntervals(t *testing.T) {
	f := newFixture(t, withEnabledJobs(JobHeartbeat, JobCRMReport))
	ctx := context.Background()

	require.NoError(t, f.sched.RunOnce(ctx))
	f.clk.Advance(time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))
	f.clk.Advance(4 * time.Minute)
	require.NoError(t, f.sched.RunOnce(ctx))

	assert.Len(t, readLines(t, f.jobs.Heartbeat.LogPath), 2)
	assert.Len(t, readLines(t, f.jobs.Report.LogPath), 1)
	assert.Empty(t, readLines(t, f.jobs.LowStock.LogPath))

	assert.Equal(t, 2.0, counterValue(t, f.registry, "crm_scheduler_job_runs_total", map[string]string{
		"service": "crm", "env": "test", "job": JobHeartbeat,
	}))
	assert.Equal(t, 0.0, counterValue(t, f.registry, "crm_scheduler_job_runs_total", map[string]string{
		"service": "crm", "env": "test", "job": JobLowStock,
	}))
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	f := newFixture(t)

	err := f.sched.runJob(context.Background(), job{
		name:     "timeout_job",
		interval: time.Minute,
		timeout:  5 * time.Millisecond,
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "crm", "env": "test", "job": "timeout_job"}
	assert.Equal(t, 1.0, counterValue(t, f.registry, "crm_scheduler_job_timeouts_total", labels))
	assert.Equal(t, 1.0, counterValue(t, f.registry, "crm_scheduler_job_errors_total", map[string]string{
		"service": "crm", "env": "test", "job": "timeout_job",
		"reason": obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}))
}

func TestRunJobWrapsErrors(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.sched.runJob(context.Background(), job{
		name:     "failing_job",
		interval: time.Minute,
		timeout:  time.Second,
		run:      func(context.Context) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "failing_job: boom")
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	err      error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := "token-" + key
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released = append(l.released, key)
	}
	return nil
}

func TestLockHeldElsewhereSkipsJob(t *testing.T) {
	locker := newFakeLocker()
	locker.held[lockKey(JobHeartbeat)] = "other-replica"
	f := newFixture(t, withLocker(locker))

	require.NoError(t, f.sched.RunJob(context.Background(), JobHeartbeat))
	assert.Empty(t, readLines(t, f.jobs.Heartbeat.LogPath))
	assert.Equal(t, 1.0, counterValue(t, f.registry, "crm_scheduler_job_skipped_total", map[string]string{
		"service": "crm", "env": "test", "job": JobHeartbeat,
	}))
}

func TestLockKeptOnSuccessReleasedOnFailure(t *testing.T) {
	locker := newFakeLocker()
	f := newFixture(t, withLocker(locker))
	ctx := context.Background()

	require.NoError(t, f.sched.RunJob(ctx, JobHeartbeat))
	assert.Contains(t, locker.held, lockKey(JobHeartbeat))

	err := f.sched.runJob(ctx, job{
		name:     "failing_job",
		interval: time.Minute,
		timeout:  time.Second,
		run:      func(context.Context) error { return errors.New("boom") },
	})
	require.Error(t, err)
	assert.Equal(t, []string{lockKey("failing_job")}, locker.released)
}

func TestLockBackendErrorRunsUnlocked(t *testing.T) {
	locker := newFakeLocker()
	locker.err = errors.New("connection refused")
	f := newFixture(t, withLocker(locker))

	require.NoError(t, f.sched.RunJob(context.Background(), JobHeartbeat))
	assert.Len(t, readLines(t, f.jobs.Heartbeat.LogPath), 1)
}

func TestIsJobEnabled(t *testing.T) {
	s := &Scheduler{}
	assert.True(t, s.isJobEnabled(JobLowStock))

	s.cfg.EnabledJobs = []string{JobHeartbeat}
	assert.True(t, s.isJobEnabled(JobHeartbeat))
	assert.False(t, s.isJobEnabled(JobLowStock))
}

func TestAppendLinesCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "log.txt")
	require.NoError(t, appendLines(path, "one"))
	require.NoError(t, appendLines(path, "two", "three"))
	assert.Equal(t, []string{"one", "two", "three"}, readLines(t, path))
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
