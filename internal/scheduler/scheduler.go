package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/crm/internal/clock"
	"github.com/smallbiznis/crm/internal/config"
	customerdomain "github.com/smallbiznis/crm/internal/customer/domain"
	obsmetrics "github.com/smallbiznis/crm/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/crm/internal/order/domain"
	productdomain "github.com/smallbiznis/crm/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobHeartbeat      = "heartbeat"
	JobLowStock       = "low_stock"
	JobOrderReminders = "order_reminders"
	JobCRMReport      = "crm_report"
)

var (
	ErrInvalidConfig = errors.New("scheduler: invalid config")
	ErrUnknownJob    = errors.New("scheduler: unknown job")
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Jobs      *config.JobsConfigHolder
	Customers customerdomain.Service
	Products  productdomain.Service
	Orders    orderdomain.Service
	Config    Config                       `optional:"true"`
	Locker    JobLocker                    `optional:"true"`
	Metrics   *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	jobsCfg   *config.JobsConfigHolder
	customers customerdomain.Service
	products  productdomain.Service
	orders    orderdomain.Service
	locker    JobLocker
	metrics   *obsmetrics.SchedulerMetrics

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// job is one scheduled task resolved against the current jobs config.
type job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) error
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Jobs == nil ||
		p.Customers == nil || p.Products == nil || p.Orders == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		jobsCfg:   p.Jobs,
		customers: p.Customers,
		products:  p.Products,
		orders:    p.Orders,
		locker:    p.Locker,
		metrics:   metrics,
		lastRun:   make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) jobs() []job {
	cfg := s.jobsCfg.Get()
	return []job{
		{JobHeartbeat, cfg.Heartbeat.Interval, cfg.Heartbeat.Timeout, s.heartbeatJob(cfg.Heartbeat)},
		{JobLowStock, cfg.LowStock.Interval, cfg.LowStock.Timeout, s.lowStockJob(cfg.LowStock)},
		{JobOrderReminders, cfg.OrderReminders.Interval, cfg.OrderReminders.Timeout, s.orderRemindersJob(cfg.OrderReminders)},
		{JobCRMReport, cfg.Report.Interval, cfg.Report.Timeout, s.reportJob(cfg.Report)},
	}
}

func (s *Scheduler) runJob(parent context.Context, j job) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, j.timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, j.name)

	if s.locker != nil {
		key := lockKey(j.name)
		token, ok, err := s.locker.TryLock(ctx, key, j.interval)
		switch {
		case err != nil:
			// Redis being down should not stop the jobs of a single node.
			s.logger(ctx).Warn("job lock unavailable, running unlocked", zap.Error(err))
		case !ok:
			s.metrics.IncJobSkipped(j.name)
			s.logger(ctx).Debug("job lock held elsewhere, skipping")
			return nil
		default:
			// The lease is kept on success so other replicas wait out the interval.
			defer func() {
				if run.errorCount > 0 {
					_ = s.locker.Release(context.WithoutCancel(ctx), key, token)
				}
			}()
		}
	}

	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(j.name)

	err := j.run(ctx)
	s.metrics.ObserveJobDuration(j.name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	if owner {
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		s.metrics.AddBatchProcessed(j.name, "items", run.processedCount)
		s.metrics.SetLastSuccess(j.name, s.clock.Now())
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(j.name)
	}
	s.metrics.IncJobError(j.name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", j.timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", j.name, err)
}

// RunOnce runs every enabled job whose interval has elapsed since its last run.
// A job is due on the first pass after startup.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	now := s.clock.Now()
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) || !s.markDue(j.name, j.interval, now) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j))
	}
	return err
}

// RunJob runs the named job immediately, ignoring its interval.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	for _, j := range s.jobs() {
		if j.name != name {
			continue
		}
		s.mu.Lock()
		s.lastRun[name] = s.clock.Now()
		s.mu.Unlock()
		return s.runJob(ctx, j)
	}
	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// markDue reports whether name is due at now and, if so, records now as its last run.
func (s *Scheduler) markDue(name string, interval time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRun[name]
	if ok && now.Sub(last) < interval {
		return false
	}
	s.lastRun[name] = now
	return true
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if enabled == jobName {
			return true
		}
	}
	return false
}
