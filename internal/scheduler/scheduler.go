package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/homekeep/internal/clock"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"github.com/smallbiznis/homekeep/internal/lock"
	obsmetrics "github.com/smallbiznis/homekeep/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobSuggestionSweep = "suggestion_sweep"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Households  inventorydomain.Repository
	Consumption consumptiondomain.Service
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      Config                       `optional:"true"`
	Locker      lock.Locker                  `optional:"true"`
	Metrics     *obsmetrics.SchedulerMetrics `optional:"true"`
	Notifier    SuggestionNotifier           `optional:"true"`
}

// Scheduler hosts the periodic jobs that sit outside the request path. The
// services it drives stay unaware of timers.
type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	schedule    cron.Schedule
	genID       *snowflake.Node
	clock       clock.Clock
	households  inventorydomain.Repository
	consumption consumptiondomain.Service
	locker      lock.Locker
	metrics     *obsmetrics.SchedulerMetrics
	notifier    SuggestionNotifier
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Households == nil || p.Consumption == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	schedule, err := cron.ParseStandard(cfg.SweepSpec)
	if err != nil {
		return nil, fmt.Errorf("%w: sweep spec %q: %v", ErrInvalidConfig, cfg.SweepSpec, err)
	}
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	notifier := p.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Scheduler{
		db:          p.DB,
		log:         log,
		cfg:         cfg,
		schedule:    schedule,
		genID:       p.GenID,
		clock:       p.Clock,
		households:  p.Households,
		consumption: p.Consumption,
		locker:      locker,
		metrics:     p.Metrics,
		notifier:    notifier,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(started))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		s.metrics.MarkJobSuccess(name, s.clock.Now())
		return nil
	}

	// deadline is a soft stop; the next tick picks up where this one ended
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobSuggestionSweep, s.cfg.BatchSize, s.cfg.JobTimeout, s.SuggestionSweepJob)
}

// RunForever blocks until ctx is done, running jobs at each tick of the
// configured cron schedule.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.log.Info("scheduler started", zap.String("sweep_spec", s.cfg.SweepSpec))
	for {
		next := s.NextRun()
		timer := time.NewTimer(max(next.Sub(s.clock.Now()), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.metrics.ObserveRunLoopLag(s.clock.Now().Sub(next))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}

// NextRun is the next tick strictly after the current clock time.
func (s *Scheduler) NextRun() time.Time {
	return s.schedule.Next(s.clock.Now())
}
