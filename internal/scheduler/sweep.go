package scheduler

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	obsmetrics "github.com/smallbiznis/homekeep/internal/observability/metrics"
	"go.uber.org/zap"
)

const sweepLockKey = "scheduler:" + jobSuggestionSweep

// SuggestionSweepJob pages through every household holding stock and
// generates its low-stock suggestions, handing them to the bound
// SuggestionNotifier. Only one instance sweeps at a time; a failing household
// is logged and the sweep moves on.
func (s *Scheduler) SuggestionSweepJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobSuggestionSweep, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.IncJobSkipped(jobSuggestionSweep, obsmetrics.SchedulerSkipReasonOverlap)
		s.logger(ctx).Info("scheduler.job.skipped",
			zap.String("job", jobSuggestionSweep),
			zap.String("reason", obsmetrics.SchedulerSkipReasonOverlap),
		)
		return nil
	}
	defer func() { _ = s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token) }()

	var after snowflake.ID
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		households, err := s.households.ListHouseholdsWithStock(ctx, s.db, after, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(households) == 0 {
			return nil
		}

		for _, householdID := range households {
			s.sweepHousehold(ctx, run, householdID)
		}
		run.AddProcessed(len(households))
		s.metrics.AddItemsProcessed(jobSuggestionSweep, "households", len(households))

		after = households[len(households)-1]
		if len(households) < s.cfg.BatchSize {
			return nil
		}
	}
}

func (s *Scheduler) sweepHousehold(ctx context.Context, run *jobRun, householdID snowflake.ID) {
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HouseholdTimeout)
	defer cancel()
	hctx = s.withLogContext(hctx, householdID)

	list, err := s.consumption.GenerateAutoSuggestions(hctx, householdID.String())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.metrics.IncJobTimeout(jobSuggestionSweep)
		}
		s.metrics.IncJobError(jobSuggestionSweep, err)
		s.logSchedulerError(hctx, run, "scheduler.suggestions.failed", jobSuggestionSweep, householdID, err)
		return
	}
	if list.Status == consumptiondomain.StatusDisabled {
		s.metrics.IncJobSkipped(jobSuggestionSweep, obsmetrics.SchedulerSkipReasonDisabled)
		return
	}

	s.metrics.AddItemsProcessed(jobSuggestionSweep, "suggestions", len(list.Suggestions))
	if len(list.Suggestions) == 0 {
		return
	}
	if err := s.notifier.NotifySuggestions(hctx, householdID, list.Suggestions); err != nil {
		s.metrics.IncJobError(jobSuggestionSweep, err)
		s.logSchedulerError(hctx, run, "scheduler.suggestions.notify_failed", jobSuggestionSweep, householdID, err)
		return
	}
	s.metrics.AddItemsProcessed(jobSuggestionSweep, "notified", len(list.Suggestions))
}
