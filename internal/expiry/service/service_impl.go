package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/clock"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	"github.com/smallbiznis/homekeep/internal/lock"
	obslogger "github.com/smallbiznis/homekeep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/homekeep/internal/observability/metrics"
	"github.com/smallbiznis/homekeep/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockTTL  = 10 * time.Second
	lockWait = 5 * time.Second

	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    expirydomain.Repository
	Locker  lock.Locker         `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    expirydomain.Repository
	locker  lock.Locker
	metrics *obsmetrics.Metrics
}

func New(p Params) expirydomain.Service {
	locker := p.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("expiry.service"),
		genID:   p.GenID,
		clock:   c,
		repo:    p.Repo,
		locker:  locker,
		metrics: p.Metrics,
	}
}

func (s *Service) RecordExpiryPattern(ctx context.Context, req expirydomain.RecordRequest) {
	key := expirydomain.PatternKey(req.Barcode, req.ProductName)
	if req.ShelfLifeDays == nil || key == "" {
		return
	}
	log := obslogger.WithContext(ctx, s.log).With(zap.String("pattern_key", key))

	shelfLife := *req.ShelfLifeDays
	if shelfLife < 0 {
		log.Debug("negative shelf life ignored", zap.Int("shelf_life_days", shelfLife))
		s.metrics.RecordExpirySample(ctx, outcomeSkipped)
		return
	}

	householdID, err := snowflake.ParseString(strings.TrimSpace(req.HouseholdID))
	if err != nil || householdID <= 0 {
		log.Warn("expiry pattern not recorded", zap.String("household_id", req.HouseholdID), zap.Error(expirydomain.ErrInvalidID))
		s.metrics.RecordExpirySample(ctx, outcomeFailed)
		return
	}

	outcome, err := s.record(ctx, householdID, key, req, shelfLife)
	if err != nil {
		log.Warn("expiry pattern not recorded",
			zap.String("household_id", householdID.String()),
			zap.Int("shelf_life_days", shelfLife),
			zap.Error(err),
		)
		s.metrics.RecordExpirySample(ctx, outcomeFailed)
		return
	}
	s.metrics.RecordExpirySample(ctx, outcome)
}

// record serializes writers per household and key. The distributed lock
// covers multiple instances; the row lock covers writers that bypass it.
func (s *Service) record(ctx context.Context, householdID snowflake.ID, key string, req expirydomain.RecordRequest, shelfLife int) (string, error) {
	release, err := lock.Acquire(ctx, s.locker, fmt.Sprintf("expiry:%s:%s", householdID, key), lockTTL, lockWait)
	if err != nil {
		return "", err
	}
	defer release()

	var outcome string
	for attempt := 0; attempt < 2; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.clock.Now()
			existing, err := s.repo.FindForUpdate(ctx, tx, householdID, key)
			if err != nil {
				return err
			}
			if existing == nil {
				pattern := &expirydomain.ProductExpiryPattern{
					ID:          s.genID.Generate(),
					HouseholdID: householdID,
					PatternKey:  key,
					Barcode:     strings.TrimSpace(req.Barcode),
					ProductName: strings.TrimSpace(req.ProductName),
					CreatedAt:   now,
				}
				pattern.Observe(shelfLife, now)
				outcome = outcomeCreated
				return s.repo.Insert(ctx, tx, pattern)
			}

			existing.Observe(shelfLife, now)
			if name := strings.TrimSpace(req.ProductName); name != "" {
				existing.ProductName = name
			}
			outcome = outcomeUpdated
			return s.repo.UpdateAggregate(ctx, tx, existing)
		})
		if err == nil || !db.IsDuplicateKeyErr(err) {
			break
		}
		// another writer created the row first; fold into it
	}
	return outcome, err
}

func (s *Service) GetExpirySuggestion(ctx context.Context, req expirydomain.SuggestionRequest) (*expirydomain.Suggestion, error) {
	householdID, err := snowflake.ParseString(strings.TrimSpace(req.HouseholdID))
	if err != nil || householdID <= 0 {
		return nil, fmt.Errorf("%w: household_id", expirydomain.ErrInvalidID)
	}
	barcode := strings.TrimSpace(req.Barcode)
	name := strings.TrimSpace(req.ProductName)
	if barcode == "" && name == "" {
		return nil, fmt.Errorf("%w: barcode or product_name is required", expirydomain.ErrInvalidInput)
	}

	if barcode != "" {
		pattern, err := s.repo.FindEligibleByKey(ctx, s.db, householdID, expirydomain.PatternKey(barcode, ""), expirydomain.MinSamplesForSuggestion)
		if err != nil {
			return nil, err
		}
		if pattern != nil {
			return s.suggestion(pattern, "barcode"), nil
		}
	}
	if name != "" {
		pattern, err := s.repo.FindEligibleByName(ctx, s.db, householdID, name, expirydomain.MinSamplesForSuggestion)
		if err != nil {
			return nil, err
		}
		if pattern != nil {
			return s.suggestion(pattern, "name"), nil
		}
	}
	return &expirydomain.Suggestion{HasPattern: false}, nil
}

func (s *Service) suggestion(p *expirydomain.ProductExpiryPattern, matchedBy string) *expirydomain.Suggestion {
	days := int(math.Round(p.AverageShelfLifeDays))
	suggested := clock.Today(s.clock).AddDate(0, 0, days)
	return &expirydomain.Suggestion{
		HasPattern:           true,
		AverageShelfLifeDays: math.Round(p.AverageShelfLifeDays*10) / 10,
		SampleCount:          p.SampleCount,
		SuggestedExpiryDate:  &suggested,
		Confidence:           confidenceFor(p.SampleCount),
		Message:              shelfLifeMessage(p.AverageShelfLifeDays),
		MatchedBy:            matchedBy,
	}
}

func confidenceFor(samples int) expirydomain.Confidence {
	switch {
	case samples >= 10:
		return expirydomain.ConfidenceHigh
	case samples >= 5:
		return expirydomain.ConfidenceMedium
	default:
		return expirydomain.ConfidenceLow
	}
}

// shelfLifeMessage picks the largest unit that keeps the number readable.
func shelfLifeMessage(days float64) string {
	switch {
	case days < 1:
		return "Usually expires within a day"
	case days < 14:
		return "Usually keeps for about " + plural(int(math.Round(days)), "day")
	case days < 60:
		return "Usually keeps for about " + plural(int(math.Round(days/7)), "week")
	case days < 365:
		return "Usually keeps for about " + plural(int(math.Round(days/30)), "month")
	default:
		return "Usually keeps for about " + plural(int(math.Round(days/365)), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
