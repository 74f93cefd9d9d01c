package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/homekeep/internal/cache"
	"github.com/smallbiznis/homekeep/internal/clock"
	obsmetrics "github.com/smallbiznis/homekeep/internal/observability/metrics"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
	"github.com/smallbiznis/homekeep/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultReadingsLimit = 24
	maxReadingsLimit     = 366
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    utilitydomain.Repository
	Cache   *cache.PricingConfigCache `optional:"true"`
	Metrics *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    utilitydomain.Repository
	cache   *cache.PricingConfigCache
	metrics *obsmetrics.Metrics
}

func New(p Params) utilitydomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("utility.service"),
		genID:   p.GenID,
		clock:   c,
		repo:    p.Repo,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

func (s *Service) Calculate(ctx context.Context, req utilitydomain.CalculateRequest) (*utilitydomain.CostResult, error) {
	householdID, utilityTypeID, err := parseKeys(req.HouseholdID, req.UtilityTypeID)
	if err != nil {
		return nil, err
	}
	if req.Consumption.IsNegative() {
		return nil, fmt.Errorf("%w: consumption must not be negative", utilitydomain.ErrInvalidInput)
	}
	return s.calculate(ctx, householdID, utilityTypeID, req.Consumption, req.ConsumptionUnit)
}

// CalculateBetweenReadings prices currentReading - previousReading. Meter
// rollover is not handled; a regression is rejected before any lookup.
func (s *Service) CalculateBetweenReadings(ctx context.Context, req utilitydomain.BetweenReadingsRequest) (*utilitydomain.CostResult, error) {
	householdID, utilityTypeID, err := parseKeys(req.HouseholdID, req.UtilityTypeID)
	if err != nil {
		return nil, err
	}
	consumption := req.CurrentReading.Sub(req.PreviousReading)
	if consumption.IsNegative() {
		return nil, fmt.Errorf("%w: current reading %s is below previous reading %s",
			utilitydomain.ErrNegativeReading, req.CurrentReading, req.PreviousReading)
	}
	return s.calculate(ctx, householdID, utilityTypeID, consumption, "")
}

func (s *Service) calculate(ctx context.Context, householdID, utilityTypeID snowflake.ID, consumption decimal.Decimal, unit string) (*utilitydomain.CostResult, error) {
	pc, err := s.pricingConfig(ctx, householdID, utilityTypeID)
	if err != nil {
		return nil, err
	}

	result, err := computeCost(*pc, consumption, unit)
	if err != nil {
		s.log.Error("tiered pricing for unknown utility type",
			zap.String("household_id", householdID.String()),
			zap.String("utility_type", pc.Setting.UtilityTypeName),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordCostCalculation(ctx, result.UtilityType, result.PricingMode)
	return result, nil
}

func (s *Service) pricingConfig(ctx context.Context, householdID, utilityTypeID snowflake.ID) (*utilitydomain.PricingConfig, error) {
	today := clock.Today(s.clock)
	if pc, ok := s.cache.Get(householdID, utilityTypeID, today); ok {
		return &pc, nil
	}

	setting, err := s.repo.FindUtilitySetting(ctx, s.db, householdID, utilityTypeID)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, fmt.Errorf("%w: household %s has no settings for utility type %s",
			utilitydomain.ErrConfigurationMissing, householdID, utilityTypeID)
	}

	tiers, err := s.repo.ListActivePricingTiers(ctx, s.db, householdID, utilityTypeID, today)
	if err != nil {
		return nil, err
	}

	pc := utilitydomain.PricingConfig{Setting: *setting, Tiers: tiers}
	s.cache.Set(householdID, utilityTypeID, today, pc)
	return &pc, nil
}

func (s *Service) ListUtilityTypes(ctx context.Context) ([]utilitydomain.UtilityTypeResponse, error) {
	items, err := s.repo.ListUtilityTypes(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]utilitydomain.UtilityTypeResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, utilitydomain.UtilityTypeResponse{
			ID:          item.ID.String(),
			Name:        item.Name,
			DisplayName: item.DisplayName,
			Unit:        item.Unit,
			Icon:        item.Icon,
		})
	}
	return resp, nil
}

func (s *Service) GetSetting(ctx context.Context, householdID, utilityTypeID string) (*utilitydomain.SettingResponse, error) {
	hhID, utID, err := parseKeys(householdID, utilityTypeID)
	if err != nil {
		return nil, err
	}
	setting, err := s.repo.FindSetting(ctx, s.db, hhID, utID)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, utilitydomain.ErrNotFound
	}
	return toSettingResponse(setting), nil
}

// UpsertSetting creates the settings row on first use and updates it afterwards.
func (s *Service) UpsertSetting(ctx context.Context, req utilitydomain.UpsertSettingRequest) (*utilitydomain.SettingResponse, error) {
	householdID, utilityTypeID, err := parseKeys(req.HouseholdID, req.UtilityTypeID)
	if err != nil {
		return nil, err
	}
	if req.BaseFee.IsNegative() {
		return nil, fmt.Errorf("%w: base_fee must not be negative", utilitydomain.ErrInvalidInput)
	}
	if req.CurrentUnitPrice != nil && req.CurrentUnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: current_unit_price must not be negative", utilitydomain.ErrInvalidInput)
	}
	billingDay := req.BillingCycleDay
	if billingDay == 0 {
		billingDay = 1
	}
	if billingDay < 1 || billingDay > 31 {
		return nil, fmt.Errorf("%w: billing_cycle_day must be within 1..31", utilitydomain.ErrInvalidInput)
	}

	var out *utilitydomain.HouseholdUtilitySetting
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ut, err := s.repo.FindUtilityType(ctx, tx, utilityTypeID)
		if err != nil {
			return err
		}
		if ut == nil {
			return fmt.Errorf("%w: utility type %s", utilitydomain.ErrNotFound, utilityTypeID)
		}

		now := s.clock.Now()
		existing, err := s.repo.FindSetting(ctx, tx, householdID, utilityTypeID)
		if err != nil {
			return err
		}
		if existing == nil {
			existing = &utilitydomain.HouseholdUtilitySetting{
				ID:            s.genID.Generate(),
				HouseholdID:   householdID,
				UtilityTypeID: utilityTypeID,
				IsEnabled:     true,
				CreatedAt:     now,
			}
			applySetting(existing, req, billingDay, now)
			out = existing
			return s.repo.InsertSetting(ctx, tx, existing)
		}
		applySetting(existing, req, billingDay, now)
		out = existing
		return s.repo.UpdateSetting(ctx, tx, existing)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			// lost a create race; the row exists now
			return s.UpsertSetting(ctx, req)
		}
		return nil, err
	}

	s.cache.Invalidate(householdID, utilityTypeID)
	return toSettingResponse(out), nil
}

func applySetting(setting *utilitydomain.HouseholdUtilitySetting, req utilitydomain.UpsertSettingRequest, billingDay int, now time.Time) {
	setting.BaseFee = req.BaseFee
	setting.CurrentUnitPrice = decimal.NullDecimal{}
	if req.CurrentUnitPrice != nil {
		setting.CurrentUnitPrice = decimal.NewNullDecimal(*req.CurrentUnitPrice)
	}
	if req.Enabled != nil {
		setting.IsEnabled = *req.Enabled
	}
	setting.MeterNumber = strings.TrimSpace(req.MeterNumber)
	setting.ProviderName = strings.TrimSpace(req.ProviderName)
	setting.BillingCycleDay = billingDay
	setting.UpdatedAt = now
}

// ReplaceTiers installs a new tier set starting at ValidFrom. Sets that are
// still valid on that day end the day before; sets starting later are dropped.
func (s *Service) ReplaceTiers(ctx context.Context, req utilitydomain.ReplaceTiersRequest) ([]utilitydomain.TierResponse, error) {
	householdID, utilityTypeID, err := parseKeys(req.HouseholdID, req.UtilityTypeID)
	if err != nil {
		return nil, err
	}
	if req.ValidFrom.IsZero() {
		return nil, fmt.Errorf("%w: valid_from is required", utilitydomain.ErrInvalidTierSet)
	}
	validFrom := dateOf(req.ValidFrom)
	var validUntil *time.Time
	if req.ValidUntil != nil {
		until := dateOf(*req.ValidUntil)
		if until.Before(validFrom) {
			return nil, fmt.Errorf("%w: valid_until before valid_from", utilitydomain.ErrInvalidTierSet)
		}
		validUntil = &until
	}
	if err := validateTiers(req.Tiers); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tiers := make([]utilitydomain.UtilityPricingTier, 0, len(req.Tiers))
	for _, in := range req.Tiers {
		tiers = append(tiers, utilitydomain.UtilityPricingTier{
			ID:               s.genID.Generate(),
			HouseholdID:      householdID,
			UtilityTypeID:    utilityTypeID,
			TierNumber:       in.TierNumber,
			TierName:         strings.TrimSpace(in.TierName),
			LimitValue:       nullable(in.LimitValue),
			PricePerUnit:     in.PricePerUnit,
			ConversionFactor: nullable(in.ConversionFactor),
			ConversionUnit:   strings.TrimSpace(in.ConversionUnit),
			SystemUsageFee:   nullable(in.SystemUsageFee),
			ValidFrom:        validFrom,
			ValidUntil:       validUntil,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.repo.FindSetting(ctx, tx, householdID, utilityTypeID)
		if err != nil {
			return err
		}
		if setting == nil {
			return fmt.Errorf("%w: configure the utility before adding tiers", utilitydomain.ErrConfigurationMissing)
		}
		if err := s.repo.CloseTierSets(ctx, tx, householdID, utilityTypeID, validFrom); err != nil {
			return err
		}
		return s.repo.InsertTiers(ctx, tx, tiers)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(householdID, utilityTypeID)
	s.log.Info("pricing tiers replaced",
		zap.String("household_id", householdID.String()),
		zap.String("utility_type_id", utilityTypeID.String()),
		zap.Int("tiers", len(tiers)),
		zap.Time("valid_from", validFrom),
	)

	resp := make([]utilitydomain.TierResponse, 0, len(tiers))
	for i := range tiers {
		resp = append(resp, toTierResponse(&tiers[i]))
	}
	return resp, nil
}

// validateTiers enforces strictly increasing tier numbers, non-decreasing
// limits, an unbounded last tier and non-negative prices.
func validateTiers(tiers []utilitydomain.TierInput) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", utilitydomain.ErrInvalidTierSet)
	}
	sorted := append([]utilitydomain.TierInput(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TierNumber < sorted[j].TierNumber })

	var prevLimit *decimal.Decimal
	for i, tier := range sorted {
		if tier.TierNumber <= 0 {
			return fmt.Errorf("%w: tier_number must be positive", utilitydomain.ErrInvalidTierSet)
		}
		if i > 0 && tier.TierNumber == sorted[i-1].TierNumber {
			return fmt.Errorf("%w: duplicate tier_number %d", utilitydomain.ErrInvalidTierSet, tier.TierNumber)
		}
		if tier.PricePerUnit.IsNegative() {
			return fmt.Errorf("%w: tier %d price_per_unit is negative", utilitydomain.ErrInvalidTierSet, tier.TierNumber)
		}
		if tier.SystemUsageFee != nil && tier.SystemUsageFee.IsNegative() {
			return fmt.Errorf("%w: tier %d system_usage_fee is negative", utilitydomain.ErrInvalidTierSet, tier.TierNumber)
		}
		if tier.ConversionFactor != nil && !tier.ConversionFactor.IsPositive() {
			return fmt.Errorf("%w: tier %d conversion_factor must be positive", utilitydomain.ErrInvalidTierSet, tier.TierNumber)
		}

		last := i == len(sorted)-1
		switch {
		case tier.LimitValue == nil && !last:
			return fmt.Errorf("%w: only the last tier may be unbounded", utilitydomain.ErrInvalidTierSet)
		case tier.LimitValue != nil && last:
			return fmt.Errorf("%w: the last tier must be unbounded", utilitydomain.ErrInvalidTierSet)
		case tier.LimitValue != nil:
			if !tier.LimitValue.IsPositive() {
				return fmt.Errorf("%w: tier %d limit must be positive", utilitydomain.ErrInvalidTierSet, tier.TierNumber)
			}
			if prevLimit != nil && tier.LimitValue.LessThan(*prevLimit) {
				return fmt.Errorf("%w: tier %d limit is below the previous tier", utilitydomain.ErrInvalidTierSet, tier.TierNumber)
			}
			prevLimit = tier.LimitValue
		}
	}
	return nil
}

func (s *Service) ListActiveTiers(ctx context.Context, householdID, utilityTypeID string) ([]utilitydomain.TierResponse, error) {
	hhID, utID, err := parseKeys(householdID, utilityTypeID)
	if err != nil {
		return nil, err
	}
	tiers, err := s.repo.ListActivePricingTiers(ctx, s.db, hhID, utID, clock.Today(s.clock))
	if err != nil {
		return nil, err
	}
	resp := make([]utilitydomain.TierResponse, 0, len(tiers))
	for i := range tiers {
		resp = append(resp, toTierResponse(&tiers[i]))
	}
	return resp, nil
}

// RecordReading stores an absolute meter value and derives consumption and
// cost against the latest earlier reading. The first reading of a meter has
// neither.
func (s *Service) RecordReading(ctx context.Context, req utilitydomain.RecordReadingRequest) (*utilitydomain.ReadingResponse, error) {
	householdID, utilityTypeID, err := parseKeys(req.HouseholdID, req.UtilityTypeID)
	if err != nil {
		return nil, err
	}
	if req.ReadingDate.IsZero() {
		return nil, fmt.Errorf("%w: reading_date is required", utilitydomain.ErrInvalidInput)
	}
	if req.MeterReading.IsNegative() {
		return nil, fmt.Errorf("%w: meter_reading must not be negative", utilitydomain.ErrInvalidInput)
	}
	readingDate := dateOf(req.ReadingDate)

	now := s.clock.Now()
	reading := &utilitydomain.MeterReading{
		ID:            s.genID.Generate(),
		HouseholdID:   householdID,
		UtilityTypeID: utilityTypeID,
		ReadingDate:   readingDate,
		MeterReading:  req.MeterReading,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	prev, err := s.repo.FindPreviousReading(ctx, s.db, householdID, utilityTypeID, readingDate)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		consumption := req.MeterReading.Sub(prev.MeterReading)
		if consumption.IsNegative() {
			return nil, fmt.Errorf("%w: reading %s is below %s recorded on %s",
				utilitydomain.ErrNegativeReading, req.MeterReading, prev.MeterReading, prev.ReadingDate.Format(time.DateOnly))
		}
		reading.PreviousReading = decimal.NewNullDecimal(prev.MeterReading)
		reading.Consumption = decimal.NewNullDecimal(consumption)

		pc, err := s.pricingConfig(ctx, householdID, utilityTypeID)
		switch {
		case err == nil:
			result, err := computeCost(*pc, consumption, "")
			if err != nil {
				return nil, err
			}
			reading.UnitPrice = pc.Setting.FlatUnitPrice
			reading.Cost = decimal.NewNullDecimal(result.TotalCost)
			s.metrics.RecordCostCalculation(ctx, result.UtilityType, result.PricingMode)
		case errors.Is(err, utilitydomain.ErrConfigurationMissing):
			// readings may be collected before pricing is configured
		default:
			return nil, err
		}
	}

	if err := s.repo.InsertReading(ctx, s.db, reading); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: %s", utilitydomain.ErrDuplicateReading, readingDate.Format(time.DateOnly))
		}
		return nil, err
	}
	return toReadingResponse(reading), nil
}

func (s *Service) ListReadings(ctx context.Context, householdID, utilityTypeID string, limit int) ([]utilitydomain.ReadingResponse, error) {
	hhID, utID, err := parseKeys(householdID, utilityTypeID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultReadingsLimit
	}
	limit = min(limit, maxReadingsLimit)

	items, err := s.repo.ListReadings(ctx, s.db, hhID, utID, limit)
	if err != nil {
		return nil, err
	}
	resp := make([]utilitydomain.ReadingResponse, 0, len(items))
	for i := range items {
		resp = append(resp, *toReadingResponse(&items[i]))
	}
	return resp, nil
}

func toSettingResponse(s *utilitydomain.HouseholdUtilitySetting) *utilitydomain.SettingResponse {
	return &utilitydomain.SettingResponse{
		ID:               s.ID.String(),
		HouseholdID:      s.HouseholdID.String(),
		UtilityTypeID:    s.UtilityTypeID.String(),
		BaseFee:          s.BaseFee,
		CurrentUnitPrice: ptr(s.CurrentUnitPrice),
		Enabled:          s.IsEnabled,
		MeterNumber:      s.MeterNumber,
		ProviderName:     s.ProviderName,
		BillingCycleDay:  s.BillingCycleDay,
		UpdatedAt:        s.UpdatedAt,
	}
}

func toTierResponse(t *utilitydomain.UtilityPricingTier) utilitydomain.TierResponse {
	return utilitydomain.TierResponse{
		ID:               t.ID.String(),
		TierNumber:       t.TierNumber,
		TierName:         t.TierName,
		LimitValue:       ptr(t.LimitValue),
		PricePerUnit:     t.PricePerUnit,
		ConversionFactor: ptr(t.ConversionFactor),
		ConversionUnit:   t.ConversionUnit,
		SystemUsageFee:   ptr(t.SystemUsageFee),
		ValidFrom:        t.ValidFrom,
		ValidUntil:       t.ValidUntil,
	}
}

func toReadingResponse(r *utilitydomain.MeterReading) *utilitydomain.ReadingResponse {
	return &utilitydomain.ReadingResponse{
		ID:              r.ID.String(),
		HouseholdID:     r.HouseholdID.String(),
		UtilityTypeID:   r.UtilityTypeID.String(),
		ReadingDate:     r.ReadingDate,
		MeterReading:    r.MeterReading,
		PreviousReading: ptr(r.PreviousReading),
		Consumption:     ptr(r.Consumption),
		UnitPrice:       ptr(r.UnitPrice),
		Cost:            ptr(r.Cost),
		Notes:           r.Notes,
	}
}

func parseKeys(householdID, utilityTypeID string) (snowflake.ID, snowflake.ID, error) {
	hhID, err := parseID(householdID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: household_id", utilitydomain.ErrInvalidID)
	}
	utID, err := parseID(utilityTypeID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: utility_type_id", utilitydomain.ErrInvalidID)
	}
	return hhID, utID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func ptr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
