package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() utilitydomain.Repository {
	return &repo{}
}

func (r *repo) FindUtilitySetting(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID) (*utilitydomain.UtilitySetting, error) {
	var setting utilitydomain.UtilitySetting
	err := db.WithContext(ctx).Raw(
		`SELECT s.household_id, s.utility_type_id, s.base_fee, s.current_unit_price AS flat_unit_price,
		 s.is_enabled AS enabled, t.name AS utility_type_name, t.display_name, t.unit
		 FROM household_utility_settings s
		 JOIN utility_types t ON t.id = s.utility_type_id
		 WHERE s.household_id = ? AND s.utility_type_id = ?`,
		householdID,
		utilityTypeID,
	).Scan(&setting).Error
	if err != nil {
		return nil, err
	}
	if setting.HouseholdID == 0 {
		return nil, nil
	}
	return &setting, nil
}

func (r *repo) ListActivePricingTiers(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, asOf time.Time) ([]utilitydomain.UtilityPricingTier, error) {
	var items []utilitydomain.UtilityPricingTier
	err := db.WithContext(ctx).Raw(
		`SELECT id, household_id, utility_type_id, tier_number, tier_name, limit_value, price_per_unit,
		 conversion_factor, conversion_unit, system_usage_fee, valid_from, valid_until, created_at, updated_at
		 FROM utility_pricing_tiers
		 WHERE household_id = ? AND utility_type_id = ?
		 AND valid_from <= ? AND (valid_until IS NULL OR valid_until >= ?)
		 ORDER BY valid_from DESC, tier_number ASC`,
		householdID,
		utilityTypeID,
		asOf,
		asOf,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []utilitydomain.UtilityPricingTier{}, nil
	}

	// windows are non-overlapping; if they are not, the most recent set wins
	active := items[:0]
	for _, item := range items {
		if item.ValidFrom.Equal(items[0].ValidFrom) {
			active = append(active, item)
		}
	}
	return active, nil
}

func (r *repo) InsertUtilityType(ctx context.Context, db *gorm.DB, ut *utilitydomain.UtilityType) error {
	return db.WithContext(ctx).Create(ut).Error
}

func (r *repo) FindUtilityType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*utilitydomain.UtilityType, error) {
	var ut utilitydomain.UtilityType
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, display_name, unit, icon, created_at FROM utility_types WHERE id = ?`,
		id,
	).Scan(&ut).Error
	if err != nil {
		return nil, err
	}
	if ut.ID == 0 {
		return nil, nil
	}
	return &ut, nil
}

func (r *repo) ListUtilityTypes(ctx context.Context, db *gorm.DB) ([]utilitydomain.UtilityType, error) {
	var items []utilitydomain.UtilityType
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, display_name, unit, icon, created_at FROM utility_types ORDER BY id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindSetting(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID) (*utilitydomain.HouseholdUtilitySetting, error) {
	var setting utilitydomain.HouseholdUtilitySetting
	err := db.WithContext(ctx).Raw(
		`SELECT id, household_id, utility_type_id, base_fee, current_unit_price, is_enabled, meter_number,
		 provider_name, billing_cycle_day, created_at, updated_at
		 FROM household_utility_settings WHERE household_id = ? AND utility_type_id = ?`,
		householdID,
		utilityTypeID,
	).Scan(&setting).Error
	if err != nil {
		return nil, err
	}
	if setting.ID == 0 {
		return nil, nil
	}
	return &setting, nil
}

func (r *repo) InsertSetting(ctx context.Context, db *gorm.DB, setting *utilitydomain.HouseholdUtilitySetting) error {
	return db.WithContext(ctx).Create(setting).Error
}

func (r *repo) UpdateSetting(ctx context.Context, db *gorm.DB, setting *utilitydomain.HouseholdUtilitySetting) error {
	return db.WithContext(ctx).Exec(
		`UPDATE household_utility_settings
		 SET base_fee = ?, current_unit_price = ?, is_enabled = ?, meter_number = ?, provider_name = ?,
		 billing_cycle_day = ?, updated_at = ?
		 WHERE id = ?`,
		setting.BaseFee,
		setting.CurrentUnitPrice,
		setting.IsEnabled,
		setting.MeterNumber,
		setting.ProviderName,
		setting.BillingCycleDay,
		setting.UpdatedAt,
		setting.ID,
	).Error
}

func (r *repo) CloseTierSets(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, validFrom time.Time) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM utility_pricing_tiers WHERE household_id = ? AND utility_type_id = ? AND valid_from >= ?`,
		householdID,
		utilityTypeID,
		validFrom,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE utility_pricing_tiers SET valid_until = ?, updated_at = ?
		 WHERE household_id = ? AND utility_type_id = ? AND (valid_until IS NULL OR valid_until >= ?)`,
		validFrom.AddDate(0, 0, -1),
		time.Now().UTC(),
		householdID,
		utilityTypeID,
		validFrom,
	).Error
}

func (r *repo) InsertTiers(ctx context.Context, db *gorm.DB, tiers []utilitydomain.UtilityPricingTier) error {
	if len(tiers) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&tiers).Error
}

func (r *repo) InsertReading(ctx context.Context, db *gorm.DB, reading *utilitydomain.MeterReading) error {
	return db.WithContext(ctx).Create(reading).Error
}

func (r *repo) FindPreviousReading(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, before time.Time) (*utilitydomain.MeterReading, error) {
	var items []utilitydomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT id, household_id, utility_type_id, reading_date, meter_reading, previous_reading, consumption,
		 unit_price, cost, notes, created_at, updated_at
		 FROM household_utilities
		 WHERE household_id = ? AND utility_type_id = ? AND reading_date < ?
		 ORDER BY reading_date DESC LIMIT 1`,
		householdID,
		utilityTypeID,
		before,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListReadings(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, limit int) ([]utilitydomain.MeterReading, error) {
	var items []utilitydomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT id, household_id, utility_type_id, reading_date, meter_reading, previous_reading, consumption,
		 unit_price, cost, notes, created_at, updated_at
		 FROM household_utilities
		 WHERE household_id = ? AND utility_type_id = ?
		 ORDER BY reading_date DESC LIMIT ?`,
		householdID,
		utilityTypeID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
