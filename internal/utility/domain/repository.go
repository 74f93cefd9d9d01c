package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PricingConfigStore is the read side consumed by the cost calculator.
type PricingConfigStore interface {
	// FindUtilitySetting returns nil when the household has not configured the utility.
	FindUtilitySetting(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID) (*UtilitySetting, error)
	// ListActivePricingTiers returns the tier set active on asOf ordered by tier_number.
	ListActivePricingTiers(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, asOf time.Time) ([]UtilityPricingTier, error)
}

type Repository interface {
	PricingConfigStore

	InsertUtilityType(ctx context.Context, db *gorm.DB, ut *UtilityType) error
	FindUtilityType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UtilityType, error)
	ListUtilityTypes(ctx context.Context, db *gorm.DB) ([]UtilityType, error)

	FindSetting(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID) (*HouseholdUtilitySetting, error)
	InsertSetting(ctx context.Context, db *gorm.DB, setting *HouseholdUtilitySetting) error
	UpdateSetting(ctx context.Context, db *gorm.DB, setting *HouseholdUtilitySetting) error

	// CloseTierSets ends every tier set still valid on validFrom the day before
	// it and removes sets starting on or after it.
	CloseTierSets(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, validFrom time.Time) error
	InsertTiers(ctx context.Context, db *gorm.DB, tiers []UtilityPricingTier) error

	InsertReading(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	FindPreviousReading(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, before time.Time) (*MeterReading, error)
	ListReadings(ctx context.Context, db *gorm.DB, householdID, utilityTypeID snowflake.ID, limit int) ([]MeterReading, error)
}
