package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UtilityType is immutable reference data identifying a metered commodity.
type UtilityType struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name" gorm:"type:text;not null;uniqueIndex:ux_utility_types_name"`
	DisplayName string       `json:"display_name" gorm:"type:text;not null"`
	Unit        string       `json:"unit" gorm:"type:text;not null"`
	Icon        string       `json:"icon" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (UtilityType) TableName() string { return "utility_types" }

// HouseholdUtilitySetting is created lazily on first configuration and never
// hard-deleted; IsEnabled is the soft-disable switch.
type HouseholdUtilitySetting struct {
	ID               snowflake.ID        `json:"id" gorm:"primaryKey"`
	HouseholdID      snowflake.ID        `json:"household_id" gorm:"column:household_id;not null;uniqueIndex:ux_household_utility_settings_type,priority:1"`
	UtilityTypeID    snowflake.ID        `json:"utility_type_id" gorm:"column:utility_type_id;not null;uniqueIndex:ux_household_utility_settings_type,priority:2"`
	BaseFee          decimal.Decimal     `json:"base_fee" gorm:"type:numeric;not null"`
	CurrentUnitPrice decimal.NullDecimal `json:"current_unit_price" gorm:"type:numeric"`
	IsEnabled        bool                `json:"is_enabled" gorm:"not null"`
	MeterNumber      string              `json:"meter_number" gorm:"type:text"`
	ProviderName     string              `json:"provider_name" gorm:"type:text"`
	BillingCycleDay  int                 `json:"billing_cycle_day" gorm:"not null"`
	CreatedAt        time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time           `json:"updated_at" gorm:"not null"`
}

func (HouseholdUtilitySetting) TableName() string { return "household_utility_settings" }

// UtilityPricingTier is one band of a tier set. A tier set is every tier of a
// household and utility type sharing the same validity window.
type UtilityPricingTier struct {
	ID               snowflake.ID        `json:"id" gorm:"primaryKey"`
	HouseholdID      snowflake.ID        `json:"household_id" gorm:"column:household_id;not null;index:idx_utility_pricing_tiers_lookup,priority:1"`
	UtilityTypeID    snowflake.ID        `json:"utility_type_id" gorm:"column:utility_type_id;not null;index:idx_utility_pricing_tiers_lookup,priority:2"`
	TierNumber       int                 `json:"tier_number" gorm:"not null"`
	TierName         string              `json:"tier_name" gorm:"type:text"`
	LimitValue       decimal.NullDecimal `json:"limit_value" gorm:"type:numeric"`
	PricePerUnit     decimal.Decimal     `json:"price_per_unit" gorm:"type:numeric;not null"`
	ConversionFactor decimal.NullDecimal `json:"conversion_factor" gorm:"type:numeric"`
	ConversionUnit   string              `json:"conversion_unit" gorm:"type:text"`
	SystemUsageFee   decimal.NullDecimal `json:"system_usage_fee" gorm:"type:numeric"`
	ValidFrom        time.Time           `json:"valid_from" gorm:"not null;index:idx_utility_pricing_tiers_lookup,priority:3"`
	ValidUntil       *time.Time          `json:"valid_until"`
	CreatedAt        time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time           `json:"updated_at" gorm:"not null"`
}

func (UtilityPricingTier) TableName() string { return "utility_pricing_tiers" }

// MeterReading is a dated absolute meter value with its derived consumption and cost.
type MeterReading struct {
	ID              snowflake.ID        `json:"id" gorm:"primaryKey"`
	HouseholdID     snowflake.ID        `json:"household_id" gorm:"column:household_id;not null;uniqueIndex:ux_household_utilities_reading,priority:1"`
	UtilityTypeID   snowflake.ID        `json:"utility_type_id" gorm:"column:utility_type_id;not null;uniqueIndex:ux_household_utilities_reading,priority:2"`
	ReadingDate     time.Time           `json:"reading_date" gorm:"not null;uniqueIndex:ux_household_utilities_reading,priority:3"`
	MeterReading    decimal.Decimal     `json:"meter_reading" gorm:"type:numeric;not null"`
	PreviousReading decimal.NullDecimal `json:"previous_reading" gorm:"type:numeric"`
	Consumption     decimal.NullDecimal `json:"consumption" gorm:"type:numeric"`
	UnitPrice       decimal.NullDecimal `json:"unit_price" gorm:"type:numeric"`
	Cost            decimal.NullDecimal `json:"cost" gorm:"type:numeric"`
	Notes           string              `json:"notes" gorm:"type:text"`
	CreatedAt       time.Time           `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time           `json:"updated_at" gorm:"not null"`
}

func (MeterReading) TableName() string { return "household_utilities" }

// UtilitySetting is the joined read model served by the pricing store.
type UtilitySetting struct {
	HouseholdID     snowflake.ID
	UtilityTypeID   snowflake.ID
	BaseFee         decimal.Decimal
	FlatUnitPrice   decimal.NullDecimal
	Enabled         bool
	UtilityTypeName string
	DisplayName     string
	Unit            string
}

// PricingConfig is everything the calculator needs for one household and utility type.
type PricingConfig struct {
	Setting UtilitySetting
	Tiers   []UtilityPricingTier
}

// DefaultUtilityTypes is the reference data seeded by migrations.
func DefaultUtilityTypes() []UtilityType {
	return []UtilityType{
		{ID: 1, Name: "electricity", DisplayName: "Electricity", Unit: "kWh", Icon: "bolt"},
		{ID: 2, Name: "gas", DisplayName: "Gas", Unit: "m³", Icon: "flame"},
		{ID: 3, Name: "water", DisplayName: "Cold water", Unit: "m³", Icon: "droplet"},
		{ID: 4, Name: "hot_water", DisplayName: "Hot water", Unit: "m³", Icon: "thermometer"},
		{ID: 5, Name: "heating", DisplayName: "Heating", Unit: "GJ", Icon: "heater"},
	}
}
