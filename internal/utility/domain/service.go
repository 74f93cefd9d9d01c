package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Calculate(ctx context.Context, req CalculateRequest) (*CostResult, error)
	CalculateBetweenReadings(ctx context.Context, req BetweenReadingsRequest) (*CostResult, error)

	ListUtilityTypes(ctx context.Context) ([]UtilityTypeResponse, error)
	GetSetting(ctx context.Context, householdID, utilityTypeID string) (*SettingResponse, error)
	UpsertSetting(ctx context.Context, req UpsertSettingRequest) (*SettingResponse, error)
	ReplaceTiers(ctx context.Context, req ReplaceTiersRequest) ([]TierResponse, error)
	ListActiveTiers(ctx context.Context, householdID, utilityTypeID string) ([]TierResponse, error)

	RecordReading(ctx context.Context, req RecordReadingRequest) (*ReadingResponse, error)
	ListReadings(ctx context.Context, householdID, utilityTypeID string, limit int) ([]ReadingResponse, error)
}

type CalculateRequest struct {
	HouseholdID     string          `json:"household_id"`
	UtilityTypeID   string          `json:"utility_type_id"`
	Consumption     decimal.Decimal `json:"consumption"`
	ConsumptionUnit string          `json:"consumption_unit,omitempty"`
}

type BetweenReadingsRequest struct {
	HouseholdID     string          `json:"household_id"`
	UtilityTypeID   string          `json:"utility_type_id"`
	PreviousReading decimal.Decimal `json:"previous_reading"`
	CurrentReading  decimal.Decimal `json:"current_reading"`
}

const (
	PricingModeSimple = "simple"
	PricingModeTiered = "tiered"
)

// CostResult is an itemized cost. Monetary fields are rounded to 2 places.
type CostResult struct {
	UtilityType        string           `json:"utility_type"`
	PricingMode        string           `json:"pricing_mode"`
	Consumption        decimal.Decimal  `json:"consumption"`
	Unit               string           `json:"unit"`
	BilledConsumption  *decimal.Decimal `json:"billed_consumption,omitempty"`
	BilledUnit         string           `json:"billed_unit,omitempty"`
	BaseFee            decimal.Decimal  `json:"base_fee"`
	ConsumptionCost    decimal.Decimal  `json:"consumption_cost"`
	SystemUsageFee     *decimal.Decimal `json:"system_usage_fee,omitempty"`
	TotalCost          decimal.Decimal  `json:"total_cost"`
	Breakdown          []TierCost       `json:"breakdown"`
	FormulaDescription string           `json:"formula_description"`
}

type TierCost struct {
	TierNumber   int              `json:"tier_number"`
	TierName     string           `json:"tier_name"`
	Consumption  decimal.Decimal  `json:"consumption"`
	Unit         string           `json:"unit"`
	PricePerUnit decimal.Decimal  `json:"price_per_unit"`
	TierCost     decimal.Decimal  `json:"tier_cost"`
	SystemFee    *decimal.Decimal `json:"system_fee,omitempty"`
	Limit        *decimal.Decimal `json:"limit,omitempty"`
}

type UtilityTypeResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Unit        string `json:"unit"`
	Icon        string `json:"icon"`
}

type UpsertSettingRequest struct {
	HouseholdID      string           `json:"household_id"`
	UtilityTypeID    string           `json:"utility_type_id"`
	BaseFee          decimal.Decimal  `json:"base_fee"`
	CurrentUnitPrice *decimal.Decimal `json:"current_unit_price"`
	Enabled          *bool            `json:"is_enabled"`
	MeterNumber      string           `json:"meter_number"`
	ProviderName     string           `json:"provider_name"`
	BillingCycleDay  int              `json:"billing_cycle_day"`
}

type SettingResponse struct {
	ID               string           `json:"id"`
	HouseholdID      string           `json:"household_id"`
	UtilityTypeID    string           `json:"utility_type_id"`
	BaseFee          decimal.Decimal  `json:"base_fee"`
	CurrentUnitPrice *decimal.Decimal `json:"current_unit_price,omitempty"`
	Enabled          bool             `json:"is_enabled"`
	MeterNumber      string           `json:"meter_number"`
	ProviderName     string           `json:"provider_name"`
	BillingCycleDay  int              `json:"billing_cycle_day"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type TierInput struct {
	TierNumber       int              `json:"tier_number"`
	TierName         string           `json:"tier_name"`
	LimitValue       *decimal.Decimal `json:"limit_value"`
	PricePerUnit     decimal.Decimal  `json:"price_per_unit"`
	ConversionFactor *decimal.Decimal `json:"conversion_factor"`
	ConversionUnit   string           `json:"conversion_unit"`
	SystemUsageFee   *decimal.Decimal `json:"system_usage_fee"`
}

type ReplaceTiersRequest struct {
	HouseholdID   string      `json:"household_id"`
	UtilityTypeID string      `json:"utility_type_id"`
	ValidFrom     time.Time   `json:"valid_from"`
	ValidUntil    *time.Time  `json:"valid_until"`
	Tiers         []TierInput `json:"tiers"`
}

type TierResponse struct {
	ID               string           `json:"id"`
	TierNumber       int              `json:"tier_number"`
	TierName         string           `json:"tier_name"`
	LimitValue       *decimal.Decimal `json:"limit_value,omitempty"`
	PricePerUnit     decimal.Decimal  `json:"price_per_unit"`
	ConversionFactor *decimal.Decimal `json:"conversion_factor,omitempty"`
	ConversionUnit   string           `json:"conversion_unit,omitempty"`
	SystemUsageFee   *decimal.Decimal `json:"system_usage_fee,omitempty"`
	ValidFrom        time.Time        `json:"valid_from"`
	ValidUntil       *time.Time       `json:"valid_until,omitempty"`
}

type RecordReadingRequest struct {
	HouseholdID   string          `json:"household_id"`
	UtilityTypeID string          `json:"utility_type_id"`
	ReadingDate   time.Time       `json:"reading_date"`
	MeterReading  decimal.Decimal `json:"meter_reading"`
	Notes         string          `json:"notes"`
}

type ReadingResponse struct {
	ID              string           `json:"id"`
	HouseholdID     string           `json:"household_id"`
	UtilityTypeID   string           `json:"utility_type_id"`
	ReadingDate     time.Time        `json:"reading_date"`
	MeterReading    decimal.Decimal  `json:"meter_reading"`
	PreviousReading *decimal.Decimal `json:"previous_reading,omitempty"`
	Consumption     *decimal.Decimal `json:"consumption,omitempty"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

var (
	ErrInvalidInput           = errors.New("invalid_input")
	ErrConfigurationMissing   = errors.New("configuration_missing")
	ErrUnsupportedUtilityType = errors.New("unsupported_utility_type")
	ErrNotFound               = errors.New("not_found")
	ErrDuplicateReading       = errors.New("duplicate_reading")

	ErrInvalidID       = fmt.Errorf("%w: invalid_id", ErrInvalidInput)
	ErrInvalidTierSet  = fmt.Errorf("%w: invalid_tier_set", ErrInvalidInput)
	ErrNegativeReading = fmt.Errorf("%w: meter_regression", ErrInvalidInput)
)
