package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	InventoryConsumptionStats(ctx context.Context, req StatsRequest) (*InventoryStats, error)
	ShoppingPatternStats(ctx context.Context, req StatsRequest) (*ShoppingStats, error)
	CombinedConsumptionStats(ctx context.Context, req StatsRequest) (*CombinedStats, error)
	PredictStockDepletion(ctx context.Context, householdID, itemID string) (*Prediction, error)
	GenerateAutoSuggestions(ctx context.Context, householdID string) (*SuggestionList, error)
	WasteStatistics(ctx context.Context, householdID string, periodMonths int) (*WasteStatistics, error)
	IsTrackingEnabled(ctx context.Context, householdID string, feature Feature) (bool, error)
}

type Status string

const (
	StatusSuccess          Status = "success"
	StatusInsufficientData Status = "insufficient_data"
	StatusDisabled         Status = "disabled"
	StatusAlreadyEmpty     Status = "already_empty"
)

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidences so thresholds can be compared. Unknown values rank
// below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

type Method string

const (
	MethodInventoryTracking Method = "inventory_tracking"
	MethodShoppingPattern   Method = "shopping_pattern"
	MethodCombined          Method = "combined"
)

type Feature string

const (
	FeatureConsumptionTracking     Feature = "consumption_tracking"
	FeatureShoppingPatternAnalysis Feature = "shopping_pattern_analysis"
	FeatureAutoSuggestions         Feature = "auto_suggestions"
)

// StatsRequest names a product either by catalog id or by free-text name.
// Exactly one of the two must be set.
type StatsRequest struct {
	HouseholdID string `json:"household_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
}

type InventoryStats struct {
	Status             Status     `json:"status"`
	AvgDaysPerUnit     float64    `json:"avg_days_per_unit,omitempty"`
	Unit               string     `json:"unit,omitempty"`
	DataPoints         int        `json:"data_points"`
	ValidIntervals     int        `json:"valid_intervals"`
	RequiredDataPoints int        `json:"required_data_points,omitempty"`
	Confidence         Confidence `json:"confidence,omitempty"`
	LastChange         *time.Time `json:"last_change,omitempty"`
	Method             Method     `json:"method"`
}

type ShoppingStats struct {
	Status                  Status         `json:"status"`
	MostFrequentDay         int            `json:"most_frequent_day"`
	MostFrequentDayName     string         `json:"most_frequent_day_name,omitempty"`
	DayFrequency            map[string]int `json:"day_frequency,omitempty"`
	AvgDaysBetweenPurchases *float64       `json:"avg_days_between_purchases"`
	TotalPurchases          int            `json:"total_purchases"`
	Confidence              Confidence     `json:"confidence,omitempty"`
	Method                  Method         `json:"method"`
}

// CombinedStats merges both sources. Inventory and Shopping always carry the
// sub-results so callers can see why an answer is missing.
type CombinedStats struct {
	Status                  Status          `json:"status"`
	Method                  Method          `json:"method,omitempty"`
	Confidence              Confidence      `json:"confidence,omitempty"`
	AvgDaysPerUnit          *float64        `json:"avg_days_per_unit,omitempty"`
	AvgDaysBetweenPurchases *float64        `json:"avg_days_between_purchases,omitempty"`
	Inventory               *InventoryStats `json:"inventory"`
	Shopping                *ShoppingStats  `json:"shopping"`
}

type Prediction struct {
	Status             Status          `json:"status"`
	ItemID             string          `json:"item_id"`
	ProductName        string          `json:"product_name"`
	CurrentQuantity    decimal.Decimal `json:"current_quantity"`
	Unit               string          `json:"unit"`
	DaysUntilEmpty     *float64        `json:"days_until_empty,omitempty"`
	PredictedEmptyDate *time.Time      `json:"predicted_empty_date,omitempty"`
	Confidence         Confidence      `json:"confidence,omitempty"`
	Method             Method          `json:"method,omitempty"`
	// Approximate is set when only purchase cadence was available; the
	// projection then ignores the quantity on hand.
	Approximate bool           `json:"approximate"`
	Stats       *CombinedStats `json:"stats,omitempty"`
}

type Suggestion struct {
	ItemID             string          `json:"item_id"`
	ProductName        string          `json:"product_name"`
	CurrentQuantity    decimal.Decimal `json:"current_quantity"`
	Unit               string          `json:"unit"`
	DaysUntilEmpty     float64         `json:"days_until_empty"`
	PredictedEmptyDate time.Time       `json:"predicted_empty_date"`
	Confidence         Confidence      `json:"confidence"`
	Method             Method          `json:"method"`
	Approximate        bool            `json:"approximate"`
	Message            string          `json:"message"`
}

type SuggestionList struct {
	Status      Status       `json:"status"`
	Suggestions []Suggestion `json:"suggestions"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type ProductWaste struct {
	ProductKey      string          `json:"product_key"`
	ProductName     string          `json:"product_name"`
	ExpiredEvents   int             `json:"expired_events"`
	RemovedEvents   int             `json:"removed_events"`
	ConsumedEvents  int             `json:"consumed_events"`
	WastedQuantity  decimal.Decimal `json:"wasted_quantity"`
	WastePercentage float64         `json:"waste_percentage"`
}

type WasteStatistics struct {
	PeriodMonths    int            `json:"period_months"`
	Since           time.Time      `json:"since"`
	WastedEvents    int            `json:"wasted_events"`
	ConsumedEvents  int            `json:"consumed_events"`
	WastePercentage float64        `json:"waste_percentage"`
	Products        []ProductWaste `json:"products"`
}

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")

	ErrInvalidID      = fmt.Errorf("%w: invalid_id", ErrInvalidInput)
	ErrInvalidFeature = fmt.Errorf("%w: invalid_feature", ErrInvalidInput)
)
