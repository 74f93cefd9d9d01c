package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	AddItem(ctx context.Context, req AddItemRequest) (*ItemResponse, error)
	GetItem(ctx context.Context, householdID, itemID string) (*ItemResponse, error)
	ChangeQuantity(ctx context.Context, req ChangeQuantityRequest) (*ItemResponse, error)
	ApplyBulkChanges(ctx context.Context, req BulkChangeRequest) ([]ItemResponse, error)

	RecordShoppingHistory(ctx context.Context, req ShoppingHistoryRequest) (*ShoppingHistoryResponse, error)
	CompleteShoppingHistory(ctx context.Context, req CompleteShoppingRequest) error

	GetTrackingSettings(ctx context.Context, householdID string) (*TrackingSettings, error)
	UpsertTrackingSettings(ctx context.Context, req TrackingSettingsRequest) (*TrackingSettings, error)
}

type AddItemRequest struct {
	HouseholdID  string          `json:"household_id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Barcode      string          `json:"barcode"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	PurchaseDate *time.Time      `json:"purchase_date"`
	ExpiryDate   *time.Time      `json:"expiry_date"`
}

type ChangeQuantityRequest struct {
	HouseholdID string          `json:"household_id"`
	ItemID      string          `json:"item_id"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
	ChangeType  ChangeType      `json:"change_type"`
}

type BulkChangeRequest struct {
	HouseholdID string                  `json:"household_id"`
	Changes     []ChangeQuantityRequest `json:"changes"`
}

type ItemResponse struct {
	ID                 string          `json:"id"`
	HouseholdID        string          `json:"household_id"`
	ProductID          string          `json:"product_id,omitempty"`
	ProductName        string          `json:"product_name"`
	Barcode            string          `json:"barcode,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	Unit               string          `json:"unit"`
	PurchaseDate       *time.Time      `json:"purchase_date,omitempty"`
	ExpiryDate         *time.Time      `json:"expiry_date,omitempty"`
	LastQuantityChange *time.Time      `json:"last_quantity_change,omitempty"`
}

type ShoppingHistoryRequest struct {
	HouseholdID string          `json:"household_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Source      ShoppingSource  `json:"source"`
	AddedAt     *time.Time      `json:"added_to_list_date"`
}

type CompleteShoppingRequest struct {
	HouseholdID string     `json:"household_id"`
	EntryID     string     `json:"entry_id"`
	CompletedAt *time.Time `json:"completed_date"`
	Removed     bool       `json:"removed"`
}

type ShoppingHistoryResponse struct {
	ID              string          `json:"id"`
	ProductName     string          `json:"product_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	Source          ShoppingSource  `json:"source"`
	AddedToListDate time.Time       `json:"added_to_list_date"`
}

type TrackingSettingsRequest struct {
	HouseholdID             string `json:"household_id"`
	ConsumptionTracking     *bool  `json:"consumption_tracking_enabled"`
	ShoppingPatternAnalysis *bool  `json:"shopping_pattern_analysis_enabled"`
	AutoSuggestions         *bool  `json:"auto_suggestions_enabled"`
	MinDataPoints           *int   `json:"min_data_points"`
	HistoryMonths           *int   `json:"history_months"`
	ConfidenceThreshold     string `json:"confidence_threshold"`
}

var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")

	// ErrConcurrentUpdate is returned when an item's quantity moved between
	// read and write.
	ErrConcurrentUpdate = errors.New("concurrent_update")

	ErrInvalidID         = fmt.Errorf("%w: invalid_id", ErrInvalidInput)
	ErrInvalidProductKey = fmt.Errorf("%w: invalid_product_key", ErrInvalidInput)
	ErrInvalidQuantity   = fmt.Errorf("%w: invalid_quantity", ErrInvalidInput)
	ErrInvalidChangeType = fmt.Errorf("%w: invalid_change_type", ErrInvalidInput)
	ErrInvalidShopSource = fmt.Errorf("%w: invalid_shopping_source", ErrInvalidInput)
	ErrInvalidThreshold  = fmt.Errorf("%w: invalid_confidence_threshold", ErrInvalidInput)
)
