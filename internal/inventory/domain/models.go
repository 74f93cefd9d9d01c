package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ChangeType string

const (
	ChangeTypeAdd     ChangeType = "add"
	ChangeTypeConsume ChangeType = "consume"
	ChangeTypeUpdate  ChangeType = "update"
	ChangeTypeRemove  ChangeType = "remove"
	ChangeTypeExpire  ChangeType = "expire"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeTypeAdd, ChangeTypeConsume, ChangeTypeUpdate, ChangeTypeRemove, ChangeTypeExpire:
		return true
	}
	return false
}

type ShoppingSource string

const (
	ShoppingSourceManual         ShoppingSource = "manual"
	ShoppingSourceAutoSuggestion ShoppingSource = "auto_suggestion"
	ShoppingSourceLowStock       ShoppingSource = "low_stock"
	ShoppingSourcePattern        ShoppingSource = "pattern"
)

func (s ShoppingSource) Valid() bool {
	switch s {
	case ShoppingSourceManual, ShoppingSourceAutoSuggestion, ShoppingSourceLowStock, ShoppingSourcePattern:
		return true
	}
	return false
}

// InventoryItem is a stocked product instance. Quantity changes only through
// the service so every change lands in the change log.
type InventoryItem struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	HouseholdID        snowflake.ID    `json:"household_id" gorm:"column:household_id;not null;index:idx_inventory_items_household"`
	ProductID          *snowflake.ID   `json:"product_id,omitempty" gorm:"column:product_id"`
	ProductName        string          `json:"product_name" gorm:"type:text;not null"`
	ProductKey         string          `json:"product_key" gorm:"type:text;not null;index"`
	Barcode            string          `json:"barcode,omitempty" gorm:"type:text"`
	Quantity           decimal.Decimal `json:"quantity" gorm:"type:numeric;not null"`
	Unit               string          `json:"unit" gorm:"type:text;not null"`
	ExpiryDate         *time.Time      `json:"expiry_date,omitempty"`
	PurchaseDate       *time.Time      `json:"purchase_date,omitempty"`
	LastQuantityChange *time.Time      `json:"last_quantity_change,omitempty"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// InventoryChangeEvent is one append-only quantity transition.
type InventoryChangeEvent struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	HouseholdID     snowflake.ID    `json:"household_id" gorm:"column:household_id;not null;index:idx_inventory_change_events_product,priority:1"`
	InventoryItemID snowflake.ID    `json:"inventory_item_id" gorm:"column:inventory_item_id;not null"`
	ProductKey      string          `json:"product_key" gorm:"type:text;not null;index:idx_inventory_change_events_product,priority:2"`
	ProductName     string          `json:"product_name" gorm:"type:text;not null"`
	OldQuantity     decimal.Decimal `json:"old_quantity" gorm:"type:numeric;not null"`
	NewQuantity     decimal.Decimal `json:"new_quantity" gorm:"type:numeric;not null"`
	QuantityChange  decimal.Decimal `json:"quantity_change" gorm:"type:numeric;not null"`
	ChangeType      ChangeType      `json:"change_type" gorm:"type:text;not null"`
	Unit            string          `json:"unit" gorm:"type:text"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;index:idx_inventory_change_events_product,priority:3"`
}

func (InventoryChangeEvent) TableName() string { return "inventory_change_events" }

// ShoppingListItemHistory records when an item went onto a shopping list and
// when it left it. Rows are never edited except to stamp completion.
type ShoppingListItemHistory struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	HouseholdID     snowflake.ID    `json:"household_id" gorm:"column:household_id;not null;index:idx_shopping_history_product,priority:1"`
	ProductKey      string          `json:"product_key" gorm:"type:text;not null;index:idx_shopping_history_product,priority:2"`
	ProductName     string          `json:"product_name" gorm:"type:text;not null"`
	Quantity        decimal.Decimal `json:"quantity" gorm:"type:numeric;not null"`
	Unit            string          `json:"unit" gorm:"type:text"`
	Source          ShoppingSource  `json:"source" gorm:"type:text;not null"`
	AddedToListDate time.Time       `json:"added_to_list_date" gorm:"not null;index:idx_shopping_history_product,priority:3"`
	CompletedDate   *time.Time      `json:"completed_date,omitempty"`
	Removed         bool            `json:"removed" gorm:"not null"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
}

func (ShoppingListItemHistory) TableName() string { return "shopping_list_item_history" }

// HouseholdTrackingSettings holds the per-household tracking toggles. Settings
// carries min_data_points, history_months and confidence_threshold.
type HouseholdTrackingSettings struct {
	HouseholdID             snowflake.ID      `json:"household_id" gorm:"primaryKey;autoIncrement:false"`
	ConsumptionTracking     bool              `json:"consumption_tracking_enabled" gorm:"not null"`
	ShoppingPatternAnalysis bool              `json:"shopping_pattern_analysis_enabled" gorm:"not null"`
	AutoSuggestions         bool              `json:"auto_suggestions_enabled" gorm:"not null"`
	Settings                datatypes.JSONMap `json:"settings"`
	CreatedAt               time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt               time.Time         `json:"updated_at" gorm:"not null"`
}

func (HouseholdTrackingSettings) TableName() string { return "household_tracking_settings" }

// ProductWasteRow aggregates change events of one type for one product.
type ProductWasteRow struct {
	ProductKey  string
	ProductName string
	ChangeType  ChangeType
	Events      int
	Quantity    decimal.Decimal
}
