package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConsumptionPatternStore is the read side consumed by consumption tracking.
type ConsumptionPatternStore interface {
	// ListInventoryChangeEvents returns depleting consume/update events newer
	// than since, newest first.
	ListInventoryChangeEvents(ctx context.Context, db *gorm.DB, householdID snowflake.ID, productKey string, since time.Time, limit int) ([]InventoryChangeEvent, error)
	// ListShoppingHistory returns entries added after since, newest first.
	ListShoppingHistory(ctx context.Context, db *gorm.DB, householdID snowflake.ID, productKey string, since time.Time, limit int) ([]ShoppingListItemHistory, error)
	FindInventoryItem(ctx context.Context, db *gorm.DB, householdID, itemID snowflake.ID) (*InventoryItem, error)
	// FindTrackingSettings returns nil when the household never saved settings.
	FindTrackingSettings(ctx context.Context, db *gorm.DB, householdID snowflake.ID) (*HouseholdTrackingSettings, error)
	ListStockedItems(ctx context.Context, db *gorm.DB, householdID snowflake.ID) ([]InventoryItem, error)
	AggregateChangeEvents(ctx context.Context, db *gorm.DB, householdID snowflake.ID, since time.Time, types []ChangeType) ([]ProductWasteRow, error)
}

type Repository interface {
	ConsumptionPatternStore

	InsertItem(ctx context.Context, db *gorm.DB, item *InventoryItem) error
	// FindInventoryItemForUpdate locks the row for the rest of the transaction.
	FindInventoryItemForUpdate(ctx context.Context, db *gorm.DB, householdID, itemID snowflake.ID) (*InventoryItem, error)
	UpdateItemQuantity(ctx context.Context, db *gorm.DB, item *InventoryItem, old decimal.Decimal) (bool, error)
	InsertChangeEvents(ctx context.Context, db *gorm.DB, events []InventoryChangeEvent) error

	InsertShoppingHistory(ctx context.Context, db *gorm.DB, entry *ShoppingListItemHistory) error
	CompleteShoppingHistory(ctx context.Context, db *gorm.DB, householdID, entryID snowflake.ID, at time.Time, removed bool) (bool, error)

	UpsertTrackingSettings(ctx context.Context, db *gorm.DB, settings *HouseholdTrackingSettings) error

	// ListHouseholdsWithStock returns households holding any item with quantity > 0.
	ListHouseholdsWithStock(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
}
