package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const eventColumns = `id, household_id, inventory_item_id, product_key, product_name, old_quantity, new_quantity,
 quantity_change, change_type, unit, created_at`

const itemColumns = `id, household_id, product_id, product_name, product_key, barcode, quantity, unit, expiry_date,
 purchase_date, last_quantity_change, created_at, updated_at`

type repo struct{}

func Provide() inventorydomain.Repository {
	return &repo{}
}

func (r *repo) ListInventoryChangeEvents(ctx context.Context, db *gorm.DB, householdID snowflake.ID, productKey string, since time.Time, limit int) ([]inventorydomain.InventoryChangeEvent, error) {
	var items []inventorydomain.InventoryChangeEvent
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+`
		 FROM inventory_change_events
		 WHERE household_id = ? AND product_key = ?
		 AND change_type IN ? AND quantity_change < 0 AND created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`,
		householdID,
		productKey,
		[]string{string(inventorydomain.ChangeTypeConsume), string(inventorydomain.ChangeTypeUpdate)},
		since,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListShoppingHistory(ctx context.Context, db *gorm.DB, householdID snowflake.ID, productKey string, since time.Time, limit int) ([]inventorydomain.ShoppingListItemHistory, error) {
	var items []inventorydomain.ShoppingListItemHistory
	err := db.WithContext(ctx).Raw(
		`SELECT id, household_id, product_key, product_name, quantity, unit, source, added_to_list_date,
		 completed_date, removed, created_at
		 FROM shopping_list_item_history
		 WHERE household_id = ? AND product_key = ? AND added_to_list_date >= ?
		 ORDER BY added_to_list_date DESC LIMIT ?`,
		householdID,
		productKey,
		since,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindInventoryItem(ctx context.Context, db *gorm.DB, householdID, itemID snowflake.ID) (*inventorydomain.InventoryItem, error) {
	var item inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items WHERE household_id = ? AND id = ?`,
		householdID,
		itemID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// FindInventoryItemForUpdate reads the item under a row lock held until the
// surrounding transaction ends.
func (r *repo) FindInventoryItemForUpdate(ctx context.Context, db *gorm.DB, householdID, itemID snowflake.ID) (*inventorydomain.InventoryItem, error) {
	var items []inventorydomain.InventoryItem
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("household_id = ? AND id = ?", householdID, itemID).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) FindTrackingSettings(ctx context.Context, db *gorm.DB, householdID snowflake.ID) (*inventorydomain.HouseholdTrackingSettings, error) {
	var items []inventorydomain.HouseholdTrackingSettings
	err := db.WithContext(ctx).
		Where("household_id = ?", householdID).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) ListStockedItems(ctx context.Context, db *gorm.DB, householdID snowflake.ID) ([]inventorydomain.InventoryItem, error) {
	var items []inventorydomain.InventoryItem
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM inventory_items
		 WHERE household_id = ? AND quantity > 0
		 ORDER BY product_name ASC, id ASC`,
		householdID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AggregateChangeEvents(ctx context.Context, db *gorm.DB, householdID snowflake.ID, since time.Time, types []inventorydomain.ChangeType) ([]inventorydomain.ProductWasteRow, error) {
	if len(types) == 0 {
		return []inventorydomain.ProductWasteRow{}, nil
	}
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}

	var rows []inventorydomain.ProductWasteRow
	err := db.WithContext(ctx).Raw(
		`SELECT product_key, MAX(product_name) AS product_name, change_type,
		 COUNT(*) AS events, SUM(ABS(quantity_change)) AS quantity
		 FROM inventory_change_events
		 WHERE household_id = ? AND created_at >= ? AND change_type IN ?
		 GROUP BY product_key, change_type
		 ORDER BY product_key ASC, change_type ASC`,
		householdID,
		since,
		names,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *inventorydomain.InventoryItem) error {
	return db.WithContext(ctx).Create(item).Error
}

// UpdateItemQuantity writes item.Quantity only while the stored quantity is
// still old. It reports false when another writer got there first.
func (r *repo) UpdateItemQuantity(ctx context.Context, db *gorm.DB, item *inventorydomain.InventoryItem, old decimal.Decimal) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE inventory_items SET quantity = ?, last_quantity_change = ?, updated_at = ?
		 WHERE household_id = ? AND id = ? AND quantity = ?`,
		item.Quantity,
		item.LastQuantityChange,
		item.UpdatedAt,
		item.HouseholdID,
		item.ID,
		old,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertChangeEvents(ctx context.Context, db *gorm.DB, events []inventorydomain.InventoryChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&events).Error
}

func (r *repo) InsertShoppingHistory(ctx context.Context, db *gorm.DB, entry *inventorydomain.ShoppingListItemHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) CompleteShoppingHistory(ctx context.Context, db *gorm.DB, householdID, entryID snowflake.ID, at time.Time, removed bool) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE shopping_list_item_history SET completed_date = ?, removed = ?
		 WHERE household_id = ? AND id = ? AND completed_date IS NULL`,
		at,
		removed,
		householdID,
		entryID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpsertTrackingSettings(ctx context.Context, db *gorm.DB, settings *inventorydomain.HouseholdTrackingSettings) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "household_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"consumption_tracking",
			"shopping_pattern_analysis",
			"auto_suggestions",
			"settings",
			"updated_at",
		}),
	}).Create(settings).Error
}

func (r *repo) ListHouseholdsWithStock(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT household_id FROM inventory_items
		 WHERE quantity > 0 AND household_id > ?
		 ORDER BY household_id ASC LIMIT ?`,
		afterID,
		limit,
	).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}
