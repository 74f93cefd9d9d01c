package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/homekeep/internal/clock"
	"github.com/smallbiznis/homekeep/internal/config"
	expirydomain "github.com/smallbiznis/homekeep/internal/expiry/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     inventorydomain.Repository
	Expiry   expirydomain.Service         `optional:"true"`
	Tracking *config.TrackingConfigHolder `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     inventorydomain.Repository
	expiry   expirydomain.Service
	tracking *config.TrackingConfigHolder
}

func New(p Params) inventorydomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("inventory.service"),
		genID:    p.GenID,
		clock:    c,
		repo:     p.Repo,
		expiry:   p.Expiry,
		tracking: p.Tracking,
	}
}

// AddItem stocks a new item and logs the add. When both purchase and expiry
// dates are known the shelf life is fed to the expiry learner.
func (s *Service) AddItem(ctx context.Context, req inventorydomain.AddItemRequest) (*inventorydomain.ItemResponse, error) {
	householdID, err := parseID(req.HouseholdID, "household_id")
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		return nil, fmt.Errorf("%w: product_name is required", inventorydomain.ErrInvalidInput)
	}
	var productID *snowflake.ID
	if strings.TrimSpace(req.ProductID) != "" {
		id, err := parseID(req.ProductID, "product_id")
		if err != nil {
			return nil, err
		}
		productID = &id
	}
	if req.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must not be negative", inventorydomain.ErrInvalidQuantity)
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = "pcs"
	}

	key := inventorydomain.ProductKey{ProductID: productID}
	if productID == nil {
		key.Name = name
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	item := &inventorydomain.InventoryItem{
		ID:                 s.genID.Generate(),
		HouseholdID:        householdID,
		ProductID:          productID,
		ProductName:        name,
		ProductKey:         key.String(),
		Barcode:            strings.TrimSpace(req.Barcode),
		Quantity:           req.Quantity,
		Unit:               unit,
		ExpiryDate:         utcDate(req.ExpiryDate),
		PurchaseDate:       utcDate(req.PurchaseDate),
		LastQuantityChange: &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	event := s.newEvent(item, decimal.Zero, req.Quantity, inventorydomain.ChangeTypeAdd, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return err
		}
		return s.repo.InsertChangeEvents(ctx, tx, []inventorydomain.InventoryChangeEvent{event})
	})
	if err != nil {
		return nil, err
	}

	if s.expiry != nil && item.PurchaseDate != nil && item.ExpiryDate != nil {
		shelfLife := int(math.Floor(item.ExpiryDate.Sub(*item.PurchaseDate).Hours() / 24))
		s.expiry.RecordExpiryPattern(ctx, expirydomain.RecordRequest{
			HouseholdID:   householdID.String(),
			Barcode:       item.Barcode,
			ProductName:   item.ProductName,
			ShelfLifeDays: &shelfLife,
		})
	}

	return toItemResponse(item), nil
}

func (s *Service) GetItem(ctx context.Context, householdID, itemID string) (*inventorydomain.ItemResponse, error) {
	hhID, err := parseID(householdID, "household_id")
	if err != nil {
		return nil, err
	}
	id, err := parseID(itemID, "item_id")
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindInventoryItem(ctx, s.db, hhID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, inventorydomain.ErrNotFound
	}
	return toItemResponse(item), nil
}

// ChangeQuantity moves an item to a new quantity and appends the matching
// event in the same transaction.
func (s *Service) ChangeQuantity(ctx context.Context, req inventorydomain.ChangeQuantityRequest) (*inventorydomain.ItemResponse, error) {
	items, err := s.ApplyBulkChanges(ctx, inventorydomain.BulkChangeRequest{
		HouseholdID: req.HouseholdID,
		Changes:     []inventorydomain.ChangeQuantityRequest{req},
	})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ApplyBulkChanges applies every change in one transaction with exactly one
// event per changed item. Unchanged quantities produce no event.
func (s *Service) ApplyBulkChanges(ctx context.Context, req inventorydomain.BulkChangeRequest) ([]inventorydomain.ItemResponse, error) {
	householdID, err := parseID(req.HouseholdID, "household_id")
	if err != nil {
		return nil, err
	}
	if len(req.Changes) == 0 {
		return nil, fmt.Errorf("%w: no changes", inventorydomain.ErrInvalidInput)
	}

	type change struct {
		itemID      snowflake.ID
		newQuantity decimal.Decimal
		changeType  inventorydomain.ChangeType
	}
	changes := make([]change, 0, len(req.Changes))
	seen := make(map[snowflake.ID]struct{}, len(req.Changes))
	for _, c := range req.Changes {
		id, err := parseID(c.ItemID, "item_id")
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: item %s changed twice", inventorydomain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		if c.NewQuantity.IsNegative() {
			return nil, fmt.Errorf("%w: new_quantity must not be negative", inventorydomain.ErrInvalidQuantity)
		}
		if !c.ChangeType.Valid() || c.ChangeType == inventorydomain.ChangeTypeAdd {
			return nil, fmt.Errorf("%w: %q", inventorydomain.ErrInvalidChangeType, c.ChangeType)
		}
		changes = append(changes, change{itemID: id, newQuantity: c.NewQuantity, changeType: c.ChangeType})
	}

	// Rows are locked in id order so overlapping bulk requests cannot deadlock.
	locking := make([]change, len(changes))
	copy(locking, changes)
	sort.Slice(locking, func(i, j int) bool { return locking[i].itemID < locking[j].itemID })

	byID := make(map[snowflake.ID]inventorydomain.ItemResponse, len(changes))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		events := make([]inventorydomain.InventoryChangeEvent, 0, len(changes))
		for _, c := range locking {
			item, err := s.repo.FindInventoryItemForUpdate(ctx, tx, householdID, c.itemID)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("%w: item %s", inventorydomain.ErrNotFound, c.itemID)
			}
			old := item.Quantity
			if old.Equal(c.newQuantity) {
				byID[c.itemID] = *toItemResponse(item)
				continue
			}

			item.Quantity = c.newQuantity
			item.LastQuantityChange = &now
			item.UpdatedAt = now
			updated, err := s.repo.UpdateItemQuantity(ctx, tx, item, old)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("%w: item %s", inventorydomain.ErrConcurrentUpdate, c.itemID)
			}
			events = append(events, s.newEvent(item, old, c.newQuantity, c.changeType, now))
			byID[c.itemID] = *toItemResponse(item)
		}
		return s.repo.InsertChangeEvents(ctx, tx, events)
	})
	if err != nil {
		if errors.Is(err, inventorydomain.ErrConcurrentUpdate) {
			s.log.Warn("inventory quantity changed concurrently",
				zap.String("household_id", householdID.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	out := make([]inventorydomain.ItemResponse, 0, len(changes))
	for _, c := range changes {
		out = append(out, byID[c.itemID])
	}
	return out, nil
}

func (s *Service) newEvent(item *inventorydomain.InventoryItem, old, updated decimal.Decimal, changeType inventorydomain.ChangeType, at time.Time) inventorydomain.InventoryChangeEvent {
	return inventorydomain.InventoryChangeEvent{
		ID:              s.genID.Generate(),
		HouseholdID:     item.HouseholdID,
		InventoryItemID: item.ID,
		ProductKey:      item.ProductKey,
		ProductName:     item.ProductName,
		OldQuantity:     old,
		NewQuantity:     updated,
		QuantityChange:  updated.Sub(old),
		ChangeType:      changeType,
		Unit:            item.Unit,
		CreatedAt:       at,
	}
}

func (s *Service) RecordShoppingHistory(ctx context.Context, req inventorydomain.ShoppingHistoryRequest) (*inventorydomain.ShoppingHistoryResponse, error) {
	householdID, err := parseID(req.HouseholdID, "household_id")
	if err != nil {
		return nil, err
	}
	key, err := inventorydomain.ParseProductKey(req.ProductID, productNameUnlessID(req.ProductID, req.ProductName))
	if err != nil {
		return nil, err
	}
	source := req.Source
	if source == "" {
		source = inventorydomain.ShoppingSourceManual
	}
	if !source.Valid() {
		return nil, fmt.Errorf("%w: %q", inventorydomain.ErrInvalidShopSource, source)
	}
	if req.Quantity.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must not be negative", inventorydomain.ErrInvalidQuantity)
	}
	quantity := req.Quantity
	if quantity.IsZero() {
		quantity = decimal.NewFromInt(1)
	}

	now := s.clock.Now()
	added := now
	if req.AddedAt != nil {
		added = req.AddedAt.UTC()
	}
	entry := &inventorydomain.ShoppingListItemHistory{
		ID:              s.genID.Generate(),
		HouseholdID:     householdID,
		ProductKey:      key.String(),
		ProductName:     strings.TrimSpace(req.ProductName),
		Quantity:        quantity,
		Unit:            strings.TrimSpace(req.Unit),
		Source:          source,
		AddedToListDate: added,
		CreatedAt:       now,
	}
	if err := s.repo.InsertShoppingHistory(ctx, s.db, entry); err != nil {
		return nil, err
	}
	return &inventorydomain.ShoppingHistoryResponse{
		ID:              entry.ID.String(),
		ProductName:     entry.ProductName,
		Quantity:        entry.Quantity,
		Unit:            entry.Unit,
		Source:          entry.Source,
		AddedToListDate: entry.AddedToListDate,
	}, nil
}

func (s *Service) CompleteShoppingHistory(ctx context.Context, req inventorydomain.CompleteShoppingRequest) error {
	householdID, err := parseID(req.HouseholdID, "household_id")
	if err != nil {
		return err
	}
	entryID, err := parseID(req.EntryID, "entry_id")
	if err != nil {
		return err
	}
	at := s.clock.Now()
	if req.CompletedAt != nil {
		at = req.CompletedAt.UTC()
	}
	ok, err := s.repo.CompleteShoppingHistory(ctx, s.db, householdID, entryID, at, req.Removed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: open shopping entry %s", inventorydomain.ErrNotFound, entryID)
	}
	return nil
}

func (s *Service) GetTrackingSettings(ctx context.Context, householdID string) (*inventorydomain.TrackingSettings, error) {
	hhID, err := parseID(householdID, "household_id")
	if err != nil {
		return nil, err
	}
	row, err := s.repo.FindTrackingSettings(ctx, s.db, hhID)
	if err != nil {
		return nil, err
	}
	resolved := inventorydomain.ResolveTrackingSettings(row, s.tracking.Get())
	return &resolved, nil
}

// UpsertTrackingSettings applies a partial update; nil fields keep their
// current value.
func (s *Service) UpsertTrackingSettings(ctx context.Context, req inventorydomain.TrackingSettingsRequest) (*inventorydomain.TrackingSettings, error) {
	householdID, err := parseID(req.HouseholdID, "household_id")
	if err != nil {
		return nil, err
	}
	threshold := strings.ToLower(strings.TrimSpace(req.ConfidenceThreshold))
	switch threshold {
	case "", "low", "medium", "high":
	default:
		return nil, fmt.Errorf("%w: %q", inventorydomain.ErrInvalidThreshold, req.ConfidenceThreshold)
	}
	if req.MinDataPoints != nil && *req.MinDataPoints <= 0 {
		return nil, fmt.Errorf("%w: min_data_points must be positive", inventorydomain.ErrInvalidInput)
	}
	if req.HistoryMonths != nil && (*req.HistoryMonths <= 0 || *req.HistoryMonths > 36) {
		return nil, fmt.Errorf("%w: history_months must be within 1..36", inventorydomain.ErrInvalidInput)
	}

	var row *inventorydomain.HouseholdTrackingSettings
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindTrackingSettings(ctx, tx, householdID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if existing == nil {
			existing = &inventorydomain.HouseholdTrackingSettings{
				HouseholdID:             householdID,
				ConsumptionTracking:     true,
				ShoppingPatternAnalysis: true,
				AutoSuggestions:         true,
				CreatedAt:               now,
			}
		}
		settings := datatypes.JSONMap{}
		for k, v := range existing.Settings {
			settings[k] = v
		}
		if req.ConsumptionTracking != nil {
			existing.ConsumptionTracking = *req.ConsumptionTracking
		}
		if req.ShoppingPatternAnalysis != nil {
			existing.ShoppingPatternAnalysis = *req.ShoppingPatternAnalysis
		}
		if req.AutoSuggestions != nil {
			existing.AutoSuggestions = *req.AutoSuggestions
		}
		if req.MinDataPoints != nil {
			settings[inventorydomain.SettingMinDataPoints] = *req.MinDataPoints
		}
		if req.HistoryMonths != nil {
			settings[inventorydomain.SettingHistoryMonths] = *req.HistoryMonths
		}
		if threshold != "" {
			settings[inventorydomain.SettingConfidenceThreshold] = threshold
		}
		existing.Settings = settings
		existing.UpdatedAt = now
		row = existing
		return s.repo.UpsertTrackingSettings(ctx, tx, existing)
	})
	if err != nil {
		return nil, err
	}

	resolved := inventorydomain.ResolveTrackingSettings(row, s.tracking.Get())
	s.log.Info("tracking settings updated",
		zap.String("household_id", householdID.String()),
		zap.Bool("consumption_tracking", resolved.ConsumptionTracking),
		zap.Bool("shopping_pattern_analysis", resolved.ShoppingPatternAnalysis),
		zap.Bool("auto_suggestions", resolved.AutoSuggestions),
	)
	return &resolved, nil
}

func toItemResponse(item *inventorydomain.InventoryItem) *inventorydomain.ItemResponse {
	resp := &inventorydomain.ItemResponse{
		ID:                 item.ID.String(),
		HouseholdID:        item.HouseholdID.String(),
		ProductName:        item.ProductName,
		Barcode:            item.Barcode,
		Quantity:           item.Quantity,
		Unit:               item.Unit,
		PurchaseDate:       item.PurchaseDate,
		ExpiryDate:         item.ExpiryDate,
		LastQuantityChange: item.LastQuantityChange,
	}
	if item.ProductID != nil {
		resp.ProductID = item.ProductID.String()
	}
	return resp
}

// productNameUnlessID drops the display name when a catalog id is present so
// the key is built from the id alone.
func productNameUnlessID(productID, name string) string {
	if strings.TrimSpace(productID) != "" {
		return ""
	}
	return name
}

func parseID(value, field string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", inventorydomain.ErrInvalidID, field)
	}
	return id, nil
}

func utcDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
