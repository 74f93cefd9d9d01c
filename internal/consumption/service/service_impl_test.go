package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/homekeep/internal/clock"
	"github.com/smallbiznis/homekeep/internal/config"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"github.com/smallbiznis/homekeep/internal/inventory/repository"
	"github.com/smallbiznis/homekeep/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	hh    snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&inventorydomain.InventoryItem{},
		&inventorydomain.InventoryChangeEvent{},
		&inventorydomain.ShoppingListItemHistory{},
		&inventorydomain.HouseholdTrackingSettings{},
	))
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	// 2026-06-01 is a Monday
	fc := clock.NewFakeClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{db: conn, node: node, clock: fc, hh: node.Generate()}
}

func (f *fixture) service(store inventorydomain.ConsumptionPatternStore, cfg config.TrackingConfig) consumptiondomain.Service {
	if store == nil {
		store = repository.Provide()
	}
	return New(Params{
		DB:       f.db,
		Log:      zap.NewNop(),
		Clock:    f.clock,
		Store:    store,
		Tracking: config.NewStaticTrackingConfigHolder(cfg),
	})
}

func (f *fixture) item(t *testing.T, name string, quantity int64) *inventorydomain.InventoryItem {
	t.Helper()
	now := f.clock.Now()
	item := &inventorydomain.InventoryItem{
		ID:          f.node.Generate(),
		HouseholdID: f.hh,
		ProductName: name,
		ProductKey:  inventorydomain.ProductKey{Name: name}.String(),
		Quantity:    decimal.NewFromInt(quantity),
		Unit:        "pcs",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.db.Create(item).Error)
	return item
}

// consumeEvery writes n consume events of one unit each, spaced by interval
// and ending one hour before now.
func (f *fixture) consumeEvery(t *testing.T, item *inventorydomain.InventoryItem, n int, interval time.Duration) {
	t.Helper()
	end := f.clock.Now().Add(-time.Hour)
	for i := 0; i < n; i++ {
		f.event(t, item, inventorydomain.ChangeTypeConsume, -1, end.Add(-time.Duration(n-1-i)*interval))
	}
}

func (f *fixture) event(t *testing.T, item *inventorydomain.InventoryItem, changeType inventorydomain.ChangeType, change int64, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&inventorydomain.InventoryChangeEvent{
		ID:              f.node.Generate(),
		HouseholdID:     f.hh,
		InventoryItemID: item.ID,
		ProductKey:      item.ProductKey,
		ProductName:     item.ProductName,
		OldQuantity:     decimal.NewFromInt(10),
		NewQuantity:     decimal.NewFromInt(10 + change),
		QuantityChange:  decimal.NewFromInt(change),
		ChangeType:      changeType,
		Unit:            item.Unit,
		CreatedAt:       at,
	}).Error)
}

func (f *fixture) shopping(t *testing.T, item *inventorydomain.InventoryItem, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&inventorydomain.ShoppingListItemHistory{
		ID:              f.node.Generate(),
		HouseholdID:     f.hh,
		ProductKey:      item.ProductKey,
		ProductName:     item.ProductName,
		Quantity:        decimal.NewFromInt(1),
		Source:          inventorydomain.ShoppingSourceManual,
		AddedToListDate: at,
		CreatedAt:       at,
	}).Error)
}

func (f *fixture) settings(t *testing.T, consumption, shopping, suggestions bool, blob datatypes.JSONMap) {
	t.Helper()
	require.NoError(t, f.db.Create(&inventorydomain.HouseholdTrackingSettings{
		HouseholdID:             f.hh,
		ConsumptionTracking:     consumption,
		ShoppingPatternAnalysis: shopping,
		AutoSuggestions:         suggestions,
		Settings:                blob,
		CreatedAt:               f.clock.Now(),
		UpdatedAt:               f.clock.Now(),
	}).Error)
}

func (f *fixture) request(item *inventorydomain.InventoryItem) consumptiondomain.StatsRequest {
	return consumptiondomain.StatsRequest{HouseholdID: f.hh.String(), ProductName: item.ProductName}
}

func TestInventoryStats_MinDataPointsBoundary(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 4, 48*time.Hour)

	got, err := svc.InventoryConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Status)
	assert.Equal(t, 4, got.DataPoints)
	assert.Equal(t, 5, got.RequiredDataPoints)

	f.event(t, milk, inventorydomain.ChangeTypeConsume, -1, f.clock.Now().Add(-time.Hour-8*24*time.Hour))
	got, err = svc.InventoryConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.Equal(t, 5, got.DataPoints)
	assert.InDelta(t, 2.0, got.AvgDaysPerUnit, 1e-6)
	assert.Equal(t, consumptiondomain.MethodInventoryTracking, got.Method)
}

func TestInventoryStats_IgnoresAddsAndOldEvents(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 4, 24*time.Hour)
	f.event(t, milk, inventorydomain.ChangeTypeAdd, 4, f.clock.Now().Add(-30*time.Minute))
	f.event(t, milk, inventorydomain.ChangeTypeConsume, -1, f.clock.Now().AddDate(0, -7, 0))

	got, err := svc.InventoryConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Status)
	assert.Equal(t, 4, got.DataPoints)
}

func TestInventoryStats_HouseholdMinDataPoints(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 3, 24*time.Hour)
	f.settings(t, true, true, true, datatypes.JSONMap{inventorydomain.SettingMinDataPoints: 3})

	got, err := svc.InventoryConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.InDelta(t, 1.0, got.AvgDaysPerUnit, 1e-6)
}

func TestStats_InvalidRequests(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())

	_, err := svc.InventoryConsumptionStats(context.Background(), consumptiondomain.StatsRequest{HouseholdID: f.hh.String()})
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidInput)

	_, err = svc.ShoppingPatternStats(context.Background(), consumptiondomain.StatsRequest{
		HouseholdID: f.hh.String(), ProductID: "42", ProductName: "Milk",
	})
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidInput)

	_, err = svc.CombinedConsumptionStats(context.Background(), consumptiondomain.StatsRequest{HouseholdID: "abc", ProductName: "Milk"})
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidID)
}

func TestStats_DisabledByHousehold(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 6, 24*time.Hour)
	f.settings(t, false, false, false, nil)

	inv, err := svc.InventoryConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusDisabled, inv.Status)

	shop, err := svc.ShoppingPatternStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusDisabled, shop.Status)

	combined, err := svc.CombinedConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusDisabled, combined.Status)

	list, err := svc.GenerateAutoSuggestions(context.Background(), f.hh.String())
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusDisabled, list.Status)
	assert.Empty(t, list.Suggestions)

	enabled, err := svc.IsTrackingEnabled(context.Background(), f.hh.String(), consumptiondomain.FeatureAutoSuggestions)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = svc.IsTrackingEnabled(context.Background(), f.hh.String(), "telepathy")
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidFeature)
}

func TestShoppingPatternStats(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	coffee := f.item(t, "Coffee", 1)
	for _, d := range []int{1, 8, 15, 22} {
		f.shopping(t, coffee, time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC).AddDate(0, 0, -d))
	}
	// outside the three month window
	f.shopping(t, coffee, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	got, err := svc.ShoppingPatternStats(context.Background(), f.request(coffee))
	require.NoError(t, err)
	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.Equal(t, "Sunday", got.MostFrequentDayName)
	assert.Equal(t, 4, got.TotalPurchases)
	assert.Equal(t, consumptiondomain.ConfidenceHigh, got.Confidence)
	assert.InDelta(t, 7.0, *got.AvgDaysBetweenPurchases, 1e-6)
}

type blockingShopping struct {
	inventorydomain.ConsumptionPatternStore
}

func (blockingShopping) ListShoppingHistory(ctx context.Context, _ *gorm.DB, _ snowflake.ID, _ string, _ time.Time, _ int) ([]inventorydomain.ShoppingListItemHistory, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingShopping struct {
	inventorydomain.ConsumptionPatternStore
}

func (failingShopping) ListShoppingHistory(context.Context, *gorm.DB, snowflake.ID, string, time.Time, int) ([]inventorydomain.ShoppingListItemHistory, error) {
	return nil, errors.New("connection reset")
}

func TestCombinedStats_SlowSideBecomesInsufficient(t *testing.T) {
	f := newFixture(t)
	cfg := config.DefaultTrackingConfig()
	cfg.StatsTimeout = 50 * time.Millisecond
	svc := f.service(blockingShopping{repository.Provide()}, cfg)
	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 5, 24*time.Hour)

	started := time.Now()
	got, err := svc.CombinedConsumptionStats(context.Background(), f.request(milk))
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)

	assert.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.Equal(t, consumptiondomain.MethodInventoryTracking, got.Method)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Shopping.Status)
}

func TestCombinedStats_StoreErrorPropagates(t *testing.T) {
	f := newFixture(t)
	svc := f.service(failingShopping{repository.Provide()}, config.DefaultTrackingConfig())
	milk := f.item(t, "Milk", 3)

	_, err := svc.CombinedConsumptionStats(context.Background(), f.request(milk))
	assert.EqualError(t, err, "connection reset")
}

func TestPredictStockDepletion(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	ctx := context.Background()

	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 5, 48*time.Hour)

	got, err := svc.PredictStockDepletion(ctx, f.hh.String(), milk.ID.String())
	require.NoError(t, err)
	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.InDelta(t, 6.0, *got.DaysUntilEmpty, 1e-6)
	assert.Equal(t, time.Date(2026, 6, 7, 0, 0, 0, 0, time.UTC), *got.PredictedEmptyDate)
	assert.Equal(t, consumptiondomain.MethodInventoryTracking, got.Method)
	assert.False(t, got.Approximate)

	empty := f.item(t, "Flour", 0)
	got, err = svc.PredictStockDepletion(ctx, f.hh.String(), empty.ID.String())
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusAlreadyEmpty, got.Status)

	fresh := f.item(t, "Honey", 1)
	got, err = svc.PredictStockDepletion(ctx, f.hh.String(), fresh.ID.String())
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Status)
	assert.Nil(t, got.PredictedEmptyDate)

	_, err = svc.PredictStockDepletion(ctx, f.hh.String(), f.node.Generate().String())
	assert.ErrorIs(t, err, consumptiondomain.ErrNotFound)
}

func TestPredictStockDepletion_ShoppingFallbackIsApproximate(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	rice := f.item(t, "Rice", 5)
	for _, d := range []int{2, 12, 22} {
		f.shopping(t, rice, f.clock.Now().AddDate(0, 0, -d))
	}

	got, err := svc.PredictStockDepletion(context.Background(), f.hh.String(), rice.ID.String())
	require.NoError(t, err)
	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.True(t, got.Approximate)
	assert.Equal(t, consumptiondomain.MethodShoppingPattern, got.Method)
	assert.InDelta(t, 10.0, *got.DaysUntilEmpty, 1e-6)
	assert.Equal(t, time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC), *got.PredictedEmptyDate)
}

func TestGenerateAutoSuggestions(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	ctx := context.Background()

	soon := f.item(t, "Milk", 3)
	f.consumeEvery(t, soon, 5, 48*time.Hour)
	later := f.item(t, "Butter", 10)
	f.consumeEvery(t, later, 5, 48*time.Hour)
	today := f.item(t, "Bread", 1)
	f.consumeEvery(t, today, 5, 12*time.Hour)

	list, err := svc.GenerateAutoSuggestions(ctx, f.hh.String())
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusSuccess, list.Status)
	require.Len(t, list.Suggestions, 2)

	assert.Equal(t, "Bread", list.Suggestions[0].ProductName)
	assert.Equal(t, "Expected to run out today", list.Suggestions[0].Message)
	assert.Equal(t, "Milk", list.Suggestions[1].ProductName)
	assert.Equal(t, "Expected to run out in 6 days", list.Suggestions[1].Message)
}

func TestGenerateAutoSuggestions_HorizonUsesUnroundedDays(t *testing.T) {
	cases := []struct {
		name     string
		interval time.Duration
		want     int
	}{
		{name: "exactly_seven_days", interval: 7 * 24 * time.Hour, want: 1},
		// 7.04 days per unit shows as 7.0 once rounded
		{name: "just_past_horizon", interval: 7*24*time.Hour + 57*time.Minute + 36*time.Second, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			svc := f.service(nil, config.DefaultTrackingConfig())
			salt := f.item(t, "Salt", 1)
			f.consumeEvery(t, salt, 6, tc.interval)

			pred, err := svc.PredictStockDepletion(context.Background(), f.hh.String(), salt.ID.String())
			require.NoError(t, err)
			require.Equal(t, consumptiondomain.StatusSuccess, pred.Status)
			assert.InDelta(t, 7.0, *pred.DaysUntilEmpty, 1e-9)

			list, err := svc.GenerateAutoSuggestions(context.Background(), f.hh.String())
			require.NoError(t, err)
			assert.Len(t, list.Suggestions, tc.want)
		})
	}
}

func TestGenerateAutoSuggestions_ConfidenceThreshold(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	milk := f.item(t, "Milk", 3)
	f.consumeEvery(t, milk, 5, 48*time.Hour)
	f.settings(t, true, true, true, datatypes.JSONMap{inventorydomain.SettingConfidenceThreshold: "medium"})

	list, err := svc.GenerateAutoSuggestions(context.Background(), f.hh.String())
	require.NoError(t, err)
	assert.Equal(t, consumptiondomain.StatusSuccess, list.Status)
	assert.Empty(t, list.Suggestions, "four intervals only reach low confidence")
}

func TestWasteStatistics(t *testing.T) {
	f := newFixture(t)
	svc := f.service(nil, config.DefaultTrackingConfig())
	yoghurt := f.item(t, "Yoghurt", 1)
	apples := f.item(t, "Apples", 4)
	now := f.clock.Now()

	for i := 0; i < 2; i++ {
		f.event(t, yoghurt, inventorydomain.ChangeTypeExpire, -1, now.AddDate(0, 0, -i-1))
	}
	f.event(t, apples, inventorydomain.ChangeTypeRemove, -2, now.AddDate(0, 0, -3))
	for i := 0; i < 7; i++ {
		f.event(t, apples, inventorydomain.ChangeTypeConsume, -1, now.AddDate(0, 0, -i-1))
	}
	// outside the default one month window
	f.event(t, yoghurt, inventorydomain.ChangeTypeExpire, -1, now.AddDate(0, -2, 0))

	got, err := svc.WasteStatistics(context.Background(), f.hh.String(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PeriodMonths)
	assert.Equal(t, 3, got.WastedEvents)
	assert.Equal(t, 7, got.ConsumedEvents)
	assert.Equal(t, 30.0, got.WastePercentage)

	require.Len(t, got.Products, 2)
	assert.Equal(t, "Yoghurt", got.Products[0].ProductName)
	assert.Equal(t, 2, got.Products[0].ExpiredEvents)
	assert.Equal(t, 100.0, got.Products[0].WastePercentage)
	assert.Equal(t, "Apples", got.Products[1].ProductName)
	assert.True(t, got.Products[1].WastedQuantity.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, 12.5, got.Products[1].WastePercentage)

	_, err = svc.WasteStatistics(context.Background(), f.hh.String(), -1)
	assert.ErrorIs(t, err, consumptiondomain.ErrInvalidInput)
}
