package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/homekeep/internal/clock"
	"github.com/smallbiznis/homekeep/internal/config"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	obslogger "github.com/smallbiznis/homekeep/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/homekeep/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	sourceInventory = "inventory"
	sourceShopping  = "shopping"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Store    inventorydomain.ConsumptionPatternStore
	Tracking *config.TrackingConfigHolder `optional:"true"`
	Metrics  *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	store    inventorydomain.ConsumptionPatternStore
	tracking *config.TrackingConfigHolder
	metrics  *obsmetrics.Metrics
}

func New(p Params) consumptiondomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("consumption.service"),
		clock:    c,
		store:    p.Store,
		tracking: p.Tracking,
		metrics:  p.Metrics,
	}
}

func (s *Service) InventoryConsumptionStats(ctx context.Context, req consumptiondomain.StatsRequest) (*consumptiondomain.InventoryStats, error) {
	householdID, key, err := parseStatsRequest(req)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if !settings.ConsumptionTracking {
		return disabledInventory(), nil
	}
	return s.inventoryStats(ctx, householdID, key, settings)
}

func (s *Service) ShoppingPatternStats(ctx context.Context, req consumptiondomain.StatsRequest) (*consumptiondomain.ShoppingStats, error) {
	householdID, key, err := parseStatsRequest(req)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if !settings.ShoppingPatternAnalysis {
		return disabledShopping(), nil
	}
	return s.shoppingStats(ctx, householdID, key)
}

func (s *Service) CombinedConsumptionStats(ctx context.Context, req consumptiondomain.StatsRequest) (*consumptiondomain.CombinedStats, error) {
	householdID, key, err := parseStatsRequest(req)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings(ctx, householdID)
	if err != nil {
		return nil, err
	}
	return s.combined(ctx, householdID, key, settings)
}

func (s *Service) inventoryStats(ctx context.Context, householdID snowflake.ID, key string, settings inventorydomain.TrackingSettings) (*consumptiondomain.InventoryStats, error) {
	cfg := s.tracking.Get()
	since := s.clock.Now().AddDate(0, -settings.HistoryMonths, 0)
	events, err := s.store.ListInventoryChangeEvents(ctx, s.db, householdID, key, since, cfg.InventoryEventLimit)
	if err != nil {
		return nil, err
	}
	return summarizeInventory(events, settings.MinDataPoints, cfg.InventoryOutlierDays), nil
}

func (s *Service) shoppingStats(ctx context.Context, householdID snowflake.ID, key string) (*consumptiondomain.ShoppingStats, error) {
	cfg := s.tracking.Get()
	since := s.clock.Now().AddDate(0, -cfg.ShoppingHistoryMonths, 0)
	rows, err := s.store.ListShoppingHistory(ctx, s.db, householdID, key, since, cfg.ShoppingEventLimit)
	if err != nil {
		return nil, err
	}
	return summarizeShopping(rows, cfg.ShoppingOutlierDays), nil
}

// combined runs both sources concurrently. Each side gets its own deadline;
// a side that runs out of time reports insufficient_data instead of failing
// the whole call.
func (s *Service) combined(ctx context.Context, householdID snowflake.ID, key string, settings inventorydomain.TrackingSettings) (*consumptiondomain.CombinedStats, error) {
	timeout := s.tracking.Get().StatsTimeout
	var (
		inv  *consumptiondomain.InventoryStats
		shop *consumptiondomain.ShoppingStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !settings.ConsumptionTracking {
			inv = disabledInventory()
			return nil
		}
		sideCtx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()
		res, err := s.inventoryStats(sideCtx, householdID, key, settings)
		if err != nil {
			if !s.timedOut(ctx, sideCtx, key, sourceInventory) {
				return err
			}
			res = &consumptiondomain.InventoryStats{
				Status:             consumptiondomain.StatusInsufficientData,
				Method:             consumptiondomain.MethodInventoryTracking,
				RequiredDataPoints: settings.MinDataPoints,
			}
		}
		inv = res
		return nil
	})
	g.Go(func() error {
		if !settings.ShoppingPatternAnalysis {
			shop = disabledShopping()
			return nil
		}
		sideCtx, cancel := context.WithTimeout(gctx, timeout)
		defer cancel()
		res, err := s.shoppingStats(sideCtx, householdID, key)
		if err != nil {
			if !s.timedOut(ctx, sideCtx, key, sourceShopping) {
				return err
			}
			res = &consumptiondomain.ShoppingStats{
				Status:          consumptiondomain.StatusInsufficientData,
				Method:          consumptiondomain.MethodShoppingPattern,
				MostFrequentDay: -1,
			}
		}
		shop = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeStats(inv, shop), nil
}

// timedOut reports whether a side failed only because its own deadline
// passed while the caller was still waiting.
func (s *Service) timedOut(parent, side context.Context, key, source string) bool {
	if parent.Err() != nil || !errors.Is(side.Err(), context.DeadlineExceeded) {
		return false
	}
	obslogger.WithContext(parent, s.log).Warn("consumption stats timed out",
		zap.String("source", source),
		zap.String("product_key", key),
	)
	s.metrics.RecordStatsTimeout(parent, source)
	return true
}

func (s *Service) PredictStockDepletion(ctx context.Context, householdID, itemID string) (*consumptiondomain.Prediction, error) {
	hhID, err := parseID(householdID, "household_id")
	if err != nil {
		return nil, err
	}
	id, err := parseID(itemID, "item_id")
	if err != nil {
		return nil, err
	}
	item, err := s.store.FindInventoryItem(ctx, s.db, hhID, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: inventory item %s", consumptiondomain.ErrNotFound, id)
	}
	if !item.Quantity.IsPositive() {
		pred := newPrediction(item)
		pred.Status = consumptiondomain.StatusAlreadyEmpty
		s.metrics.RecordPrediction(ctx, string(pred.Status), "")
		return pred, nil
	}

	settings, err := s.settings(ctx, hhID)
	if err != nil {
		return nil, err
	}
	stats, err := s.combined(ctx, hhID, item.ProductKey, settings)
	if err != nil {
		return nil, err
	}
	pred, _ := s.project(item, stats)
	s.metrics.RecordPrediction(ctx, string(pred.Status), string(pred.Method))
	return pred, nil
}

// project turns combined stats into a depletion estimate. Inventory rates
// scale with the quantity on hand; the shopping cadence alone is used as is
// and marked approximate. The second result is the unrounded day count,
// which horizon checks must use.
func (s *Service) project(item *inventorydomain.InventoryItem, stats *consumptiondomain.CombinedStats) (*consumptiondomain.Prediction, float64) {
	pred := newPrediction(item)
	pred.Stats = stats

	var days float64
	switch {
	case stats.Status == consumptiondomain.StatusSuccess && stats.AvgDaysPerUnit != nil:
		days = item.Quantity.InexactFloat64() * *stats.AvgDaysPerUnit
	case stats.Status == consumptiondomain.StatusSuccess && stats.AvgDaysBetweenPurchases != nil:
		days = *stats.AvgDaysBetweenPurchases
		pred.Approximate = true
	default:
		pred.Status = consumptiondomain.StatusInsufficientData
		return pred, 0
	}

	empty := clock.Today(s.clock).AddDate(0, 0, int(math.Floor(days)))
	rounded := roundTo(days, 1)
	pred.Status = consumptiondomain.StatusSuccess
	pred.DaysUntilEmpty = &rounded
	pred.PredictedEmptyDate = &empty
	pred.Confidence = stats.Confidence
	pred.Method = stats.Method
	return pred, days
}

func (s *Service) GenerateAutoSuggestions(ctx context.Context, householdID string) (*consumptiondomain.SuggestionList, error) {
	hhID, err := parseID(householdID, "household_id")
	if err != nil {
		return nil, err
	}
	out := &consumptiondomain.SuggestionList{
		Suggestions: []consumptiondomain.Suggestion{},
		GeneratedAt: s.clock.Now(),
	}
	settings, err := s.settings(ctx, hhID)
	if err != nil {
		return nil, err
	}
	if !settings.AutoSuggestions {
		out.Status = consumptiondomain.StatusDisabled
		return out, nil
	}

	items, err := s.store.ListStockedItems(ctx, s.db, hhID)
	if err != nil {
		return nil, err
	}
	horizon := s.tracking.Get().SuggestionHorizonDays
	threshold := consumptiondomain.Confidence(settings.ConfidenceThreshold)

	for i := range items {
		item := &items[i]
		stats, err := s.combined(ctx, hhID, item.ProductKey, settings)
		if err != nil {
			return nil, err
		}
		pred, days := s.project(item, stats)
		if pred.Status != consumptiondomain.StatusSuccess || days > horizon {
			continue
		}
		if threshold != "" && pred.Confidence.Rank() < threshold.Rank() {
			continue
		}
		out.Suggestions = append(out.Suggestions, consumptiondomain.Suggestion{
			ItemID:             pred.ItemID,
			ProductName:        pred.ProductName,
			CurrentQuantity:    pred.CurrentQuantity,
			Unit:               pred.Unit,
			DaysUntilEmpty:     *pred.DaysUntilEmpty,
			PredictedEmptyDate: *pred.PredictedEmptyDate,
			Confidence:         pred.Confidence,
			Method:             pred.Method,
			Approximate:        pred.Approximate,
			Message:            depletionMessage(*pred.DaysUntilEmpty),
		})
	}
	sort.SliceStable(out.Suggestions, func(i, j int) bool {
		return out.Suggestions[i].DaysUntilEmpty < out.Suggestions[j].DaysUntilEmpty
	})

	out.Status = consumptiondomain.StatusSuccess
	s.metrics.RecordSuggestions(ctx, len(out.Suggestions))
	obslogger.WithContext(ctx, s.log).Debug("auto suggestions generated",
		zap.String("household_id", hhID.String()),
		zap.Int("stocked_items", len(items)),
		zap.Int("suggestions", len(out.Suggestions)),
	)
	return out, nil
}

func (s *Service) WasteStatistics(ctx context.Context, householdID string, periodMonths int) (*consumptiondomain.WasteStatistics, error) {
	hhID, err := parseID(householdID, "household_id")
	if err != nil {
		return nil, err
	}
	if periodMonths < 0 {
		return nil, fmt.Errorf("%w: period_months must not be negative", consumptiondomain.ErrInvalidInput)
	}
	if periodMonths == 0 {
		periodMonths = 1
	}

	since := s.clock.Now().AddDate(0, -periodMonths, 0)
	rows, err := s.store.AggregateChangeEvents(ctx, s.db, hhID, since, []inventorydomain.ChangeType{
		inventorydomain.ChangeTypeExpire,
		inventorydomain.ChangeTypeRemove,
		inventorydomain.ChangeTypeConsume,
	})
	if err != nil {
		return nil, err
	}

	out := &consumptiondomain.WasteStatistics{PeriodMonths: periodMonths, Since: since}
	byKey := map[string]*consumptiondomain.ProductWaste{}
	keys := make([]string, 0)
	for _, row := range rows {
		p, ok := byKey[row.ProductKey]
		if !ok {
			p = &consumptiondomain.ProductWaste{ProductKey: row.ProductKey, ProductName: row.ProductName}
			byKey[row.ProductKey] = p
			keys = append(keys, row.ProductKey)
		}
		switch row.ChangeType {
		case inventorydomain.ChangeTypeExpire:
			p.ExpiredEvents += row.Events
			p.WastedQuantity = p.WastedQuantity.Add(row.Quantity)
		case inventorydomain.ChangeTypeRemove:
			p.RemovedEvents += row.Events
			p.WastedQuantity = p.WastedQuantity.Add(row.Quantity)
		case inventorydomain.ChangeTypeConsume:
			p.ConsumedEvents += row.Events
		}
	}

	products := make([]consumptiondomain.ProductWaste, 0, len(keys))
	for _, key := range keys {
		p := byKey[key]
		wasted := p.ExpiredEvents + p.RemovedEvents
		out.WastedEvents += wasted
		out.ConsumedEvents += p.ConsumedEvents
		if wasted == 0 {
			continue
		}
		p.WastePercentage = percentage(wasted, p.ConsumedEvents)
		products = append(products, *p)
	}
	sort.SliceStable(products, func(i, j int) bool {
		wi := products[i].ExpiredEvents + products[i].RemovedEvents
		wj := products[j].ExpiredEvents + products[j].RemovedEvents
		return wi > wj
	})
	out.Products = products
	out.WastePercentage = percentage(out.WastedEvents, out.ConsumedEvents)
	return out, nil
}

func (s *Service) IsTrackingEnabled(ctx context.Context, householdID string, feature consumptiondomain.Feature) (bool, error) {
	hhID, err := parseID(householdID, "household_id")
	if err != nil {
		return false, err
	}
	settings, err := s.settings(ctx, hhID)
	if err != nil {
		return false, err
	}
	switch feature {
	case consumptiondomain.FeatureConsumptionTracking:
		return settings.ConsumptionTracking, nil
	case consumptiondomain.FeatureShoppingPatternAnalysis:
		return settings.ShoppingPatternAnalysis, nil
	case consumptiondomain.FeatureAutoSuggestions:
		return settings.AutoSuggestions, nil
	}
	return false, fmt.Errorf("%w: %q", consumptiondomain.ErrInvalidFeature, feature)
}

func (s *Service) settings(ctx context.Context, householdID snowflake.ID) (inventorydomain.TrackingSettings, error) {
	row, err := s.store.FindTrackingSettings(ctx, s.db, householdID)
	if err != nil {
		return inventorydomain.TrackingSettings{}, err
	}
	return inventorydomain.ResolveTrackingSettings(row, s.tracking.Get()), nil
}

func depletionMessage(days float64) string {
	if days < 1 {
		return "Expected to run out today"
	}
	n := int(math.Round(days))
	if n == 1 {
		return "Expected to run out in 1 day"
	}
	return fmt.Sprintf("Expected to run out in %d days", n)
}

func newPrediction(item *inventorydomain.InventoryItem) *consumptiondomain.Prediction {
	return &consumptiondomain.Prediction{
		ItemID:          item.ID.String(),
		ProductName:     item.ProductName,
		CurrentQuantity: item.Quantity,
		Unit:            item.Unit,
	}
}

func disabledInventory() *consumptiondomain.InventoryStats {
	return &consumptiondomain.InventoryStats{
		Status: consumptiondomain.StatusDisabled,
		Method: consumptiondomain.MethodInventoryTracking,
	}
}

func disabledShopping() *consumptiondomain.ShoppingStats {
	return &consumptiondomain.ShoppingStats{
		Status:          consumptiondomain.StatusDisabled,
		Method:          consumptiondomain.MethodShoppingPattern,
		MostFrequentDay: -1,
	}
}

func parseStatsRequest(req consumptiondomain.StatsRequest) (snowflake.ID, string, error) {
	householdID, err := parseID(req.HouseholdID, "household_id")
	if err != nil {
		return 0, "", err
	}
	key, err := inventorydomain.ParseProductKey(req.ProductID, req.ProductName)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", consumptiondomain.ErrInvalidInput, err)
	}
	return householdID, key.String(), nil
}

func parseID(value, field string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", consumptiondomain.ErrInvalidID, field)
	}
	return id, nil
}

