package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

// depletions builds newest-first events; offsets are days after base in
// chronological order.
func depletions(offsets []float64, changes []int64) []inventorydomain.InventoryChangeEvent {
	events := make([]inventorydomain.InventoryChangeEvent, len(offsets))
	for i, off := range offsets {
		events[len(offsets)-1-i] = inventorydomain.InventoryChangeEvent{
			QuantityChange: decimal.NewFromInt(changes[i]),
			Unit:           "l",
			CreatedAt:      base.Add(time.Duration(off * 24 * float64(time.Hour))),
		}
	}
	return events
}

func TestSummarizeInventory_AveragesPerIntervalRates(t *testing.T) {
	events := depletions(
		[]float64{0, 2, 4, 6, 8, 10},
		[]int64{-1, -1, -2, -1, -2, -1},
	)
	got := summarizeInventory(events, 5, 365)

	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	// rates 2, 1, 2, 1, 2
	assert.InDelta(t, 1.6, got.AvgDaysPerUnit, 1e-9)
	assert.Equal(t, 6, got.DataPoints)
	assert.Equal(t, 5, got.ValidIntervals)
	assert.Equal(t, consumptiondomain.ConfidenceMedium, got.Confidence)
	assert.Equal(t, "l", got.Unit)
	require.NotNil(t, got.LastChange)
	assert.Equal(t, base.AddDate(0, 0, 10), *got.LastChange)
}

func TestSummarizeInventory_DropsOutlierIntervals(t *testing.T) {
	events := depletions(
		[]float64{0, 0, 400, 401, 403},
		[]int64{-1, -1, -1, -1, -1},
	)
	got := summarizeInventory(events, 5, 365)

	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.Equal(t, 2, got.ValidIntervals)
	assert.InDelta(t, 1.5, got.AvgDaysPerUnit, 1e-9)
	assert.Equal(t, consumptiondomain.ConfidenceLow, got.Confidence)
}

func TestSummarizeInventory_AllIntervalsInvalid(t *testing.T) {
	events := depletions([]float64{0, 0, 0, 0, 0}, []int64{-1, -1, -1, -1, -1})
	got := summarizeInventory(events, 5, 365)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Status)
	assert.Equal(t, 5, got.DataPoints)
	assert.Zero(t, got.ValidIntervals)
}

func TestSummarizeInventory_ConfidenceBuckets(t *testing.T) {
	offsets := make([]float64, 11)
	changes := make([]int64, 11)
	for i := range offsets {
		offsets[i] = float64(i)
		changes[i] = -1
	}
	got := summarizeInventory(depletions(offsets, changes), 5, 365)
	assert.Equal(t, consumptiondomain.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 10, got.ValidIntervals)
}

func shoppingRows(dates ...time.Time) []inventorydomain.ShoppingListItemHistory {
	rows := make([]inventorydomain.ShoppingListItemHistory, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, inventorydomain.ShoppingListItemHistory{AddedToListDate: d})
	}
	return rows
}

func TestSummarizeShopping_TieGoesToMostRecentDay(t *testing.T) {
	rows := shoppingRows(
		time.Date(2026, 5, 30, 10, 0, 0, 0, time.UTC), // Saturday
		time.Date(2026, 5, 25, 10, 0, 0, 0, time.UTC), // Monday
		time.Date(2026, 5, 23, 10, 0, 0, 0, time.UTC), // Saturday
		time.Date(2026, 5, 18, 10, 0, 0, 0, time.UTC), // Monday
	)
	got := summarizeShopping(rows, 90)

	require.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.Equal(t, int(time.Saturday), got.MostFrequentDay)
	assert.Equal(t, "Saturday", got.MostFrequentDayName)
	assert.Equal(t, map[string]int{"saturday": 2, "monday": 2}, got.DayFrequency)
	require.NotNil(t, got.AvgDaysBetweenPurchases)
	assert.InDelta(t, 4.0, *got.AvgDaysBetweenPurchases, 1e-9)
	assert.Equal(t, 4, got.TotalPurchases)
	assert.Equal(t, consumptiondomain.ConfidenceLow, got.Confidence)
}

func TestSummarizeShopping_Thresholds(t *testing.T) {
	got := summarizeShopping(shoppingRows(base, base.AddDate(0, 0, -7)), 90)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Status)

	weekly := shoppingRows(base, base.AddDate(0, 0, -7), base.AddDate(0, 0, -14), base.AddDate(0, 0, -21))
	got = summarizeShopping(weekly, 90)
	assert.Equal(t, consumptiondomain.ConfidenceHigh, got.Confidence)
	assert.InDelta(t, 7.0, *got.AvgDaysBetweenPurchases, 1e-9)

	got = summarizeShopping(weekly[:3], 90)
	assert.Equal(t, consumptiondomain.ConfidenceMedium, got.Confidence)

	sameDay := shoppingRows(base, base, base)
	got = summarizeShopping(sameDay, 90)
	assert.Equal(t, consumptiondomain.StatusSuccess, got.Status)
	assert.Nil(t, got.AvgDaysBetweenPurchases)
}

func TestMergeStats(t *testing.T) {
	inv := func(c consumptiondomain.Confidence) *consumptiondomain.InventoryStats {
		return &consumptiondomain.InventoryStats{Status: consumptiondomain.StatusSuccess, AvgDaysPerUnit: 2, Confidence: c}
	}
	avg := 7.0
	shop := func(c consumptiondomain.Confidence) *consumptiondomain.ShoppingStats {
		return &consumptiondomain.ShoppingStats{Status: consumptiondomain.StatusSuccess, AvgDaysBetweenPurchases: &avg, Confidence: c}
	}
	insufficientInv := &consumptiondomain.InventoryStats{Status: consumptiondomain.StatusInsufficientData}
	insufficientShop := &consumptiondomain.ShoppingStats{Status: consumptiondomain.StatusInsufficientData}

	got := mergeStats(inv(consumptiondomain.ConfidenceHigh), shop(consumptiondomain.ConfidenceHigh))
	assert.Equal(t, consumptiondomain.MethodCombined, got.Method)
	assert.Equal(t, consumptiondomain.ConfidenceHigh, got.Confidence)

	got = mergeStats(inv(consumptiondomain.ConfidenceHigh), shop(consumptiondomain.ConfidenceLow))
	assert.Equal(t, consumptiondomain.ConfidenceMedium, got.Confidence)

	got = mergeStats(inv(consumptiondomain.ConfidenceLow), insufficientShop)
	assert.Equal(t, consumptiondomain.MethodInventoryTracking, got.Method)
	assert.Equal(t, consumptiondomain.ConfidenceLow, got.Confidence)
	assert.InDelta(t, 2.0, *got.AvgDaysPerUnit, 1e-9)

	got = mergeStats(insufficientInv, shop(consumptiondomain.ConfidenceMedium))
	assert.Equal(t, consumptiondomain.MethodShoppingPattern, got.Method)
	assert.Nil(t, got.AvgDaysPerUnit)

	got = mergeStats(insufficientInv, insufficientShop)
	assert.Equal(t, consumptiondomain.StatusInsufficientData, got.Status)
	assert.Same(t, insufficientInv, got.Inventory)
	assert.Same(t, insufficientShop, got.Shopping)

	got = mergeStats(disabledInventory(), disabledShopping())
	assert.Equal(t, consumptiondomain.StatusDisabled, got.Status)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 30.0, percentage(3, 7))
	assert.Equal(t, 33.3, percentage(1, 2))
	assert.Equal(t, 0.0, percentage(0, 0))
}
