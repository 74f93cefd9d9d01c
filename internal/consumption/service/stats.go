package service

import (
	"math"
	"strings"
	"time"

	consumptiondomain "github.com/smallbiznis/homekeep/internal/consumption/domain"
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
)

const minShoppingEntries = 3

// summarizeInventory turns depleting events (newest first) into an average
// days-per-unit rate. Each valid interval counts once regardless of how many
// units it covered.
func summarizeInventory(events []inventorydomain.InventoryChangeEvent, minDataPoints int, outlierDays float64) *consumptiondomain.InventoryStats {
	out := &consumptiondomain.InventoryStats{
		Method:             consumptiondomain.MethodInventoryTracking,
		DataPoints:         len(events),
		RequiredDataPoints: minDataPoints,
	}
	if len(events) < minDataPoints || len(events) == 0 {
		out.Status = consumptiondomain.StatusInsufficientData
		return out
	}

	rates := make([]float64, 0, len(events))
	for i := len(events) - 2; i >= 0; i-- {
		prev, cur := events[i+1], events[i]
		days := fractionalDays(cur.CreatedAt.Sub(prev.CreatedAt))
		if days <= 0 || days >= outlierDays {
			continue
		}
		units := cur.QuantityChange.Abs().InexactFloat64()
		if units <= 0 {
			continue
		}
		rates = append(rates, days/units)
	}
	out.ValidIntervals = len(rates)
	if len(rates) == 0 {
		out.Status = consumptiondomain.StatusInsufficientData
		return out
	}

	out.Status = consumptiondomain.StatusSuccess
	out.AvgDaysPerUnit = mean(rates)
	out.Unit = events[0].Unit
	last := events[0].CreatedAt.UTC()
	out.LastChange = &last
	out.Confidence = confidenceForCount(len(rates), 10, 5)
	return out
}

// summarizeShopping finds the usual shopping weekday and cadence from
// history rows ordered newest first.
func summarizeShopping(rows []inventorydomain.ShoppingListItemHistory, outlierDays float64) *consumptiondomain.ShoppingStats {
	out := &consumptiondomain.ShoppingStats{
		Method:          consumptiondomain.MethodShoppingPattern,
		TotalPurchases:  len(rows),
		MostFrequentDay: -1,
	}
	if len(rows) < minShoppingEntries {
		out.Status = consumptiondomain.StatusInsufficientData
		return out
	}

	counts := make(map[time.Weekday]int, 7)
	order := make([]time.Weekday, 0, 7)
	for _, row := range rows {
		day := row.AddedToListDate.UTC().Weekday()
		if _, seen := counts[day]; !seen {
			order = append(order, day)
		}
		counts[day]++
	}
	// first seen in newest-first order wins ties
	mode := order[0]
	for _, day := range order[1:] {
		if counts[day] > counts[mode] {
			mode = day
		}
	}

	out.DayFrequency = make(map[string]int, len(counts))
	for day, n := range counts {
		out.DayFrequency[strings.ToLower(day.String())] = n
	}
	out.MostFrequentDay = int(mode)
	out.MostFrequentDayName = mode.String()

	intervals := make([]float64, 0, len(rows))
	for i := len(rows) - 2; i >= 0; i-- {
		days := fractionalDays(rows[i].AddedToListDate.Sub(rows[i+1].AddedToListDate))
		if days <= 0 || days >= outlierDays {
			continue
		}
		intervals = append(intervals, days)
	}
	if len(intervals) > 0 {
		avg := mean(intervals)
		out.AvgDaysBetweenPurchases = &avg
	}

	out.Status = consumptiondomain.StatusSuccess
	out.Confidence = confidenceForCount(counts[mode], 4, 3)
	return out
}

// mergeStats combines both sources. Combined confidence is high only when
// both sides are high.
func mergeStats(inv *consumptiondomain.InventoryStats, shop *consumptiondomain.ShoppingStats) *consumptiondomain.CombinedStats {
	out := &consumptiondomain.CombinedStats{Inventory: inv, Shopping: shop}
	invOK := inv.Status == consumptiondomain.StatusSuccess
	shopOK := shop.Status == consumptiondomain.StatusSuccess

	switch {
	case invOK && shopOK:
		out.Status = consumptiondomain.StatusSuccess
		out.Method = consumptiondomain.MethodCombined
		out.Confidence = consumptiondomain.ConfidenceMedium
		if inv.Confidence == consumptiondomain.ConfidenceHigh && shop.Confidence == consumptiondomain.ConfidenceHigh {
			out.Confidence = consumptiondomain.ConfidenceHigh
		}
		avg := inv.AvgDaysPerUnit
		out.AvgDaysPerUnit = &avg
		out.AvgDaysBetweenPurchases = shop.AvgDaysBetweenPurchases
	case invOK:
		out.Status = consumptiondomain.StatusSuccess
		out.Method = consumptiondomain.MethodInventoryTracking
		out.Confidence = inv.Confidence
		avg := inv.AvgDaysPerUnit
		out.AvgDaysPerUnit = &avg
	case shopOK:
		out.Status = consumptiondomain.StatusSuccess
		out.Method = consumptiondomain.MethodShoppingPattern
		out.Confidence = shop.Confidence
		out.AvgDaysBetweenPurchases = shop.AvgDaysBetweenPurchases
	case inv.Status == consumptiondomain.StatusDisabled && shop.Status == consumptiondomain.StatusDisabled:
		out.Status = consumptiondomain.StatusDisabled
	default:
		out.Status = consumptiondomain.StatusInsufficientData
	}
	return out
}

func confidenceForCount(n, high, medium int) consumptiondomain.Confidence {
	switch {
	case n >= high:
		return consumptiondomain.ConfidenceHigh
	case n >= medium:
		return consumptiondomain.ConfidenceMedium
	default:
		return consumptiondomain.ConfidenceLow
	}
}

func fractionalDays(d time.Duration) float64 {
	return d.Hours() / 24
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func roundTo(value float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(value*p) / p
}

func percentage(part, other int) float64 {
	total := part + other
	if total == 0 {
		return 0
	}
	return roundTo(float64(part)*100/float64(total), 1)
}
