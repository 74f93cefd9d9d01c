package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	utilitydomain "github.com/smallbiznis/homekeep/internal/utility/domain"
)

var (
	defaultGasFactor = decimal.RequireFromString("34.5")
	defaultGasUnit   = "MJ"

	cent = decimal.New(1, -2)
)

// tierLine is one allocated band at full precision.
type tierLine struct {
	tier        utilitydomain.UtilityPricingTier
	consumption decimal.Decimal
	unit        string
	cost        decimal.Decimal
	systemFee   *decimal.Decimal
}

type tieredOutcome struct {
	lines      []tierLine
	billed     *decimal.Decimal
	billedUnit string
	conversion string
}

// strategy computes the tiered charge of one utility kind. Strategies are
// pure: same inputs, same outcome.
type strategy func(consumption decimal.Decimal, unit string, tiers []utilitydomain.UtilityPricingTier) tieredOutcome

var strategies = map[utilitydomain.Kind]strategy{
	utilitydomain.KindElectricity: progressive,
	utilitydomain.KindHotWater:    progressive,
	utilitydomain.KindGas:         convertedProgressive,
	utilitydomain.KindWater:       parallelCharges,
	utilitydomain.KindHeating:     parallelCharges,
}

// computeCost prices consumption under pc. A positive flat unit price wins
// over any active tier set.
func computeCost(pc utilitydomain.PricingConfig, consumption decimal.Decimal, consumptionUnit string) (*utilitydomain.CostResult, error) {
	setting := pc.Setting
	unit := strings.TrimSpace(consumptionUnit)
	if unit == "" {
		unit = setting.Unit
	}

	if len(pc.Tiers) == 0 || (setting.FlatUnitPrice.Valid && setting.FlatUnitPrice.Decimal.IsPositive()) {
		return simpleCost(setting, consumption, unit), nil
	}

	kind, err := utilitydomain.ParseKind(setting.UtilityTypeName)
	if err != nil {
		return nil, err
	}
	apply, ok := strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", utilitydomain.ErrUnsupportedUtilityType, kind)
	}
	return assembleTiered(setting, consumption, unit, apply(consumption, unit, pc.Tiers)), nil
}

func simpleCost(setting utilitydomain.UtilitySetting, consumption decimal.Decimal, unit string) *utilitydomain.CostResult {
	price := decimal.Zero
	if setting.FlatUnitPrice.Valid {
		price = setting.FlatUnitPrice.Decimal
	}
	baseFee := money(setting.BaseFee)
	total := money(setting.BaseFee.Add(consumption.Mul(price)))
	consumptionCost := allocateCents([]decimal.Decimal{consumption.Mul(price)}, total.Sub(baseFee))[0]

	breakdown := []utilitydomain.TierCost{}
	if price.IsPositive() {
		breakdown = append(breakdown, utilitydomain.TierCost{
			TierName:     "flat rate",
			Consumption:  consumption,
			Unit:         unit,
			PricePerUnit: price,
			TierCost:     consumptionCost,
		})
	}

	return &utilitydomain.CostResult{
		UtilityType:     setting.UtilityTypeName,
		PricingMode:     utilitydomain.PricingModeSimple,
		Consumption:     consumption,
		Unit:            unit,
		BaseFee:         baseFee,
		ConsumptionCost: consumptionCost,
		TotalCost:       total,
		Breakdown:       breakdown,
		FormulaDescription: fmt.Sprintf("%s (base fee) + %s %s × %s = %s",
			baseFee.StringFixed(2),
			consumption.String(), unit,
			price.String(),
			total.StringFixed(2),
		),
	}
}

func assembleTiered(setting utilitydomain.UtilitySetting, consumption decimal.Decimal, unit string, out tieredOutcome) *utilitydomain.CostResult {
	consumptionCost := decimal.Zero
	systemTotal := decimal.Zero
	amounts := make([]decimal.Decimal, 0, 2*len(out.lines))
	for _, line := range out.lines {
		consumptionCost = consumptionCost.Add(line.cost)
		amounts = append(amounts, line.cost)
		if line.systemFee != nil {
			systemTotal = systemTotal.Add(*line.systemFee)
			amounts = append(amounts, *line.systemFee)
		}
	}
	total := money(setting.BaseFee.Add(consumptionCost).Add(systemTotal))
	baseFee := money(setting.BaseFee)
	rounded := allocateCents(amounts, total.Sub(baseFee))

	hasSystemFee := false
	roundedCost := decimal.Zero
	roundedFees := decimal.Zero
	breakdown := make([]utilitydomain.TierCost, 0, len(out.lines))
	steps := make([]string, 0, len(out.lines)+3)
	if out.conversion != "" {
		steps = append(steps, out.conversion)
	}

	next := 0
	for _, line := range out.lines {
		cost := rounded[next]
		next++
		roundedCost = roundedCost.Add(cost)
		item := utilitydomain.TierCost{
			TierNumber:   line.tier.TierNumber,
			TierName:     line.tier.TierName,
			Consumption:  line.consumption,
			Unit:         line.unit,
			PricePerUnit: line.tier.PricePerUnit,
			TierCost:     cost,
		}
		if line.tier.LimitValue.Valid {
			limit := line.tier.LimitValue.Decimal
			item.Limit = &limit
		}
		step := fmt.Sprintf("tier %d: %s %s × %s = %s",
			line.tier.TierNumber, line.consumption.String(), line.unit,
			line.tier.PricePerUnit.String(), cost.StringFixed(2))
		if line.systemFee != nil {
			hasSystemFee = true
			fee := rounded[next]
			next++
			roundedFees = roundedFees.Add(fee)
			item.SystemFee = &fee
			step += fmt.Sprintf(" + system fee %s × %s = %s",
				line.consumption.String(), line.tier.SystemUsageFee.Decimal.String(), fee.StringFixed(2))
		}
		breakdown = append(breakdown, item)
		steps = append(steps, step)
	}

	steps = append(steps,
		fmt.Sprintf("base fee %s", baseFee.StringFixed(2)),
		fmt.Sprintf("total = %s", total.StringFixed(2)),
	)

	result := &utilitydomain.CostResult{
		UtilityType:        setting.UtilityTypeName,
		PricingMode:        utilitydomain.PricingModeTiered,
		Consumption:        consumption,
		Unit:               unit,
		BilledConsumption:  out.billed,
		BilledUnit:         out.billedUnit,
		BaseFee:            baseFee,
		ConsumptionCost:    roundedCost,
		TotalCost:          total,
		Breakdown:          breakdown,
		FormulaDescription: strings.Join(steps, "; "),
	}
	if hasSystemFee {
		result.SystemUsageFee = &roundedFees
	}
	return result
}

// allocateCents rounds amounts to cents so they add up to target exactly.
// Every amount is floored first; the cents still missing go to the largest
// remainders, ties to the earlier amount. A negative gap, possible only when
// the base fee carries sub-cent digits, is taken back from the smallest
// remainders.
func allocateCents(amounts []decimal.Decimal, target decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(amounts))
	if len(amounts) == 0 {
		return out
	}
	sum := decimal.Zero
	order := make([]int, len(amounts))
	for i, a := range amounts {
		out[i] = a.RoundFloor(2)
		sum = sum.Add(out[i])
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		ri := amounts[order[i]].Sub(out[order[i]])
		rj := amounts[order[j]].Sub(out[order[j]])
		return ri.GreaterThan(rj)
	})

	gap := target.Sub(sum).Shift(2).IntPart()
	for k := 0; gap > 0; k++ {
		i := order[k%len(order)]
		out[i] = out[i].Add(cent)
		gap--
	}
	for k := 0; gap < 0; k++ {
		i := order[len(order)-1-k%len(order)]
		out[i] = out[i].Sub(cent)
		gap++
	}
	return out
}

// progressive fills tiers in ascending order. Each bounded tier takes at
// most its limit minus the previous limit; the last tier takes whatever is
// left, also when it is bounded.
func progressive(consumption decimal.Decimal, unit string, tiers []utilitydomain.UtilityPricingTier) tieredOutcome {
	lines := make([]tierLine, 0, len(tiers))
	remaining := consumption
	prevLimit := decimal.Zero

	for i, tier := range tiers {
		if !remaining.IsPositive() {
			break
		}
		take := remaining
		if tier.LimitValue.Valid && i < len(tiers)-1 {
			band := tier.LimitValue.Decimal.Sub(prevLimit)
			if band.IsNegative() {
				band = decimal.Zero
			}
			take = decimal.Min(remaining, band)
		}
		if tier.LimitValue.Valid {
			prevLimit = decimal.Max(prevLimit, tier.LimitValue.Decimal)
		}
		if take.IsZero() {
			continue
		}

		line := tierLine{
			tier:        tier,
			consumption: take,
			unit:        unit,
			cost:        take.Mul(tier.PricePerUnit),
		}
		if tier.SystemUsageFee.Valid {
			fee := take.Mul(tier.SystemUsageFee.Decimal)
			line.systemFee = &fee
		}
		lines = append(lines, line)
		remaining = remaining.Sub(take)
	}
	return tieredOutcome{lines: lines}
}

// convertedProgressive converts metered volume into the billing unit of the
// first tier, then allocates progressively. Consumption already expressed in
// the billing unit is not converted again.
func convertedProgressive(consumption decimal.Decimal, unit string, tiers []utilitydomain.UtilityPricingTier) tieredOutcome {
	factor := defaultGasFactor
	billedUnit := defaultGasUnit
	if len(tiers) > 0 {
		if f := tiers[0].ConversionFactor; f.Valid && f.Decimal.IsPositive() {
			factor = f.Decimal
		}
		if u := strings.TrimSpace(tiers[0].ConversionUnit); u != "" {
			billedUnit = u
		}
	}

	if strings.EqualFold(unit, billedUnit) {
		return progressive(consumption, unit, tiers)
	}

	billed := consumption.Mul(factor)
	out := progressive(billed, billedUnit, tiers)
	out.billed = &billed
	out.billedUnit = billedUnit
	out.conversion = fmt.Sprintf("%s %s × %s = %s %s", consumption.String(), unit, factor.String(), billed.String(), billedUnit)
	return out
}

// parallelCharges applies every tier to the full consumption, e.g. water
// plus sewage, or heating components billed side by side.
func parallelCharges(consumption decimal.Decimal, unit string, tiers []utilitydomain.UtilityPricingTier) tieredOutcome {
	lines := make([]tierLine, 0, len(tiers))
	for _, tier := range tiers {
		lines = append(lines, tierLine{
			tier:        tier,
			consumption: consumption,
			unit:        unit,
			cost:        consumption.Mul(tier.PricePerUnit),
		})
	}
	return tieredOutcome{lines: lines}
}

// money rounds half away from zero, which is half-up for the non-negative
// amounts produced here.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
