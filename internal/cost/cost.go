// Package cost prices a set of half-hourly meter readings under a tariff's
// unit rates and standing charges, so that historical usage can be compared
// across tariffs.
package cost

import (
	"sort"
	"time"

	"github.com/bher20/octorate/pkg/octopus"
)

// Result is the priced total for one tariff over a date range. Unit costs
// are in pence, consumption in kWh. UnmatchedReadings counts readings that
// no stored rate covered; they contribute zero cost, so a non-zero value
// means the totals understate the true cost and the rate store likely has a
// gap.
type Result struct {
	TotalConsumptionKWh  float64
	CostExcVAT           float64
	CostIncVAT           float64
	StandingChargeExcVAT float64
	StandingChargeIncVAT float64
	UnmatchedReadings    int
}

// TotalExcVAT is unit cost plus standing charge, excluding VAT.
func (r Result) TotalExcVAT() float64 {
	return r.CostExcVAT + r.StandingChargeExcVAT
}

// TotalIncVAT is unit cost plus standing charge, including VAT.
func (r Result) TotalIncVAT() float64 {
	return r.CostIncVAT + r.StandingChargeIncVAT
}

// Compare prices readings against rates and adds a per-day standing charge
// for every calendar day the range touches.
//
// A reading is matched to the rate whose window contains the reading's
// IntervalEnd. Readings straddle slot boundaries in practice (clock drift on
// the meter), and the interval end is the stable edge: a reading ending
// inside a slot was mostly consumed in it.
func Compare(readings []octopus.Consumption, rates []octopus.Rate, charges []octopus.StandingCharge, rangeStart, rangeEnd time.Time) Result {
	sorted := make([]octopus.Rate, len(rates))
	copy(sorted, rates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ValidFrom.Before(sorted[j].ValidFrom)
	})
	sortedCharges := make([]octopus.StandingCharge, len(charges))
	copy(sortedCharges, charges)
	sort.SliceStable(sortedCharges, func(i, j int) bool {
		return sortedCharges[i].ValidFrom.Before(sortedCharges[j].ValidFrom)
	})

	var res Result
	for _, c := range readings {
		res.TotalConsumptionKWh += c.ConsumptionKWh
		rate, ok := rateAt(sorted, c.IntervalEnd)
		if !ok {
			res.UnmatchedReadings++
			continue
		}
		res.CostExcVAT += c.ConsumptionKWh * rate.ValueExcVAT
		res.CostIncVAT += c.ConsumptionKWh * rate.ValueIncVAT
	}

	for day := 0; day < daysBetween(rangeStart, rangeEnd); day++ {
		d := startOfDay(rangeStart).AddDate(0, 0, day)
		if sc, ok := chargeAt(sortedCharges, d); ok {
			res.StandingChargeExcVAT += sc.ValueExcVAT
			res.StandingChargeIncVAT += sc.ValueIncVAT
		}
	}
	return res
}

// rateAt finds the rate whose half-open window [ValidFrom, ValidTo)
// contains t. rates must be sorted by ValidFrom ascending.
func rateAt(rates []octopus.Rate, t time.Time) (octopus.Rate, bool) {
	// First rate starting after t; the candidate is its predecessor.
	i := sort.Search(len(rates), func(i int) bool {
		return rates[i].ValidFrom.After(t)
	})
	if i == 0 {
		return octopus.Rate{}, false
	}
	r := rates[i-1]
	if t.Before(r.ValidTo) {
		return r, true
	}
	return octopus.Rate{}, false
}

// chargeAt finds the standing charge in force at t. charges must be sorted
// by ValidFrom ascending, so overlapping records resolve to the earliest
// start. A nil ValidTo means the charge has no announced end.
func chargeAt(charges []octopus.StandingCharge, t time.Time) (octopus.StandingCharge, bool) {
	for _, sc := range charges {
		if sc.ValidFrom.After(t) {
			continue
		}
		if sc.ValidTo == nil || t.Before(*sc.ValidTo) {
			return sc, true
		}
	}
	return octopus.StandingCharge{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts the calendar days the range touches, inclusive of
// both endpoints' days.
func daysBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(startOfDay(end).Sub(startOfDay(start))/(24*time.Hour)) + 1
}
