// Package rates answers time-window questions over a slice of half-hourly
// unit rates: what does electricity cost now, when is it cheapest next, and
// where are the cheapest contiguous windows. All functions are pure; callers
// load the slice from storage and pass the reference time explicitly.
package rates

import (
	"errors"
	"sort"
	"time"

	"github.com/bher20/octorate/pkg/octopus"
)

// ErrNoRates is returned when no rate satisfies a query, either because the
// slice is empty or because no rate covers the requested period.
var ErrNoRates = errors.New("rates: no matching rates")

// Current returns the rate whose half-open validity window [ValidFrom,
// ValidTo) contains now.
func Current(all []octopus.Rate, now time.Time) (octopus.Rate, error) {
	for _, r := range all {
		if !r.ValidFrom.After(now) && now.Before(r.ValidTo) {
			return r, nil
		}
	}
	return octopus.Rate{}, ErrNoRates
}

// upcoming returns the rates that are current or start in the future,
// ordered by ValidFrom ascending. The in-progress slot is kept; the
// window search slides over it.
func upcoming(all []octopus.Rate, now time.Time) []octopus.Rate {
	out := make([]octopus.Rate, 0, len(all))
	for _, r := range all {
		if now.Before(r.ValidTo) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ValidFrom.Before(out[j].ValidFrom)
	})
	return out
}

// futureSlots returns the rates starting strictly after now, ordered by
// ValidFrom ascending. The in-progress slot is excluded.
func futureSlots(all []octopus.Rate, now time.Time) []octopus.Rate {
	out := make([]octopus.Rate, 0, len(all))
	for _, r := range all {
		if r.ValidFrom.After(now) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ValidFrom.Before(out[j].ValidFrom)
	})
	return out
}

// LowestUpcoming returns the cheapest rate starting after now. The slot in
// progress does not count. Ties resolve to the earliest ValidFrom.
func LowestUpcoming(all []octopus.Rate, now time.Time) (octopus.Rate, error) {
	return pickUpcoming(all, now, func(candidate, best octopus.Rate) bool {
		return candidate.ValueIncVAT < best.ValueIncVAT
	})
}

// HighestUpcoming returns the most expensive rate starting after now. The
// slot in progress does not count. Ties resolve to the earliest ValidFrom.
func HighestUpcoming(all []octopus.Rate, now time.Time) (octopus.Rate, error) {
	return pickUpcoming(all, now, func(candidate, best octopus.Rate) bool {
		return candidate.ValueIncVAT > best.ValueIncVAT
	})
}

func pickUpcoming(all []octopus.Rate, now time.Time, better func(candidate, best octopus.Rate) bool) (octopus.Rate, error) {
	candidates := futureSlots(all, now)
	if len(candidates) == 0 {
		return octopus.Rate{}, ErrNoRates
	}
	best := candidates[0]
	for _, r := range candidates[1:] {
		if better(r, best) {
			best = r
		}
	}
	return best, nil
}

// AverageUpcoming returns the mean inc-VAT price of the slots lying wholly
// inside [now, now+hours]: ValidFrom at or after now, ValidTo at or before
// the horizon. A slot straddling either edge does not count. Each slot
// contributes equally.
func AverageUpcoming(all []octopus.Rate, now time.Time, hours float64) (float64, error) {
	horizon := now.Add(time.Duration(hours * float64(time.Hour)))
	var sum float64
	var n int
	for _, r := range all {
		if r.ValidFrom.Before(now) || r.ValidTo.After(horizon) {
			continue
		}
		sum += r.ValueIncVAT
		n++
	}
	if n == 0 {
		return 0, ErrNoRates
	}
	return sum / float64(n), nil
}

// LowestAverage returns the mean inc-VAT price of the n cheapest slots
// starting after now. If fewer than n slots remain, all of them are
// averaged.
func LowestAverage(all []octopus.Rate, now time.Time, n int) (float64, error) {
	candidates := futureSlots(all, now)
	if len(candidates) == 0 || n <= 0 {
		return 0, ErrNoRates
	}
	prices := make([]float64, len(candidates))
	for i, r := range candidates {
		prices[i] = r.ValueIncVAT
	}
	sort.Float64s(prices)
	if n > len(prices) {
		n = len(prices)
	}
	var sum float64
	for _, p := range prices[:n] {
		sum += p
	}
	return sum / float64(n), nil
}
