package rates

import (
	"sort"
	"time"

	"github.com/bher20/octorate/pkg/octopus"
)

// Window is a contiguous run of half-hour slots with its mean inc-VAT price,
// suitable for scheduling a load of known duration.
type Window struct {
	Start   time.Time
	End     time.Time
	Average float64
}

// LowestCostWindows finds the k cheapest contiguous windows of the given
// duration among the upcoming rates, ordered cheapest first with earlier
// starts winning ties. Windows may overlap. A duration shorter than one
// slot rounds down to zero and yields no windows; a gap in the series
// breaks contiguity and no window spans it.
func LowestCostWindows(all []octopus.Rate, now time.Time, hours float64, k int) []Window {
	slots := int(hours * 2)
	if slots <= 0 || k <= 0 {
		return nil
	}

	candidates := upcoming(all, now)

	// Evaluate each contiguous segment independently with a running sum,
	// one pass over the candidates in total.
	var windows []Window
	segStart := 0
	for i := 1; i <= len(candidates); i++ {
		if i == len(candidates) || !candidates[i].ValidFrom.Equal(candidates[i-1].ValidTo) {
			windows = append(windows, segmentWindows(candidates[segStart:i], slots)...)
			segStart = i
		}
	}

	sort.SliceStable(windows, func(i, j int) bool {
		if windows[i].Average != windows[j].Average {
			return windows[i].Average < windows[j].Average
		}
		return windows[i].Start.Before(windows[j].Start)
	})
	if k > len(windows) {
		k = len(windows)
	}
	return windows[:k]
}

// segmentWindows slides a fixed-size window across one gap-free run of
// slots, maintaining the sum incrementally.
func segmentWindows(seg []octopus.Rate, slots int) []Window {
	if len(seg) < slots {
		return nil
	}
	var sum float64
	for _, r := range seg[:slots] {
		sum += r.ValueIncVAT
	}
	out := []Window{{
		Start:   seg[0].ValidFrom,
		End:     seg[slots-1].ValidTo,
		Average: sum / float64(slots),
	}}
	for i := slots; i < len(seg); i++ {
		sum += seg[i].ValueIncVAT - seg[i-slots].ValueIncVAT
		out = append(out, Window{
			Start:   seg[i-slots+1].ValidFrom,
			End:     seg[i].ValidTo,
			Average: sum / float64(slots),
		})
	}
	return out
}
