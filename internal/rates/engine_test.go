package rates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/octorate/pkg/octopus"
)

var t0 = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

// series builds contiguous half-hour rates starting at t0 with the given
// inc-VAT prices.
func series(prices ...float64) []octopus.Rate {
	out := make([]octopus.Rate, len(prices))
	for i, p := range prices {
		out[i] = octopus.Rate{
			ValidFrom:   t0.Add(time.Duration(i) * 30 * time.Minute),
			ValidTo:     t0.Add(time.Duration(i+1) * 30 * time.Minute),
			ValueExcVAT: p / 1.05,
			ValueIncVAT: p,
		}
	}
	return out
}

func TestCurrent(t *testing.T) {
	all := series(10, 20, 30)

	r, err := Current(all, t0.Add(40*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 20.0, r.ValueIncVAT)

	// Boundaries are half-open: ValidTo belongs to the next slot.
	r, err = Current(all, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 20.0, r.ValueIncVAT)

	_, err = Current(all, t0.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNoRates)

	_, err = Current(nil, t0)
	assert.ErrorIs(t, err, ErrNoRates)
}

func TestLowestAndHighestUpcoming(t *testing.T) {
	all := series(15, 5, 25, 5, 30)
	now := t0.Add(10 * time.Minute)

	low, err := LowestUpcoming(all, now)
	require.NoError(t, err)
	assert.Equal(t, 5.0, low.ValueIncVAT)
	// Two slots price 5; the earlier one wins.
	assert.Equal(t, t0.Add(30*time.Minute), low.ValidFrom)

	high, err := HighestUpcoming(all, now)
	require.NoError(t, err)
	assert.Equal(t, 30.0, high.ValueIncVAT)
}

func TestLowestUpcoming_ExcludesCurrentAndPastSlots(t *testing.T) {
	all := series(1, 50, 60)

	// The 1p slot is in progress at t0+10m; only later starts count.
	low, err := LowestUpcoming(all, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 50.0, low.ValueIncVAT)

	// At t0+31m the 50p slot is in progress too, leaving only 60p.
	low, err = LowestUpcoming(all, t0.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 60.0, low.ValueIncVAT)
}

func TestAverageUpcoming(t *testing.T) {
	all := series(10, 20, 30, 100)

	// A 1.5 hour horizon from the start of the series covers exactly the
	// first three slots.
	avg, err := AverageUpcoming(all, t0, 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, avg, 1e-9)

	_, err = AverageUpcoming(all, t0.Add(3*time.Hour), 1.5)
	assert.ErrorIs(t, err, ErrNoRates)
}

func TestAverageUpcoming_SlotsMustFitHorizon(t *testing.T) {
	all := series(10, 20, 40, 80)

	// At t0+15m with a 1.5h horizon, the first slot has already started
	// and the fourth ends past the horizon; only the middle two count.
	avg, err := AverageUpcoming(all, t0.Add(15*time.Minute), 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, avg, 1e-9)
}

func TestLowestAverage(t *testing.T) {
	all := series(30, 10, 20, 40, 5)

	// The 30p slot starts exactly at now, so it is not upcoming.
	avg, err := LowestAverage(all, t0, 2)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, avg, 1e-9) // cheapest two: 5 and 10

	// Fewer slots than requested averages everything that remains.
	avg, err = LowestAverage(all, t0, 10)
	require.NoError(t, err)
	assert.InDelta(t, 18.75, avg, 1e-9)

	_, err = LowestAverage(nil, t0, 10)
	assert.ErrorIs(t, err, ErrNoRates)
}
