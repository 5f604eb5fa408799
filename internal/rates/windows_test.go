package rates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/octorate/pkg/octopus"
)

func TestLowestCostWindows_PicksCheapestRun(t *testing.T) {
	all := series(5, 1, 1, 5)

	wins := LowestCostWindows(all, t0, 1, 1)
	require.Len(t, wins, 1)
	assert.InDelta(t, 1.0, wins[0].Average, 1e-9)
	assert.Equal(t, t0.Add(30*time.Minute), wins[0].Start)
	assert.Equal(t, t0.Add(90*time.Minute), wins[0].End)
}

func TestLowestCostWindows_TieBreaksEarlier(t *testing.T) {
	all := series(2, 2, 9, 2, 2)

	wins := LowestCostWindows(all, t0, 1, 3)
	require.Len(t, wins, 3)
	assert.Equal(t, t0, wins[0].Start)
	assert.Equal(t, t0.Add(90*time.Minute), wins[1].Start)
}

func TestLowestCostWindows_GapBreaksContiguity(t *testing.T) {
	all := series(1, 1)
	// A second block an hour after the first ends.
	gapStart := t0.Add(2 * time.Hour)
	all = append(all,
		octopus.Rate{ValidFrom: gapStart, ValidTo: gapStart.Add(30 * time.Minute), ValueIncVAT: 1},
		octopus.Rate{ValidFrom: gapStart.Add(30 * time.Minute), ValidTo: gapStart.Add(time.Hour), ValueIncVAT: 1},
	)

	wins := LowestCostWindows(all, t0, 1, 10)
	require.Len(t, wins, 2)
	for _, w := range wins {
		assert.Equal(t, time.Hour, w.End.Sub(w.Start))
	}
}

func TestLowestCostWindows_Degenerate(t *testing.T) {
	all := series(1, 2, 3)

	assert.Nil(t, LowestCostWindows(all, t0, 0, 3))
	assert.Nil(t, LowestCostWindows(all, t0, 0.4, 3)) // rounds down to zero slots
	assert.Nil(t, LowestCostWindows(all, t0, 5, 3))   // longer than the series
	assert.Nil(t, LowestCostWindows(all, t0, 1, 0))
}

func TestLowestCostWindows_CapsAtAvailable(t *testing.T) {
	all := series(1, 2, 3)
	wins := LowestCostWindows(all, t0, 0.5, 10)
	assert.Len(t, wins, 3)
	assert.InDelta(t, 1.0, wins[0].Average, 1e-9)
}
