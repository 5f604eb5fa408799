package cron

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bher20/octorate/internal/metrics"
	"github.com/bher20/octorate/internal/ratesync"
	"github.com/bher20/octorate/internal/storage"
	"github.com/bher20/octorate/pkg/octopus"
)

func TestNextRun(t *testing.T) {
	last := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	if got := nextRun("60", last); !got.Equal(last.Add(time.Minute)) {
		t.Errorf("seconds setting: next = %v, want %v", got, last.Add(time.Minute))
	}

	// Standard cron: top of every hour.
	if got := nextRun("0 * * * *", last); !got.Equal(last.Add(time.Hour)) {
		t.Errorf("cron setting: next = %v, want %v", got, last.Add(time.Hour))
	}

	if got := nextRun("garbage", last); !got.Equal(last.Add(5 * time.Minute)) {
		t.Errorf("fallback: next = %v, want %v", got, last.Add(5*time.Minute))
	}
}

type statStore struct {
	*storage.MemoryStorage
	stats storage.PoolStats
}

func (s *statStore) PoolStats() storage.PoolStats { return s.stats }

func TestPublishPoolMetrics(t *testing.T) {
	w := &Worker{}
	st := &statStore{
		MemoryStorage: storage.NewMemory(),
		stats:         storage.PoolStats{TotalConns: 5, IdleConns: 3, AcquiredConns: 2, AcquireCount: 10},
	}

	w.publishPoolMetrics(st)
	if got := testutil.ToFloat64(metrics.DBPoolTotalConns.WithLabelValues("postgrespool")); got != 5 {
		t.Errorf("total conns gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(metrics.DBPoolIdleConns.WithLabelValues("postgrespool")); got != 3 {
		t.Errorf("idle conns gauge = %v, want 3", got)
	}

	// The pool reports a cumulative acquire count; the counter must only
	// grow by the difference between snapshots.
	before := testutil.ToFloat64(metrics.DBPoolAcquiresTotal.WithLabelValues("postgrespool"))
	st.stats.AcquireCount = 14
	w.publishPoolMetrics(st)
	after := testutil.ToFloat64(metrics.DBPoolAcquiresTotal.WithLabelValues("postgrespool"))
	if after-before != 4 {
		t.Errorf("acquires counter grew by %v, want 4", after-before)
	}

	// A backend with no pool is a no-op.
	w.publishPoolMetrics(nil)
}

type backfillFetcher struct {
	rates []octopus.Rate
	usage []octopus.Consumption
}

func (f *backfillFetcher) FetchAllRates(ctx context.Context, tariffCode string, existing map[time.Time]struct{}) ([]octopus.Rate, error) {
	return f.rates, nil
}

func (f *backfillFetcher) FetchStandingCharges(ctx context.Context, tariffCode string) ([]octopus.StandingCharge, error) {
	return nil, nil
}

func (f *backfillFetcher) FetchConsumption(ctx context.Context, mpan, serial string, from, to time.Time) ([]octopus.Consumption, error) {
	return f.usage, nil
}

func TestBackfill_Run(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store := storage.NewMemory()
	f := &backfillFetcher{
		rates: []octopus.Rate{
			{ValidFrom: now, ValidTo: now.Add(30 * time.Minute), ValueIncVAT: 12},
		},
		usage: []octopus.Consumption{
			{IntervalStart: now, IntervalEnd: now.Add(30 * time.Minute), ConsumptionKWh: 0.5},
		},
	}

	b := &Backfill{
		Store:        store,
		Sync:         ratesync.NewService(store, f),
		MPAN:         "1234567890123",
		SerialNumber: "21M0000000",
		Days:         7,
	}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ctx := context.Background()
	for _, tariff := range ratesync.Tariffs() {
		recs, err := store.RatesInRange(ctx, tariff.Code, now.Add(-time.Hour), now.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 {
			t.Errorf("tariff %s: %d rates stored, want 1", tariff.Code, len(recs))
		}
	}

	usage, err := store.ConsumptionInRange(ctx, b.MPAN, b.SerialNumber, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 {
		t.Errorf("%d readings stored, want 1", len(usage))
	}
}
