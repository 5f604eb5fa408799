package cron

import (
	"context"
	"log"
	"time"

	"github.com/bher20/octorate/internal/metrics"
	"github.com/bher20/octorate/internal/ratesync"
	"github.com/bher20/octorate/internal/storage"
)

const (
	backfillJobName = "backfill"
	backfillLockKey = int64(13371337)
)

// Backfill loads historical data in one shot: a forced refresh of every
// tracked tariff (the remote keeps the full rate history) plus meter
// readings for the requested number of days. Intended for first deployment
// or after a database reset.
type Backfill struct {
	Store storage.Storage
	Sync  *ratesync.Service

	MPAN         string
	SerialNumber string
	Days         int
}

// Run executes the backfill once and records it as a scheduled job.
func (b *Backfill) Run(ctx context.Context) error {
	started := time.Now()

	if locker, ok := b.Store.(advisoryLocker); ok {
		got, err := locker.AcquireAdvisoryLock(ctx, backfillLockKey)
		if err != nil {
			return err
		}
		if !got {
			log.Printf("backfill: lock held by another node, skipping")
			return nil
		}
		defer func() {
			if _, err := locker.ReleaseAdvisoryLock(ctx, backfillLockKey); err != nil {
				log.Printf("backfill: lock release error: %v", err)
			}
		}()
	}

	var runErr error
	for _, t := range ratesync.Tariffs() {
		inserted, err := b.Sync.UpdateRates(ctx, t.Code, true)
		metrics.RecordFetch(t.Code, inserted, err)
		if err != nil {
			log.Printf("backfill: rates for %s failed: %v", t.Code, err)
			if runErr == nil {
				runErr = err
			}
			continue
		}
		log.Printf("backfill: %s, %d rates inserted", t.Code, inserted)
	}

	if b.MPAN != "" && b.SerialNumber != "" && b.Days > 0 {
		to := time.Now()
		from := to.AddDate(0, 0, -b.Days)
		inserted, err := b.Sync.SyncConsumption(ctx, b.MPAN, b.SerialNumber, from, to)
		if err != nil {
			log.Printf("backfill: consumption failed: %v", err)
			if runErr == nil {
				runErr = err
			}
		} else {
			log.Printf("backfill: %d consumption readings inserted", inserted)
		}
	}

	metrics.UpdateJobMetrics(backfillJobName, started, runErr)
	dur := time.Since(started)
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := b.Store.UpdateScheduledJob(ctx, backfillJobName, started, dur, runErr == nil, errMsg); err != nil {
		log.Printf("backfill: update scheduled_jobs failed: %v", err)
	}
	return runErr
}
