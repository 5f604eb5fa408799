// Package cron runs the background refresh loops: the periodic rate worker
// and the historical backfill. Both use PostgreSQL advisory locks when the
// storage backend provides them, so multi-replica deployments execute each
// job on a single node.
package cron

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bher20/octorate/internal/alerting"
	"github.com/bher20/octorate/internal/metrics"
	"github.com/bher20/octorate/internal/notification"
	"github.com/bher20/octorate/internal/ratesync"
	"github.com/bher20/octorate/internal/storage"
)

// advisoryLocker is satisfied by the Postgres-backed storage types. Other
// backends run unlocked, which is fine for single-instance deployments.
type advisoryLocker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
}

// poolStatser is satisfied by the pgxpool-backed storage; other backends
// have no pool to report on.
type poolStatser interface {
	PoolStats() storage.PoolStats
}

const (
	refreshJobName    = "refresh_rates"
	refreshLockKey    = int64(42)
	intervalSetting   = "refresh_interval_seconds"
	controlLoopPeriod = 10 * time.Second
)

// Worker ticks on a configurable interval and refreshes every tracked
// tariff. The interval comes from config but a database setting overrides
// it at runtime, so operators can slow a misbehaving deployment without a
// restart.
type Worker struct {
	Store    storage.Storage
	Sync     *ratesync.Service
	Alerter  *alerting.Alerter     // optional
	Watcher  *notification.Watcher // optional
	Interval int                   // default tick in seconds

	lastAcquires int64
}

// nextRun computes when the job should run after lastRun. The setting is
// either integer seconds or a standard cron expression.
func nextRun(setting string, lastRun time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return lastRun.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(lastRun)
	}
	return lastRun.Add(5 * time.Minute)
}

// Run blocks until ctx is cancelled, refreshing rates on schedule.
func (w *Worker) Run(ctx context.Context) error {
	setting := strconv.Itoa(w.Interval)
	if w.Interval <= 0 {
		setting = "300"
	}
	if val, err := w.Store.GetSetting(ctx, intervalSetting); err == nil && val != "" {
		setting = val
	}

	locker, _ := w.Store.(advisoryLocker)
	stats, _ := w.Store.(poolStatser)

	ticker := time.NewTicker(controlLoopPeriod)
	defer ticker.Stop()

	// First run happens immediately.
	next := time.Now()

	log.Printf("cron: worker starting, interval setting %q", setting)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.publishPoolMetrics(stats)

			if val, err := w.Store.GetSetting(ctx, intervalSetting); err == nil && val != "" && val != setting {
				log.Printf("cron: interval updated from %q to %q", setting, val)
				setting = val
				next = nextRun(setting, time.Now())
			}

			if time.Now().Before(next) {
				continue
			}

			started := time.Now()
			runErr := w.runOnce(ctx, locker, started)

			metrics.UpdateJobMetrics(refreshJobName, started, runErr)
			dur := time.Since(started)
			errMsg := ""
			if runErr != nil {
				errMsg = runErr.Error()
			}
			if err := w.Store.UpdateScheduledJob(ctx, refreshJobName, started, dur, runErr == nil, errMsg); err != nil {
				log.Printf("cron: update scheduled_jobs failed: %v", err)
			}

			if runErr != nil {
				log.Printf("cron: job %s completed with error: %v (duration=%s)", refreshJobName, runErr, dur)
			} else {
				log.Printf("cron: job %s completed (duration=%s)", refreshJobName, dur)
			}

			next = nextRun(setting, time.Now())
		}
	}
}

// publishPoolMetrics exports a pool snapshot. The acquire counter is
// cumulative at the pool, so only the growth since the last snapshot is
// added to the metric.
func (w *Worker) publishPoolMetrics(stats poolStatser) {
	if stats == nil {
		return
	}
	s := stats.PoolStats()
	var delta uint64
	if s.AcquireCount > w.lastAcquires {
		delta = uint64(s.AcquireCount - w.lastAcquires)
	}
	w.lastAcquires = s.AcquireCount
	metrics.UpdateDBPoolMetrics("postgrespool",
		float64(s.TotalConns), float64(s.IdleConns), float64(s.AcquiredConns), delta)
}

func (w *Worker) runOnce(ctx context.Context, locker advisoryLocker, started time.Time) error {
	if locker != nil {
		ok, err := locker.AcquireAdvisoryLock(ctx, refreshLockKey)
		if err != nil {
			log.Printf("cron: acquire advisory lock failed: %v", err)
			return err
		}
		if !ok {
			log.Printf("cron: advisory lock held by another worker, skipping run")
			return nil
		}
		defer func() {
			if _, err := locker.ReleaseAdvisoryLock(ctx, refreshLockKey); err != nil {
				log.Printf("cron: release advisory lock failed: %v", err)
			}
		}()
	}

	var runErr error
	for _, t := range ratesync.Tariffs() {
		inserted, err := w.Sync.UpdateRates(ctx, t.Code, false)
		metrics.RecordFetch(t.Code, inserted, err)
		switch {
		case err == nil:
		case err == ratesync.ErrSyncInFlight, err == ratesync.ErrCoolingDown:
			metrics.FetchSkippedTotal.WithLabelValues(t.Code, skipReason(err)).Inc()
		default:
			log.Printf("cron: refresh %s failed: %v", t.Code, err)
			if w.Alerter != nil {
				w.Alerter.SyncFailure(ctx, t.Code, err, w.Sync.Status(t.Code).CooldownUntil)
			}
			if runErr == nil {
				runErr = err
			}
		}
		w.Watcher.Check(ctx, t.Code)
	}
	return runErr
}

func skipReason(err error) string {
	switch err {
	case ratesync.ErrSyncInFlight:
		return "inflight"
	case ratesync.ErrCoolingDown:
		return "cooldown"
	default:
		return "other"
	}
}
