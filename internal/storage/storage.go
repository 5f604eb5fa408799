package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for rate, standing-charge and consumption
// records. All record writes are insert-if-absent; rows are never updated
// in place and are only removed by DeleteAll.
type Storage interface {
	// Rates. Insert returns true when a new row was written, false when a
	// row with the same (tariff_code, valid_from) already existed.
	InsertRateIfAbsent(ctx context.Context, r RateRecord) (bool, error)
	// RatesInRange returns records overlapping [from, to), ordered by valid_from.
	RatesInRange(ctx context.Context, tariffCode string, from, to time.Time) ([]RateRecord, error)
	// RateStartTimes returns the set of valid_from timestamps stored for a tariff.
	RateStartTimes(ctx context.Context, tariffCode string) (map[time.Time]struct{}, error)
	// LatestRateEnd returns the greatest valid_to stored for a tariff, or the
	// zero time when no records exist.
	LatestRateEnd(ctx context.Context, tariffCode string) (time.Time, error)

	// Standing charges
	InsertStandingChargeIfAbsent(ctx context.Context, sc StandingChargeRecord) (bool, error)
	StandingCharges(ctx context.Context, tariffCode string) ([]StandingChargeRecord, error)

	// Consumption
	InsertConsumptionIfAbsent(ctx context.Context, c ConsumptionRecord) (bool, error)
	// ConsumptionInRange returns readings with interval_start in [from, to),
	// ordered by interval_start.
	ConsumptionInRange(ctx context.Context, mpan, serial string, from, to time.Time) ([]ConsumptionRecord, error)

	// DeleteAll removes every record of the given kind (administrative reset).
	DeleteAll(ctx context.Context, kind EntityKind) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Job bookkeeping
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	// Email config for the notification service
	GetEmailConfig(ctx context.Context) (*EmailConfig, error)
	SaveEmailConfig(ctx context.Context, cfg EmailConfig) error

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}
