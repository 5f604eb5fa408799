package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	if driver == "postgres" || driver == "postgrespool" {
		gormDialector = postgres.Open(dsn)
	} else if driver == "sqlite" {
		gormDialector = sqlite.Open(dsn)
	} else {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&RateRecord{},
		&StandingChargeRecord{},
		&ConsumptionRecord{},
		&Setting{},
		&ScheduledJob{},
		&EmailConfig{},
	)
}

// Rates

func (s *GormStorage) InsertRateIfAbsent(ctx context.Context, r RateRecord) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tariff_code"}, {Name: "valid_from"}},
		DoNothing: true,
	}).Create(&r)
	return res.RowsAffected > 0, res.Error
}

func (s *GormStorage) RatesInRange(ctx context.Context, tariffCode string, from, to time.Time) ([]RateRecord, error) {
	var out []RateRecord
	res := s.db.WithContext(ctx).
		Where("tariff_code = ? AND valid_to > ? AND valid_from < ?", tariffCode, from, to).
		Order("valid_from asc").
		Find(&out)
	return out, res.Error
}

func (s *GormStorage) RateStartTimes(ctx context.Context, tariffCode string) (map[time.Time]struct{}, error) {
	var starts []time.Time
	res := s.db.WithContext(ctx).Model(&RateRecord{}).
		Where("tariff_code = ?", tariffCode).
		Pluck("valid_from", &starts)
	if res.Error != nil {
		return nil, res.Error
	}
	out := make(map[time.Time]struct{}, len(starts))
	for _, t := range starts {
		out[t.UTC()] = struct{}{}
	}
	return out, nil
}

func (s *GormStorage) LatestRateEnd(ctx context.Context, tariffCode string) (time.Time, error) {
	var rec RateRecord
	res := s.db.WithContext(ctx).
		Where("tariff_code = ?", tariffCode).
		Order("valid_to desc").
		First(&rec)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, res.Error
	}
	return rec.ValidTo, nil
}

// Standing charges

func (s *GormStorage) InsertStandingChargeIfAbsent(ctx context.Context, sc StandingChargeRecord) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tariff_code"}, {Name: "valid_from"}},
		DoNothing: true,
	}).Create(&sc)
	return res.RowsAffected > 0, res.Error
}

func (s *GormStorage) StandingCharges(ctx context.Context, tariffCode string) ([]StandingChargeRecord, error) {
	var out []StandingChargeRecord
	res := s.db.WithContext(ctx).
		Where("tariff_code = ?", tariffCode).
		Order("valid_from asc").
		Find(&out)
	return out, res.Error
}

// Consumption

func (s *GormStorage) InsertConsumptionIfAbsent(ctx context.Context, c ConsumptionRecord) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mpan"}, {Name: "serial_number"}, {Name: "interval_start"}},
		DoNothing: true,
	}).Create(&c)
	return res.RowsAffected > 0, res.Error
}

func (s *GormStorage) ConsumptionInRange(ctx context.Context, mpan, serial string, from, to time.Time) ([]ConsumptionRecord, error) {
	var out []ConsumptionRecord
	res := s.db.WithContext(ctx).
		Where("mpan = ? AND serial_number = ? AND interval_start >= ? AND interval_start < ?", mpan, serial, from, to).
		Order("interval_start asc").
		Find(&out)
	return out, res.Error
}

// Administrative reset

func (s *GormStorage) DeleteAll(ctx context.Context, kind EntityKind) error {
	switch kind {
	case KindRates:
		return s.db.WithContext(ctx).Where("1 = 1").Delete(&RateRecord{}).Error
	case KindStandingCharges:
		return s.db.WithContext(ctx).Where("1 = 1").Delete(&StandingChargeRecord{}).Error
	case KindConsumption:
		return s.db.WithContext(ctx).Where("1 = 1").Delete(&ConsumptionRecord{}).Error
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	res := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", res.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting).Error
}

// Scheduled jobs

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

// Email config

func (s *GormStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	var config EmailConfig
	res := s.db.WithContext(ctx).First(&config)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &config, nil
}

func (s *GormStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	if config.ID == "" {
		config.ID = "default"
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&config).Error
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Advisory locks: only meaningful on postgres, where they keep multiple
// worker replicas from running the same job. SQLite deployments are single
// instance so the lock always succeeds.

func (s *GormStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		var ok bool
		err := s.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&ok).Error
		return ok, err
	}
	return true, nil
}

func (s *GormStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		var ok bool
		err := s.db.WithContext(ctx).Raw("SELECT pg_advisory_unlock(?)", key).Scan(&ok).Error
		return ok, err
	}
	return true, nil
}
