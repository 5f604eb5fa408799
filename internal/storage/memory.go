package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu          sync.RWMutex
	rates       map[string]RateRecord
	charges     map[string]StandingChargeRecord
	consumption map[string]ConsumptionRecord
	settings    map[string]string
	jobs        map[string]ScheduledJob
	emailConfig *EmailConfig
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		rates:       make(map[string]RateRecord),
		charges:     make(map[string]StandingChargeRecord),
		consumption: make(map[string]ConsumptionRecord),
		settings:    make(map[string]string),
		jobs:        make(map[string]ScheduledJob),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func rateKey(tariffCode string, validFrom time.Time) string {
	return tariffCode + "|" + validFrom.UTC().Format(time.RFC3339)
}

func consumptionKey(mpan, serial string, start time.Time) string {
	return mpan + "|" + serial + "|" + start.UTC().Format(time.RFC3339)
}

func (m *MemoryStorage) InsertRateIfAbsent(ctx context.Context, r RateRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rateKey(r.TariffCode, r.ValidFrom)
	if _, exists := m.rates[key]; exists {
		return false, nil
	}
	m.rates[key] = r
	return true, nil
}

func (m *MemoryStorage) RatesInRange(ctx context.Context, tariffCode string, from, to time.Time) ([]RateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RateRecord
	for _, r := range m.rates {
		if r.TariffCode != tariffCode {
			continue
		}
		if r.ValidTo.After(from) && r.ValidFrom.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out, nil
}

func (m *MemoryStorage) RateStartTimes(ctx context.Context, tariffCode string) (map[time.Time]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[time.Time]struct{})
	for _, r := range m.rates {
		if r.TariffCode == tariffCode {
			out[r.ValidFrom.UTC()] = struct{}{}
		}
	}
	return out, nil
}

func (m *MemoryStorage) LatestRateEnd(ctx context.Context, tariffCode string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest time.Time
	for _, r := range m.rates {
		if r.TariffCode == tariffCode && r.ValidTo.After(latest) {
			latest = r.ValidTo
		}
	}
	return latest, nil
}

func (m *MemoryStorage) InsertStandingChargeIfAbsent(ctx context.Context, sc StandingChargeRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rateKey(sc.TariffCode, sc.ValidFrom)
	if _, exists := m.charges[key]; exists {
		return false, nil
	}
	m.charges[key] = sc
	return true, nil
}

func (m *MemoryStorage) StandingCharges(ctx context.Context, tariffCode string) ([]StandingChargeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StandingChargeRecord
	for _, sc := range m.charges {
		if sc.TariffCode == tariffCode {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom.Before(out[j].ValidFrom) })
	return out, nil
}

func (m *MemoryStorage) InsertConsumptionIfAbsent(ctx context.Context, c ConsumptionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := consumptionKey(c.MPAN, c.SerialNumber, c.IntervalStart)
	if _, exists := m.consumption[key]; exists {
		return false, nil
	}
	m.consumption[key] = c
	return true, nil
}

func (m *MemoryStorage) ConsumptionInRange(ctx context.Context, mpan, serial string, from, to time.Time) ([]ConsumptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ConsumptionRecord
	for _, c := range m.consumption {
		if c.MPAN != mpan || c.SerialNumber != serial {
			continue
		}
		if !c.IntervalStart.Before(from) && c.IntervalStart.Before(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntervalStart.Before(out[j].IntervalStart) })
	return out, nil
}

func (m *MemoryStorage) DeleteAll(ctx context.Context, kind EntityKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case KindRates:
		m.rates = make(map[string]RateRecord)
	case KindStandingCharges:
		m.charges = make(map[string]StandingChargeRecord)
	case KindConsumption:
		m.consumption = make(map[string]ConsumptionRecord)
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	return nil
}

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

func (m *MemoryStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.emailConfig == nil {
		return nil, nil
	}
	cfg := *m.emailConfig
	return &cfg, nil
}

func (m *MemoryStorage) SaveEmailConfig(ctx context.Context, config EmailConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emailConfig = &config
	return nil
}

func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	// In-memory storage is single instance, the lock always succeeds.
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return true, nil
}
