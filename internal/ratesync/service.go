// Package ratesync keeps the local rate store in step with the remote API.
// It decides when a fetch is worth making (coverage policy), serializes
// concurrent refreshes per tariff, and backs off after failures.
package ratesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bher20/octorate/internal/storage"
	"github.com/bher20/octorate/pkg/octopus"
)

const failureCooldown = 10 * time.Minute

var (
	// ErrSyncInFlight means another refresh of the same tariff is running.
	ErrSyncInFlight = errors.New("ratesync: refresh already in flight")
	// ErrCoolingDown means a recent fetch failed and the backoff window has
	// not elapsed. Force refreshes bypass it.
	ErrCoolingDown = errors.New("ratesync: cooling down after failure")
)

// Fetcher is the remote API surface the engine needs. *octopus.Client
// satisfies it; tests substitute fakes.
type Fetcher interface {
	FetchAllRates(ctx context.Context, tariffCode string, existing map[time.Time]struct{}) ([]octopus.Rate, error)
	FetchStandingCharges(ctx context.Context, tariffCode string) ([]octopus.StandingCharge, error)
	FetchConsumption(ctx context.Context, mpan, serial string, from, to time.Time) ([]octopus.Consumption, error)
}

// Status reports the sync state of one tariff.
type Status struct {
	TariffCode    string
	InFlight      bool
	LastSuccess   time.Time
	LastError     string
	CooldownUntil time.Time
}

type tariffState struct {
	inFlight      bool
	lastSuccess   time.Time
	lastError     string
	cooldownUntil time.Time
}

// Service coordinates rate refreshes against a storage backend.
type Service struct {
	store   storage.Storage
	fetcher Fetcher
	now     func() time.Time

	mu     sync.Mutex
	states map[string]*tariffState
}

// NewService returns a sync engine over the given store and API client.
func NewService(store storage.Storage, fetcher Fetcher) *Service {
	return &Service{
		store:   store,
		fetcher: fetcher,
		now:     time.Now,
		states:  map[string]*tariffState{},
	}
}

// london resolves lazily; a build without tzdata falls back to UTC, which
// only shifts the coverage cutoff by an hour in summer.
var london = func() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// ExpectedCoverageEnd is the instant through which stored rates should run
// if yesterday's publication was ingested. Agile prices for the next day
// appear around 16:00 UK time and run through 23:00 the following day, so
// before 16:00 the expectation is 23:00 today and after it 23:00 tomorrow.
func ExpectedCoverageEnd(now time.Time) time.Time {
	local := now.In(london)
	day := local
	if local.Hour() >= 16 {
		day = local.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 0, 0, 0, london)
}

func (s *Service) state(tariffCode string) *tariffState {
	st, ok := s.states[tariffCode]
	if !ok {
		st = &tariffState{}
		s.states[tariffCode] = st
	}
	return st
}

// Status returns the current sync state for a tariff.
func (s *Service) Status(tariffCode string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(tariffCode)
	return Status{
		TariffCode:    tariffCode,
		InFlight:      st.inFlight,
		LastSuccess:   st.lastSuccess,
		LastError:     st.lastError,
		CooldownUntil: st.cooldownUntil,
	}
}

// UpdateRates brings the stored rates for a tariff up to date and reports
// how many new records were inserted.
//
// Unless force is set, the call is a no-op when stored coverage already
// reaches ExpectedCoverageEnd, and it refuses to fetch during the failure
// cooldown. Only one refresh per tariff runs at a time.
func (s *Service) UpdateRates(ctx context.Context, tariffCode string, force bool) (int, error) {
	now := s.now()

	s.mu.Lock()
	st := s.state(tariffCode)
	if st.inFlight {
		s.mu.Unlock()
		return 0, ErrSyncInFlight
	}
	if !force && now.Before(st.cooldownUntil) {
		s.mu.Unlock()
		return 0, ErrCoolingDown
	}
	st.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		st.inFlight = false
		s.mu.Unlock()
	}()

	latestEnd, err := s.store.LatestRateEnd(ctx, tariffCode)
	if err != nil {
		return 0, fmt.Errorf("ratesync: read coverage for %s: %w", tariffCode, err)
	}
	if !force && !latestEnd.Before(ExpectedCoverageEnd(now)) {
		return 0, nil
	}

	existing, err := s.store.RateStartTimes(ctx, tariffCode)
	if err != nil {
		return 0, fmt.Errorf("ratesync: read stored slots for %s: %w", tariffCode, err)
	}

	rates, err := s.fetcher.FetchAllRates(ctx, tariffCode, existing)
	if err != nil {
		s.recordFailure(st, now, err)
		// Coverage past now means callers can still answer queries; the
		// next worker tick retries after the cooldown.
		if latestEnd.After(now) {
			log.Printf("ratesync: fetch for %s failed, serving stale data until %s: %v", tariffCode, latestEnd.Format(time.RFC3339), err)
			return 0, nil
		}
		return 0, err
	}

	inserted := 0
	for _, r := range rates {
		ok, err := s.store.InsertRateIfAbsent(ctx, storage.RateRecord{
			TariffCode:  tariffCode,
			ValidFrom:   r.ValidFrom,
			ValidTo:     r.ValidTo,
			ValueExcVAT: r.ValueExcVAT,
			ValueIncVAT: r.ValueIncVAT,
		})
		if err != nil {
			s.recordFailure(st, now, err)
			return inserted, fmt.Errorf("ratesync: insert rate for %s: %w", tariffCode, err)
		}
		if ok {
			inserted++
		}
	}

	if err := s.syncStandingCharges(ctx, tariffCode); err != nil {
		// Unit rates landed; a standing-charge failure should not undo that.
		log.Printf("ratesync: standing charges for %s: %v", tariffCode, err)
	}

	s.mu.Lock()
	st.lastSuccess = now
	st.lastError = ""
	st.cooldownUntil = time.Time{}
	s.mu.Unlock()

	log.Printf("ratesync: %s refreshed, %d new of %d fetched", tariffCode, inserted, len(rates))
	return inserted, nil
}

func (s *Service) recordFailure(st *tariffState, now time.Time, err error) {
	s.mu.Lock()
	st.lastError = err.Error()
	st.cooldownUntil = now.Add(failureCooldown)
	s.mu.Unlock()
}

func (s *Service) syncStandingCharges(ctx context.Context, tariffCode string) error {
	charges, err := s.fetcher.FetchStandingCharges(ctx, tariffCode)
	if err != nil {
		return err
	}
	for _, sc := range charges {
		if _, err := s.store.InsertStandingChargeIfAbsent(ctx, storage.StandingChargeRecord{
			TariffCode:  tariffCode,
			ValidFrom:   sc.ValidFrom,
			ValidTo:     sc.ValidTo,
			ValueExcVAT: sc.ValueExcVAT,
			ValueIncVAT: sc.ValueIncVAT,
		}); err != nil {
			return err
		}
	}
	return nil
}

// UpdateAll refreshes every tracked tariff, continuing past individual
// failures and returning the last error seen.
func (s *Service) UpdateAll(ctx context.Context, force bool) error {
	var lastErr error
	for _, t := range Tariffs() {
		if _, err := s.UpdateRates(ctx, t.Code, force); err != nil {
			if errors.Is(err, ErrSyncInFlight) || errors.Is(err, ErrCoolingDown) {
				continue
			}
			log.Printf("ratesync: %s: %v", t.Code, err)
			lastErr = err
		}
	}
	return lastErr
}

// SyncConsumption pulls meter readings for [from, to) and stores the new
// ones, reporting how many were inserted.
func (s *Service) SyncConsumption(ctx context.Context, mpan, serial string, from, to time.Time) (int, error) {
	readings, err := s.fetcher.FetchConsumption(ctx, mpan, serial, from, to)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, c := range readings {
		ok, err := s.store.InsertConsumptionIfAbsent(ctx, storage.ConsumptionRecord{
			MPAN:           mpan,
			SerialNumber:   serial,
			IntervalStart:  c.IntervalStart,
			IntervalEnd:    c.IntervalEnd,
			ConsumptionKWh: c.ConsumptionKWh,
		})
		if err != nil {
			return inserted, fmt.Errorf("ratesync: insert consumption: %w", err)
		}
		if ok {
			inserted++
		}
	}
	log.Printf("ratesync: consumption for %s/%s, %d new of %d fetched", mpan, serial, inserted, len(readings))
	return inserted, nil
}
