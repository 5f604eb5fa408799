package notification

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bher20/octorate/internal/rates"
	"github.com/bher20/octorate/internal/storage"
	"github.com/bher20/octorate/pkg/octopus"
)

const lastAlertSettingPrefix = "price_alert_last_"

// Watcher checks stored rates after each refresh and emails when the
// cheapest upcoming slot drops below the threshold. The slot's start time
// is remembered in settings so the same slot alerts once.
type Watcher struct {
	Store storage.Storage
	Mail  *Service
	Now   func() time.Time
	// Threshold in pence per kWh inc VAT. Zero or negative disables.
	Threshold float64
}

// Check evaluates one tariff and sends at most one alert.
func (w *Watcher) Check(ctx context.Context, tariffCode string) {
	if w == nil || w.Threshold <= 0 {
		return
	}
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}

	recs, err := w.Store.RatesInRange(ctx, tariffCode, now.Add(-time.Hour), now.Add(72*time.Hour))
	if err != nil {
		log.Printf("notification: load rates for %s: %v", tariffCode, err)
		return
	}
	all := make([]octopus.Rate, len(recs))
	for i, rec := range recs {
		all[i] = octopus.Rate{
			ValidFrom:   rec.ValidFrom,
			ValidTo:     rec.ValidTo,
			ValueExcVAT: rec.ValueExcVAT,
			ValueIncVAT: rec.ValueIncVAT,
		}
	}

	lowest, err := rates.LowestUpcoming(all, now)
	if err != nil || lowest.ValueIncVAT >= w.Threshold {
		return
	}

	key := lastAlertSettingPrefix + tariffCode
	stamp := lowest.ValidFrom.UTC().Format(time.RFC3339)
	if prev, err := w.Store.GetSetting(ctx, key); err == nil && prev == stamp {
		return
	}

	if err := w.Mail.SendPriceAlert(ctx, tariffCode, lowest, w.Threshold); err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			log.Printf("notification: price alert for %s: %v", tariffCode, err)
		}
		return
	}
	if err := w.Store.SetSetting(ctx, key, stamp); err != nil {
		log.Printf("notification: record alert for %s: %v", tariffCode, err)
	}
}
