package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/octorate/internal/cost"
	"github.com/bher20/octorate/internal/metrics"
	"github.com/bher20/octorate/internal/rates"
	"github.com/bher20/octorate/internal/ratesync"
	"github.com/bher20/octorate/pkg/octopus"
)

// queryHorizon bounds how far around now stored rates are loaded for price
// queries. Agile publishes at most ~2 days ahead.
const queryHorizon = 72 * time.Hour

type rateJSON struct {
	ValidFrom   time.Time `json:"valid_from"`
	ValidTo     time.Time `json:"valid_to"`
	ValueExcVAT float64   `json:"value_exc_vat"`
	ValueIncVAT float64   `json:"value_inc_vat"`
}

func toRateJSON(r octopus.Rate) rateJSON {
	return rateJSON{ValidFrom: r.ValidFrom, ValidTo: r.ValidTo, ValueExcVAT: r.ValueExcVAT, ValueIncVAT: r.ValueIncVAT}
}

type tariffJSON struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	InFlight    bool      `json:"in_flight"`
}

type summaryJSON struct {
	TariffCode   string    `json:"tariff_code"`
	Current      *rateJSON `json:"current,omitempty"`
	Lowest       *rateJSON `json:"lowest,omitempty"`
	Highest      *rateJSON `json:"highest,omitempty"`
	AverageHours float64   `json:"average_hours"`
	Average      *float64  `json:"average,omitempty"`
	LowestTen    *float64  `json:"lowest_ten_average,omitempty"`
}

type windowJSON struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Average float64   `json:"average"`
}

type compareJSON struct {
	TariffCode           string  `json:"tariff_code"`
	From                 string  `json:"from"`
	To                   string  `json:"to"`
	TotalConsumptionKWh  float64 `json:"total_consumption_kwh"`
	CostExcVAT           float64 `json:"cost_exc_vat"`
	CostIncVAT           float64 `json:"cost_inc_vat"`
	StandingChargeExcVAT float64 `json:"standing_charge_exc_vat"`
	StandingChargeIncVAT float64 `json:"standing_charge_inc_vat"`
	TotalExcVAT          float64 `json:"total_exc_vat"`
	TotalIncVAT          float64 `json:"total_inc_vat"`
	UnmatchedReadings    int     `json:"unmatched_readings"`
}

func writeJSON(w http.ResponseWriter, path string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response for %s: %v", path, err)
		metrics.RequestErrorsTotal.WithLabelValues(path, "500").Inc()
	}
}

func handleListTariffs(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			metrics.RequestDurationSeconds.WithLabelValues("/tariffs").Observe(time.Since(start).Seconds())
		}()
		metrics.RequestsTotal.WithLabelValues("/tariffs").Inc()

		var out []tariffJSON
		for _, t := range ratesync.Tariffs() {
			st := d.Sync.Status(t.Code)
			out = append(out, tariffJSON{
				Code:        t.Code,
				Name:        t.Name,
				LastSuccess: st.LastSuccess,
				LastError:   st.LastError,
				InFlight:    st.InFlight,
			})
		}
		writeJSON(w, "/tariffs", out)
	}
}

// loadRates pulls the stored rates around now for query evaluation.
func (d Deps) loadRates(ctx context.Context, tariffCode string, now time.Time) ([]octopus.Rate, error) {
	recs, err := d.Store.RatesInRange(ctx, tariffCode, now.Add(-time.Hour), now.Add(queryHorizon))
	if err != nil {
		return nil, err
	}
	out := make([]octopus.Rate, len(recs))
	for i, rec := range recs {
		out[i] = octopus.Rate{
			ValidFrom:   rec.ValidFrom,
			ValidTo:     rec.ValidTo,
			ValueExcVAT: rec.ValueExcVAT,
			ValueIncVAT: rec.ValueIncVAT,
		}
	}
	return out, nil
}

// handleTariff serves /tariffs/{code}/current, /summary, /windows and
// /compare.
func handleTariff(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "tariffs" {
			metrics.RequestErrorsTotal.WithLabelValues(r.URL.Path, "404").Inc()
			http.NotFound(w, r)
			return
		}
		tariffCode := strings.ToUpper(parts[1])
		endpoint := parts[2]
		labelsPath := "/tariffs/" + endpoint

		defer func() {
			metrics.RequestDurationSeconds.WithLabelValues(labelsPath).Observe(time.Since(start).Seconds())
		}()
		metrics.RequestsTotal.WithLabelValues(labelsPath).Inc()

		if _, ok := ratesync.GetTariff(tariffCode); !ok {
			metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "404").Inc()
			http.Error(w, "unknown tariff", http.StatusNotFound)
			return
		}

		switch endpoint {
		case "current":
			d.serveCurrent(w, r, tariffCode, labelsPath)
		case "summary":
			d.serveSummary(w, r, tariffCode, labelsPath)
		case "windows":
			d.serveWindows(w, r, tariffCode, labelsPath)
		case "compare":
			d.serveCompare(w, r, tariffCode, labelsPath)
		default:
			metrics.RequestErrorsTotal.WithLabelValues(r.URL.Path, "404").Inc()
			http.NotFound(w, r)
		}
	}
}

func (d Deps) serveCurrent(w http.ResponseWriter, r *http.Request, tariffCode, labelsPath string) {
	now := d.Now()
	all, err := d.loadRates(r.Context(), tariffCode, now)
	if err != nil {
		log.Printf("api: load rates for %s: %v", tariffCode, err)
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	cur, err := rates.Current(all, now)
	if err != nil {
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "404").Inc()
		http.Error(w, "no rate for the current period", http.StatusNotFound)
		return
	}
	writeJSON(w, labelsPath, toRateJSON(cur))
}

func (d Deps) serveSummary(w http.ResponseWriter, r *http.Request, tariffCode, labelsPath string) {
	now := d.Now()
	hours := floatParam(r, "hours", 4)

	all, err := d.loadRates(r.Context(), tariffCode, now)
	if err != nil {
		log.Printf("api: load rates for %s: %v", tariffCode, err)
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := summaryJSON{TariffCode: tariffCode, AverageHours: hours}
	if cur, err := rates.Current(all, now); err == nil {
		j := toRateJSON(cur)
		out.Current = &j
	}
	if low, err := rates.LowestUpcoming(all, now); err == nil {
		j := toRateJSON(low)
		out.Lowest = &j
	}
	if high, err := rates.HighestUpcoming(all, now); err == nil {
		j := toRateJSON(high)
		out.Highest = &j
	}
	if avg, err := rates.AverageUpcoming(all, now, hours); err == nil {
		out.Average = &avg
	}
	if ten, err := rates.LowestAverage(all, now, 10); err == nil {
		out.LowestTen = &ten
	}
	writeJSON(w, labelsPath, out)
}

func (d Deps) serveWindows(w http.ResponseWriter, r *http.Request, tariffCode, labelsPath string) {
	now := d.Now()
	hours := floatParam(r, "hours", 1)
	count := intParam(r, "count", 3)

	all, err := d.loadRates(r.Context(), tariffCode, now)
	if err != nil {
		log.Printf("api: load rates for %s: %v", tariffCode, err)
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	wins := rates.LowestCostWindows(all, now, hours, count)
	out := make([]windowJSON, len(wins))
	for i, win := range wins {
		out[i] = windowJSON{Start: win.Start, End: win.End, Average: win.Average}
	}
	writeJSON(w, labelsPath, out)
}

func (d Deps) serveCompare(w http.ResponseWriter, r *http.Request, tariffCode, labelsPath string) {
	from, err1 := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, err2 := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err1 != nil || err2 != nil || !to.After(from) {
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "400").Inc()
		http.Error(w, "from and to must be RFC3339 with to after from", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	readings, err := d.Store.ConsumptionInRange(ctx, d.MPAN, d.SerialNumber, from, to)
	if err != nil {
		log.Printf("api: load consumption: %v", err)
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	rateRecs, err := d.Store.RatesInRange(ctx, tariffCode, from.Add(-time.Hour), to.Add(time.Hour))
	if err != nil {
		log.Printf("api: load rates for %s: %v", tariffCode, err)
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	chargeRecs, err := d.Store.StandingCharges(ctx, tariffCode)
	if err != nil {
		log.Printf("api: load standing charges for %s: %v", tariffCode, err)
		metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "500").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	usage := make([]octopus.Consumption, len(readings))
	for i, c := range readings {
		usage[i] = octopus.Consumption{IntervalStart: c.IntervalStart, IntervalEnd: c.IntervalEnd, ConsumptionKWh: c.ConsumptionKWh}
	}
	rs := make([]octopus.Rate, len(rateRecs))
	for i, rec := range rateRecs {
		rs[i] = octopus.Rate{ValidFrom: rec.ValidFrom, ValidTo: rec.ValidTo, ValueExcVAT: rec.ValueExcVAT, ValueIncVAT: rec.ValueIncVAT}
	}
	charges := make([]octopus.StandingCharge, len(chargeRecs))
	for i, sc := range chargeRecs {
		charges[i] = octopus.StandingCharge{ValidFrom: sc.ValidFrom, ValidTo: sc.ValidTo, ValueExcVAT: sc.ValueExcVAT, ValueIncVAT: sc.ValueIncVAT}
	}

	res := cost.Compare(usage, rs, charges, from, to)
	writeJSON(w, labelsPath, compareJSON{
		TariffCode:           tariffCode,
		From:                 from.Format(time.RFC3339),
		To:                   to.Format(time.RFC3339),
		TotalConsumptionKWh:  res.TotalConsumptionKWh,
		CostExcVAT:           res.CostExcVAT,
		CostIncVAT:           res.CostIncVAT,
		StandingChargeExcVAT: res.StandingChargeExcVAT,
		StandingChargeIncVAT: res.StandingChargeIncVAT,
		TotalExcVAT:          res.TotalExcVAT(),
		TotalIncVAT:          res.TotalIncVAT(),
		UnmatchedReadings:    res.UnmatchedReadings,
	})
}

// handleRefresh serves POST /refresh/{code}. It triggers a synchronous
// refresh; CronJobs and operators both use it.
func handleRefresh(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		labelsPath := "/refresh"
		defer func() {
			metrics.RequestDurationSeconds.WithLabelValues(labelsPath).Observe(time.Since(start).Seconds())
		}()
		metrics.RequestsTotal.WithLabelValues(labelsPath).Inc()

		tariffCode := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/refresh/"))
		if _, ok := ratesync.GetTariff(tariffCode); !ok {
			metrics.RequestErrorsTotal.WithLabelValues(labelsPath, "404").Inc()
			http.Error(w, "unknown tariff", http.StatusNotFound)
			return
		}
		force := r.URL.Query().Get("force") == "true"

		inserted, err := d.Sync.UpdateRates(r.Context(), tariffCode, force)
		metrics.RecordFetch(tariffCode, inserted, err)
		if err != nil {
			code := http.StatusBadGateway
			if errors.Is(err, ratesync.ErrSyncInFlight) || errors.Is(err, ratesync.ErrCoolingDown) {
				code = http.StatusConflict
			}
			metrics.RequestErrorsTotal.WithLabelValues(labelsPath, strconv.Itoa(code)).Inc()
			http.Error(w, err.Error(), code)
			return
		}
		writeJSON(w, labelsPath, map[string]any{
			"tariff_code": tariffCode,
			"inserted":    inserted,
			"status":      "ok",
		})
	}
}

func floatParam(r *http.Request, key string, def float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func intParam(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
