package octopus

import (
	"fmt"
	"strings"
	"time"
)

// Rate is one half-hourly unit rate, pence per kWh. The validity window is
// half-open: [ValidFrom, ValidTo).
type Rate struct {
	ValidFrom   time.Time
	ValidTo     time.Time
	ValueExcVAT float64
	ValueIncVAT float64
}

// StandingCharge is a pence-per-day charge. A nil ValidTo means the charge
// is ongoing.
type StandingCharge struct {
	ValidFrom   time.Time
	ValidTo     *time.Time
	ValueExcVAT float64
	ValueIncVAT float64
}

// Consumption is one half-hourly meter reading in kWh.
type Consumption struct {
	IntervalStart  time.Time
	IntervalEnd    time.Time
	ConsumptionKWh float64
}

// APITime decodes the ISO-8601 timestamps used by the API, which mixes
// fractional-second and whole-second forms. JSON null marks an open-ended
// validity boundary and decodes to the zero time rather than failing.
type APITime struct {
	time.Time
}

func (t *APITime) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	s = strings.Trim(s, `"`)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: unrecognised timestamp %q", ErrDecoding, s)
}

// Wire shapes. Every list endpoint returns {count, next, previous, results}.

type ratesPage struct {
	Count    int          `json:"count"`
	Next     *string      `json:"next"`
	Previous *string      `json:"previous"`
	Results  []rateResult `json:"results"`
}

type rateResult struct {
	ValueExcVAT   float64 `json:"value_exc_vat"`
	ValueIncVAT   float64 `json:"value_inc_vat"`
	ValidFrom     APITime `json:"valid_from"`
	ValidTo       APITime `json:"valid_to"`
	PaymentMethod *string `json:"payment_method"`
}

type consumptionPage struct {
	Count    int                 `json:"count"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
	Results  []consumptionResult `json:"results"`
}

type consumptionResult struct {
	IntervalStart APITime `json:"interval_start"`
	IntervalEnd   APITime `json:"interval_end"`
	Consumption   float64 `json:"consumption"`
}

func (r rateResult) toRate() Rate {
	return Rate{
		ValidFrom:   r.ValidFrom.Time,
		ValidTo:     r.ValidTo.Time,
		ValueExcVAT: r.ValueExcVAT,
		ValueIncVAT: r.ValueIncVAT,
	}
}

func (r rateResult) toStandingCharge() StandingCharge {
	sc := StandingCharge{
		ValidFrom:   r.ValidFrom.Time,
		ValueExcVAT: r.ValueExcVAT,
		ValueIncVAT: r.ValueIncVAT,
	}
	if !r.ValidTo.IsZero() {
		t := r.ValidTo.Time
		sc.ValidTo = &t
	}
	return sc
}
