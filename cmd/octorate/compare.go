package main

import (
	"context"
	"time"

	"github.com/bher20/octorate/internal/cost"
	"github.com/bher20/octorate/internal/storage"
	"github.com/bher20/octorate/pkg/octopus"
)

// compareStored prices stored readings for a meter under a tariff's stored
// rates and standing charges.
func compareStored(ctx context.Context, st storage.Storage, tariffCode, mpan, serial string, from, to time.Time) (cost.Result, error) {
	readings, err := st.ConsumptionInRange(ctx, mpan, serial, from, to)
	if err != nil {
		return cost.Result{}, err
	}
	rateRecs, err := st.RatesInRange(ctx, tariffCode, from.Add(-time.Hour), to.Add(time.Hour))
	if err != nil {
		return cost.Result{}, err
	}
	chargeRecs, err := st.StandingCharges(ctx, tariffCode)
	if err != nil {
		return cost.Result{}, err
	}

	usage := make([]octopus.Consumption, len(readings))
	for i, c := range readings {
		usage[i] = octopus.Consumption{IntervalStart: c.IntervalStart, IntervalEnd: c.IntervalEnd, ConsumptionKWh: c.ConsumptionKWh}
	}
	rates := make([]octopus.Rate, len(rateRecs))
	for i, r := range rateRecs {
		rates[i] = octopus.Rate{ValidFrom: r.ValidFrom, ValidTo: r.ValidTo, ValueExcVAT: r.ValueExcVAT, ValueIncVAT: r.ValueIncVAT}
	}
	charges := make([]octopus.StandingCharge, len(chargeRecs))
	for i, sc := range chargeRecs {
		charges[i] = octopus.StandingCharge{ValidFrom: sc.ValidFrom, ValidTo: sc.ValidTo, ValueExcVAT: sc.ValueExcVAT, ValueIncVAT: sc.ValueIncVAT}
	}

	return cost.Compare(usage, rates, charges, from, to), nil
}
