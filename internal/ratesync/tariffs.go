package ratesync

import (
	"encoding/json"
	"os"
)

// TariffDescriptor names a tariff the sync engine keeps fresh.
type TariffDescriptor struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

const tariffsEnv = "OCTORATE_TARIFFS_JSON"

func defaultTariffs() []TariffDescriptor {
	return []TariffDescriptor{
		{
			Code:  "E-1R-AGILE-24-04-03-C",
			Name:  "Agile Octopus (London)",
			Notes: "half-hourly prices, published daily around 16:00",
		},
		{
			Code:  "E-1R-VAR-22-11-01-C",
			Name:  "Flexible Octopus (London)",
			Notes: "standard variable tariff for comparison",
		},
	}
}

// Tariffs returns the tariffs to track, overridable with a JSON array in
// OCTORATE_TARIFFS_JSON. A malformed or empty override falls back to the
// defaults.
func Tariffs() []TariffDescriptor {
	raw := os.Getenv(tariffsEnv)
	if raw == "" {
		return defaultTariffs()
	}
	var out []TariffDescriptor
	if err := json.Unmarshal([]byte(raw), &out); err != nil || len(out) == 0 {
		return defaultTariffs()
	}
	return out
}

// GetTariff looks up a tracked tariff by code.
func GetTariff(code string) (TariffDescriptor, bool) {
	for _, t := range Tariffs() {
		if t.Code == code {
			return t, true
		}
	}
	return TariffDescriptor{}, false
}
