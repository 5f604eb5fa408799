package octopus

import (
	"fmt"
	"strings"
)

// ProductCodeFromTariff derives the product code embedded in a tariff code,
// e.g. "E-1R-AGILE-24-04-03-C" -> "AGILE-24-04-03". Tariff codes have the
// form {fuel}-{rate}-{product...}-{region}.
func ProductCodeFromTariff(tariffCode string) (string, error) {
	parts := strings.Split(tariffCode, "-")
	if len(parts) < 4 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTariffCode, tariffCode)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidTariffCode, tariffCode)
		}
	}
	return strings.Join(parts[2:len(parts)-1], "-"), nil
}

// IsAgileTariff reports whether a tariff code belongs to an Agile product,
// whose half-hourly prices change daily and need frequent re-fetching.
func IsAgileTariff(tariffCode string) bool {
	return strings.Contains(tariffCode, "AGILE")
}
