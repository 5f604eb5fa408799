package octopus

import (
	"errors"
	"testing"
)

func TestProductCodeFromTariff(t *testing.T) {
	cases := []struct {
		tariff string
		want   string
	}{
		{"E-1R-AGILE-24-04-03-C", "AGILE-24-04-03"},
		{"E-1R-VAR-22-11-01-A", "VAR-22-11-01"},
		{"E-2R-GO-23-09-15-H", "GO-23-09-15"},
	}
	for _, tc := range cases {
		got, err := ProductCodeFromTariff(tc.tariff)
		if err != nil {
			t.Fatalf("ProductCodeFromTariff(%q): %v", tc.tariff, err)
		}
		if got != tc.want {
			t.Errorf("ProductCodeFromTariff(%q) = %q, want %q", tc.tariff, got, tc.want)
		}
	}
}

func TestProductCodeFromTariff_Malformed(t *testing.T) {
	for _, tariff := range []string{"", "E-1R", "E-1R-AGILE", "E--AGILE-24-04-03-C"} {
		_, err := ProductCodeFromTariff(tariff)
		if !errors.Is(err, ErrInvalidTariffCode) {
			t.Errorf("ProductCodeFromTariff(%q) err = %v, want ErrInvalidTariffCode", tariff, err)
		}
	}
}

func TestIsAgileTariff(t *testing.T) {
	if !IsAgileTariff("E-1R-AGILE-24-04-03-C") {
		t.Error("expected AGILE tariff to be agile")
	}
	if IsAgileTariff("E-1R-VAR-22-11-01-A") {
		t.Error("expected VAR tariff to not be agile")
	}
}
