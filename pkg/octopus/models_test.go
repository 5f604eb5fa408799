package octopus

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestAPITime_Formats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`"2026-08-25T22:30:00Z"`, "2026-08-25T22:30:00Z"},
		{`"2026-08-25T22:30:00.123456Z"`, "2026-08-25T22:30:00.123456Z"},
		{`"2026-08-25T23:30:00+01:00"`, "2026-08-25T22:30:00Z"},
	}
	for _, tc := range cases {
		var at APITime
		if err := json.Unmarshal([]byte(tc.in), &at); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		want, _ := time.Parse(time.RFC3339Nano, tc.want)
		if !at.Time.Equal(want) {
			t.Errorf("unmarshal %s = %v, want %v", tc.in, at.Time, want)
		}
	}
}

func TestAPITime_NullMeansOpenEnded(t *testing.T) {
	var at APITime
	if err := json.Unmarshal([]byte(`null`), &at); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !at.IsZero() {
		t.Errorf("null decoded to %v, want zero time", at.Time)
	}
}

func TestAPITime_Garbage(t *testing.T) {
	var at APITime
	err := json.Unmarshal([]byte(`"yesterday"`), &at)
	if !errors.Is(err, ErrDecoding) {
		t.Fatalf("err = %v, want ErrDecoding", err)
	}
}

func TestRateResult_ToStandingCharge(t *testing.T) {
	var page ratesPage
	body := `{"count":1,"next":null,"previous":null,"results":[
		{"value_exc_vat":45.0,"value_inc_vat":47.25,"valid_from":"2025-04-01T00:00:00Z","valid_to":null}
	]}`
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sc := page.Results[0].toStandingCharge()
	if sc.ValidTo != nil {
		t.Errorf("ValidTo = %v, want nil for ongoing charge", sc.ValidTo)
	}
	if sc.ValueIncVAT != 47.25 {
		t.Errorf("ValueIncVAT = %v, want 47.25", sc.ValueIncVAT)
	}
}
