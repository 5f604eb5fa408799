package octopus

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

// rateServer serves a fixed series of half-hourly rates newest first,
// paginated with both next links and explicit ?page=N addressing, matching
// the upstream API shape.
type rateServer struct {
	t              *testing.T
	rates          []Rate
	recordsPerPage int
	pagesServed    []int
}

func (s *rateServer) handler(base *string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				http.Error(w, "bad page", http.StatusBadRequest)
				return
			}
			page = n
		}
		s.pagesServed = append(s.pagesServed, page)

		start := (page - 1) * s.recordsPerPage
		end := start + s.recordsPerPage
		if start > len(s.rates) {
			start = len(s.rates)
		}
		if end > len(s.rates) {
			end = len(s.rates)
		}

		var results []string
		for _, rate := range s.rates[start:end] {
			results = append(results, fmt.Sprintf(
				`{"value_exc_vat":%g,"value_inc_vat":%g,"valid_from":%q,"valid_to":%q}`,
				rate.ValueExcVAT, rate.ValueIncVAT,
				rate.ValidFrom.Format(time.RFC3339), rate.ValidTo.Format(time.RFC3339)))
		}

		next := "null"
		if end < len(s.rates) {
			next = fmt.Sprintf("%q", fmt.Sprintf("%s%s?page=%d", *base, r.URL.Path, page+1))
		}
		fmt.Fprintf(w, `{"count":%d,"next":%s,"previous":null,"results":[%s]}`,
			len(s.rates), next, strings.Join(results, ","))
	}
}

func halfHourSeries(t *testing.T, newest string, n int) []Rate {
	t.Helper()
	from := mustTime(t, newest)
	rates := make([]Rate, n)
	for i := range rates {
		rates[i] = Rate{
			ValidFrom:   from.Add(-time.Duration(i) * slotLength),
			ValidTo:     from.Add(-time.Duration(i-1) * slotLength),
			ValueExcVAT: float64(i),
			ValueIncVAT: float64(i) * 1.05,
		}
	}
	return rates
}

func TestFetchAllRates_FollowsNextLinks(t *testing.T) {
	srv := &rateServer{t: t, rates: halfHourSeries(t, "2026-08-25T22:30:00Z", 10), recordsPerPage: 4}
	var base string
	ts := httptest.NewServer(srv.handler(&base))
	defer ts.Close()
	base = ts.URL

	c := NewClient(ts.URL, "")
	rates, err := c.FetchAllRates(context.Background(), "E-1R-VAR-22-11-01-A", nil)
	if err != nil {
		t.Fatalf("FetchAllRates: %v", err)
	}
	if len(rates) != 10 {
		t.Fatalf("got %d rates, want 10", len(rates))
	}
	for i, r := range rates {
		if r.ValueExcVAT != float64(i) {
			t.Fatalf("rate %d out of order: ValueExcVAT = %v", i, r.ValueExcVAT)
		}
	}
}

func TestFetchAllRates_AgileSkipsCoveredPages(t *testing.T) {
	series := halfHourSeries(t, "2026-08-25T22:30:00Z", 12)
	srv := &rateServer{t: t, rates: series, recordsPerPage: 4}
	var base string
	ts := httptest.NewServer(srv.handler(&base))
	defer ts.Close()
	base = ts.URL

	// Mark every slot of page 2 (indices 4..7) as already stored.
	existing := map[time.Time]struct{}{}
	for _, r := range series[4:8] {
		existing[r.ValidFrom.UTC()] = struct{}{}
	}

	c := NewClient(ts.URL, "")
	rates, err := c.FetchAllRates(context.Background(), "E-1R-AGILE-24-04-03-C", existing)
	if err != nil {
		t.Fatalf("FetchAllRates: %v", err)
	}

	// Pages 1 and 3 fetched, page 2 skipped.
	wantPages := []int{1, 3}
	if len(srv.pagesServed) != len(wantPages) {
		t.Fatalf("pages served %v, want %v", srv.pagesServed, wantPages)
	}
	for i, p := range wantPages {
		if srv.pagesServed[i] != p {
			t.Fatalf("pages served %v, want %v", srv.pagesServed, wantPages)
		}
	}
	if len(rates) != 8 {
		t.Fatalf("got %d rates, want 8 (page 2 skipped)", len(rates))
	}
}

func TestFetchAllRates_AgileFetchesAllWhenNothingStored(t *testing.T) {
	srv := &rateServer{t: t, rates: halfHourSeries(t, "2026-08-25T22:30:00Z", 12), recordsPerPage: 4}
	var base string
	ts := httptest.NewServer(srv.handler(&base))
	defer ts.Close()
	base = ts.URL

	c := NewClient(ts.URL, "")
	rates, err := c.FetchAllRates(context.Background(), "E-1R-AGILE-24-04-03-C", nil)
	if err != nil {
		t.Fatalf("FetchAllRates: %v", err)
	}
	if len(rates) != 12 {
		t.Fatalf("got %d rates, want 12", len(rates))
	}
	if len(srv.pagesServed) != 3 {
		t.Fatalf("pages served %v, want 3 pages", srv.pagesServed)
	}
}

func TestFetchAllRates_BadTariffCode(t *testing.T) {
	c := NewClient("http://localhost:1", "")
	_, err := c.FetchAllRates(context.Background(), "AGILE", nil)
	if !errors.Is(err, ErrInvalidTariffCode) {
		t.Fatalf("err = %v, want ErrInvalidTariffCode", err)
	}
}

func TestGetJSON_ErrorTaxonomy(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer ts.Close()

		c := NewClient(ts.URL, "")
		var out ratesPage
		err := c.getJSON(context.Background(), ts.URL, &out, false)
		if !errors.Is(err, ErrInvalidResponse) {
			t.Fatalf("err = %v, want ErrInvalidResponse", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "{not json")
		}))
		defer ts.Close()

		c := NewClient(ts.URL, "")
		var out ratesPage
		err := c.getJSON(context.Background(), ts.URL, &out, false)
		if !errors.Is(err, ErrDecoding) {
			t.Fatalf("err = %v, want ErrDecoding", err)
		}
	})

	t.Run("unreachable host", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", "")
		var out ratesPage
		err := c.getJSON(context.Background(), "http://127.0.0.1:1/", &out, false)
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("err = %v, want ErrNetwork", err)
		}
	})

	t.Run("auth required without key", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", "")
		var out consumptionPage
		err := c.getJSON(context.Background(), "http://127.0.0.1:1/", &out, true)
		if !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("err = %v, want ErrInvalidAPIKey", err)
		}
	})
}

func TestFetchConsumption_BasicAuthAndPaging(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"count":3,"next":null,"previous":null,"results":[
				{"interval_start":"2026-08-25T01:00:00Z","interval_end":"2026-08-25T01:30:00Z","consumption":0.3}
			]}`)
			return
		}
		fmt.Fprintf(w, `{"count":3,"next":"http://%s%s?page=2","previous":null,"results":[
			{"interval_start":"2026-08-25T00:00:00Z","interval_end":"2026-08-25T00:30:00Z","consumption":0.1},
			{"interval_start":"2026-08-25T00:30:00Z","interval_end":"2026-08-25T01:00:00Z","consumption":0.2}
		]}`, r.Host, r.URL.Path)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "sk_test_123")
	from := mustTime(t, "2026-08-25T00:00:00Z")
	readings, err := c.FetchConsumption(context.Background(), "1234567890123", "21M0000000", from, from.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FetchConsumption: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings, want 3", len(readings))
	}
	if readings[2].ConsumptionKWh != 0.3 {
		t.Errorf("last reading = %v, want 0.3", readings[2].ConsumptionKWh)
	}

	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("sk_test_123:"))
	if gotAuth != wantAuth {
		t.Errorf("Authorization = %q, want %q", gotAuth, wantAuth)
	}
}

func TestFetchStandingCharges(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/standing-charges/") {
			http.Error(w, "wrong path", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"count":2,"next":null,"previous":null,"results":[
			{"value_exc_vat":45.0,"value_inc_vat":47.25,"valid_from":"2025-04-01T00:00:00Z","valid_to":null},
			{"value_exc_vat":42.0,"value_inc_vat":44.1,"valid_from":"2024-04-01T00:00:00Z","valid_to":"2025-04-01T00:00:00Z"}
		]}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "")
	charges, err := c.FetchStandingCharges(context.Background(), "E-1R-AGILE-24-04-03-C")
	if err != nil {
		t.Fatalf("FetchStandingCharges: %v", err)
	}
	if len(charges) != 2 {
		t.Fatalf("got %d charges, want 2", len(charges))
	}
	if charges[0].ValidTo != nil {
		t.Errorf("current charge ValidTo = %v, want nil", charges[0].ValidTo)
	}
	if charges[1].ValidTo == nil {
		t.Errorf("expired charge ValidTo = nil, want bounded")
	}
}
