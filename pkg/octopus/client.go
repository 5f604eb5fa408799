package octopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Octopus Energy REST API root.
	DefaultBaseURL = "https://api.octopus.energy/v1"

	requestTimeout        = 30 * time.Second
	defaultRecordsPerPage = 100
	consumptionPageSize   = 1500
)

// Client fetches rate, standing-charge and consumption data from the REST
// API. It performs no storage writes; persisting results is the caller's
// concern.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient returns a Client for the given API root. The API key is only
// required for consumption endpoints; rate endpoints are public.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any, authenticated bool) error {
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	if authenticated {
		if c.apiKey == "" {
			return ErrInvalidAPIKey
		}
		req.SetBasicAuth(c.apiKey, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return nil
}

func (c *Client) unitRatesURL(productCode, tariffCode string) string {
	return fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standard-unit-rates/", c.baseURL, productCode, tariffCode)
}

func (c *Client) standingChargesURL(productCode, tariffCode string) string {
	return fmt.Sprintf("%s/products/%s/electricity-tariffs/%s/standing-charges/", c.baseURL, productCode, tariffCode)
}

// FetchAllRates downloads every published unit rate for a tariff.
//
// For Agile tariffs the total page count is derived from page 1 and pages
// whose expected half-hour slots are all present in existing are skipped,
// bounding remote calls to pages with genuinely new data. For other tariffs
// the next links are followed until exhausted. A failed page aborts the
// whole fetch; there is no partial-page retry.
func (c *Client) FetchAllRates(ctx context.Context, tariffCode string, existing map[time.Time]struct{}) ([]Rate, error) {
	productCode, err := ProductCodeFromTariff(tariffCode)
	if err != nil {
		return nil, err
	}

	base := c.unitRatesURL(productCode, tariffCode)
	var first ratesPage
	if err := c.getJSON(ctx, base, &first, false); err != nil {
		return nil, err
	}

	rates := make([]Rate, 0, first.Count)
	for _, r := range first.Results {
		rates = append(rates, r.toRate())
	}

	if !IsAgileTariff(tariffCode) {
		next := first.Next
		for next != nil {
			var page ratesPage
			if err := c.getJSON(ctx, *next, &page, false); err != nil {
				return nil, err
			}
			for _, r := range page.Results {
				rates = append(rates, r.toRate())
			}
			next = page.Next
		}
		return rates, nil
	}

	if len(first.Results) == 0 {
		return rates, nil
	}

	// The upstream page size has been 100 records (50 hours) for years, but
	// trusting the first full page guards against a silent change upstream.
	recordsPerPage := defaultRecordsPerPage
	if first.Next != nil && len(first.Results) != recordsPerPage {
		recordsPerPage = len(first.Results)
	}

	firstFrom := first.Results[0].ValidFrom.Time
	for _, page := range pagesToFetch(first.Count, recordsPerPage, firstFrom, existing) {
		var p ratesPage
		if err := c.getJSON(ctx, fmt.Sprintf("%s?page=%d", base, page), &p, false); err != nil {
			return nil, err
		}
		for _, r := range p.Results {
			rates = append(rates, r.toRate())
		}
	}
	return rates, nil
}

// FetchStandingCharges downloads every published standing charge for a
// tariff, following next links until exhausted.
func (c *Client) FetchStandingCharges(ctx context.Context, tariffCode string) ([]StandingCharge, error) {
	productCode, err := ProductCodeFromTariff(tariffCode)
	if err != nil {
		return nil, err
	}

	next := c.standingChargesURL(productCode, tariffCode)
	var out []StandingCharge
	for {
		var page ratesPage
		if err := c.getJSON(ctx, next, &page, false); err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			out = append(out, r.toStandingCharge())
		}
		if page.Next == nil {
			break
		}
		next = *page.Next
	}
	return out, nil
}

// FetchConsumption downloads half-hourly meter readings for [from, to),
// oldest first, following next links until exhausted. Requires an API key.
func (c *Client) FetchConsumption(ctx context.Context, mpan, serial string, from, to time.Time) ([]Consumption, error) {
	next := fmt.Sprintf("%s/electricity-meter-points/%s/meters/%s/consumption/?page_size=%d&period_from=%s&period_to=%s&order_by=period",
		c.baseURL, mpan, serial, consumptionPageSize,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))

	var out []Consumption
	for {
		var page consumptionPage
		if err := c.getJSON(ctx, next, &page, true); err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			out = append(out, Consumption{
				IntervalStart:  r.IntervalStart.Time,
				IntervalEnd:    r.IntervalEnd.Time,
				ConsumptionKWh: r.Consumption,
			})
		}
		if page.Next == nil {
			break
		}
		next = *page.Next
	}
	return out, nil
}
