package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSyncFailure_GenericPayload(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload not JSON: %v", err)
		}
	}))
	defer ts.Close()

	a := New(Config{WebhookURL: ts.URL})
	a.SyncFailure(context.Background(), "E-1R-AGILE-24-04-03-C", errors.New("remote down"), time.Now().Add(10*time.Minute))

	if got["alert_type"] != "rate_sync_failure" {
		t.Errorf("alert_type = %v", got["alert_type"])
	}
	if got["tariff_code"] != "E-1R-AGILE-24-04-03-C" {
		t.Errorf("tariff_code = %v", got["tariff_code"])
	}
	if got["error"] != "remote down" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestSyncFailure_DisabledWithoutURL(t *testing.T) {
	a := New(Config{})
	// Must not panic or attempt a request.
	a.SyncFailure(context.Background(), "E-1R-AGILE-24-04-03-C", errors.New("x"), time.Time{})

	var nilAlerter *Alerter
	nilAlerter.SyncFailure(context.Background(), "E-1R-AGILE-24-04-03-C", errors.New("x"), time.Time{})
}

func TestWebhookTypeAutoDetect(t *testing.T) {
	if a := New(Config{WebhookURL: "https://hooks.slack.com/services/x"}); a.cfg.WebhookType != "slack" {
		t.Errorf("slack URL detected as %q", a.cfg.WebhookType)
	}
	if a := New(Config{WebhookURL: "https://discord.com/api/webhooks/x"}); a.cfg.WebhookType != "discord" {
		t.Errorf("discord URL detected as %q", a.cfg.WebhookType)
	}
	if a := New(Config{WebhookURL: "https://example.com/hook"}); a.cfg.WebhookType != "generic" {
		t.Errorf("other URL detected as %q", a.cfg.WebhookType)
	}
}

func TestSlackAndDiscordPayloadsAreValidJSON(t *testing.T) {
	alert := SyncAlert{TariffCode: "E-1R-AGILE-24-04-03-C", Error: "boom", Timestamp: time.Now()}
	for _, kind := range []string{"slack", "discord"} {
		a := New(Config{WebhookURL: "https://example.com", WebhookType: kind})
		var payload []byte
		var err error
		if kind == "slack" {
			payload, err = a.buildSlackPayload(alert)
		} else {
			payload, err = a.buildDiscordPayload(alert)
		}
		if err != nil {
			t.Fatalf("%s payload: %v", kind, err)
		}
		var v map[string]any
		if err := json.Unmarshal(payload, &v); err != nil {
			t.Fatalf("%s payload invalid JSON: %v", kind, err)
		}
	}
}
