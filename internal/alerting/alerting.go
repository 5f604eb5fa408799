// Package alerting posts sync failure notifications to a webhook. Slack and
// Discord get native payloads; anything else gets a flat JSON document.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Config holds webhook alerting configuration.
type Config struct {
	// WebhookURL receives the alerts. Empty disables alerting.
	WebhookURL string
	// WebhookType selects the payload format: "slack", "discord" or
	// "generic". Empty auto-detects from the URL.
	WebhookType string
	// Timeout for webhook requests.
	Timeout time.Duration
}

// Alerter sends alerts to a configured webhook.
type Alerter struct {
	cfg    Config
	client *http.Client
}

// New creates an alerter. A nil-safe disabled alerter is returned when no
// webhook is configured.
func New(cfg Config) *Alerter {
	if cfg.WebhookType == "" {
		switch {
		case strings.Contains(cfg.WebhookURL, "slack.com"):
			cfg.WebhookType = "slack"
		case strings.Contains(cfg.WebhookURL, "discord.com"):
			cfg.WebhookType = "discord"
		default:
			cfg.WebhookType = "generic"
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SyncAlert describes one failed tariff refresh.
type SyncAlert struct {
	TariffCode    string    `json:"tariff_code"`
	Error         string    `json:"error"`
	CooldownUntil time.Time `json:"cooldown_until"`
	Timestamp     time.Time `json:"timestamp"`
}

// SyncFailure posts an alert for a failed refresh. Errors are logged, not
// returned; alert delivery must never fail a refresh cycle.
func (a *Alerter) SyncFailure(ctx context.Context, tariffCode string, cause error, cooldownUntil time.Time) {
	if a == nil || a.cfg.WebhookURL == "" {
		return
	}
	alert := SyncAlert{
		TariffCode:    tariffCode,
		Error:         cause.Error(),
		CooldownUntil: cooldownUntil,
		Timestamp:     time.Now(),
	}
	if err := a.send(ctx, alert); err != nil {
		log.Printf("alerting: send failed: %v", err)
	}
}

func (a *Alerter) send(ctx context.Context, alert SyncAlert) error {
	var payload []byte
	var err error
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = a.buildSlackPayload(alert)
	case "discord":
		payload, err = a.buildDiscordPayload(alert)
	default:
		payload, err = a.buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Printf("alerting: sent alert for %s", alert.TariffCode)
	return nil
}

func (a *Alerter) buildSlackPayload(alert SyncAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":warning: Rate Sync Failed: %s", alert.TariffCode),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Error:*\n%s", alert.Error)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Cooldown until:*\n%s", alert.CooldownUntil.Format(time.RFC3339))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func (a *Alerter) buildDiscordPayload(alert SyncAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Rate Sync Failed: %s", alert.TariffCode),
				"description": alert.Error,
				"color":       16711680, // red
				"fields": []map[string]interface{}{
					{"name": "Cooldown until", "value": alert.CooldownUntil.Format(time.RFC3339), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func (a *Alerter) buildGenericPayload(alert SyncAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":     "rate_sync_failure",
		"tariff_code":    alert.TariffCode,
		"error":          alert.Error,
		"cooldown_until": alert.CooldownUntil.Format(time.RFC3339),
		"timestamp":      alert.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}
