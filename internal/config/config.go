// Package config loads runtime settings from an optional YAML file with
// environment variable overrides. Environment always wins, so containerized
// deployments can ship a base file and override per instance.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ListenAddr is the HTTP bind address for the API server.
	ListenAddr string `yaml:"listen_addr"`

	// BaseURL is the remote API root. Empty means the public endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates consumption requests. Rate data is public.
	APIKey string `yaml:"api_key"`

	// MPAN and SerialNumber identify the electricity meter for
	// consumption syncs.
	MPAN         string `yaml:"mpan"`
	SerialNumber string `yaml:"serial_number"`

	Storage StorageConfig `yaml:"storage"`

	// RefreshIntervalSeconds is the worker's default tick; a database
	// setting can override it at runtime.
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`

	// PriceAlertThreshold triggers an email when the cheapest upcoming
	// rate drops below this many pence per kWh. Zero disables alerts.
	PriceAlertThreshold float64 `yaml:"price_alert_threshold"`

	// AlertWebhookURL receives sync failure notifications. Empty disables.
	AlertWebhookURL string `yaml:"alert_webhook_url"`
	// AlertWebhookKind selects the payload shape: slack, discord or generic.
	AlertWebhookKind string `yaml:"alert_webhook_kind"`
}

type StorageConfig struct {
	// Driver is one of sqlite, postgres, postgrespool or memory.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

func defaults() Config {
	return Config{
		ListenAddr:             ":8080",
		RefreshIntervalSeconds: 300,
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "/data/octorate.db",
		},
		AlertWebhookKind: "generic",
	}
}

// Load reads the YAML file at path (skipped when path is empty or absent)
// and applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// FromEnv builds a Config from environment variables alone, consulting the
// file named by OCTORATE_CONFIG when set.
func FromEnv() (Config, error) {
	return Load(os.Getenv("OCTORATE_CONFIG"))
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "OCTORATE_LISTEN_ADDR")
	setString(&cfg.BaseURL, "OCTORATE_BASE_URL")
	setString(&cfg.APIKey, "OCTORATE_API_KEY")
	setString(&cfg.MPAN, "OCTORATE_MPAN")
	setString(&cfg.SerialNumber, "OCTORATE_SERIAL_NUMBER")
	setString(&cfg.Storage.Driver, "OCTORATE_STORAGE_DRIVER")
	setString(&cfg.Storage.DSN, "OCTORATE_STORAGE_DSN")
	setString(&cfg.AlertWebhookURL, "OCTORATE_ALERT_WEBHOOK_URL")
	setString(&cfg.AlertWebhookKind, "OCTORATE_ALERT_WEBHOOK_KIND")
	setInt(&cfg.RefreshIntervalSeconds, "OCTORATE_REFRESH_INTERVAL_SECONDS")
	setFloat(&cfg.PriceAlertThreshold, "OCTORATE_PRICE_ALERT_THRESHOLD")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
