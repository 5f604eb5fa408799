package storage

import "time"

// RateRecord is one half-hourly unit rate for a tariff. Records are
// immutable once fetched and are identified by (tariff_code, valid_from);
// the validity window is half-open: [ValidFrom, ValidTo).
type RateRecord struct {
	ID          uint      `json:"-" gorm:"primaryKey;column:id"`
	TariffCode  string    `json:"tariff_code" gorm:"column:tariff_code;uniqueIndex:idx_rate_records_key"`
	ValidFrom   time.Time `json:"valid_from" gorm:"column:valid_from;uniqueIndex:idx_rate_records_key"`
	ValidTo     time.Time `json:"valid_to" gorm:"column:valid_to"`
	ValueExcVAT float64   `json:"value_exc_vat" gorm:"column:value_exc_vat"`
	ValueIncVAT float64   `json:"value_inc_vat" gorm:"column:value_inc_vat"`
}

// StandingChargeRecord is a pence-per-day charge valid over a date range.
// A nil ValidTo means the charge is open-ended ("ongoing").
type StandingChargeRecord struct {
	ID          uint       `json:"-" gorm:"primaryKey;column:id"`
	TariffCode  string     `json:"tariff_code" gorm:"column:tariff_code;uniqueIndex:idx_standing_charge_records_key"`
	ValidFrom   time.Time  `json:"valid_from" gorm:"column:valid_from;uniqueIndex:idx_standing_charge_records_key"`
	ValidTo     *time.Time `json:"valid_to,omitempty" gorm:"column:valid_to"`
	ValueExcVAT float64    `json:"value_exc_vat" gorm:"column:value_exc_vat"`
	ValueIncVAT float64    `json:"value_inc_vat" gorm:"column:value_inc_vat"`
}

// ConsumptionRecord is a half-hourly meter reading in kWh. Readings are
// matched to rates purely by time overlap, never by tariff code.
type ConsumptionRecord struct {
	ID             uint      `json:"-" gorm:"primaryKey;column:id"`
	MPAN           string    `json:"mpan" gorm:"column:mpan;uniqueIndex:idx_consumption_records_key"`
	SerialNumber   string    `json:"serial_number" gorm:"column:serial_number;uniqueIndex:idx_consumption_records_key"`
	IntervalStart  time.Time `json:"interval_start" gorm:"column:interval_start;uniqueIndex:idx_consumption_records_key"`
	IntervalEnd    time.Time `json:"interval_end" gorm:"column:interval_end"`
	ConsumptionKWh float64   `json:"consumption" gorm:"column:consumption_kwh"`
}

// Setting is a small key/value row used for runtime configuration such as
// the worker refresh interval.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the outcome of the most recent run of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

// EmailConfig holds configuration for price-alert emails.
type EmailConfig struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id"`
	Provider    string    `json:"provider" gorm:"column:provider"` // "smtp", "sendgrid", "resend"
	Host        string    `json:"host,omitempty" gorm:"column:host"`
	Port        int       `json:"port,omitempty" gorm:"column:port"`
	Username    string    `json:"username,omitempty" gorm:"column:username"`
	Password    string    `json:"password,omitempty" gorm:"column:password"`
	FromAddress string    `json:"from_address" gorm:"column:from_address"`
	FromName    string    `json:"from_name" gorm:"column:from_name"`
	Recipient   string    `json:"recipient" gorm:"column:recipient"`
	APIKey      string    `json:"api_key,omitempty" gorm:"column:api_key"`
	Encryption  string    `json:"encryption,omitempty" gorm:"column:encryption"` // "none", "ssl", "tls"
	Enabled     bool      `json:"enabled" gorm:"column:enabled"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// EntityKind selects a record collection for bulk administrative deletes.
type EntityKind string

const (
	KindRates           EntityKind = "rates"
	KindStandingCharges EntityKind = "standing_charges"
	KindConsumption     EntityKind = "consumption"
)
