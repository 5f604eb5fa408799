package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPoolStorage is a pgxpool-backed Storage used by the cron worker in
// multi-replica deployments; it exposes Postgres advisory locks so only one
// replica runs a given job at a time.
type PostgresPoolStorage struct {
	pool *pgxpool.Pool
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/octorate?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPoolStorage{pool: pool}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresPoolStorage) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rate_records (
			id SERIAL PRIMARY KEY,
			tariff_code TEXT NOT NULL,
			valid_from TIMESTAMPTZ NOT NULL,
			valid_to TIMESTAMPTZ NOT NULL,
			value_exc_vat DOUBLE PRECISION NOT NULL,
			value_inc_vat DOUBLE PRECISION NOT NULL,
			UNIQUE (tariff_code, valid_from)
		);`,
		`CREATE TABLE IF NOT EXISTS standing_charge_records (
			id SERIAL PRIMARY KEY,
			tariff_code TEXT NOT NULL,
			valid_from TIMESTAMPTZ NOT NULL,
			valid_to TIMESTAMPTZ,
			value_exc_vat DOUBLE PRECISION NOT NULL,
			value_inc_vat DOUBLE PRECISION NOT NULL,
			UNIQUE (tariff_code, valid_from)
		);`,
		`CREATE TABLE IF NOT EXISTS consumption_records (
			id SERIAL PRIMARY KEY,
			mpan TEXT NOT NULL,
			serial_number TEXT NOT NULL,
			interval_start TIMESTAMPTZ NOT NULL,
			interval_end TIMESTAMPTZ NOT NULL,
			consumption_kwh DOUBLE PRECISION NOT NULL,
			UNIQUE (mpan, serial_number, interval_start)
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_jobs (
			name TEXT PRIMARY KEY,
			last_run_at TIMESTAMPTZ,
			last_duration_ms BIGINT,
			last_success INT,
			last_error TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS email_configs (
			id TEXT PRIMARY KEY,
			provider TEXT,
			host TEXT,
			port INT,
			username TEXT,
			password TEXT,
			from_address TEXT,
			from_name TEXT,
			recipient TEXT,
			api_key TEXT,
			encryption TEXT,
			enabled BOOLEAN,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Rates

func (s *PostgresPoolStorage) InsertRateIfAbsent(ctx context.Context, r RateRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO rate_records (tariff_code, valid_from, valid_to, value_exc_vat, value_inc_vat)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tariff_code, valid_from) DO NOTHING
	`, r.TariffCode, r.ValidFrom, r.ValidTo, r.ValueExcVAT, r.ValueIncVAT)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresPoolStorage) RatesInRange(ctx context.Context, tariffCode string, from, to time.Time) ([]RateRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tariff_code, valid_from, valid_to, value_exc_vat, value_inc_vat
		FROM rate_records
		WHERE tariff_code=$1 AND valid_to > $2 AND valid_from < $3
		ORDER BY valid_from ASC
	`, tariffCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RateRecord
	for rows.Next() {
		var r RateRecord
		if err := rows.Scan(&r.ID, &r.TariffCode, &r.ValidFrom, &r.ValidTo, &r.ValueExcVAT, &r.ValueIncVAT); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) RateStartTimes(ctx context.Context, tariffCode string) (map[time.Time]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT valid_from FROM rate_records WHERE tariff_code=$1`, tariffCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[time.Time]struct{})
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out[t.UTC()] = struct{}{}
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) LatestRateEnd(ctx context.Context, tariffCode string) (time.Time, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT valid_to FROM rate_records WHERE tariff_code=$1 ORDER BY valid_to DESC LIMIT 1
	`, tariffCode)
	var t time.Time
	if err := row.Scan(&t); err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

// Standing charges

func (s *PostgresPoolStorage) InsertStandingChargeIfAbsent(ctx context.Context, sc StandingChargeRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO standing_charge_records (tariff_code, valid_from, valid_to, value_exc_vat, value_inc_vat)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tariff_code, valid_from) DO NOTHING
	`, sc.TariffCode, sc.ValidFrom, sc.ValidTo, sc.ValueExcVAT, sc.ValueIncVAT)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresPoolStorage) StandingCharges(ctx context.Context, tariffCode string) ([]StandingChargeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tariff_code, valid_from, valid_to, value_exc_vat, value_inc_vat
		FROM standing_charge_records
		WHERE tariff_code=$1
		ORDER BY valid_from ASC
	`, tariffCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StandingChargeRecord
	for rows.Next() {
		var sc StandingChargeRecord
		if err := rows.Scan(&sc.ID, &sc.TariffCode, &sc.ValidFrom, &sc.ValidTo, &sc.ValueExcVAT, &sc.ValueIncVAT); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Consumption

func (s *PostgresPoolStorage) InsertConsumptionIfAbsent(ctx context.Context, c ConsumptionRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO consumption_records (mpan, serial_number, interval_start, interval_end, consumption_kwh)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (mpan, serial_number, interval_start) DO NOTHING
	`, c.MPAN, c.SerialNumber, c.IntervalStart, c.IntervalEnd, c.ConsumptionKWh)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresPoolStorage) ConsumptionInRange(ctx context.Context, mpan, serial string, from, to time.Time) ([]ConsumptionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mpan, serial_number, interval_start, interval_end, consumption_kwh
		FROM consumption_records
		WHERE mpan=$1 AND serial_number=$2 AND interval_start >= $3 AND interval_start < $4
		ORDER BY interval_start ASC
	`, mpan, serial, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConsumptionRecord
	for rows.Next() {
		var c ConsumptionRecord
		if err := rows.Scan(&c.ID, &c.MPAN, &c.SerialNumber, &c.IntervalStart, &c.IntervalEnd, &c.ConsumptionKWh); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) DeleteAll(ctx context.Context, kind EntityKind) error {
	table := ""
	switch kind {
	case KindRates:
		table = "rate_records"
	case KindStandingCharges:
		table = "standing_charge_records"
	case KindConsumption:
		table = "consumption_records"
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM "+table)
	return err
}

// Settings

func (s *PostgresPoolStorage) GetSetting(ctx context.Context, key string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *PostgresPoolStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at
	`, key, value, time.Now())
	return err
}

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at=EXCLUDED.last_run_at,
			last_duration_ms=EXCLUDED.last_duration_ms,
			last_success=EXCLUDED.last_success,
			last_error=EXCLUDED.last_error
	`, name, started, dur.Milliseconds(), status, errMsg)
	return err
}

func (s *PostgresPoolStorage) GetEmailConfig(ctx context.Context) (*EmailConfig, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, provider, host, port, username, password, from_address, from_name, recipient, api_key, encryption, enabled
		FROM email_configs LIMIT 1
	`)
	var cfg EmailConfig
	if err := row.Scan(&cfg.ID, &cfg.Provider, &cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password,
		&cfg.FromAddress, &cfg.FromName, &cfg.Recipient, &cfg.APIKey, &cfg.Encryption, &cfg.Enabled); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresPoolStorage) SaveEmailConfig(ctx context.Context, cfg EmailConfig) error {
	if cfg.ID == "" {
		cfg.ID = "default"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_configs (id, provider, host, port, username, password, from_address, from_name, recipient, api_key, encryption, enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		ON CONFLICT (id) DO UPDATE SET
			provider=EXCLUDED.provider, host=EXCLUDED.host, port=EXCLUDED.port,
			username=EXCLUDED.username, password=EXCLUDED.password,
			from_address=EXCLUDED.from_address, from_name=EXCLUDED.from_name,
			recipient=EXCLUDED.recipient, api_key=EXCLUDED.api_key,
			encryption=EXCLUDED.encryption, enabled=EXCLUDED.enabled,
			updated_at=EXCLUDED.updated_at
	`, cfg.ID, cfg.Provider, cfg.Host, cfg.Port, cfg.Username, cfg.Password,
		cfg.FromAddress, cfg.FromName, cfg.Recipient, cfg.APIKey, cfg.Encryption, cfg.Enabled, time.Now())
	return err
}

// PoolStats is a point-in-time snapshot of the connection pool. AcquireCount
// is cumulative since the pool was opened.
type PoolStats struct {
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	AcquireCount  int64
}

func (s *PostgresPoolStorage) PoolStats() PoolStats {
	st := s.pool.Stat()
	return PoolStats{
		TotalConns:    st.TotalConns(),
		IdleConns:     st.IdleConns(),
		AcquiredConns: st.AcquiredConns(),
		AcquireCount:  st.AcquireCount(),
	}
}

// Advisory locks

func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key)
	var ok bool
	err := row.Scan(&ok)
	return ok, err
}
