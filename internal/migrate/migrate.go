// Package migrate applies the embedded goose migrations. Each supported
// dialect (sqlite, postgres) carries its own SQL directory because the
// unique-index and timestamp syntax differ between them.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationFS embed.FS

// dialect maps a storage driver name onto the goose dialect, the stdlib
// sql driver and the migration directory for that backend.
func dialect(driver string) (gooseDialect, sqlDriver, dir string, err error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return "sqlite3", "sqlite", "migrations/sqlite", nil
	case "postgres", "pgx", "postgrespool":
		return "postgres", "pgx", "migrations/postgres", nil
	}
	return "", "", "", fmt.Errorf("migrate: unsupported driver %q", driver)
}

// run opens the database and hands it to fn with the right dialect
// configured. The default sqlite DSN matches the storage factory.
func run(driver, dsn string, fn func(db *sql.DB, dir string) error) error {
	gd, sd, dir, err := dialect(driver)
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrationFS)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect(gd); err != nil {
		return err
	}

	if dsn == "" {
		dsn = "octorate.db"
	}
	db, err := sql.Open(sd, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db, dir)
}

// Up applies all pending migrations.
func Up(ctx context.Context, driver, dsn string) error {
	return run(driver, dsn, func(db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	})
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, driver, dsn string) error {
	return run(driver, dsn, func(db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	})
}

// Status prints the applied/pending state of every migration.
func Status(ctx context.Context, driver, dsn string) error {
	return run(driver, dsn, func(db *sql.DB, dir string) error {
		return goose.StatusContext(ctx, db, dir)
	})
}
