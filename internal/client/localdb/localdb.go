// Package localdb opens the client's SQLite database, applies migrations and
// wires up the repositories backed by it.
package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daybook-app/daybook/internal/client/migrations"
	"github.com/daybook-app/daybook/internal/client/repositories/entries"
	"github.com/daybook-app/daybook/internal/client/repositories/settings"
	"github.com/pressly/goose/v3"
)

type Repositories struct {
	Entries  entries.Repository
	Settings settings.Repository
	DB       *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Repositories{
		Entries:  entries.NewSQLiteRepository(db),
		Settings: settings.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}
