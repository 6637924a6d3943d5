// Package migrations применяет SQL-миграции схемы через golang-migrate.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ErrDirty предыдущая миграция упала на середине, схему нужно чинить вручную.
var ErrDirty = errors.New("schema is dirty")

// Run применяет непримененные миграции из каталога path и возвращает
// версию схемы после применения.
func Run(db *sql.DB, path string) (uint, error) {
	const op = "migrations.Run"
	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "pgx_v5", driver)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if version, dirty, err := m.Version(); err == nil && dirty {
		return version, fmt.Errorf("%s: version %d: %w", op, version, ErrDirty)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return version, nil
}
