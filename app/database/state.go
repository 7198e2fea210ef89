package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// StateDB is the small sqlite store holding auxiliary run state: the
// RunMetadata singleton and the opaque token blob. Offer records live in
// the shard files, not here.
type StateDB struct {
	*sql.DB
}

// OpenState opens (creating if needed) the state database and applies its
// SQL schema migrations.
func OpenState(path string) (*StateDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping state db: %w", err)
	}

	state := &StateDB{DB: db}
	if _, _, err := runSchemaMigrations(state); err != nil {
		db.Close()
		return nil, err
	}

	return state, nil
}

// runSchemaMigrations applies all pending schema migrations and returns
// version info.
func runSchemaMigrations(db *StateDB) (uint, bool, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return 0, false, fmt.Errorf("failed to run schema migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get schema version: %w", err)
	}

	return version, dirty, nil
}
