// Package migrations holds the schema history of the store. Files are
// append-only: a released migration is never edited, a change ships as the
// next numbered file.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var fs embed.FS

func setup() error {
	goose.SetBaseFS(fs)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations against db, one version per transaction.
func Run(db *sql.DB) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// RunTo applies pending migrations up to and including version.
func RunTo(db *sql.DB, version int64) error {
	if err := setup(); err != nil {
		return err
	}
	if err := goose.UpTo(db, ".", version); err != nil {
		return fmt.Errorf("running migrations to %d: %w", version, err)
	}
	return nil
}

// Version returns the schema version recorded in db.
func Version(db *sql.DB) (int64, error) {
	if err := setup(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}
