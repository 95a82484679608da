package migrations_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/playperu/chatguessr/internal/database"
	"github.com/playperu/chatguessr/internal/migrations"
)

const latestVersion = 4

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrations(t *testing.T) {
	db := openDB(t)

	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	// Verify all tables exist by querying sqlite_master.
	want := []string{"games", "rounds", "users", "guesses", "streaks", "banned_users"}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	v, err := migrations.Version(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != latestVersion {
		t.Errorf("version = %d, want %d", v, latestVersion)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openDB(t)

	if err := migrations.Run(db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(db); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestMigrationsResumeFromStoredVersion(t *testing.T) {
	db := openDB(t)

	if err := migrations.RunTo(db, 1); err != nil {
		t.Fatalf("run to 1: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO games (id, map_id, map_name, bounds, created_at) VALUES ('tok', 'm', 'World', '{}', 1)`); err != nil {
		t.Fatalf("insert game at v1: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO rounds (id, game_id, location, created_at) VALUES ('r1', 'tok', '{}', 1)`); err != nil {
		t.Fatalf("insert round at v1: %v", err)
	}

	if err := migrations.Run(db); err != nil {
		t.Fatalf("resume: %v", err)
	}

	var number int
	var mode string
	if err := db.QueryRow(`SELECT r.number, g.mode FROM rounds r JOIN games g ON g.id = r.game_id WHERE r.id = 'r1'`).Scan(&number, &mode); err != nil {
		t.Fatalf("reading migrated row: %v", err)
	}
	if number != 1 || mode != "single" {
		t.Errorf("migrated defaults = (%d, %q), want (1, \"single\")", number, mode)
	}
}
