// Package store owns all durable state of the game: games, rounds, guesses,
// users, streaks and the ban list. The schema itself is managed by the
// migrations package.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type SQLiteStore struct {
	db        *sql.DB
	now       func() time.Time
	backupDir string
}

type Option func(*SQLiteStore)

// WithClock replaces the clock used for every timestamp the store writes.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithBackupDir sets where DeleteGlobalStats writes its backup.
func WithBackupDir(dir string) Option {
	return func(s *SQLiteStore) { s.backupDir = dir }
}

func NewSQLiteStore(db *sql.DB, opts ...Option) *SQLiteStore {
	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) nowMillis() int64 { return s.now().UnixMilli() }

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}
	return string(b), nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// sinceMillis maps an unset since to the start of time.
func sinceMillis(since time.Time) int64 {
	if since.IsZero() {
		return 0
	}
	return since.UnixMilli()
}

// optString and optInt turn optional values into plain driver arguments.
func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}
