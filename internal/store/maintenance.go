package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var ErrNoBackupDir = errors.New("no backup directory configured")

// Backup writes a consistent copy of the database into the backup directory
// and returns its path.
func (s *SQLiteStore) Backup(ctx context.Context) (string, error) {
	if s.backupDir == "" {
		return "", ErrNoBackupDir
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup dir: %w", err)
	}
	path := filepath.Join(s.backupDir, fmt.Sprintf("chatguessr-%s.db", s.now().UTC().Format("20060102T150405.000")))
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return "", fmt.Errorf("backing up database: %w", err)
	}
	return path, nil
}

// DeleteSummary reports what DeleteGlobalStats removed.
type DeleteSummary struct {
	Backup  string `json:"backup,omitempty"`
	Guesses int64  `json:"guesses"`
	Streaks int64  `json:"streaks"`
	Rounds  int64  `json:"rounds"`
	Games   int64  `json:"games"`
}

// DeleteGlobalStats removes every guess and streak recorded at or after since,
// then the rounds and games left empty. The latest round of each game is kept
// so a game in progress can go on. A backup is attempted first when a backup
// directory is set; a failed backup does not stop the deletion. The steps run
// one statement at a time in dependency order. A failing step stops the
// sequence and the returned summary counts what earlier steps removed.
func (s *SQLiteStore) DeleteGlobalStats(ctx context.Context, since time.Time) (DeleteSummary, error) {
	var sum DeleteSummary
	if s.backupDir != "" {
		if path, err := s.Backup(ctx); err == nil {
			sum.Backup = path
		}
	}

	from := sinceMillis(since)
	steps := []struct {
		name  string
		query string
		count *int64
	}{
		{"unlinking streaks", `UPDATE users SET current_streak_id = NULL
            WHERE current_streak_id IN (SELECT id FROM streaks WHERE created_at >= ?)`, nil},
		{"deleting guesses", `DELETE FROM guesses WHERE created_at >= ?`, &sum.Guesses},
		{"deleting streaks", `DELETE FROM streaks WHERE created_at >= ?`, &sum.Streaks},
		{"deleting rounds", `DELETE FROM rounds
            WHERE created_at >= ?
              AND id NOT IN (
                  SELECT id FROM (
                      SELECT id, ROW_NUMBER() OVER (PARTITION BY game_id ORDER BY created_at DESC, rowid DESC) AS pos
                      FROM rounds
                  ) WHERE pos = 1)
              AND NOT EXISTS (SELECT 1 FROM guesses g WHERE g.round_id = rounds.id)
              AND NOT EXISTS (SELECT 1 FROM streaks s WHERE s.last_round_id = rounds.id)`, &sum.Rounds},
		{"deleting games", `DELETE FROM games
            WHERE created_at >= ?
              AND NOT EXISTS (SELECT 1 FROM rounds r WHERE r.game_id = games.id)`, &sum.Games},
	}

	for _, step := range steps {
		res, err := s.db.ExecContext(ctx, step.query, from)
		if err != nil {
			return sum, fmt.Errorf("%s: %w", step.name, err)
		}
		if step.count == nil {
			continue
		}
		if *step.count, err = res.RowsAffected(); err != nil {
			return sum, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return sum, nil
}
