package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// latestRound holds for the most recent row of each (game, number) pair.
// Rows shadowed by a later row with the same number are skipped locations.
const latestRound = `NOT EXISTS (
    SELECT 1 FROM rounds n
    WHERE n.game_id = r.game_id AND n.number = r.number
      AND (n.created_at, n.rowid) > (r.created_at, r.rowid))`

// CreateGame records the game described by seed. created is false when a game
// with the same token already exists, in which case nothing is written.
func (s *SQLiteStore) CreateGame(ctx context.Context, seed *chatguessr.Seed, mode chatguessr.GuessMode) (bool, error) {
	bounds, err := encodeJSON(seed.Bounds)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO games (id, map_id, map_name, bounds, forbid_moving, forbid_zooming, forbid_rotating, time_limit, mode, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'started', ?)
		 ON CONFLICT(id) DO NOTHING`,
		seed.Token, seed.Map, seed.MapName, bounds,
		boolInt(seed.ForbidMoving), boolInt(seed.ForbidZooming), boolInt(seed.ForbidRotating),
		seed.TimeLimit, string(mode), s.nowMillis(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting game: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, id string) (chatguessr.Game, error) {
	var (
		g                         chatguessr.Game
		bounds, mode, state       string
		moving, zooming, rotating int
		createdAt                 int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, map_id, map_name, bounds, forbid_moving, forbid_zooming, forbid_rotating, time_limit, mode, state, created_at
		 FROM games WHERE id = ?`, id,
	).Scan(&g.ID, &g.MapID, &g.MapName, &bounds, &moving, &zooming, &rotating, &g.TimeLimit, &mode, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chatguessr.Game{}, chatguessr.ErrNotFound
	}
	if err != nil {
		return chatguessr.Game{}, fmt.Errorf("querying game: %w", err)
	}
	if err := json.Unmarshal([]byte(bounds), &g.Bounds); err != nil {
		return chatguessr.Game{}, fmt.Errorf("decoding game bounds: %w", err)
	}
	g.ForbidMoving = moving != 0
	g.ForbidZooming = zooming != 0
	g.ForbidRotating = rotating != 0
	g.Mode = chatguessr.GuessMode(mode)
	g.State = chatguessr.GameState(state)
	g.CreatedAt = fromMillis(createdAt)
	return g, nil
}

// SetGameFinished marks a game finished. Finishing twice is not an error.
func (s *SQLiteStore) SetGameFinished(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE games SET state = 'finished' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("finishing game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing game: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

// CreateRound opens round number of a game. Reusing a number supersedes the
// earlier row for that number.
func (s *SQLiteStore) CreateRound(ctx context.Context, gameID string, number int, loc chatguessr.Location) (chatguessr.Round, error) {
	encoded, err := encodeJSON(loc)
	if err != nil {
		return chatguessr.Round{}, err
	}
	r := chatguessr.Round{
		ID:       uuid.NewString(),
		GameID:   gameID,
		Number:   number,
		Location: loc,
	}
	now := s.nowMillis()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rounds (id, game_id, number, location, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, gameID, number, encoded, now,
	)
	if err != nil {
		return chatguessr.Round{}, fmt.Errorf("inserting round: %w", err)
	}
	r.CreatedAt = fromMillis(now)
	return r, nil
}

const roundColumns = `r.id, r.game_id, r.number, r.location, r.streak_code, r.created_at`

func scanRound(row interface{ Scan(...any) error }) (chatguessr.Round, error) {
	var (
		r          chatguessr.Round
		loc        string
		streakCode sql.NullString
		createdAt  int64
	)
	if err := row.Scan(&r.ID, &r.GameID, &r.Number, &loc, &streakCode, &createdAt); err != nil {
		return chatguessr.Round{}, err
	}
	if err := json.Unmarshal([]byte(loc), &r.Location); err != nil {
		return chatguessr.Round{}, fmt.Errorf("decoding round location: %w", err)
	}
	r.StreakCode = nullString(streakCode)
	r.CreatedAt = fromMillis(createdAt)
	return r, nil
}

func (s *SQLiteStore) queryRound(ctx context.Context, query string, args ...any) (chatguessr.Round, error) {
	r, err := scanRound(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return chatguessr.Round{}, chatguessr.ErrNotFound
	}
	if err != nil {
		return chatguessr.Round{}, fmt.Errorf("querying round: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) GetRound(ctx context.Context, id string) (chatguessr.Round, error) {
	return s.queryRound(ctx, `SELECT `+roundColumns+` FROM rounds r WHERE r.id = ?`, id)
}

// GetCurrentRound returns the most recently created round of a game.
func (s *SQLiteStore) GetCurrentRound(ctx context.Context, gameID string) (chatguessr.Round, error) {
	return s.queryRound(ctx,
		`SELECT `+roundColumns+` FROM rounds r WHERE r.game_id = ?
		 ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`, gameID)
}

// PreviousRound returns the latest round, of any game, created before roundID
// and not superseded by a skip.
func (s *SQLiteStore) PreviousRound(ctx context.Context, roundID string) (chatguessr.Round, error) {
	return s.queryRound(ctx,
		`SELECT `+roundColumns+` FROM rounds r, rounds c
		 WHERE c.id = ? AND (r.created_at, r.rowid) < (c.created_at, c.rowid)
		   AND `+latestRound+`
		 ORDER BY r.created_at DESC, r.rowid DESC LIMIT 1`, roundID)
}

func (s *SQLiteStore) SetRoundStreakCode(ctx context.Context, roundID string, code *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rounds SET streak_code = ? WHERE id = ?`, optString(code), roundID)
	if err != nil {
		return fmt.Errorf("updating round streak code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating round streak code: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

// GamesCount returns how many games were ever played.
func (s *SQLiteStore) GamesCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting games: %w", err)
	}
	return n, nil
}
