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

// GuessInput is the scored content of a guess.
type GuessInput struct {
	Location      chatguessr.LatLng
	StreakCode    *string
	Streak        int
	LastStreak    *int
	IsRandomPlonk bool
	Distance      float64
	Score         int
}

// CreateGuess stores a user's first guess on a round. A second guess by the
// same user on the same round fails with ErrAlreadyGuessed.
func (s *SQLiteStore) CreateGuess(ctx context.Context, roundID, userID string, in GuessInput) (chatguessr.Guess, error) {
	loc, err := encodeJSON(in.Location)
	if err != nil {
		return chatguessr.Guess{}, err
	}
	g := chatguessr.Guess{
		ID:            uuid.NewString(),
		RoundID:       roundID,
		UserID:        userID,
		Location:      in.Location,
		StreakCode:    in.StreakCode,
		Streak:        in.Streak,
		LastStreak:    in.LastStreak,
		IsRandomPlonk: in.IsRandomPlonk,
		Distance:      in.Distance,
		Score:         in.Score,
	}
	now := s.nowMillis()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO guesses (id, round_id, user_id, location, streak_code, streak, last_streak, is_random_plonk, distance, score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(round_id, user_id) DO NOTHING`,
		g.ID, roundID, userID, loc, optString(in.StreakCode), in.Streak, optInt(in.LastStreak), boolInt(in.IsRandomPlonk), in.Distance, in.Score, now,
	)
	if err != nil {
		return chatguessr.Guess{}, fmt.Errorf("inserting guess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return chatguessr.Guess{}, fmt.Errorf("inserting guess: %w", err)
	}
	if n == 0 {
		return chatguessr.Guess{}, chatguessr.ErrAlreadyGuessed
	}
	g.CreatedAt = fromMillis(now)
	return g, nil
}

// UpdateGuess replaces the content of an existing guess and moves its
// timestamp to now, so a modified guess ranks as submitted last.
func (s *SQLiteStore) UpdateGuess(ctx context.Context, guessID string, in GuessInput) error {
	loc, err := encodeJSON(in.Location)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE guesses SET location = ?, streak_code = ?, streak = ?, last_streak = ?, is_random_plonk = ?, distance = ?, score = ?, created_at = ?
		 WHERE id = ?`,
		loc, optString(in.StreakCode), in.Streak, optInt(in.LastStreak), boolInt(in.IsRandomPlonk), in.Distance, in.Score, s.nowMillis(), guessID,
	)
	if err != nil {
		return fmt.Errorf("updating guess: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating guess: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

// SetGuessStreak records the streak values of a guess once they are known.
func (s *SQLiteStore) SetGuessStreak(ctx context.Context, guessID string, streak int, lastStreak *int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE guesses SET streak = ?, last_streak = ? WHERE id = ?`, streak, optInt(lastStreak), guessID)
	if err != nil {
		return fmt.Errorf("updating guess streak: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating guess streak: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

const guessColumns = `g.id, g.round_id, g.user_id, g.location, g.streak_code, g.streak, g.last_streak, g.is_random_plonk, g.distance, g.score, g.created_at`

func scanGuess(row interface{ Scan(...any) error }) (chatguessr.Guess, error) {
	var (
		g          chatguessr.Guess
		loc        string
		streakCode sql.NullString
		lastStreak sql.NullInt64
		plonk      int
		createdAt  int64
	)
	err := row.Scan(&g.ID, &g.RoundID, &g.UserID, &loc, &streakCode, &g.Streak, &lastStreak, &plonk, &g.Distance, &g.Score, &createdAt)
	if err != nil {
		return chatguessr.Guess{}, err
	}
	if err := json.Unmarshal([]byte(loc), &g.Location); err != nil {
		return chatguessr.Guess{}, fmt.Errorf("decoding guess location: %w", err)
	}
	g.StreakCode = nullString(streakCode)
	g.LastStreak = nullInt(lastStreak)
	g.IsRandomPlonk = plonk != 0
	g.CreatedAt = fromMillis(createdAt)
	return g, nil
}

// GetUserGuess returns the user's guess on a round.
func (s *SQLiteStore) GetUserGuess(ctx context.Context, roundID, userID string) (chatguessr.Guess, error) {
	g, err := scanGuess(s.db.QueryRowContext(ctx,
		`SELECT `+guessColumns+` FROM guesses g WHERE g.round_id = ? AND g.user_id = ?`, roundID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return chatguessr.Guess{}, chatguessr.ErrNotFound
	}
	if err != nil {
		return chatguessr.Guess{}, fmt.Errorf("querying guess: %w", err)
	}
	return g, nil
}

// GetUserLastGuess returns the most recent guess of a user on any round.
func (s *SQLiteStore) GetUserLastGuess(ctx context.Context, userID string) (chatguessr.Guess, error) {
	g, err := scanGuess(s.db.QueryRowContext(ctx,
		`SELECT `+guessColumns+` FROM guesses g WHERE g.user_id = ?
		 ORDER BY g.created_at DESC, g.rowid DESC LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return chatguessr.Guess{}, chatguessr.ErrNotFound
	}
	if err != nil {
		return chatguessr.Guess{}, fmt.Errorf("querying last guess: %w", err)
	}
	return g, nil
}

// GetRoundGuesses returns every guess on a round in submission order.
func (s *SQLiteStore) GetRoundGuesses(ctx context.Context, roundID string) ([]chatguessr.Guess, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guessColumns+` FROM guesses g WHERE g.round_id = ? ORDER BY g.created_at, g.rowid`, roundID)
	if err != nil {
		return nil, fmt.Errorf("listing guesses: %w", err)
	}
	defer rows.Close()

	var guesses []chatguessr.Guess
	for rows.Next() {
		g, err := scanGuess(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning guess: %w", err)
		}
		guesses = append(guesses, g)
	}
	return guesses, rows.Err()
}

// UserGuessedOnOngoingRound reports whether the user has a guess on the most
// recent round and the streamer has not concluded that round yet.
func (s *SQLiteStore) UserGuessedOnOngoingRound(ctx context.Context, userID string) (bool, error) {
	var guessed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(
		     SELECT 1 FROM guesses g
		     WHERE g.user_id = ?
		       AND g.round_id = (SELECT id FROM rounds ORDER BY created_at DESC, rowid DESC LIMIT 1)
		       AND NOT EXISTS (SELECT 1 FROM guesses b WHERE b.round_id = g.round_id AND b.user_id = ?))`,
		userID, chatguessr.BroadcasterID,
	).Scan(&guessed)
	if err != nil {
		return false, fmt.Errorf("querying ongoing guess: %w", err)
	}
	return guessed, nil
}
