package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// GetUserStreak returns the user's active streak, or nil when they have none.
func (s *SQLiteStore) GetUserStreak(ctx context.Context, userID string) (*chatguessr.Streak, error) {
	var (
		st                   chatguessr.Streak
		lastRound            sql.NullString
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.last_round_id, s.count, s.created_at, s.updated_at
		 FROM users u JOIN streaks s ON s.id = u.current_streak_id
		 WHERE u.id = ?`, userID,
	).Scan(&st.ID, &st.UserID, &lastRound, &st.Count, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying streak: %w", err)
	}
	st.LastRoundID = lastRound.String
	st.CreatedAt = fromMillis(createdAt)
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

// AddUserStreak extends the user's active streak by roundID, starting a new
// streak when there is none. Adding the same round twice counts once.
func (s *SQLiteStore) AddUserStreak(ctx context.Context, userID, roundID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.nowMillis()

	var current sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT current_streak_id FROM users WHERE id = ?`, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, chatguessr.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying user streak: %w", err)
	}

	var count int
	if current.Valid {
		var lastRound sql.NullString
		if err := tx.QueryRowContext(ctx,
			`SELECT last_round_id, count FROM streaks WHERE id = ?`, current.Int64,
		).Scan(&lastRound, &count); err != nil {
			return 0, fmt.Errorf("querying streak: %w", err)
		}
		if lastRound.String == roundID {
			return count, tx.Commit()
		}
		if err := tx.QueryRowContext(ctx,
			`UPDATE streaks SET count = count + 1, last_round_id = ?, updated_at = ? WHERE id = ? RETURNING count`,
			roundID, now, current.Int64,
		).Scan(&count); err != nil {
			return 0, fmt.Errorf("extending streak: %w", err)
		}
	} else {
		var id int64
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO streaks (user_id, last_round_id, count, created_at, updated_at) VALUES (?, ?, 1, ?, ?) RETURNING id`,
			userID, roundID, now, now,
		).Scan(&id); err != nil {
			return 0, fmt.Errorf("inserting streak: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET current_streak_id = ? WHERE id = ?`, id, userID); err != nil {
			return 0, fmt.Errorf("linking streak: %w", err)
		}
		count = 1
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing streak: %w", err)
	}
	return count, nil
}

// ResetUserStreak ends the user's active streak. The streak row is kept for
// best-streak stats.
func (s *SQLiteStore) ResetUserStreak(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET current_streak_id = NULL WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("resetting streak: %w", err)
	}
	return nil
}

// StreakLastRound returns the round that last extended the user's active
// streak.
func (s *SQLiteStore) StreakLastRound(ctx context.Context, userID string) (chatguessr.Round, bool, error) {
	r, err := s.queryRound(ctx,
		`SELECT `+roundColumns+`
		 FROM users u JOIN streaks s ON s.id = u.current_streak_id JOIN rounds r ON r.id = s.last_round_id
		 WHERE u.id = ?`, userID)
	if errors.Is(err, chatguessr.ErrNotFound) {
		return chatguessr.Round{}, false, nil
	}
	if err != nil {
		return chatguessr.Round{}, false, err
	}
	return r, true, nil
}
