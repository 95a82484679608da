package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

const defaultColor = "#FFF"

const userColumns = `u.id, u.username, u.color, COALESCE(u.avatar, ''), COALESCE(u.flag, ''), u.current_streak_id, u.reset_at`

func scanUser(row interface{ Scan(...any) error }) (chatguessr.User, error) {
	var (
		u        chatguessr.User
		streakID sql.NullInt64
		resetAt  int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Color, &u.Avatar, &u.Flag, &streakID, &resetAt); err != nil {
		return chatguessr.User{}, err
	}
	if streakID.Valid {
		id := streakID.Int64
		u.CurrentStreakID = &id
	}
	u.ResetAt = fromMillis(resetAt)
	return u, nil
}

// GetOrCreateUser creates the user or refreshes the display fields chat reports
// for them. An empty avatar keeps the stored one.
func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, id chatguessr.Identity) (chatguessr.User, error) {
	color := id.Color
	if color == "" {
		color = defaultColor
	}
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username, color, avatar) VALUES (?, ?, ?, NULLIF(?, ''))
		 ON CONFLICT(id) DO UPDATE SET
		     username = excluded.username,
		     color = excluded.color,
		     avatar = COALESCE(excluded.avatar, users.avatar)
		 RETURNING id, username, color, COALESCE(avatar, ''), COALESCE(flag, ''), current_streak_id, reset_at`,
		id.UserID, id.Username, color, id.Avatar,
	))
	if err != nil {
		return chatguessr.User{}, fmt.Errorf("upserting user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (chatguessr.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return chatguessr.User{}, chatguessr.ErrNotFound
	}
	if err != nil {
		return chatguessr.User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// SetUserFlag stores the country flag a user picked. An empty flag clears it.
func (s *SQLiteStore) SetUserFlag(ctx context.Context, id, flag string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET flag = NULLIF(?, '') WHERE id = ?`, strings.ToLower(flag), id)
	if err != nil {
		return fmt.Errorf("updating user flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user flag: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

// ResetUserStats moves the user's stats watermark to now and drops the
// current streak. Guesses and streaks before the watermark stop counting but
// are kept.
func (s *SQLiteStore) ResetUserStats(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET reset_at = ?, current_streak_id = NULL WHERE id = ?`, s.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("resetting user stats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resetting user stats: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) BanUser(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return chatguessr.ErrInvalidUsername
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO banned_users (username) VALUES (?) ON CONFLICT(username) DO NOTHING`, username); err != nil {
		return fmt.Errorf("banning user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UnbanUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM banned_users WHERE username = ?`, strings.TrimSpace(username))
	if err != nil {
		return fmt.Errorf("unbanning user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unbanning user: %w", err)
	}
	if n == 0 {
		return chatguessr.ErrNotFound
	}
	return nil
}

// IsBanned matches usernames case-insensitively.
func (s *SQLiteStore) IsBanned(ctx context.Context, username string) (bool, error) {
	var banned bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM banned_users WHERE username = ?)`, strings.TrimSpace(username),
	).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("querying ban: %w", err)
	}
	return banned, nil
}

func (s *SQLiteStore) GetBannedUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM banned_users ORDER BY username COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("listing banned users: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning banned user: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
