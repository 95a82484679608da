package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// StatsFilter windows stats queries. Guesses before Since, or before the
// owning user's last reset, are ignored.
type StatsFilter struct {
	Since              time.Time
	ExcludeBroadcaster bool
	Limit              int
}

func (f StatsFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

// guessWindow filters guesses g of users u. Its arguments come from windowArgs.
const guessWindow = `g.created_at > u.reset_at AND g.created_at >= ? AND (? = 0 OR g.user_id <> ?)`

func (f StatsFilter) windowArgs() []any {
	return []any{sinceMillis(f.Since), boolInt(f.ExcludeBroadcaster), chatguessr.BroadcasterID}
}

// streakWindow filters streaks s of users u with the same arguments.
const streakWindow = `s.created_at > u.reset_at AND s.created_at >= ? AND (? = 0 OR s.user_id <> ?)`

// victoriesCTE defines winners(user_id): one row per finished game won. A
// game is won by the highest total score, ties broken by total distance.
const victoriesCTE = `WITH totals AS (
    SELECT r.game_id, g.user_id, SUM(g.score) AS score, SUM(g.distance) AS distance
    FROM guesses g
    JOIN rounds r ON r.id = g.round_id
    JOIN games gm ON gm.id = r.game_id AND gm.state = 'finished'
    JOIN users u ON u.id = g.user_id
    WHERE ` + latestRound + ` AND ` + guessWindow + `
    GROUP BY r.game_id, g.user_id
),
winners AS (
    SELECT user_id FROM (
        SELECT user_id, ROW_NUMBER() OVER (PARTITION BY game_id ORDER BY score DESC, distance ASC, user_id ASC) AS pos
        FROM totals
    ) WHERE pos = 1
)`

// GetUserStats returns the lifetime stats of a user since their last reset.
func (s *SQLiteStore) GetUserStats(ctx context.Context, userID string, f StatsFilter) (chatguessr.UserStats, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return chatguessr.UserStats{}, err
	}
	st := chatguessr.UserStats{Player: playerOf(u)}

	if cur, err := s.GetUserStreak(ctx, userID); err != nil {
		return chatguessr.UserStats{}, err
	} else if cur != nil {
		st.CurrentStreak = cur.Count
	}

	args := append(f.windowArgs(), userID)
	var bestPlonk sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN g.streak > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN g.score = `+perfect+` THEN 1 ELSE 0 END), 0),
		        COALESCE(AVG(g.score), 0),
		        MAX(CASE WHEN g.is_random_plonk = 1 THEN g.score END)
		 FROM guesses g JOIN users u ON u.id = g.user_id
		 WHERE `+guessWindow+` AND g.user_id = ?`, args...,
	).Scan(&st.NbGuesses, &st.CorrectGuesses, &st.Perfects, &st.MeanScore, &bestPlonk)
	if err != nil {
		return chatguessr.UserStats{}, fmt.Errorf("querying user guesses: %w", err)
	}
	st.BestRandomPlonk = nullInt(bestPlonk)

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(s.count), 0) FROM streaks s JOIN users u ON u.id = s.user_id
		 WHERE `+streakWindow+` AND s.user_id = ?`, args...,
	).Scan(&st.BestStreak)
	if err != nil {
		return chatguessr.UserStats{}, fmt.Errorf("querying best streak: %w", err)
	}
	if st.CurrentStreak > st.BestStreak {
		st.BestStreak = st.CurrentStreak
	}

	err = s.db.QueryRowContext(ctx,
		victoriesCTE+` SELECT COUNT(*) FROM winners WHERE user_id = ?`, args...,
	).Scan(&st.Victories)
	if err != nil {
		return chatguessr.UserStats{}, fmt.Errorf("querying victories: %w", err)
	}
	return st, nil
}

// perfect is PerfectScore as SQL text.
const perfect = "5000"

func playerOf(u chatguessr.User) chatguessr.Player {
	return chatguessr.Player{ID: u.ID, Username: u.Username, Color: u.Color, Avatar: u.Avatar, Flag: u.Flag}
}

// Leaderboard queries. Each selects the player columns followed by a single
// value and takes the window arguments then a limit.
const (
	topStreaks = `SELECT ` + playerColumns + `, MAX(s.count) AS value
        FROM streaks s JOIN users u ON u.id = s.user_id
        WHERE ` + streakWindow + `
        GROUP BY u.id HAVING value > 0
        ORDER BY value DESC, u.id LIMIT ?`

	topVictories = victoriesCTE + ` SELECT ` + playerColumns + `, COUNT(*) AS value
        FROM winners w JOIN users u ON u.id = w.user_id
        GROUP BY u.id
        ORDER BY value DESC, u.id LIMIT ?`

	topMeanScores = `SELECT ` + playerColumns + `, AVG(g.score) AS value
        FROM guesses g JOIN users u ON u.id = g.user_id
        WHERE ` + guessWindow + `
        GROUP BY u.id
        ORDER BY value DESC, COUNT(*) DESC, u.id LIMIT ?`

	topPerfects = `SELECT ` + playerColumns + `, SUM(CASE WHEN g.score = ` + perfect + ` THEN 1 ELSE 0 END) AS value
        FROM guesses g JOIN users u ON u.id = g.user_id
        WHERE ` + guessWindow + `
        GROUP BY u.id HAVING value > 0
        ORDER BY value DESC, u.id LIMIT ?`

	topGuesses = `SELECT ` + playerColumns + `, COUNT(*) AS value
        FROM guesses g JOIN users u ON u.id = g.user_id
        WHERE ` + guessWindow + `
        GROUP BY u.id
        ORDER BY value DESC, u.id LIMIT ?`

	topRandomPlonks = `SELECT ` + playerColumns + `, MAX(g.score) AS value
        FROM guesses g JOIN users u ON u.id = g.user_id
        WHERE ` + guessWindow + ` AND g.is_random_plonk = 1
        GROUP BY u.id
        ORDER BY value DESC, u.id LIMIT ?`
)

func (s *SQLiteStore) leaderboard(ctx context.Context, query string, f StatsFilter, limit int) ([]chatguessr.StatEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, append(f.windowArgs(), limit)...)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []chatguessr.StatEntry{}
	for rows.Next() {
		var e chatguessr.StatEntry
		p := &e.Player
		if err := rows.Scan(&p.ID, &p.Username, &p.Color, &p.Avatar, &p.Flag, &e.Value); err != nil {
			return nil, fmt.Errorf("scanning leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetGlobalStats returns the leaderboards of every stat category.
func (s *SQLiteStore) GetGlobalStats(ctx context.Context, f StatsFilter) (chatguessr.GlobalStats, error) {
	var gs chatguessr.GlobalStats
	boards := []struct {
		query string
		dst   *[]chatguessr.StatEntry
	}{
		{topStreaks, &gs.Streaks},
		{topVictories, &gs.Victories},
		{topMeanScores, &gs.MeanScores},
		{topPerfects, &gs.Perfects},
		{topGuesses, &gs.Guesses},
	}
	for _, b := range boards {
		entries, err := s.leaderboard(ctx, b.query, f, f.limit())
		if err != nil {
			return chatguessr.GlobalStats{}, err
		}
		*b.dst = entries
	}
	return gs, nil
}

// GetBestStats returns the leader of each stat category.
func (s *SQLiteStore) GetBestStats(ctx context.Context, f StatsFilter) (chatguessr.BestStats, error) {
	var bs chatguessr.BestStats
	boards := []struct {
		query string
		dst   **chatguessr.StatEntry
	}{
		{topStreaks, &bs.Streak},
		{topVictories, &bs.Victories},
		{topPerfects, &bs.Perfects},
		{topMeanScores, &bs.MeanScore},
		{topRandomPlonks, &bs.RandomPlonk},
	}
	for _, b := range boards {
		entries, err := s.leaderboard(ctx, b.query, f, 1)
		if err != nil {
			return chatguessr.BestStats{}, err
		}
		if len(entries) > 0 {
			*b.dst = &entries[0]
		}
	}
	return bs, nil
}
