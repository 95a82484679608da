package store

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

const playerColumns = `u.id, u.username, u.color, COALESCE(u.avatar, ''), COALESCE(u.flag, '')`

// GetRoundResults ranks the guesses of a round: higher score first, perfect
// scores by time taken, then shorter distance, then earlier submission.
func (s *SQLiteStore) GetRoundResults(ctx context.Context, roundID string) ([]chatguessr.RoundResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playerColumns+`, g.location, g.streak_code, g.streak, g.last_streak,
		        g.distance, g.score, g.created_at - r.created_at, g.is_random_plonk
		 FROM guesses g
		 JOIN users u ON u.id = g.user_id
		 JOIN rounds r ON r.id = g.round_id
		 WHERE g.round_id = ?
		 ORDER BY g.score DESC,
		          CASE WHEN g.score = ? THEN g.created_at - r.created_at END ASC,
		          g.distance ASC,
		          g.created_at ASC`,
		roundID, chatguessr.PerfectScore,
	)
	if err != nil {
		return nil, fmt.Errorf("querying round results: %w", err)
	}
	defer rows.Close()

	results := []chatguessr.RoundResult{}
	for rows.Next() {
		var (
			res        chatguessr.RoundResult
			loc        string
			streakCode sql.NullString
			lastStreak sql.NullInt64
			elapsed    int64
			plonk      int
		)
		p := &res.Player
		if err := rows.Scan(&p.ID, &p.Username, &p.Color, &p.Avatar, &p.Flag,
			&loc, &streakCode, &res.Streak, &lastStreak, &res.Distance, &res.Score, &elapsed, &plonk); err != nil {
			return nil, fmt.Errorf("scanning round result: %w", err)
		}
		if err := json.Unmarshal([]byte(loc), &res.Position); err != nil {
			return nil, fmt.Errorf("decoding guess location: %w", err)
		}
		res.StreakCode = nullString(streakCode)
		res.LastStreak = nullInt(lastStreak)
		res.Time = float64(elapsed) / 1000
		res.IsRandomPlonk = plonk != 0
		results = append(results, res)
	}
	return results, rows.Err()
}

// GetGameResults aggregates every player's guesses over the rounds of a game,
// ranked by total score then total distance. Only the latest row of each
// round number counts.
func (s *SQLiteStore) GetGameResults(ctx context.Context, gameID string) ([]chatguessr.GameResult, error) {
	var nbRounds int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(number), 0) FROM rounds WHERE game_id = ?`, gameID,
	).Scan(&nbRounds); err != nil {
		return nil, fmt.Errorf("counting rounds: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+playerColumns+`, r.number, g.location, g.score, g.distance, g.streak
		 FROM guesses g
		 JOIN rounds r ON r.id = g.round_id
		 JOIN users u ON u.id = g.user_id
		 WHERE r.game_id = ? AND `+latestRound+`
		 ORDER BY u.id, r.number`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying game results: %w", err)
	}
	defer rows.Close()

	var results []*chatguessr.GameResult
	var cur *chatguessr.GameResult
	for rows.Next() {
		var (
			p        chatguessr.Player
			number   int
			loc      string
			score    int
			distance float64
			streak   int
		)
		if err := rows.Scan(&p.ID, &p.Username, &p.Color, &p.Avatar, &p.Flag, &number, &loc, &score, &distance, &streak); err != nil {
			return nil, fmt.Errorf("scanning game result: %w", err)
		}
		if number < 1 || number > nbRounds {
			continue
		}
		var pos chatguessr.LatLng
		if err := json.Unmarshal([]byte(loc), &pos); err != nil {
			return nil, fmt.Errorf("decoding guess location: %w", err)
		}

		if cur == nil || cur.Player.ID != p.ID {
			cur = &chatguessr.GameResult{
				Player:    p,
				Guesses:   make([]*chatguessr.LatLng, nbRounds),
				Scores:    make([]*int, nbRounds),
				Distances: make([]*float64, nbRounds),
			}
			results = append(results, cur)
		}
		i := number - 1
		cur.Guesses[i] = &pos
		cur.Scores[i] = &score
		cur.Distances[i] = &distance
		cur.Streak = streak
		cur.TotalScore += score
		cur.TotalDistance += distance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating game results: %w", err)
	}

	slices.SortStableFunc(results, func(a, b *chatguessr.GameResult) int {
		if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.TotalDistance, b.TotalDistance); c != 0 {
			return c
		}
		return cmp.Compare(a.Player.ID, b.Player.ID)
	})

	out := make([]chatguessr.GameResult, len(results))
	for i, r := range results {
		out[i] = *r
	}
	return out, nil
}
