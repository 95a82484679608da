package game

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/events"
	"github.com/playperu/chatguessr/internal/geo"
	"github.com/playperu/chatguessr/internal/settings"
	"github.com/playperu/chatguessr/internal/store"
)

type guessRequest struct {
	user     chatguessr.User
	pos      chatguessr.LatLng
	plonk    bool
	timedOut bool
	streamer bool
}

// HandleUserGuess scores a chat guess on the current round. In multi-guess
// games a second guess replaces the first; otherwise it is rejected.
func (c *Controller) HandleUserGuess(ctx context.Context, id chatguessr.Identity, pos chatguessr.LatLng, randomPlonk bool) (chatguessr.GuessResult, error) {
	if id.UserID == "" || id.UserID == chatguessr.BroadcasterID {
		return chatguessr.GuessResult{}, chatguessr.ErrInvalidUser
	}

	banned, err := c.store.IsBanned(ctx, id.Username)
	if err != nil {
		return chatguessr.GuessResult{}, fmt.Errorf("checking ban: %w", err)
	}
	if banned {
		return chatguessr.GuessResult{}, chatguessr.ErrUserBanned
	}

	s, cfg, ok := c.snapshot()
	switch {
	case !ok:
		return chatguessr.GuessResult{}, chatguessr.ErrNoActiveRound
	case s.state == stateFinished:
		return chatguessr.GuessResult{}, chatguessr.ErrGameFinished
	case !s.guessesOpen || s.state != stateInRound:
		return chatguessr.GuessResult{}, chatguessr.ErrGuessesClosed
	}
	if !pos.Valid() {
		return chatguessr.GuessResult{}, chatguessr.ErrInvalidLocation
	}

	user, err := c.store.GetOrCreateUser(ctx, id)
	if err != nil {
		return chatguessr.GuessResult{}, err
	}
	return c.submitGuess(ctx, s, cfg, guessRequest{user: user, pos: pos, plonk: randomPlonk})
}

// recordStreamerGuess stores the seed player's guess on the concluded round.
func (c *Controller) recordStreamerGuess(ctx context.Context, s session, pg chatguessr.PlayerGuess) error {
	_, cfg, _ := c.snapshot()
	user, err := c.store.GetOrCreateUser(ctx, chatguessr.Identity{
		UserID:   chatguessr.BroadcasterID,
		Username: cfg.ChannelName,
	})
	if err != nil {
		return err
	}
	_, err = c.submitGuess(ctx, s, cfg, guessRequest{
		user:     user,
		pos:      chatguessr.LatLng{Lat: pg.Lat, Lng: pg.Lng},
		timedOut: pg.TimedOut,
		streamer: true,
	})
	if errors.Is(err, chatguessr.ErrAlreadyGuessed) {
		// Recorded before a restart.
		return nil
	}
	return err
}

func (c *Controller) submitGuess(ctx context.Context, s session, cfg settings.Settings, req guessRequest) (chatguessr.GuessResult, error) {
	existing, err := c.store.GetUserGuess(ctx, s.round.ID, req.user.ID)
	hasExisting := err == nil
	if err != nil && !errors.Is(err, chatguessr.ErrNotFound) {
		return chatguessr.GuessResult{}, fmt.Errorf("loading guess: %w", err)
	}
	if hasExisting && !s.multi() {
		return chatguessr.GuessResult{}, chatguessr.ErrAlreadyGuessed
	}

	if !req.streamer {
		last, err := c.store.GetUserLastGuess(ctx, req.user.ID)
		switch {
		case err == nil && last.Location == req.pos:
			return chatguessr.GuessResult{}, chatguessr.ErrSubmittedPreviousGuess
		case err != nil && !errors.Is(err, chatguessr.ErrNotFound):
			return chatguessr.GuessResult{}, fmt.Errorf("loading last guess: %w", err)
		}
	}

	distance := geo.HaversineDistance(req.pos, s.round.Location.LatLng())
	var code *string
	if !req.timedOut {
		code = c.resolve(ctx, req.pos)
	}
	score := cfg.Scorer().Score(geo.ScoreInput{
		Distance: distance,
		Scale:    s.scale,
		OnLand:   code != nil,
		Correct:  sameCode(s.round.StreakCode, code),
	})
	if req.timedOut {
		score = 0
	}
	if cfg.ChickenMode && s.gamesInRound > 1 && s.lastWinner == req.user.ID &&
		!(score == chatguessr.PerfectScore && cfg.ChickenPerfectImmune) {
		score = 0
	}

	in := store.GuessInput{
		Location:      req.pos,
		StreakCode:    code,
		IsRandomPlonk: req.plonk,
		Distance:      distance,
		Score:         score,
	}
	// Multi-guess streaks settle when the round closes. Other guesses settle
	// theirs once the row is stored.
	settle := !s.multi() || req.streamer
	if !settle {
		cur, err := c.store.GetUserStreak(ctx, req.user.ID)
		if err != nil {
			return chatguessr.GuessResult{}, err
		}
		if cur != nil {
			in.Streak = cur.Count
		}
	}

	guessID, modified, err := c.persistGuess(ctx, s, req.user.ID, existing, hasExisting, in)
	if err != nil {
		return chatguessr.GuessResult{}, err
	}

	if settle {
		in.Streak, in.LastStreak, err = c.applyStreak(ctx, s, req.user.ID, code)
		if err != nil {
			return chatguessr.GuessResult{}, err
		}
		if err := c.store.SetGuessStreak(ctx, guessID, in.Streak, in.LastStreak); err != nil {
			return chatguessr.GuessResult{}, fmt.Errorf("storing guess streak: %w", err)
		}
	}

	res := chatguessr.GuessResult{
		Player:     playerOf(req.user),
		Position:   req.pos,
		Streak:     in.Streak,
		LastStreak: in.LastStreak,
		Distance:   distance,
		Score:      score,
		Modified:   modified,
	}
	c.logger.Debug("guess recorded", "game_id", s.token, "round", s.round.Number, "user_id", req.user.ID, "score", score, "modified", modified)
	c.publish(events.TypeGuess, s.token, guessEvent(s, res))
	return res, nil
}

// persistGuess stores in as the user's guess on the current round and returns
// the row id and whether an earlier guess was replaced.
func (c *Controller) persistGuess(ctx context.Context, s session, userID string, existing chatguessr.Guess, hasExisting bool, in store.GuessInput) (string, bool, error) {
	if hasExisting {
		if err := c.store.UpdateGuess(ctx, existing.ID, in); err != nil {
			return "", false, fmt.Errorf("updating guess: %w", err)
		}
		return existing.ID, true, nil
	}

	g, err := c.store.CreateGuess(ctx, s.round.ID, userID, in)
	if errors.Is(err, chatguessr.ErrAlreadyGuessed) && s.multi() {
		// A concurrent first guess of the same user won the insert.
		g, err := c.store.GetUserGuess(ctx, s.round.ID, userID)
		if err != nil {
			return "", false, fmt.Errorf("loading guess: %w", err)
		}
		if err := c.store.UpdateGuess(ctx, g.ID, in); err != nil {
			return "", false, fmt.Errorf("updating guess: %w", err)
		}
		return g.ID, true, nil
	}
	if err != nil {
		return "", false, err
	}
	return g.ID, false, nil
}

// applyStreak settles the user's streak against the current round for a guess
// that resolved to code. It returns the streak after the guess and, when the
// streak broke, the count it had before.
func (c *Controller) applyStreak(ctx context.Context, s session, userID string, code *string) (int, *int, error) {
	prev, err := c.store.GetUserStreak(ctx, userID)
	if err != nil {
		return 0, nil, err
	}

	var (
		prevCount int
		counted   bool
		skipped   bool
	)
	if prev != nil {
		prevCount = prev.Count
		last, ok, err := c.store.StreakLastRound(ctx, userID)
		if err != nil {
			return 0, nil, err
		}
		if ok {
			// Rows replacing a round after a skip or a replay share its number
			// and count once.
			counted = sameRound(last, s.round)
			skipped = !counted && s.lastRound != nil && !sameRound(last, *s.lastRound)
		}
	}

	var lastStreak *int
	if prevCount > 0 {
		before := prevCount
		lastStreak = &before
	}

	if skipped {
		if err := c.store.ResetUserStreak(ctx, userID); err != nil {
			return 0, nil, err
		}
		prevCount = 0
	}

	switch {
	case s.round.StreakCode == nil:
		// Nothing to compare against: the streak neither grows nor breaks.
		if skipped {
			return 0, lastStreak, nil
		}
		return prevCount, nil, nil

	case sameCode(s.round.StreakCode, code):
		if counted {
			return prevCount, nil, nil
		}
		n, err := c.store.AddUserStreak(ctx, userID, s.round.ID)
		if err != nil {
			return 0, nil, err
		}
		if !skipped {
			lastStreak = nil
		}
		return n, lastStreak, nil

	default:
		if prev != nil && !skipped {
			if err := c.store.ResetUserStreak(ctx, userID); err != nil {
				return 0, nil, err
			}
		}
		return 0, lastStreak, nil
	}
}

// finalizeGuesses settles the streaks of every chat guess of a multi-guess
// round once it closed.
func (c *Controller) finalizeGuesses(ctx context.Context, s session) error {
	guesses, err := c.store.GetRoundGuesses(ctx, s.round.ID)
	if err != nil {
		return fmt.Errorf("loading round guesses: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.finalizeConcurrency)
	for _, guess := range guesses {
		if guess.UserID == chatguessr.BroadcasterID {
			continue
		}
		g.Go(func() error {
			code := guess.StreakCode
			if code == nil {
				code = c.resolve(gctx, guess.Location)
			}
			streak, last, err := c.applyStreak(gctx, s, guess.UserID, code)
			if err != nil {
				return fmt.Errorf("settling streak of %s: %w", guess.UserID, err)
			}
			if err := c.store.SetGuessStreak(gctx, guess.ID, streak, last); err != nil {
				return fmt.Errorf("saving streak of %s: %w", guess.UserID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func sameCode(round, guess *string) bool {
	return round != nil && guess != nil && *round == *guess
}

// sameRound reports whether a and b are the same round of the same game,
// whichever row of it they are.
func sameRound(a, b chatguessr.Round) bool {
	return a.GameID == b.GameID && a.Number == b.Number
}

func playerOf(u chatguessr.User) chatguessr.Player {
	return chatguessr.Player{ID: u.ID, Username: u.Username, Color: u.Color, Avatar: u.Avatar, Flag: u.Flag}
}

type guessView struct {
	Player   chatguessr.Player `json:"player"`
	Modified bool              `json:"modified"`
}

// guessEvent hides the position and score of multi-guess entries until the
// round closes.
func guessEvent(s session, res chatguessr.GuessResult) any {
	if s.multi() {
		return guessView{Player: res.Player, Modified: res.Modified}
	}
	return res
}
