package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/events"
	"github.com/playperu/chatguessr/internal/geo"
	"github.com/playperu/chatguessr/internal/seed"
)

// Outcome classifies what a seed refresh found.
type Outcome string

const (
	OutcomeNone            Outcome = "none"
	OutcomeLocationSkipped Outcome = "locationSkipped"
	OutcomeRoundScored     Outcome = "roundScored"
)

type RefreshResult struct {
	Outcome Outcome `json:"outcome"`
	// Round is the number of the round the outcome applies to.
	Round        int                      `json:"round,omitempty"`
	RoundResults []chatguessr.RoundResult `json:"roundResults,omitempty"`
	GameFinished bool                     `json:"gameFinished"`
	GameResults  []chatguessr.GameResult  `json:"gameResults,omitempty"`
}

// Start begins or resumes the game of seedURL. Starting the game that is
// already active refreshes it instead.
func (c *Controller) Start(ctx context.Context, seedURL string, multiGuess bool) (State, error) {
	token, err := seed.TokenFromURL(seedURL)
	if err != nil {
		return State{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if s, _, ok := c.snapshot(); ok && s.token == token {
		if _, err := c.refresh(ctx); err != nil {
			return State{}, err
		}
		return c.State(), nil
	}

	sd, err := c.seeds.Fetch(ctx, token)
	if err != nil {
		return State{}, err
	}
	sd.Token = token

	mode := chatguessr.GuessModeSingle
	if multiGuess {
		mode = chatguessr.GuessModeMulti
	}

	created, err := c.store.CreateGame(ctx, sd, mode)
	if err != nil {
		return State{}, fmt.Errorf("creating game: %w", err)
	}
	if !created {
		g, err := c.store.GetGame(ctx, token)
		if err != nil {
			return State{}, fmt.Errorf("loading game: %w", err)
		}
		mode = g.Mode
		c.logger.Info("resuming game", "game_id", token, "mode", mode)
	}

	number, loc, ok := sd.CurrentRound()
	if !ok {
		return State{}, chatguessr.ErrNoActiveRound
	}

	round, err := c.resumeRound(ctx, token, created, number, loc)
	if err != nil {
		return State{}, err
	}
	if err := c.ensureStreakCode(ctx, &round); err != nil {
		return State{}, err
	}

	sess := &session{
		token:        token,
		mode:         mode,
		seed:         sd,
		scale:        geo.CalculateScale(sd.Bounds),
		round:        round,
		state:        stateInRound,
		guessesOpen:  true,
		gamesInRound: 1,
	}
	prev, err := c.store.PreviousRound(ctx, round.ID)
	switch {
	case err == nil:
		sess.lastRound = &prev
	case !errors.Is(err, chatguessr.ErrNotFound):
		return State{}, fmt.Errorf("loading previous round: %w", err)
	}

	if sd.Finished() {
		if err := c.store.SetGameFinished(ctx, token); err != nil {
			return State{}, fmt.Errorf("finishing game: %w", err)
		}
		sess.state = stateFinished
		sess.guessesOpen = false
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.logger.Info("game started", "game_id", token, "round", round.Number, "mode", mode, "resumed", !created)
	c.publish(events.TypeRoundStarted, token, roundEvent(round))
	return c.State(), nil
}

// resumeRound returns the round to play. A resumed game keeps its current
// round when the seed still points at the same location.
func (c *Controller) resumeRound(ctx context.Context, gameID string, created bool, number int, loc chatguessr.Location) (chatguessr.Round, error) {
	if !created {
		cur, err := c.store.GetCurrentRound(ctx, gameID)
		switch {
		case err == nil && cur.Number == number && cur.Location == loc:
			return cur, nil
		case err != nil && !errors.Is(err, chatguessr.ErrNotFound):
			return chatguessr.Round{}, fmt.Errorf("loading current round: %w", err)
		}
	}
	r, err := c.store.CreateRound(ctx, gameID, number, loc)
	if err != nil {
		return chatguessr.Round{}, fmt.Errorf("creating round: %w", err)
	}
	return r, nil
}

func (c *Controller) ensureStreakCode(ctx context.Context, r *chatguessr.Round) error {
	if r.StreakCode != nil {
		return nil
	}
	code := c.resolve(ctx, r.Location.LatLng())
	if code == nil {
		return nil
	}
	if err := c.store.SetRoundStreakCode(ctx, r.ID, code); err != nil {
		return fmt.Errorf("saving round streak code: %w", err)
	}
	r.StreakCode = code
	return nil
}

// RefreshSeed re-reads the seed and applies what changed since the last read.
func (c *Controller) RefreshSeed(ctx context.Context) (RefreshResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) (RefreshResult, error) {
	s, _, ok := c.snapshot()
	if !ok {
		return RefreshResult{}, chatguessr.ErrNoActiveRound
	}
	if s.state == stateFinished {
		return RefreshResult{Outcome: OutcomeNone, GameFinished: true}, nil
	}

	sd, err := c.seeds.Fetch(ctx, s.token)
	if err != nil {
		return RefreshResult{}, err
	}
	sd.Token = s.token

	number, loc, _ := sd.CurrentRound()
	switch {
	case s.state == stateInRound && len(sd.Player.Guesses) > len(s.seed.Player.Guesses):
		return c.concludeRound(ctx, s, sd)

	case s.state == stateRoundScored:
		if number > s.round.Number {
			if err := c.openRound(ctx, s.token, number, loc); err != nil {
				return RefreshResult{}, err
			}
		}
		c.update(func(cur *session) { cur.seed = sd })
		return RefreshResult{Outcome: OutcomeNone, Round: number}, nil

	case number == s.round.Number && loc != s.round.Location:
		return c.skipLocation(ctx, s, sd, loc)

	default:
		c.update(func(cur *session) { cur.seed = sd })
		return RefreshResult{Outcome: OutcomeNone, Round: s.round.Number}, nil
	}
}

// skipLocation replaces the current round after the streamer moved to a new
// location without guessing.
func (c *Controller) skipLocation(ctx context.Context, s session, sd *chatguessr.Seed, loc chatguessr.Location) (RefreshResult, error) {
	r, err := c.store.CreateRound(ctx, s.token, s.round.Number, loc)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("replacing round: %w", err)
	}
	if err := c.ensureStreakCode(ctx, &r); err != nil {
		return RefreshResult{}, err
	}

	c.update(func(cur *session) {
		cur.seed = sd
		cur.round = r
		cur.gamesInRound = 1
		cur.lastWinner = ""
	})
	c.logger.Info("location skipped", "game_id", s.token, "round", r.Number)
	c.publish(events.TypeLocationSkipped, s.token, roundEvent(r))
	return RefreshResult{Outcome: OutcomeLocationSkipped, Round: r.Number}, nil
}

// concludeRound scores the round the streamer just guessed and moves the
// session to the next round or to the end of the game.
func (c *Controller) concludeRound(ctx context.Context, s session, sd *chatguessr.Seed) (RefreshResult, error) {
	c.update(func(cur *session) { cur.guessesOpen = false })

	idx := s.round.Number - 1
	if idx >= len(sd.Player.Guesses) {
		idx = len(sd.Player.Guesses) - 1
	}
	if err := c.recordStreamerGuess(ctx, s, sd.Player.Guesses[idx]); err != nil {
		return RefreshResult{}, err
	}

	if s.multi() {
		if err := c.finalizeGuesses(ctx, s); err != nil {
			return RefreshResult{}, err
		}
	}

	results, err := c.store.GetRoundResults(ctx, s.round.ID)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("loading round results: %w", err)
	}

	concluded := s.round
	c.update(func(cur *session) {
		cur.seed = sd
		cur.lastRound = &concluded
		cur.state = stateRoundScored
		cur.gamesInRound = 1
		cur.lastWinner = ""
	})

	res := RefreshResult{Outcome: OutcomeRoundScored, Round: s.round.Number, RoundResults: results}
	c.logger.Info("round scored", "game_id", s.token, "round", s.round.Number, "guesses", len(results))
	c.publish(events.TypeRoundResults, s.token, res)

	if sd.Finished() {
		if err := c.store.SetGameFinished(ctx, s.token); err != nil {
			return RefreshResult{}, fmt.Errorf("finishing game: %w", err)
		}
		c.update(func(cur *session) { cur.state = stateFinished })

		gameResults, err := c.store.GetGameResults(ctx, s.token)
		if err != nil {
			return RefreshResult{}, fmt.Errorf("loading game results: %w", err)
		}
		res.GameFinished = true
		res.GameResults = gameResults
		c.logger.Info("game finished", "game_id", s.token, "players", len(gameResults))
		c.publish(events.TypeGameFinished, s.token, gameResults)
		return res, nil
	}

	if number, loc, ok := sd.CurrentRound(); ok && number > s.round.Number {
		if err := c.openRound(ctx, s.token, number, loc); err != nil {
			return RefreshResult{}, err
		}
	}
	return res, nil
}

// openRound creates the next round and starts accepting guesses on it.
func (c *Controller) openRound(ctx context.Context, gameID string, number int, loc chatguessr.Location) error {
	r, err := c.store.CreateRound(ctx, gameID, number, loc)
	if err != nil {
		return fmt.Errorf("creating round: %w", err)
	}
	if err := c.ensureStreakCode(ctx, &r); err != nil {
		return err
	}
	c.update(func(cur *session) {
		cur.round = r
		cur.state = stateInRound
		cur.guessesOpen = true
	})
	c.publish(events.TypeRoundStarted, gameID, roundEvent(r))
	return nil
}

// ReopenRound starts another game on the current round location. The current
// round leader becomes the previous winner chicken mode penalizes.
func (c *Controller) ReopenRound(ctx context.Context) (State, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, _, ok := c.snapshot()
	if !ok {
		return State{}, chatguessr.ErrNoActiveRound
	}
	switch s.state {
	case stateFinished:
		return State{}, chatguessr.ErrGameFinished
	case stateRoundScored:
		return State{}, chatguessr.ErrNoActiveRound
	}

	results, err := c.store.GetRoundResults(ctx, s.round.ID)
	if err != nil {
		return State{}, fmt.Errorf("loading round results: %w", err)
	}
	winner := ""
	if len(results) > 0 {
		winner = results[0].Player.ID
	}

	r, err := c.store.CreateRound(ctx, s.token, s.round.Number, s.round.Location)
	if err != nil {
		return State{}, fmt.Errorf("reopening round: %w", err)
	}
	if s.round.StreakCode != nil {
		if err := c.store.SetRoundStreakCode(ctx, r.ID, s.round.StreakCode); err != nil {
			return State{}, fmt.Errorf("saving round streak code: %w", err)
		}
		r.StreakCode = s.round.StreakCode
	}

	c.update(func(cur *session) {
		cur.round = r
		cur.guessesOpen = true
		cur.gamesInRound++
		cur.lastWinner = winner
	})
	c.publish(events.TypeRoundStarted, s.token, roundEvent(r))
	return c.State(), nil
}

type roundView struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
}

func roundEvent(r chatguessr.Round) roundView {
	return roundView{ID: r.ID, Number: r.Number}
}
