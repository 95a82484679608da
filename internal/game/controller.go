// Package game runs the active game session: it follows the seed, opens and
// closes rounds, scores chat guesses and keeps streaks consistent.
package game

import (
	"context"
	"log/slog"
	"sync"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/events"
	"github.com/playperu/chatguessr/internal/geo"
	"github.com/playperu/chatguessr/internal/settings"
	"github.com/playperu/chatguessr/internal/store"
)

// Store is the persistence the controller drives.
type Store interface {
	CreateGame(ctx context.Context, seed *chatguessr.Seed, mode chatguessr.GuessMode) (bool, error)
	GetGame(ctx context.Context, id string) (chatguessr.Game, error)
	SetGameFinished(ctx context.Context, id string) error

	CreateRound(ctx context.Context, gameID string, number int, loc chatguessr.Location) (chatguessr.Round, error)
	GetCurrentRound(ctx context.Context, gameID string) (chatguessr.Round, error)
	PreviousRound(ctx context.Context, roundID string) (chatguessr.Round, error)
	SetRoundStreakCode(ctx context.Context, roundID string, code *string) error

	GetOrCreateUser(ctx context.Context, id chatguessr.Identity) (chatguessr.User, error)
	IsBanned(ctx context.Context, username string) (bool, error)

	CreateGuess(ctx context.Context, roundID, userID string, in store.GuessInput) (chatguessr.Guess, error)
	UpdateGuess(ctx context.Context, guessID string, in store.GuessInput) error
	SetGuessStreak(ctx context.Context, guessID string, streak int, lastStreak *int) error
	GetUserGuess(ctx context.Context, roundID, userID string) (chatguessr.Guess, error)
	GetUserLastGuess(ctx context.Context, userID string) (chatguessr.Guess, error)
	GetRoundGuesses(ctx context.Context, roundID string) ([]chatguessr.Guess, error)

	GetUserStreak(ctx context.Context, userID string) (*chatguessr.Streak, error)
	StreakLastRound(ctx context.Context, userID string) (chatguessr.Round, bool, error)
	AddUserStreak(ctx context.Context, userID, roundID string) (int, error)
	ResetUserStreak(ctx context.Context, userID string) error

	GetRoundResults(ctx context.Context, roundID string) ([]chatguessr.RoundResult, error)
	GetGameResults(ctx context.Context, gameID string) ([]chatguessr.GameResult, error)
}

// SeedFetcher loads the current seed of a game token.
type SeedFetcher interface {
	Fetch(ctx context.Context, token string) (*chatguessr.Seed, error)
}

type roundState int

const (
	// stateInRound accepts guesses on the current round.
	stateInRound roundState = iota
	// stateRoundScored waits for the seed to reveal the next round.
	stateRoundScored
	stateFinished
)

func (s roundState) String() string {
	switch s {
	case stateInRound:
		return "in_round"
	case stateRoundScored:
		return "round_scored"
	case stateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

type session struct {
	token       string
	mode        chatguessr.GuessMode
	seed        *chatguessr.Seed
	scale       float64
	round       chatguessr.Round
	state       roundState
	guessesOpen bool

	// lastRound is the last concluded round, in this game or the one before.
	// A streak that did not reach it was skipped.
	lastRound *chatguessr.Round

	// gamesInRound counts the games played on the current round location.
	gamesInRound int
	lastWinner   string
}

func (s *session) multi() bool { return s.mode == chatguessr.GuessModeMulti }

// Controller runs the active game session. It starts and resumes games,
// scores chat guesses and settles streaks as rounds conclude. A Controller is
// safe for concurrent use.
type Controller struct {
	store    Store
	seeds    SeedFetcher
	resolver geo.Resolver
	events   events.Publisher
	logger   *slog.Logger

	finalizeConcurrency int

	// opMu serializes session transitions. mu guards the session fields and
	// is never held across I/O.
	opMu     sync.Mutex
	mu       sync.Mutex
	settings settings.Settings
	sess     *session
}

// New returns a Controller with no active game. finalizeConcurrency bounds the
// parallel streak settlement of multi-guess rounds and is raised to 1 when
// lower.
func New(st Store, seeds SeedFetcher, resolver geo.Resolver, pub events.Publisher, cfg settings.Settings, finalizeConcurrency int, logger *slog.Logger) *Controller {
	if finalizeConcurrency < 1 {
		finalizeConcurrency = 1
	}
	return &Controller{
		store:               st,
		seeds:               seeds,
		resolver:            resolver,
		events:              pub,
		logger:              logger,
		finalizeConcurrency: finalizeConcurrency,
		settings:            cfg,
	}
}

// SetSettings swaps the rules applied to guesses from now on.
func (c *Controller) SetSettings(s settings.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// snapshot returns a copy of the session and settings, or ok=false when no
// game is active.
func (c *Controller) snapshot() (session, settings.Settings, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return session{}, c.settings, false
	}
	return *c.sess, c.settings, true
}

func (c *Controller) update(fn func(s *session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		fn(c.sess)
	}
}

// State is a snapshot of the session for callers.
type State struct {
	Active       bool                 `json:"active"`
	GameID       string               `json:"gameId,omitempty"`
	Round        int                  `json:"round,omitempty"`
	RoundID      string               `json:"roundId,omitempty"`
	Location     *chatguessr.Location `json:"location,omitempty"`
	StreakCode   *string              `json:"streakCode,omitempty"`
	GuessesOpen  bool                 `json:"guessesOpen"`
	MultiGuess   bool                 `json:"multiGuess"`
	Finished     bool                 `json:"finished"`
	Phase        string               `json:"phase,omitempty"`
	Scale        float64              `json:"scale,omitempty"`
	GamesInRound int                  `json:"gamesInRound,omitempty"`
}

func (c *Controller) State() State {
	s, _, ok := c.snapshot()
	if !ok {
		return State{}
	}
	loc := s.round.Location
	return State{
		Active:       true,
		GameID:       s.token,
		Round:        s.round.Number,
		RoundID:      s.round.ID,
		Location:     &loc,
		StreakCode:   s.round.StreakCode,
		GuessesOpen:  s.guessesOpen,
		MultiGuess:   s.multi(),
		Finished:     s.state == stateFinished,
		Phase:        s.state.String(),
		Scale:        s.scale,
		GamesInRound: s.gamesInRound,
	}
}

func (c *Controller) OpenGuesses() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return chatguessr.ErrNoActiveRound
	}
	if c.sess.state == stateFinished {
		return chatguessr.ErrGameFinished
	}
	c.sess.guessesOpen = true
	return nil
}

func (c *Controller) CloseGuesses() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return chatguessr.ErrNoActiveRound
	}
	c.sess.guessesOpen = false
	return nil
}

// Stop leaves the active game. Its rows stay in the store so a later Start
// with the same token resumes it.
func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

// GetRoundResults returns the leaderboard of the current round.
func (c *Controller) GetRoundResults(ctx context.Context) ([]chatguessr.RoundResult, error) {
	s, _, ok := c.snapshot()
	if !ok {
		return nil, chatguessr.ErrNoActiveRound
	}
	return c.store.GetRoundResults(ctx, s.round.ID)
}

// GetGameResults returns the leaderboard of gameID, or of the active game when
// gameID is empty.
func (c *Controller) GetGameResults(ctx context.Context, gameID string) ([]chatguessr.GameResult, error) {
	if gameID == "" {
		s, _, ok := c.snapshot()
		if !ok {
			return nil, chatguessr.ErrNoActiveRound
		}
		gameID = s.token
	}
	if _, err := c.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return c.store.GetGameResults(ctx, gameID)
}

func (c *Controller) publish(typ, gameID string, data any) {
	if c.events == nil {
		return
	}
	c.events.Publish(events.Event{Type: typ, GameID: gameID, Data: data})
}

// resolve looks up the streak code of p. Resolver failures count as absent.
func (c *Controller) resolve(ctx context.Context, p chatguessr.LatLng) *string {
	code, ok, err := c.resolver.Resolve(ctx, p)
	if err != nil {
		c.logger.Warn("streak code lookup failed", "lat", p.Lat, "lng", p.Lng, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &code
}
