// Package chatguessr defines the core domain types shared by the store,
// the game controller and the HTTP surface.
// It has no external dependencies.
package chatguessr

import (
	"math"
	"time"
)

// BroadcasterID is the reserved user id of the streamer playing the seed.
const BroadcasterID = "BROADCASTER"

// PerfectScore is the maximum score of a single guess.
const PerfectScore = 5000

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is finite and inside the WGS84 range.
func (p LatLng) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	PanoID  string  `json:"panoId,omitempty"`
	Heading float64 `json:"heading"`
	Pitch   float64 `json:"pitch"`
	Zoom    float64 `json:"zoom"`
}

func (l Location) LatLng() LatLng { return LatLng{Lat: l.Lat, Lng: l.Lng} }

type Bounds struct {
	Min LatLng `json:"min"`
	Max LatLng `json:"max"`
}

type GameState string

const (
	GameStateStarted  GameState = "started"
	GameStateFinished GameState = "finished"
)

type GuessMode string

const (
	GuessModeSingle GuessMode = "single"
	GuessModeMulti  GuessMode = "multi"
)

type Game struct {
	ID             string
	MapID          string
	MapName        string
	Bounds         Bounds
	ForbidMoving   bool
	ForbidZooming  bool
	ForbidRotating bool
	TimeLimit      int
	Mode           GuessMode
	State          GameState
	CreatedAt      time.Time
}

type Round struct {
	ID         string
	GameID     string
	Number     int
	Location   Location
	StreakCode *string
	CreatedAt  time.Time
}

type User struct {
	ID              string
	Username        string
	Color           string
	Avatar          string
	Flag            string
	CurrentStreakID *int64
	ResetAt         time.Time
}

type Guess struct {
	ID            string
	RoundID       string
	UserID        string
	Location      LatLng
	StreakCode    *string
	Streak        int
	LastStreak    *int
	IsRandomPlonk bool
	Distance      float64
	Score         int
	CreatedAt     time.Time
}

type Streak struct {
	ID          int64
	UserID      string
	LastRoundID string
	Count       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Player is the public view of a user attached to results.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
	Avatar   string `json:"avatar,omitempty"`
	Flag     string `json:"flag,omitempty"`
}

// Identity is what the chat transport knows about a guesser.
type Identity struct {
	UserID   string
	Username string
	Color    string
	Avatar   string
}

// GuessResult is returned for every accepted guess.
type GuessResult struct {
	Player     Player  `json:"player"`
	Position   LatLng  `json:"position"`
	Streak     int     `json:"streak"`
	LastStreak *int    `json:"lastStreak"`
	Distance   float64 `json:"distance"`
	Score      int     `json:"score"`
	Modified   bool    `json:"modified"`
}

// RoundResult is one row of a round leaderboard.
type RoundResult struct {
	Player        Player  `json:"player"`
	Position      LatLng  `json:"position"`
	StreakCode    *string `json:"streakCode"`
	Streak        int     `json:"streak"`
	LastStreak    *int    `json:"lastStreak"`
	Distance      float64 `json:"distance"`
	Score         int     `json:"score"`
	Time          float64 `json:"time"`
	IsRandomPlonk bool    `json:"isRandomPlonk"`
}

// GameResult is one row of a game leaderboard. Per-round slices are indexed by
// round number minus one and hold nil where the player did not guess.
type GameResult struct {
	Player        Player     `json:"player"`
	Guesses       []*LatLng  `json:"guesses"`
	Scores        []*int     `json:"scores"`
	Distances     []*float64 `json:"distances"`
	Streak        int        `json:"streak"`
	TotalScore    int        `json:"totalScore"`
	TotalDistance float64    `json:"totalDistance"`
}

type UserStats struct {
	Player          Player  `json:"player"`
	CurrentStreak   int     `json:"currentStreak"`
	BestStreak      int     `json:"bestStreak"`
	CorrectGuesses  int     `json:"correctGuesses"`
	NbGuesses       int     `json:"nbGuesses"`
	Perfects        int     `json:"perfects"`
	MeanScore       float64 `json:"meanScore"`
	Victories       int     `json:"victories"`
	BestRandomPlonk *int    `json:"bestRandomPlonk"`
}

// StatEntry is a single leaderboard row of a global stat category.
type StatEntry struct {
	Player Player  `json:"player"`
	Value  float64 `json:"value"`
}

type BestStats struct {
	Streak      *StatEntry `json:"streak"`
	Victories   *StatEntry `json:"victories"`
	Perfects    *StatEntry `json:"perfects"`
	MeanScore   *StatEntry `json:"meanScore"`
	RandomPlonk *StatEntry `json:"randomPlonk"`
}

type GlobalStats struct {
	Streaks    []StatEntry `json:"streaks"`
	Victories  []StatEntry `json:"victories"`
	MeanScores []StatEntry `json:"meanScores"`
	Perfects   []StatEntry `json:"perfects"`
	Guesses    []StatEntry `json:"guesses"`
}
