package chatguessr

// Seed is the game description served by GeoGuessr for a game token.
type Seed struct {
	Token          string     `json:"token"`
	Map            string     `json:"map"`
	MapName        string     `json:"mapName"`
	Bounds         Bounds     `json:"bounds"`
	ForbidMoving   bool       `json:"forbidMoving"`
	ForbidZooming  bool       `json:"forbidZooming"`
	ForbidRotating bool       `json:"forbidRotating"`
	TimeLimit      int        `json:"timeLimit"`
	Round          int        `json:"round"`
	RoundCount     int        `json:"roundCount"`
	State          string     `json:"state"`
	Rounds         []Location `json:"rounds"`
	Player         SeedPlayer `json:"player"`
}

type SeedPlayer struct {
	Guesses []PlayerGuess `json:"guesses"`
}

// PlayerGuess is one guess of the player who owns the seed.
type PlayerGuess struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	TimedOut bool    `json:"timedOut"`
	Distance float64 `json:"distanceInMeters"`
	Score    int     `json:"roundScoreInPoints"`
}

func (s *Seed) Finished() bool { return s.State == string(GameStateFinished) }

// CurrentRound returns the 1-based number and location of the round the
// player is on: the first revealed round they have not guessed yet, or the
// last revealed round once every revealed round has a guess.
func (s *Seed) CurrentRound() (int, Location, bool) {
	if len(s.Rounds) == 0 {
		return 0, Location{}, false
	}
	i := min(len(s.Player.Guesses), len(s.Rounds)-1)
	return i + 1, s.Rounds[i], true
}
