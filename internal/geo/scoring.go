package geo

import (
	"math"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// perfectRadius is the distance under which a guess always scores 5000.
const perfectRadius = 25.0

const decayBase = 0.99866017

// maxDistance is half the earth's circumference in meters, the farthest a
// guess can be from its target.
const maxDistance = 20_015_086.0

type ScoringMode string

const (
	ScoringStandard ScoringMode = "standard"
	ScoringInverted ScoringMode = "inverted"
)

type WaterPlonkMode string

const (
	WaterPlonkOff       WaterPlonkMode = "off"
	WaterPlonkIllegal   WaterPlonkMode = "illegal"
	WaterPlonkMandatory WaterPlonkMode = "mandatory"
)

// CalculateScore converts a distance in meters into points for a map of the
// given scale.
func CalculateScore(distance, scale float64) int {
	if distance < perfectRadius {
		return chatguessr.PerfectScore
	}
	score := math.Round(chatguessr.PerfectScore * math.Pow(decayBase, distance/scale))
	return clampScore(score)
}

// invertedTable maps a fraction of maxDistance to points. Points are linearly
// interpolated between steps.
var invertedTable = []struct {
	fraction float64
	points   float64
}{
	{0, 0},
	{0.25, 500},
	{0.5, 1500},
	{0.75, 3000},
	{0.9, 4500},
	{0.99, 5000},
}

// CalculateInvertedScore rewards being far away from the target.
func CalculateInvertedScore(distance float64) int {
	f := distance / maxDistance
	if f <= 0 {
		return 0
	}
	for i := 1; i < len(invertedTable); i++ {
		lo, hi := invertedTable[i-1], invertedTable[i]
		if f <= hi.fraction {
			t := (f - lo.fraction) / (hi.fraction - lo.fraction)
			return clampScore(math.Round(lo.points + t*(hi.points-lo.points)))
		}
	}
	return chatguessr.PerfectScore
}

func clampScore(v float64) int {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > chatguessr.PerfectScore {
		return chatguessr.PerfectScore
	}
	return int(v)
}

// Scorer applies the configured scoring rules to a single guess.
type Scorer struct {
	Mode                  ScoringMode
	ClosestInWrongCountry bool
	WaterPlonk            WaterPlonkMode
}

type ScoreInput struct {
	Distance float64
	Scale    float64
	// OnLand is true when the guess resolved to a streak code.
	OnLand bool
	// Correct is true when the guess resolved to the round's streak code.
	Correct bool
}

func (s Scorer) Score(in ScoreInput) int {
	switch s.WaterPlonk {
	case WaterPlonkIllegal:
		if !in.OnLand {
			return 0
		}
	case WaterPlonkMandatory:
		if in.OnLand {
			return 0
		}
	}
	if s.ClosestInWrongCountry && in.Correct {
		return 0
	}
	if s.Mode == ScoringInverted {
		return CalculateInvertedScore(in.Distance)
	}
	return CalculateScore(in.Distance, in.Scale)
}
