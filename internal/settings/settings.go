// Package settings loads the game rules the streamer picks in the settings UI.
// The UI writes a YAML file; the engine only reads it.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/playperu/chatguessr/internal/geo"
)

type Settings struct {
	// ChannelName is the display name stored for the broadcaster.
	ChannelName string `yaml:"channelName"`

	ScoringMode           geo.ScoringMode    `yaml:"scoringMode"`
	ClosestInWrongCountry bool               `yaml:"closestInWrongCountry"`
	WaterPlonk            geo.WaterPlonkMode `yaml:"waterPlonk"`

	// ChickenMode zeroes the score of the previous winner when a round is
	// replayed.
	ChickenMode bool `yaml:"chickenMode"`
	// ChickenPerfectImmune keeps a 5000 of the previous winner.
	ChickenPerfectImmune bool `yaml:"chickenPerfectImmune"`

	// ExcludeBroadcasterFromStats hides the streamer from best and global stats.
	ExcludeBroadcasterFromStats bool `yaml:"excludeBroadcasterFromStats"`
	GlobalStatsLimit            int  `yaml:"globalStatsLimit"`
}

func Default() Settings {
	return Settings{
		ChannelName:      "Streamer",
		ScoringMode:      geo.ScoringStandard,
		WaterPlonk:       geo.WaterPlonkOff,
		GlobalStatsLimit: 50,
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	switch s.ScoringMode {
	case geo.ScoringStandard, geo.ScoringInverted:
	default:
		return fmt.Errorf("unknown scoring mode %q", s.ScoringMode)
	}
	switch s.WaterPlonk {
	case geo.WaterPlonkOff, geo.WaterPlonkIllegal, geo.WaterPlonkMandatory:
	default:
		return fmt.Errorf("unknown water plonk mode %q", s.WaterPlonk)
	}
	if s.GlobalStatsLimit <= 0 {
		return fmt.Errorf("globalStatsLimit must be positive")
	}
	return nil
}

// Scorer builds the scoring rules described by s.
func (s Settings) Scorer() geo.Scorer {
	return geo.Scorer{
		Mode:                  s.ScoringMode,
		ClosestInWrongCountry: s.ClosestInWrongCountry,
		WaterPlonk:            s.WaterPlonk,
	}
}
