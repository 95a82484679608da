package geo

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

// Resolver maps a coordinate to a streak code. ok is false for water, polar
// and disputed areas the resolver does not cover.
type Resolver interface {
	Resolve(ctx context.Context, p chatguessr.LatLng) (code string, ok bool, err error)
}

//go:embed regions.yaml
var defaultRegions []byte

type regionFile struct {
	Aliases map[string]string `yaml:"aliases"`
	Regions []struct {
		Code     string      `yaml:"code"`
		Priority int         `yaml:"priority"`
		Boxes    [][]float64 `yaml:"boxes"`
	} `yaml:"regions"`
}

type regionBox struct {
	code           string
	minLat, maxLat float64
	minLng, maxLng float64
	priority       int
	area           float64
}

func (b regionBox) contains(p chatguessr.LatLng) bool {
	return p.Lat >= b.minLat && p.Lat <= b.maxLat && p.Lng >= b.minLng && p.Lng <= b.maxLng
}

// RegionResolver is an offline resolver over coarse rectangles.
type RegionResolver struct {
	boxes   []regionBox
	aliases map[string]string
}

// NewRegionResolver loads the region table at path, or the embedded default
// table when path is empty.
func NewRegionResolver(path string) (*RegionResolver, error) {
	data := defaultRegions
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading regions file: %w", err)
		}
		data = b
	}
	return parseRegions(data)
}

func parseRegions(data []byte) (*RegionResolver, error) {
	var f regionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing regions: %w", err)
	}

	r := &RegionResolver{aliases: make(map[string]string, len(f.Aliases))}
	for from, to := range f.Aliases {
		r.aliases[normalizeCode(from)] = normalizeCode(to)
	}
	for _, reg := range f.Regions {
		code := normalizeCode(reg.Code)
		if code == "" {
			return nil, fmt.Errorf("region without code")
		}
		for i, b := range reg.Boxes {
			if len(b) != 4 {
				return nil, fmt.Errorf("region %q box %d: want 4 values, got %d", code, i, len(b))
			}
			box := regionBox{
				code:     code,
				minLat:   b[0],
				maxLat:   b[1],
				minLng:   b[2],
				maxLng:   b[3],
				priority: reg.Priority,
			}
			if box.minLat > box.maxLat || box.minLng > box.maxLng {
				return nil, fmt.Errorf("region %q box %d: min greater than max", code, i)
			}
			box.area = (box.maxLat - box.minLat) * (box.maxLng - box.minLng)
			r.boxes = append(r.boxes, box)
		}
	}
	return r, nil
}

func (r *RegionResolver) Resolve(_ context.Context, p chatguessr.LatLng) (string, bool, error) {
	var best *regionBox
	for i := range r.boxes {
		b := &r.boxes[i]
		if !b.contains(p) {
			continue
		}
		if best == nil || b.area < best.area || (b.area == best.area && b.priority > best.priority) {
			best = b
		}
	}
	if best == nil {
		return "", false, nil
	}
	return r.StreakCode(best.code), true, nil
}

// StreakCode normalizes a region code, folding territories into the code
// they share a streak with.
func (r *RegionResolver) StreakCode(code string) string {
	code = normalizeCode(code)
	if to, ok := r.aliases[code]; ok {
		return to
	}
	return code
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
