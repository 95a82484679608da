package geo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

func TestRegionResolver(t *testing.T) {
	r, err := NewRegionResolver("")
	if err != nil {
		t.Fatalf("NewRegionResolver: %v", err)
	}

	tests := []struct {
		name   string
		p      chatguessr.LatLng
		want   string
		wantOK bool
	}{
		{"paris", chatguessr.LatLng{Lat: 48.8566, Lng: 2.3522}, "fr", true},
		{"luxembourg beats neighbours", chatguessr.LatLng{Lat: 49.61, Lng: 6.13}, "lu", true},
		{"guam folds into us", chatguessr.LatLng{Lat: 13.44, Lng: 144.79}, "us", true},
		{"atlantic", chatguessr.LatLng{Lat: 30, Lng: -40}, "", false},
		{"south pole", chatguessr.LatLng{Lat: -89, Lng: 0}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := r.Resolve(context.Background(), tt.p)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Resolve(%+v) = (%q, %v), want (%q, %v)", tt.p, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseRegionsRejectsBadBox(t *testing.T) {
	_, err := parseRegions([]byte("regions:\n  - code: xx\n    boxes:\n      - [1, 2, 3]\n"))
	if err == nil {
		t.Fatal("expected error for a box with 3 values")
	}
}

type countingResolver struct {
	calls int
	code  string
	ok    bool
}

func (c *countingResolver) Resolve(context.Context, chatguessr.LatLng) (string, bool, error) {
	c.calls++
	return c.code, c.ok, nil
}

func TestCachedResolver(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	next := &countingResolver{code: "fr", ok: true}
	c := NewCachedResolver(next, rdb, time.Hour, slog.Default())

	p := chatguessr.LatLng{Lat: 48.8566, Lng: 2.3522}
	for i := 0; i < 3; i++ {
		code, ok, err := c.Resolve(ctx, p)
		if err != nil || !ok || code != "fr" {
			t.Fatalf("Resolve #%d = (%q, %v, %v)", i, code, ok, err)
		}
	}
	if next.calls != 1 {
		t.Errorf("wrapped resolver called %d times, want 1", next.calls)
	}

	water := &countingResolver{}
	c = NewCachedResolver(water, rdb, time.Hour, slog.Default())
	q := chatguessr.LatLng{Lat: 30, Lng: -40}
	for i := 0; i < 2; i++ {
		if _, ok, err := c.Resolve(ctx, q); err != nil || ok {
			t.Fatalf("Resolve water #%d: ok=%v err=%v", i, ok, err)
		}
	}
	if water.calls != 1 {
		t.Errorf("absent result not cached: %d calls", water.calls)
	}

	mr.Close()
	if code, ok, err := c.Resolve(ctx, chatguessr.LatLng{Lat: 1, Lng: 1}); err != nil || ok || code != "" {
		t.Errorf("expected fall through when redis is down, got (%q, %v, %v)", code, ok, err)
	}
}
