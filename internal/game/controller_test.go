package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/database"
	"github.com/playperu/chatguessr/internal/events"
	"github.com/playperu/chatguessr/internal/geo"
	"github.com/playperu/chatguessr/internal/migrations"
	"github.com/playperu/chatguessr/internal/settings"
	"github.com/playperu/chatguessr/internal/store"
)

const testURL = "https://www.geoguessr.com/game/Tok3n"

// fakeSeeds serves a seed the test advances by hand.
type fakeSeeds struct {
	mu    sync.Mutex
	seed  chatguessr.Seed
	calls int
}

func newFakeSeeds(rounds ...chatguessr.Location) *fakeSeeds {
	return &fakeSeeds{seed: chatguessr.Seed{
		Token:   "Tok3n",
		Map:     "world",
		MapName: "World",
		Bounds: chatguessr.Bounds{
			Min: chatguessr.LatLng{Lat: -85, Lng: -180},
			Max: chatguessr.LatLng{Lat: 85, Lng: 180},
		},
		RoundCount: 5,
		Round:      1,
		State:      "started",
		Rounds:     rounds,
	}}
}

func (f *fakeSeeds) Fetch(_ context.Context, token string) (*chatguessr.Seed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	s := f.seed
	s.Rounds = append([]chatguessr.Location(nil), f.seed.Rounds...)
	s.Player.Guesses = append([]chatguessr.PlayerGuess(nil), f.seed.Player.Guesses...)
	return &s, nil
}

// streamerGuess records the streamer's guess and reveals next, if any.
func (f *fakeSeeds) streamerGuess(lat, lng float64, next *chatguessr.Location) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seed.Player.Guesses = append(f.seed.Player.Guesses, chatguessr.PlayerGuess{Lat: lat, Lng: lng})
	if next != nil {
		f.seed.Rounds = append(f.seed.Rounds, *next)
		f.seed.Round++
	}
}

func (f *fakeSeeds) finish() {
	f.mu.Lock()
	f.seed.State = "finished"
	f.mu.Unlock()
}

func (f *fakeSeeds) moveCurrent(loc chatguessr.Location) {
	f.mu.Lock()
	f.seed.Rounds[len(f.seed.Rounds)-1] = loc
	f.mu.Unlock()
}

// hemisphereResolver resolves east and west of the prime meridian, with
// water above 80 degrees north.
type hemisphereResolver struct{}

func (hemisphereResolver) Resolve(_ context.Context, p chatguessr.LatLng) (string, bool, error) {
	if p.Lat > 80 {
		return "", false, nil
	}
	if p.Lng >= 0 {
		return "east", true, nil
	}
	return "west", true, nil
}

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.types = append(r.types, e.Type)
	r.mu.Unlock()
}

func (r *recorder) has(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == typ {
			return true
		}
	}
	return false
}

var (
	east1 = chatguessr.Location{Lat: 10, Lng: 10}
	east2 = chatguessr.Location{Lat: 10, Lng: 20}
	west3 = chatguessr.Location{Lat: 10, Lng: -20}
)

// gatedResolver parks every lookup west of the prime meridian until release
// is closed, announcing each one on held.
type gatedResolver struct {
	hemisphereResolver
	held    chan struct{}
	release chan struct{}
}

func (g gatedResolver) Resolve(ctx context.Context, p chatguessr.LatLng) (string, bool, error) {
	if p.Lng < 0 {
		g.held <- struct{}{}
		<-g.release
	}
	return g.hemisphereResolver.Resolve(ctx, p)
}

// tickClock advances one second on every read.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewSQLiteStore(db, opts...)
}

func newController(t *testing.T, st *store.SQLiteStore, seeds *fakeSeeds, cfg settings.Settings) (*Controller, *recorder) {
	t.Helper()
	return newControllerWith(t, st, seeds, cfg, hemisphereResolver{})
}

func newControllerWith(t *testing.T, st *store.SQLiteStore, seeds *fakeSeeds, cfg settings.Settings, resolver geo.Resolver) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, seeds, resolver, rec, cfg, 4, logger), rec
}

func viewer(id string) chatguessr.Identity {
	return chatguessr.Identity{UserID: id, Username: "viewer_" + id, Color: "#0f0"}
}

func mustStart(t *testing.T, c *Controller, multi bool) State {
	t.Helper()
	st, err := c.Start(context.Background(), testURL, multi)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return st
}

func mustGuess(t *testing.T, c *Controller, id string, lat, lng float64) chatguessr.GuessResult {
	t.Helper()
	res, err := c.HandleUserGuess(context.Background(), viewer(id), chatguessr.LatLng{Lat: lat, Lng: lng}, false)
	if err != nil {
		t.Fatalf("HandleUserGuess(%s): %v", id, err)
	}
	return res
}

func mustRefresh(t *testing.T, c *Controller, want Outcome) RefreshResult {
	t.Helper()
	res, err := c.RefreshSeed(context.Background())
	if err != nil {
		t.Fatalf("RefreshSeed: %v", err)
	}
	if res.Outcome != want {
		t.Fatalf("RefreshSeed outcome = %s, want %s", res.Outcome, want)
	}
	return res
}

func TestStartResolvesFirstRound(t *testing.T) {
	seeds := newFakeSeeds(east1)
	c, rec := newController(t, newTestStore(t), seeds, settings.Default())

	st := mustStart(t, c, false)
	if !st.Active || st.Round != 1 || !st.GuessesOpen || st.MultiGuess {
		t.Errorf("state = %+v", st)
	}
	if st.StreakCode == nil || *st.StreakCode != "east" {
		t.Errorf("streak code = %v, want east", st.StreakCode)
	}
	if st.Scale < 2530 || st.Scale > 2540 {
		t.Errorf("scale = %f", st.Scale)
	}
	if !rec.has(events.TypeRoundStarted) {
		t.Error("round_started not published")
	}

	// Starting the active game again only refreshes it.
	again := mustStart(t, c, false)
	if again.RoundID != st.RoundID || seeds.calls != 2 {
		t.Errorf("restart created a new round or skipped the refresh: %+v, %d fetches", again, seeds.calls)
	}
}

func TestStartRejectsBadURL(t *testing.T) {
	c, _ := newController(t, newTestStore(t), newFakeSeeds(east1), settings.Default())
	if _, err := c.Start(context.Background(), "https://example.com/maps/x", false); !errors.Is(err, chatguessr.ErrInvalidSeedURL) {
		t.Errorf("Start err = %v, want ErrInvalidSeedURL", err)
	}
}

func TestStreakProgression(t *testing.T) {
	seeds := newFakeSeeds(east1)
	c, rec := newController(t, newTestStore(t), seeds, settings.Default())
	mustStart(t, c, false)

	if res := mustGuess(t, c, "a", 10.1, 10.1); res.Streak != 1 || res.LastStreak != nil || res.Modified {
		t.Fatalf("round 1 guess = %+v, want streak 1", res)
	}

	seeds.streamerGuess(10, 10, &east2)
	res := mustRefresh(t, c, OutcomeRoundScored)
	if res.Round != 1 || len(res.RoundResults) != 2 {
		t.Fatalf("round results = %+v", res)
	}
	if !rec.has(events.TypeRoundResults) {
		t.Error("round_results not published")
	}
	if st := c.State(); st.Round != 2 || !st.GuessesOpen {
		t.Fatalf("state after scoring = %+v, want round 2 open", st)
	}

	if res := mustGuess(t, c, "a", 10.2, 20.2); res.Streak != 2 {
		t.Fatalf("round 2 streak = %d, want 2", res.Streak)
	}

	seeds.streamerGuess(10, 20, &west3)
	mustRefresh(t, c, OutcomeRoundScored)

	res3 := mustGuess(t, c, "a", 10, 5)
	if res3.Streak != 0 || res3.LastStreak == nil || *res3.LastStreak != 2 {
		t.Fatalf("wrong guess = %+v, want streak 0 and last streak 2", res3)
	}
}

func TestSkippedRoundBreaksStreak(t *testing.T) {
	seeds := newFakeSeeds(east1)
	c, _ := newController(t, newTestStore(t), seeds, settings.Default())
	mustStart(t, c, false)

	mustGuess(t, c, "a", 10.1, 10.1)
	seeds.streamerGuess(10, 10, &east2)
	mustRefresh(t, c, OutcomeRoundScored)

	// a sits out round 2.
	mustGuess(t, c, "b", 10.1, 20.1)
	third := chatguessr.Location{Lat: 20, Lng: 30}
	seeds.streamerGuess(10, 20, &third)
	mustRefresh(t, c, OutcomeRoundScored)

	res := mustGuess(t, c, "a", 20.1, 30.1)
	if res.Streak != 1 || res.LastStreak == nil || *res.LastStreak != 1 {
		t.Fatalf("guess after skip = %+v, want a fresh streak of 1 with last streak 1", res)
	}
	if res := mustGuess(t, c, "b", 20.2, 30.2); res.Streak != 2 || res.LastStreak != nil {
		t.Fatalf("continuous guesser = %+v, want streak 2", res)
	}
}

func TestGuessRejections(t *testing.T) {
	seeds := newFakeSeeds(east1)
	st := newTestStore(t)
	c, _ := newController(t, st, seeds, settings.Default())
	ctx := context.Background()

	if _, err := c.HandleUserGuess(ctx, viewer("a"), chatguessr.LatLng{Lat: 1, Lng: 1}, false); !errors.Is(err, chatguessr.ErrNoActiveRound) {
		t.Errorf("guess before start err = %v, want ErrNoActiveRound", err)
	}

	mustStart(t, c, false)
	mustGuess(t, c, "a", 10.1, 10.1)

	tests := []struct {
		name  string
		setup func()
		id    chatguessr.Identity
		pos   chatguessr.LatLng
		want  error
	}{
		{"already guessed", nil, viewer("a"), chatguessr.LatLng{Lat: 11, Lng: 11}, chatguessr.ErrAlreadyGuessed},
		{"invalid location", nil, viewer("b"), chatguessr.LatLng{Lat: 91, Lng: 0}, chatguessr.ErrInvalidLocation},
		{"broadcaster impersonation", nil, chatguessr.Identity{UserID: chatguessr.BroadcasterID, Username: "x"}, chatguessr.LatLng{}, chatguessr.ErrInvalidUser},
		{"banned", func() {
			if err := st.BanUser(ctx, "VIEWER_C"); err != nil {
				t.Fatal(err)
			}
		}, viewer("c"), chatguessr.LatLng{Lat: 1, Lng: 1}, chatguessr.ErrUserBanned},
		{"closed", func() {
			if err := c.CloseGuesses(); err != nil {
				t.Fatal(err)
			}
		}, viewer("d"), chatguessr.LatLng{Lat: 1, Lng: 1}, chatguessr.ErrGuessesClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := c.HandleUserGuess(ctx, tt.id, tt.pos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if err := c.OpenGuesses(); err != nil {
		t.Fatalf("OpenGuesses: %v", err)
	}
	mustGuess(t, c, "d", 1, 1)
}

func TestSubmittedPreviousGuess(t *testing.T) {
	seeds := newFakeSeeds(east1)
	st := newTestStore(t)
	c, _ := newController(t, st, seeds, settings.Default())
	mustStart(t, c, false)

	mustGuess(t, c, "a", 10.1, 10.1)
	seeds.streamerGuess(10, 10, &east2)
	mustRefresh(t, c, OutcomeRoundScored)

	_, err := c.HandleUserGuess(context.Background(), viewer("a"), chatguessr.LatLng{Lat: 10.1, Lng: 10.1}, false)
	if !errors.Is(err, chatguessr.ErrSubmittedPreviousGuess) {
		t.Fatalf("err = %v, want ErrSubmittedPreviousGuess", err)
	}
	guesses, err := st.GetRoundGuesses(context.Background(), c.State().RoundID)
	if err != nil {
		t.Fatal(err)
	}
	if len(guesses) != 0 {
		t.Errorf("rejected guess stored: %+v", guesses)
	}
}

func TestMultiGuessModifyAndFinalize(t *testing.T) {
	seeds := newFakeSeeds(east1)
	st := newTestStore(t)
	c, _ := newController(t, st, seeds, settings.Default())
	mustStart(t, c, true)

	first := mustGuess(t, c, "a", 10, -50)
	if first.Modified || first.Streak != 0 {
		t.Fatalf("first guess = %+v", first)
	}
	second := mustGuess(t, c, "a", 10.1, 10.1)
	if !second.Modified || second.Score <= first.Score {
		t.Fatalf("re-guess = %+v, want modified with a better score than %d", second, first.Score)
	}
	if _, err := c.HandleUserGuess(context.Background(), viewer("a"), chatguessr.LatLng{Lat: 10.1, Lng: 10.1}, false); !errors.Is(err, chatguessr.ErrSubmittedPreviousGuess) {
		t.Errorf("identical re-guess err = %v, want ErrSubmittedPreviousGuess", err)
	}
	mustGuess(t, c, "b", 10, -40)

	roundID := c.State().RoundID
	guesses, _ := st.GetRoundGuesses(context.Background(), roundID)
	if len(guesses) != 2 {
		t.Fatalf("stored %d guesses, want one per user", len(guesses))
	}

	seeds.streamerGuess(10, 10, &east2)
	res := mustRefresh(t, c, OutcomeRoundScored)

	byUser := map[string]chatguessr.RoundResult{}
	for _, r := range res.RoundResults {
		byUser[r.Player.ID] = r
	}
	if byUser["a"].Streak != 1 {
		t.Errorf("a streak after finalize = %d, want 1", byUser["a"].Streak)
	}
	if byUser["b"].Streak != 0 {
		t.Errorf("b streak after finalize = %d, want 0", byUser["b"].Streak)
	}
	if byUser[chatguessr.BroadcasterID].Streak != 1 {
		t.Errorf("streamer streak = %d, want 1", byUser[chatguessr.BroadcasterID].Streak)
	}
}

func TestResumeKeepsCurrentRound(t *testing.T) {
	seeds := newFakeSeeds(east1)
	st := newTestStore(t)
	c, _ := newController(t, st, seeds, settings.Default())
	before := mustStart(t, c, true)
	mustGuess(t, c, "a", 10.1, 10.1)

	// A new process over the same database.
	c2, _ := newController(t, st, seeds, settings.Default())
	after := mustStart(t, c2, false)
	if after.RoundID != before.RoundID {
		t.Fatalf("resumed round = %s, want %s", after.RoundID, before.RoundID)
	}
	if !after.MultiGuess {
		t.Error("resumed game should keep its stored guess mode")
	}
	if res := mustGuess(t, c2, "a", 10.2, 10.2); !res.Modified {
		t.Errorf("guess after resume = %+v, want a modification of the stored guess", res)
	}
}

func TestLocationSkipped(t *testing.T) {
	seeds := newFakeSeeds(east1)
	c, rec := newController(t, newTestStore(t), seeds, settings.Default())
	before := mustStart(t, c, false)
	mustGuess(t, c, "a", 10.1, 10.1)

	mustRefresh(t, c, OutcomeNone)

	seeds.moveCurrent(west3)
	res := mustRefresh(t, c, OutcomeLocationSkipped)
	if res.Round != 1 || len(res.RoundResults) != 0 {
		t.Errorf("skip result = %+v", res)
	}
	after := c.State()
	if after.RoundID == before.RoundID || after.Round != 1 {
		t.Fatalf("state after skip = %+v", after)
	}
	if after.StreakCode == nil || *after.StreakCode != "west" {
		t.Errorf("skip did not re-resolve the streak code: %v", after.StreakCode)
	}
	if !rec.has(events.TypeLocationSkipped) {
		t.Error("location_skipped not published")
	}

	// The replacement round accepts a fresh guess from the same user.
	mustGuess(t, c, "a", 10.1, -20.1)
	if res := mustGuess(t, c, "b", 10.2, -20.2); res.Streak != 1 {
		t.Errorf("guess on replacement round = %+v, want streak 1", res)
	}
}

func TestLocationSkippedKeepsStreak(t *testing.T) {
	seeds := newFakeSeeds(east1)
	c, _ := newController(t, newTestStore(t), seeds, settings.Default())
	mustStart(t, c, false)

	mustGuess(t, c, "a", 10.1, 10.1)
	seeds.streamerGuess(10, 10, &east2)
	mustRefresh(t, c, OutcomeRoundScored)
	if res := mustGuess(t, c, "a", 10.1, 20.1); res.Streak != 2 {
		t.Fatalf("round 2 streak = %d, want 2", res.Streak)
	}

	replacement := chatguessr.Location{Lat: 20, Lng: 30}
	seeds.moveCurrent(replacement)
	mustRefresh(t, c, OutcomeLocationSkipped)

	res := mustGuess(t, c, "a", 20.1, 30.1)
	if res.Streak != 2 || res.LastStreak != nil {
		t.Fatalf("guess on replacement round = %+v, want the streak of 2 kept", res)
	}

	seeds.streamerGuess(20, 30, &west3)
	mustRefresh(t, c, OutcomeRoundScored)
	if res := mustGuess(t, c, "a", 10.1, -20.1); res.Streak != 3 || res.LastStreak != nil {
		t.Fatalf("round after the skip = %+v, want streak 3", res)
	}
}

func TestDuplicateGuessLeavesStreakAlone(t *testing.T) {
	ctx := context.Background()
	seeds := newFakeSeeds(east1)
	st := newTestStore(t)
	gate := gatedResolver{held: make(chan struct{}), release: make(chan struct{})}
	c, _ := newControllerWith(t, st, seeds, settings.Default(), gate)
	mustStart(t, c, false)

	mustGuess(t, c, "a", 10.1, 10.1)
	seeds.streamerGuess(10, 10, &east2)
	mustRefresh(t, c, OutcomeRoundScored)

	// A wrong guess stalls before it is stored while a correct one lands.
	errc := make(chan error, 1)
	go func() {
		_, err := c.HandleUserGuess(ctx, viewer("a"), chatguessr.LatLng{Lat: 10, Lng: -50}, false)
		errc <- err
	}()
	<-gate.held

	if res := mustGuess(t, c, "a", 10.1, 20.1); res.Streak != 2 {
		t.Fatalf("winning guess streak = %d, want 2", res.Streak)
	}
	close(gate.release)
	if err := <-errc; !errors.Is(err, chatguessr.ErrAlreadyGuessed) {
		t.Fatalf("stalled guess err = %v, want ErrAlreadyGuessed", err)
	}

	streak, err := st.GetUserStreak(ctx, "a")
	if err != nil || streak == nil || streak.Count != 2 {
		t.Fatalf("streak after duplicate = (%+v, %v), want 2", streak, err)
	}
	g, err := st.GetUserGuess(ctx, c.State().RoundID, "a")
	if err != nil {
		t.Fatal(err)
	}
	if g.Streak != streak.Count || g.LastStreak != nil {
		t.Errorf("stored guess streak = %d (last %v), want %d", g.Streak, g.LastStreak, streak.Count)
	}
}

func TestMultiGuessReguessRanksBehindEarlierPerfect(t *testing.T) {
	seeds := newFakeSeeds(east1)
	clock := &tickClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	st := newTestStore(t, store.WithClock(clock.now))
	c, _ := newController(t, st, seeds, settings.Default())
	mustStart(t, c, true)

	mustGuess(t, c, "a", 10, 10)
	mustGuess(t, c, "b", 10, 10)
	res := mustGuess(t, c, "a", 10.0001, 10)
	if !res.Modified || res.Score != chatguessr.PerfectScore {
		t.Fatalf("re-guess = %+v, want a modified perfect", res)
	}

	results, err := st.GetRoundResults(context.Background(), c.State().RoundID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Player.ID != "b" || results[1].Player.ID != "a" {
		t.Fatalf("results = %+v, want b ahead of the re-guessing a", results)
	}
}

func TestChickenMode(t *testing.T) {
	cfg := settings.Default()
	cfg.ChickenMode = true
	seeds := newFakeSeeds(east1)
	c, _ := newController(t, newTestStore(t), seeds, cfg)
	mustStart(t, c, false)

	mustGuess(t, c, "a", 10, 10.01)
	mustGuess(t, c, "b", 10, 15)

	st, err := c.ReopenRound(context.Background())
	if err != nil {
		t.Fatalf("ReopenRound: %v", err)
	}
	if st.GamesInRound != 2 || !st.GuessesOpen {
		t.Fatalf("state after reopen = %+v", st)
	}

	if res := mustGuess(t, c, "a", 10, 10.02); res.Score != 0 {
		t.Errorf("previous winner scored %d, want 0", res.Score)
	}
	if res := mustGuess(t, c, "b", 10, 14); res.Score == 0 {
		t.Error("other players keep their score")
	}

	cfg.ChickenPerfectImmune = true
	c.SetSettings(cfg)
	if _, err := c.ReopenRound(context.Background()); err != nil {
		t.Fatalf("ReopenRound: %v", err)
	}
	if res := mustGuess(t, c, "b", 10, 10); res.Score != chatguessr.PerfectScore {
		t.Errorf("immune perfect = %d, want 5000", res.Score)
	}
}

func TestGameFinished(t *testing.T) {
	seeds := newFakeSeeds(east1)
	seeds.seed.RoundCount = 1
	st := newTestStore(t)
	c, rec := newController(t, st, seeds, settings.Default())
	mustStart(t, c, false)
	mustGuess(t, c, "a", 10.1, 10.1)

	seeds.streamerGuess(10, 10, nil)
	seeds.finish()
	res := mustRefresh(t, c, OutcomeRoundScored)
	if !res.GameFinished || len(res.GameResults) != 2 {
		t.Fatalf("refresh = %+v, want a finished game with 2 players", res)
	}
	if !rec.has(events.TypeGameFinished) {
		t.Error("game_finished not published")
	}

	g, err := st.GetGame(context.Background(), "Tok3n")
	if err != nil || g.State != chatguessr.GameStateFinished {
		t.Fatalf("stored game = (%+v, %v), want finished", g, err)
	}
	if _, err := c.HandleUserGuess(context.Background(), viewer("b"), chatguessr.LatLng{Lat: 1, Lng: 1}, false); !errors.Is(err, chatguessr.ErrGameFinished) {
		t.Errorf("guess after finish err = %v, want ErrGameFinished", err)
	}
	if err := c.OpenGuesses(); !errors.Is(err, chatguessr.ErrGameFinished) {
		t.Errorf("OpenGuesses after finish err = %v", err)
	}

	results, err := c.GetGameResults(context.Background(), "")
	if err != nil || len(results) != 2 {
		t.Errorf("GetGameResults = (%d, %v)", len(results), err)
	}

	c.Stop()
	if c.State().Active {
		t.Error("state still active after Stop")
	}
}

func TestRoundScoredWaitsForNextRound(t *testing.T) {
	seeds := newFakeSeeds(east1)
	c, _ := newController(t, newTestStore(t), seeds, settings.Default())
	mustStart(t, c, false)

	seeds.streamerGuess(10, 10, nil)
	mustRefresh(t, c, OutcomeRoundScored)
	if st := c.State(); st.GuessesOpen || st.Phase != "round_scored" {
		t.Fatalf("state = %+v, want closed and waiting", st)
	}
	if _, err := c.HandleUserGuess(context.Background(), viewer("a"), chatguessr.LatLng{Lat: 1, Lng: 1}, false); !errors.Is(err, chatguessr.ErrGuessesClosed) {
		t.Errorf("guess while waiting err = %v, want ErrGuessesClosed", err)
	}

	seeds.mu.Lock()
	seeds.seed.Rounds = append(seeds.seed.Rounds, east2)
	seeds.mu.Unlock()
	mustRefresh(t, c, OutcomeNone)
	if st := c.State(); st.Round != 2 || !st.GuessesOpen || st.Phase != "in_round" {
		t.Fatalf("state = %+v, want round 2 open", st)
	}
}

func TestConcurrentGuesses(t *testing.T) {
	seeds := newFakeSeeds(east1)
	st := newTestStore(t)
	c, _ := newController(t, st, seeds, settings.Default())
	mustStart(t, c, true)

	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*2)
	for i, id := range ids {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pos := chatguessr.LatLng{Lat: 10 + float64(i)/10, Lng: 10 + float64(j)/10}
				if _, err := c.HandleUserGuess(context.Background(), viewer(id), pos, false); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("HandleUserGuess: %v", err)
	}

	guesses, err := st.GetRoundGuesses(context.Background(), c.State().RoundID)
	if err != nil {
		t.Fatal(err)
	}
	if len(guesses) != len(ids) {
		t.Errorf("stored %d guesses, want one per user (%d)", len(guesses), len(ids))
	}
}
