package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/store"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		query   string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"all", time.Time{}, false},
		{"day", now.AddDate(0, 0, -1), false},
		{"WEEK", now.AddDate(0, 0, -7), false},
		{"month", now.AddDate(0, -1, 0), false},
		{"year", now.AddDate(-1, 0, 0), false},
		{"2024-01-01T00:00:00Z", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats/best?since="+tt.query, nil)
			got, err := parseSince(req, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("since = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatsEndpoints(t *testing.T) {
	env := setupServer(t, "")
	env.do(t, http.MethodPost, "/api/game/start", StartGameRequest{URL: testGameURL})
	env.do(t, http.MethodPost, "/api/guesses", GuessRequest{UserID: "u1", Username: "alice", Lat: 48.8566, Lng: 2.3522})

	rec := env.do(t, http.MethodGet, "/api/users/u1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("user stats status = %d, body %s", rec.Code, rec.Body.String())
	}
	stats := decode[chatguessr.UserStats](t, rec)
	if stats.NbGuesses != 1 || stats.Perfects != 1 || stats.CurrentStreak != 1 {
		t.Errorf("user stats = %+v", stats)
	}

	wantError(t, env.do(t, http.MethodGet, "/api/users/ghost/stats", nil), http.StatusNotFound, "notFound")

	rec = env.do(t, http.MethodGet, "/api/users/u1/stats?since=nonsense", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/stats/best?since=week", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("best stats status = %d", rec.Code)
	}
	best := decode[chatguessr.BestStats](t, rec)
	if best.Perfects == nil || best.Perfects.Player.ID != "u1" {
		t.Errorf("best perfects = %+v", best.Perfects)
	}

	rec = env.do(t, http.MethodGet, "/api/stats/global", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("global stats status = %d", rec.Code)
	}
	if global := decode[chatguessr.GlobalStats](t, rec); len(global.Guesses) != 1 {
		t.Errorf("global guesses = %+v", global.Guesses)
	}
}

func TestUserFlag(t *testing.T) {
	env := setupServer(t, "")
	env.do(t, http.MethodPost, "/api/game/start", StartGameRequest{URL: testGameURL})
	env.do(t, http.MethodPost, "/api/guesses", GuessRequest{UserID: "u1", Username: "alice", Lat: 1, Lng: 1})

	rec := env.do(t, http.MethodPut, "/api/users/u1/flag", FlagRequest{Flag: "PE"})
	if rec.Code != http.StatusOK {
		t.Fatalf("flag status = %d, body %s", rec.Code, rec.Body.String())
	}
	if p := decode[chatguessr.Player](t, rec); p.Flag != "pe" {
		t.Errorf("flag = %q, want pe", p.Flag)
	}
}

func TestBans(t *testing.T) {
	env := setupServer(t, "")

	for _, name := range []string{"troll", "Spammer", "troll"} {
		if rec := env.do(t, http.MethodPost, "/api/bans", BanRequest{Username: name}); rec.Code != http.StatusNoContent {
			t.Fatalf("ban %s status = %d", name, rec.Code)
		}
	}
	wantError(t, env.do(t, http.MethodPost, "/api/bans", BanRequest{Username: "  "}), http.StatusBadRequest, "invalidUsername")

	rec := env.do(t, http.MethodGet, "/api/bans", nil)
	got := decode[BansResponse](t, rec).Usernames
	if len(got) != 2 || got[0] != "Spammer" || got[1] != "troll" {
		t.Fatalf("bans = %v, want [Spammer troll]", got)
	}

	if rec := env.do(t, http.MethodDelete, "/api/bans/troll", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("unban status = %d", rec.Code)
	}
	wantError(t, env.do(t, http.MethodDelete, "/api/bans/troll", nil), http.StatusNotFound, "notFound")
}

func TestAdminRoutes(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	env := setupServer(t, string(hash))
	env.do(t, http.MethodPost, "/api/game/start", StartGameRequest{URL: testGameURL})
	env.do(t, http.MethodPost, "/api/guesses", GuessRequest{UserID: "u1", Username: "alice", Lat: 1, Lng: 1})

	tests := []struct {
		name     string
		password string
		status   int
	}{
		{"missing password", "", http.StatusUnauthorized},
		{"wrong password", "guess", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodDelete, "/api/stats", nil, adminPasswordHeader, tt.password)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}

	rec := env.do(t, http.MethodPost, "/api/backup", nil, adminPasswordHeader, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("backup status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(decode[BackupResponse](t, rec).Path); err != nil {
		t.Errorf("backup file: %v", err)
	}

	rec = env.do(t, http.MethodDelete, "/api/stats", nil, adminPasswordHeader, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete stats status = %d, body %s", rec.Code, rec.Body.String())
	}
	if sum := decode[store.DeleteSummary](t, rec); sum.Guesses != 1 {
		t.Errorf("summary = %+v", sum)
	}

	rec = env.do(t, http.MethodDelete, "/api/users/u1/stats", nil, adminPasswordHeader, "s3cret")
	if rec.Code != http.StatusNoContent {
		t.Errorf("reset user stats status = %d", rec.Code)
	}
}

func TestAdminRoutesDisabledWithoutHash(t *testing.T) {
	env := setupServer(t, "")
	rec := env.do(t, http.MethodDelete, "/api/stats", nil, adminPasswordHeader, "anything")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
