package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/game"
	"github.com/playperu/chatguessr/internal/store"
)

// parseSince reads the since query parameter: an RFC 3339 timestamp, or one
// of day, week, month and year counted back from now. Empty means all time.
func parseSince(r *http.Request, now time.Time) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get("since"))
	switch strings.ToLower(v) {
	case "", "all":
		return time.Time{}, nil
	case "day":
		return now.AddDate(0, 0, -1), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "month":
		return now.AddDate(0, -1, 0), nil
	case "year":
		return now.AddDate(-1, 0, 0), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since %q", v)
	}
	return t, nil
}

func handleUserStats(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := parseSince(r, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		stats, err := st.GetUserStats(r.Context(), chi.URLParam(r, "userID"), store.StatsFilter{Since: since})
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// statsFilter applies the broadcaster and limit settings of the session.
func statsFilter(g *game.Controller, since time.Time) store.StatsFilter {
	cfg := g.Settings()
	return store.StatsFilter{
		Since:              since,
		ExcludeBroadcaster: cfg.ExcludeBroadcasterFromStats,
		Limit:              cfg.GlobalStatsLimit,
	}
}

func handleBestStats(logger *slog.Logger, g *game.Controller, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := parseSince(r, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		best, err := st.GetBestStats(r.Context(), statsFilter(g, since))
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, best)
	}
}

func handleGlobalStats(logger *slog.Logger, g *game.Controller, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := parseSince(r, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		global, err := st.GetGlobalStats(r.Context(), statsFilter(g, since))
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, global)
	}
}

// FlagRequest is the request body for PUT /api/users/{userID}/flag.
type FlagRequest struct {
	Flag string `json:"flag"`
}

func handleUserFlag(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FlagRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		userID := chi.URLParam(r, "userID")
		if err := st.SetUserFlag(r.Context(), userID, strings.TrimSpace(req.Flag)); err != nil {
			writeFailure(w, logger, err)
			return
		}
		u, err := st.GetUser(r.Context(), userID)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, chatguessr.Player{
			ID:       u.ID,
			Username: u.Username,
			Color:    u.Color,
			Avatar:   u.Avatar,
			Flag:     u.Flag,
		})
	}
}

func handleResetUserStats(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.ResetUserStats(r.Context(), chi.URLParam(r, "userID")); err != nil {
			writeFailure(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteStats(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since, err := parseSince(r, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		summary, err := st.DeleteGlobalStats(r.Context(), since)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		logger.Info("global stats deleted",
			"since", since,
			"backup", summary.Backup,
			"guesses", summary.Guesses,
			"rounds", summary.Rounds,
			"games", summary.Games,
		)
		writeJSON(w, http.StatusOK, summary)
	}
}

// BackupResponse is the response for POST /api/backup.
type BackupResponse struct {
	Path string `json:"path"`
}

func handleBackup(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := st.Backup(r.Context())
		if errors.Is(err, store.ErrNoBackupDir) {
			writeError(w, http.StatusConflict, "backup directory is not configured")
			return
		}
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		logger.Info("database backed up", "path", path)
		writeJSON(w, http.StatusOK, BackupResponse{Path: path})
	}
}
