package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/chatguessr/internal/store"
)

// BanRequest is the request body for POST /api/bans.
type BanRequest struct {
	Username string `json:"username"`
}

// BansResponse is the response for GET /api/bans.
type BansResponse struct {
	Usernames []string `json:"usernames"`
}

func handleListBans(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := st.GetBannedUsers(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, BansResponse{Usernames: names})
	}
}

func handleBan(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BanRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := st.BanUser(r.Context(), req.Username); err != nil {
			writeFailure(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUnban(logger *slog.Logger, st *store.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.UnbanUser(r.Context(), chi.URLParam(r, "username")); err != nil {
			writeFailure(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
