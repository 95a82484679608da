package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/game"
)

// GuessRequest is the request body for POST /api/guesses. The chat transport
// sends it for every parsed guess command.
type GuessRequest struct {
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	Color       string  `json:"color"`
	Avatar      string  `json:"avatar"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RandomPlonk bool    `json:"randomPlonk"`
}

func handleGuess(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id := chatguessr.Identity{
			UserID:   strings.TrimSpace(req.UserID),
			Username: strings.TrimSpace(req.Username),
			Color:    req.Color,
			Avatar:   req.Avatar,
		}
		if id.Username == "" {
			id.Username = id.UserID
		}

		res, err := g.HandleUserGuess(r.Context(), id, chatguessr.LatLng{Lat: req.Lat, Lng: req.Lng}, req.RandomPlonk)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		status := http.StatusCreated
		if res.Modified {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

func handleRoundResults(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.GetRoundResults(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		if res == nil {
			res = []chatguessr.RoundResult{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleGameResults(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		if gameID == "current" {
			gameID = ""
		}

		res, err := g.GetGameResults(r.Context(), gameID)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		if res == nil {
			res = []chatguessr.GameResult{}
		}
		writeJSON(w, http.StatusOK, res)
	}
}
