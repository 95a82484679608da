package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/chatguessr/internal/game"
)

// StartGameRequest is the request body for POST /api/game/start.
type StartGameRequest struct {
	URL        string `json:"url"`
	MultiGuess bool   `json:"multiGuess"`
}

func handleGameStart(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartGameRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		state, err := g.Start(r.Context(), req.URL, req.MultiGuess)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func handleGameRefresh(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.RefreshSeed(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleGuessesOpen(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.OpenGuesses(); err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, g.State())
	}
}

func handleGuessesClose(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := g.CloseGuesses(); err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, g.State())
	}
}

func handleGameReopen(logger *slog.Logger, g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := g.ReopenRound(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func handleGameStop(g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.Stop()
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGameState(g *game.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, g.State())
	}
}
