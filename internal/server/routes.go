package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("ChatGuessr API", "/openapi.json", "/docs"))

	r.Route("/api", func(r chi.Router) {
		// Game session, driven by the streamer's client.
		r.Post("/game/start", handleGameStart(logger, d.Game))
		r.Post("/game/refresh", handleGameRefresh(logger, d.Game))
		r.Post("/game/guesses/open", handleGuessesOpen(logger, d.Game))
		r.Post("/game/guesses/close", handleGuessesClose(logger, d.Game))
		r.Post("/game/reopen", handleGameReopen(logger, d.Game))
		r.Post("/game/stop", handleGameStop(d.Game))
		r.Get("/game/state", handleGameState(d.Game))

		// Chat guesses.
		r.Post("/guesses", handleGuess(logger, d.Game))

		r.Get("/rounds/current/results", handleRoundResults(logger, d.Game))
		r.Get("/games/{gameID}/results", handleGameResults(logger, d.Game))

		r.Get("/users/{userID}/stats", handleUserStats(logger, d.Store))
		r.Put("/users/{userID}/flag", handleUserFlag(logger, d.Store))
		r.Get("/stats/best", handleBestStats(logger, d.Game, d.Store))
		r.Get("/stats/global", handleGlobalStats(logger, d.Game, d.Store))

		r.Get("/bans", handleListBans(logger, d.Store))
		r.Post("/bans", handleBan(logger, d.Store))
		r.Delete("/bans/{username}", handleUnban(logger, d.Store))

		r.Get("/events", handleEvents(d.Broker))

		// Destructive maintenance.
		r.Group(func(r chi.Router) {
			r.Use(adminAuthMiddleware(d.AdminPasswordHash))
			r.Delete("/stats", handleDeleteStats(logger, d.Store))
			r.Delete("/users/{userID}/stats", handleResetUserStats(logger, d.Store))
			r.Post("/backup", handleBackup(logger, d.Store))
		})
	})
}
