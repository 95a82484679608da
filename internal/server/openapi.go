package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/chatguessr/internal/chatguessr"
	"github.com/playperu/chatguessr/internal/game"
	"github.com/playperu/chatguessr/internal/store"
)

// ErrorResponse is returned for all error responses. Code is set for engine
// errors the chat layer maps to a message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthCheck and HealthResponse document the /healthz payload.
type HealthCheck struct {
	Status string `json:"status"`
}

type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}

type gamePath struct {
	GameID string `path:"gameID"`
}

type userStatsQuery struct {
	UserID string `path:"userID"`
	Since  string `query:"since" description:"RFC 3339 timestamp, or day, week, month, year."`
}

type sinceQuery struct {
	Since string `query:"since" description:"RFC 3339 timestamp, or day, week, month, year."`
}

type flagRequest struct {
	UserID string `path:"userID"`
	FlagRequest
}

type adminSinceQuery struct {
	Password string `header:"X-Admin-Password" required:"true"`
	Since    string `query:"since"`
}

type adminUserQuery struct {
	Password string `header:"X-Admin-Password" required:"true"`
	UserID   string `path:"userID"`
}

type adminHeader struct {
	Password string `header:"X-Admin-Password" required:"true"`
}

type unbanPath struct {
	Username string `path:"username"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "ChatGuessr API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Scoring and persistence engine for chat-driven GeoGuessr games.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /ws/events
	getWSEvents, _ := r.NewOperationContext(http.MethodGet, "/ws/events")
	getWSEvents.SetSummary("Event stream (WebSocket)")
	getWSEvents.SetDescription("Upgrades to a WebSocket connection that receives every engine event as a JSON text frame.")
	getWSEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWSEvents)

	// GET /api/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/events")
	getEvents.SetSummary("Event stream (SSE)")
	getEvents.SetDescription("Server-Sent Events named after the engine event type: guess, round_started, round_results, location_skipped, game_finished.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// POST /api/game/start
	postStart, _ := r.NewOperationContext(http.MethodPost, "/api/game/start")
	postStart.SetSummary("Start game")
	postStart.SetDescription("Starts or resumes the game of a GeoGuessr game URL. Starting the active game refreshes it.")
	postStart.AddReqStructure(StartGameRequest{})
	postStart.AddRespStructure(game.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postStart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadGateway))
	_ = r.AddOperation(postStart)

	// POST /api/game/refresh
	postRefresh, _ := r.NewOperationContext(http.MethodPost, "/api/game/refresh")
	postRefresh.SetSummary("Refresh seed")
	postRefresh.SetDescription("Fetches the seed again and scores the round, follows a skipped location or finishes the game.")
	postRefresh.AddRespStructure(game.RefreshResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postRefresh.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postRefresh.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadGateway))
	_ = r.AddOperation(postRefresh)

	// POST /api/game/guesses/open
	postOpen, _ := r.NewOperationContext(http.MethodPost, "/api/game/guesses/open")
	postOpen.SetSummary("Open guesses")
	postOpen.AddRespStructure(game.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postOpen.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postOpen.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postOpen)

	// POST /api/game/guesses/close
	postClose, _ := r.NewOperationContext(http.MethodPost, "/api/game/guesses/close")
	postClose.SetSummary("Close guesses")
	postClose.AddRespStructure(game.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postClose.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postClose)

	// POST /api/game/reopen
	postReopen, _ := r.NewOperationContext(http.MethodPost, "/api/game/reopen")
	postReopen.SetSummary("Replay round")
	postReopen.SetDescription("Starts another game on the current round. In chicken mode the current winner scores zero on it.")
	postReopen.AddRespStructure(game.State{}, openapi.WithHTTPStatus(http.StatusOK))
	postReopen.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postReopen.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postReopen)

	// POST /api/game/stop
	postStop, _ := r.NewOperationContext(http.MethodPost, "/api/game/stop")
	postStop.SetSummary("Leave game")
	postStop.SetDescription("Leaves the active game. Its data is kept and a later start resumes it.")
	postStop.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	_ = r.AddOperation(postStop)

	// GET /api/game/state
	getState, _ := r.NewOperationContext(http.MethodGet, "/api/game/state")
	getState.SetSummary("Get game state")
	getState.AddRespStructure(game.State{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getState)

	// POST /api/guesses
	postGuess, _ := r.NewOperationContext(http.MethodPost, "/api/guesses")
	postGuess.SetSummary("Submit guess")
	postGuess.SetDescription("Scores a chat guess on the current round. Returns 200 when a multi-guess game replaced an earlier guess.")
	postGuess.AddReqStructure(GuessRequest{})
	postGuess.AddRespStructure(chatguessr.GuessResult{}, openapi.WithHTTPStatus(http.StatusCreated))
	postGuess.AddRespStructure(chatguessr.GuessResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postGuess.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postGuess)

	// GET /api/rounds/current/results
	getRoundResults, _ := r.NewOperationContext(http.MethodGet, "/api/rounds/current/results")
	getRoundResults.SetSummary("Current round results")
	getRoundResults.AddRespStructure([]chatguessr.RoundResult{}, openapi.WithHTTPStatus(http.StatusOK))
	getRoundResults.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRoundResults)

	// GET /api/games/{gameID}/results
	getGameResults, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/results")
	getGameResults.SetSummary("Game results")
	getGameResults.SetDescription("Leaderboard of a game. Use \"current\" for the active game.")
	getGameResults.AddReqStructure(gamePath{})
	getGameResults.AddRespStructure([]chatguessr.GameResult{}, openapi.WithHTTPStatus(http.StatusOK))
	getGameResults.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getGameResults)

	// GET /api/users/{userID}/stats
	getUserStats, _ := r.NewOperationContext(http.MethodGet, "/api/users/{userID}/stats")
	getUserStats.SetSummary("User stats")
	getUserStats.AddReqStructure(userStatsQuery{})
	getUserStats.AddRespStructure(chatguessr.UserStats{}, openapi.WithHTTPStatus(http.StatusOK))
	getUserStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	getUserStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getUserStats)

	// PUT /api/users/{userID}/flag
	putFlag, _ := r.NewOperationContext(http.MethodPut, "/api/users/{userID}/flag")
	putFlag.SetSummary("Set user flag")
	putFlag.SetDescription("Sets the flag shown next to the user. An empty flag clears it.")
	putFlag.AddReqStructure(flagRequest{})
	putFlag.AddRespStructure(chatguessr.Player{}, openapi.WithHTTPStatus(http.StatusOK))
	putFlag.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(putFlag)

	// DELETE /api/users/{userID}/stats
	deleteUserStats, _ := r.NewOperationContext(http.MethodDelete, "/api/users/{userID}/stats")
	deleteUserStats.SetSummary("Reset user stats")
	deleteUserStats.SetDescription("Starts the user's stats over from now. Requires the admin password.")
	deleteUserStats.AddReqStructure(adminUserQuery{})
	deleteUserStats.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteUserStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	deleteUserStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteUserStats)

	// GET /api/stats/best
	getBest, _ := r.NewOperationContext(http.MethodGet, "/api/stats/best")
	getBest.SetSummary("Best stats")
	getBest.SetDescription("Top player of every stat category.")
	getBest.AddReqStructure(sinceQuery{})
	getBest.AddRespStructure(chatguessr.BestStats{}, openapi.WithHTTPStatus(http.StatusOK))
	getBest.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getBest)

	// GET /api/stats/global
	getGlobal, _ := r.NewOperationContext(http.MethodGet, "/api/stats/global")
	getGlobal.SetSummary("Global stats")
	getGlobal.SetDescription("Leaderboards of every stat category, limited by the globalStatsLimit setting.")
	getGlobal.AddReqStructure(sinceQuery{})
	getGlobal.AddRespStructure(chatguessr.GlobalStats{}, openapi.WithHTTPStatus(http.StatusOK))
	getGlobal.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getGlobal)

	// DELETE /api/stats
	deleteStats, _ := r.NewOperationContext(http.MethodDelete, "/api/stats")
	deleteStats.SetSummary("Delete global stats")
	deleteStats.SetDescription("Deletes guesses and streaks recorded since the given time after backing up the database. Requires the admin password.")
	deleteStats.AddReqStructure(adminSinceQuery{})
	deleteStats.AddRespStructure(store.DeleteSummary{}, openapi.WithHTTPStatus(http.StatusOK))
	deleteStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	deleteStats.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	_ = r.AddOperation(deleteStats)

	// POST /api/backup
	postBackup, _ := r.NewOperationContext(http.MethodPost, "/api/backup")
	postBackup.SetSummary("Back up database")
	postBackup.AddReqStructure(adminHeader{})
	postBackup.AddRespStructure(BackupResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postBackup.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postBackup.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(postBackup)

	// GET /api/bans
	getBans, _ := r.NewOperationContext(http.MethodGet, "/api/bans")
	getBans.SetSummary("List banned users")
	getBans.AddRespStructure(BansResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getBans)

	// POST /api/bans
	postBan, _ := r.NewOperationContext(http.MethodPost, "/api/bans")
	postBan.SetSummary("Ban user")
	postBan.SetDescription("Guesses of banned users are rejected. Banning twice is a no-op.")
	postBan.AddReqStructure(BanRequest{})
	postBan.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	postBan.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postBan)

	// DELETE /api/bans/{username}
	deleteBan, _ := r.NewOperationContext(http.MethodDelete, "/api/bans/{username}")
	deleteBan.SetSummary("Unban user")
	deleteBan.AddReqStructure(unbanPath{})
	deleteBan.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteBan.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteBan)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	doc := newOpenAPISpec()
	data, _ := json.MarshalIndent(doc, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
