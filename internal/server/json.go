package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/chatguessr/internal/chatguessr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeFailure maps an engine error to its HTTP status. Errors without a Kind
// are logged and reported as internal.
func writeFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusOf(chatguessr.KindOf(err))
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	var e *chatguessr.Error
	if errors.As(err, &e) {
		resp.Error = e.Message
		resp.Code = e.Code
	} else if errors.Is(err, chatguessr.ErrNotFound) {
		resp.Error = "not found"
		resp.Code = "notFound"
	}
	if status == http.StatusBadGateway {
		logger.Warn("upstream failure", "error", err)
	}
	writeJSON(w, status, resp)
}

func statusOf(k chatguessr.Kind) int {
	switch k {
	case chatguessr.KindValidation:
		return http.StatusBadRequest
	case chatguessr.KindConflict:
		return http.StatusConflict
	case chatguessr.KindNotFound:
		return http.StatusNotFound
	case chatguessr.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
