package handler

import (
	"errors"
	"log/slog"
	"net/http"

	appI18n "github.com/pavelanni/ieltsprep/internal/i18n"
	"github.com/pavelanni/ieltsprep/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// errorKinds maps error kinds to status codes and message ids, first match wins.
var errorKinds = []struct {
	err    error
	status int
	msgID  string
}{
	{model.ErrValidation, http.StatusBadRequest, "ErrValidation"},
	{model.ErrNoUser, http.StatusUnauthorized, "ErrNoUser"},
	{model.ErrNotFound, http.StatusNotFound, "ErrNotFound"},
	{model.ErrInvalidState, http.StatusConflict, "ErrInvalidState"},
	{model.ErrExtractionFailed, http.StatusUnprocessableEntity, "ErrExtractionFailed"},
	{model.ErrGradingFailed, http.StatusBadGateway, "ErrGradingFailed"},
	{model.ErrConversationFailed, http.StatusBadGateway, "ErrConversationFailed"},
	{model.ErrFatalStorage, http.StatusInternalServerError, "ErrFatalStorage"},
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msgID := http.StatusInternalServerError, "ErrInternal"
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			status, msgID = k.status, k.msgID
			break
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	msg := appI18n.T(r.Context(), msgID)
	if msgID == "ErrValidation" {
		msg = appI18n.Td(r.Context(), msgID, map[string]any{"Detail": err.Error()})
	}
	writeJSON(w, status, errorResponse{Error: msg, Kind: msgID})
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	writeJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID), Kind: msgID})
}
