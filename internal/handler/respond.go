// Package handler implements the device agent's local JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/websocket"
)

// Broadcaster receives change events for the UI.
type Broadcaster interface {
	Broadcast(e websocket.Event)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps the shared error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrFamilyFull), errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotAuthenticated), errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(err, model.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrInvalid):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and answers with the mapped status.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op, "error", err)
	} else {
		logger.Debug(op, "status", status, "error", err)
	}
	writeMessage(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v >= 0 {
		return v
	}
	return def
}

func broadcast(b Broadcaster, e websocket.Event) {
	if b != nil {
		b.Broadcast(e)
	}
}

var nowUTC = func() time.Time { return time.Now().UTC() }
