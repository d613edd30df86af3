package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/syncer"
	"github.com/dukerupert/famlingo/internal/websocket"
)

// SyncService is the orchestrator's sync surface.
type SyncService interface {
	Sync(ctx context.Context) (*syncer.Result, error)
	Status() syncer.Status
	SaveSettings(ctx context.Context, settings model.SyncSettings) error
	ClearSettings() error
	Drain(ctx context.Context) (*syncer.DrainResult, error)
}

// SettingsReader exposes the stored sync settings.
type SettingsReader interface {
	SyncSettings() (*model.SyncSettings, error)
}

type SyncHandler struct {
	sync     SyncService
	settings SettingsReader
	hub      Broadcaster
	logger   *slog.Logger
}

func NewSyncHandler(sync SyncService, settings SettingsReader, hub Broadcaster, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{sync: sync, settings: settings, hub: hub, logger: logger}
}

// Sync runs a cycle now. A device without settings answers 200 with
// skipped=true.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Sync(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"error":  err.Error(),
			"status": h.sync.Status(),
		})
		return
	}
	if !res.Skipped {
		broadcast(h.hub, websocket.NewEvent(websocket.EntityFamily, "synced", "", res))
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.Status())
}

type settingsResponse struct {
	Configured bool   `json:"configured"`
	Owner      string `json:"owner,omitempty"`
	Repo       string `json:"repo,omitempty"`
	FilePath   string `json:"filePath,omitempty"`
	Token      string `json:"token,omitempty"`
}

// maskToken keeps only the last four characters.
func maskToken(t string) string {
	if len(t) <= 4 {
		return strings.Repeat("•", len(t))
	}
	return strings.Repeat("•", 8) + t[len(t)-4:]
}

func (h *SyncHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.SyncSettings()
	if err != nil {
		writeError(w, h.logger, "get sync settings", err)
		return
	}
	if s == nil {
		writeJSON(w, http.StatusOK, settingsResponse{})
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Configured: s.Configured(),
		Owner:      s.Owner,
		Repo:       s.Repo,
		FilePath:   s.Path(),
		Token:      maskToken(s.Token),
	})
}

func (h *SyncHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req model.SyncSettings
	if !decode(w, r, &req) {
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	req.Owner = strings.TrimSpace(req.Owner)
	req.Repo = strings.TrimSpace(req.Repo)
	req.FilePath = strings.TrimSpace(req.FilePath)
	if !req.Configured() {
		writeMessage(w, http.StatusBadRequest, "token, owner and repo are required")
		return
	}

	if err := h.sync.SaveSettings(r.Context(), req); err != nil {
		writeError(w, h.logger, "save sync settings", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sync.Status())
}

func (h *SyncHandler) DeleteSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.ClearSettings(); err != nil {
		writeError(w, h.logger, "clear sync settings", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Drain retries every queued phrase now.
func (h *SyncHandler) Drain(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Drain(r.Context())
	if res == nil {
		writeError(w, h.logger, "drain queue", err)
		return
	}
	if res.Sent > 0 {
		broadcast(h.hub, websocket.NewEvent(websocket.EntityQueue, "drained", "", res))
	}
	resp := map[string]any{"sent": res.Sent, "remaining": res.Remaining}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
