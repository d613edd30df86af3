package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/store"
	"github.com/dukerupert/famlingo/internal/tutor"
)

type TutorHandler struct {
	client *tutor.Client
	state  KeyValue
	logger *slog.Logger
}

func NewTutorHandler(client *tutor.Client, state KeyValue, logger *slog.Logger) *TutorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TutorHandler{client: client, state: state, logger: logger}
}

func direction(s string) model.LearningDirection {
	if model.LearningDirection(s) == model.DirectionCNToEN {
		return model.DirectionCNToEN
	}
	return model.DirectionENToCN
}

func (h *TutorHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		Direction string `json:"direction"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Text = strings.TrimSpace(req.Text); req.Text == "" {
		writeMessage(w, http.StatusBadRequest, "text is required")
		return
	}
	out, err := h.client.Translate(r.Context(), req.Text, direction(req.Direction))
	if err != nil {
		writeError(w, h.logger, "translate", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TutorHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text     string `json:"text"`
		Attempt  string `json:"attempt"`
		Expected string `json:"expected"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Text == "" || req.Attempt == "" {
		writeMessage(w, http.StatusBadRequest, "text and attempt are required")
		return
	}
	out, err := h.client.ScorePronunciation(r.Context(), req.Text, req.Attempt, req.Expected)
	if err != nil {
		writeError(w, h.logger, "score pronunciation", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TutorHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source      string `json:"source"`
		Translation string `json:"translation"`
		Direction   string `json:"direction"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Source == "" || req.Translation == "" {
		writeMessage(w, http.StatusBadRequest, "source and translation are required")
		return
	}
	out, err := h.client.ValidateTranslation(r.Context(), req.Source, req.Translation, direction(req.Direction))
	if err != nil {
		writeError(w, h.logger, "validate translation", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TutorHandler) Card(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EN string `json:"en"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.EN = strings.TrimSpace(req.EN); req.EN == "" {
		writeMessage(w, http.StatusBadRequest, "en is required")
		return
	}
	out, err := h.client.CardFromEnglish(r.Context(), req.EN)
	if err != nil {
		writeError(w, h.logger, "card from english", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TutorHandler) Context(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phrase string `json:"phrase"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Phrase = strings.TrimSpace(req.Phrase); req.Phrase == "" {
		writeMessage(w, http.StatusBadRequest, "phrase is required")
		return
	}
	out, err := h.client.GenerateContext(r.Context(), req.Phrase)
	if err != nil {
		writeError(w, h.logger, "generate context", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TutorHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"configured": h.client.Configured()})
}

// PutSettings stores the API key. An empty key turns the tutor off.
func (h *TutorHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"apiKey"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.state.Set(store.KeyDeepSeekAPIKey, strings.TrimSpace(req.APIKey)); err != nil {
		writeError(w, h.logger, "save tutor key", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": h.client.Configured()})
}
