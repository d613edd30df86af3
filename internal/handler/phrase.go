package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/famlingo/internal/catalog"
	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/review"
	"github.com/dukerupert/famlingo/internal/store"
	"github.com/dukerupert/famlingo/internal/syncer"
	"github.com/dukerupert/famlingo/internal/websocket"
)

// PhraseService is the orchestrator's phrase surface.
type PhraseService interface {
	LoadPhrases(ctx context.Context, memberID string) ([]model.Phrase, error)
	AddPhrase(ctx context.Context, memberID string, p model.Phrase) (*syncer.AddResult, error)
	DeletePhrase(ctx context.Context, memberID, phraseID string) error
}

type PhraseHandler struct {
	phrases PhraseService
	library *catalog.Library
	family  *store.FamilyStore
	sm2     *review.SM2
	hub     Broadcaster
	logger  *slog.Logger
}

func NewPhraseHandler(phrases PhraseService, library *catalog.Library, family *store.FamilyStore, sm2 *review.SM2, hub Broadcaster, logger *slog.Logger) *PhraseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhraseHandler{phrases: phrases, library: library, family: family, sm2: sm2, hub: hub, logger: logger}
}

func (h *PhraseHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.phrases.LoadPhrases(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "list phrases", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Add saves a custom phrase. 201 means it is saved (synced when the device
// is logged in), 202 means it is queued for the next drain.
func (h *PhraseHandler) Add(w http.ResponseWriter, r *http.Request) {
	var p model.Phrase
	if !decode(w, r, &p) {
		return
	}
	p.EN = strings.TrimSpace(p.EN)
	p.CN = strings.TrimSpace(p.CN)
	if p.EN == "" || p.CN == "" {
		writeMessage(w, http.StatusBadRequest, "en and cn are required")
		return
	}

	memberID := r.PathValue("id")
	res, err := h.phrases.AddPhrase(r.Context(), memberID, p)
	if err != nil {
		writeError(w, h.logger, "add phrase", err)
		return
	}

	broadcast(h.hub, websocket.NewEvent(websocket.EntityPhrase, "added", res.Phrase.ID, res.Phrase))
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *PhraseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("phrase_id")
	err := h.phrases.DeletePhrase(r.Context(), r.PathValue("id"), id)
	// The local copy is gone either way.
	broadcast(h.hub, websocket.NewEvent(websocket.EntityPhrase, "deleted", id, nil))
	if err != nil {
		writeError(w, h.logger, "delete phrase", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Catalog returns the member's phrase library, optionally one ?category.
func (h *PhraseHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	v, err := h.library.ForMember(r.PathValue("id"), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, h.logger, "catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *PhraseHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var o model.PhraseOverride
	if !decode(w, r, &o) {
		return
	}
	if o.EN == nil && o.CN == nil && o.Pinyin == nil && o.Context == nil {
		writeMessage(w, http.StatusBadRequest, "override changes nothing")
		return
	}
	o.MemberID = r.PathValue("id")
	o.PhraseID = r.PathValue("phrase_id")

	saved, err := h.library.Override(o)
	if err != nil {
		writeError(w, h.logger, "set override", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *PhraseHandler) ResetOverride(w http.ResponseWriter, r *http.Request) {
	if err := h.library.ResetOverride(r.PathValue("id"), r.PathValue("phrase_id")); err != nil {
		writeError(w, h.logger, "reset override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Due lists the phrase ids the member should practice now, catalog and
// custom phrases together. ?limit caps the list (default 20, 0 for all).
func (h *PhraseHandler) Due(w http.ResponseWriter, r *http.Request) {
	memberID := r.PathValue("id")
	f, err := h.family.Get()
	if err != nil {
		writeError(w, h.logger, "due phrases", err)
		return
	}
	m := f.Member(memberID)
	if m == nil {
		writeMessage(w, http.StatusNotFound, "member not found")
		return
	}

	v, err := h.library.ForMember(memberID, "")
	if err != nil {
		writeError(w, h.logger, "due phrases", err)
		return
	}
	ids := make([]string, 0, len(v.Custom)+len(v.Phrases))
	for _, p := range v.Custom {
		ids = append(ids, p.ID)
	}
	for _, p := range v.Phrases {
		ids = append(ids, p.ID)
	}

	due := h.sm2.Due(m.Progress, ids, nowUTC(), queryInt(r, "limit", 20))
	writeJSON(w, http.StatusOK, map[string]any{"due": due, "total": len(ids)})
}
