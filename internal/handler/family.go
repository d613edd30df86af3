package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/review"
	"github.com/dukerupert/famlingo/internal/store"
	"github.com/dukerupert/famlingo/internal/websocket"
)

// FamilyMirror copies local family edits to the backend record service.
type FamilyMirror interface {
	SaveFamily(ctx context.Context, name model.Bilingual) (*model.Family, error)
	AddMember(ctx context.Context, m model.Member) (*model.Member, error)
	UpdateMember(ctx context.Context, id string, m model.Member) (*model.Member, error)
	DeleteMember(ctx context.Context, id string) error
}

// FamilyRefresher pulls the family from the backend and merges it locally.
type FamilyRefresher interface {
	RefreshFamily(ctx context.Context) (*model.Family, error)
}

type FamilyHandler struct {
	family    *store.FamilyStore
	mirror    FamilyMirror
	refresher FamilyRefresher
	sm2       *review.SM2
	hub       Broadcaster
	logger    *slog.Logger
	now       func() time.Time
}

func NewFamilyHandler(family *store.FamilyStore, mirror FamilyMirror, refresher FamilyRefresher, sm2 *review.SM2, hub Broadcaster, logger *slog.Logger) *FamilyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FamilyHandler{family: family, mirror: mirror, refresher: refresher, sm2: sm2, hub: hub, logger: logger, now: time.Now}
}

type familyResponse struct {
	Family      *model.Family      `json:"family"`
	CurrentUser string             `json:"currentUser"`
	Stats       *model.FamilyStats `json:"stats"`
}

// mirrorWrite runs a best-effort backend copy. A logged-out device skips it
// silently; other failures are logged and the local edit stands.
func (h *FamilyHandler) mirrorWrite(op string, fn func() error) {
	if h.mirror == nil {
		return
	}
	if err := fn(); err != nil && !errors.Is(err, model.ErrNotAuthenticated) {
		h.logger.Warn("backend mirror failed", "op", op, "error", err)
	}
}

func (h *FamilyHandler) changed(action, id string, data any) {
	broadcast(h.hub, websocket.NewEvent(websocket.EntityFamily, action, id, data))
}

// Get returns the family. With ?refresh=1 the backend copy is merged in first.
func (h *FamilyHandler) Get(w http.ResponseWriter, r *http.Request) {
	var (
		f   *model.Family
		err error
	)
	if r.URL.Query().Get("refresh") == "1" && h.refresher != nil {
		f, err = h.refresher.RefreshFamily(r.Context())
	} else {
		f, err = h.family.Get()
	}
	if err != nil {
		writeError(w, h.logger, "get family", err)
		return
	}

	resp := familyResponse{Family: f}
	if cu, err := h.family.CurrentUser(); err == nil && cu != nil {
		resp.CurrentUser = cu.ID
	}
	if resp.Stats, err = h.family.Stats(); err != nil {
		writeError(w, h.logger, "family stats", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *FamilyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NameEN string `json:"nameEn"`
		NameCN string `json:"nameCn"`
	}
	if !decode(w, r, &req) {
		return
	}
	name := model.Bilingual{EN: strings.TrimSpace(req.NameEN), CN: strings.TrimSpace(req.NameCN)}
	if name.EN == "" && name.CN == "" {
		writeMessage(w, http.StatusBadRequest, "family name is required")
		return
	}

	f, err := h.family.Initialize(name)
	if err != nil {
		writeError(w, h.logger, "initialize family", err)
		return
	}

	// A family saved on the backend keeps the backend's id.
	h.mirrorWrite("save family", func() error {
		remote, err := h.mirror.SaveFamily(r.Context(), name)
		if err != nil || remote == nil || remote.ID == "" || remote.ID == f.ID {
			return err
		}
		f, err = h.family.Apply(func(local *model.Family) (*model.Family, error) {
			local.ID = remote.ID
			return local, nil
		})
		return err
	})

	h.changed("created", f.ID, f)
	writeJSON(w, http.StatusCreated, f)
}

func (h *FamilyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.family.Reset(); err != nil {
		writeError(w, h.logger, "reset family", err)
		return
	}
	h.changed("reset", "", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req store.NewMember
	if !decode(w, r, &req) {
		return
	}
	req.NameEN = strings.TrimSpace(req.NameEN)
	req.NameCN = strings.TrimSpace(req.NameCN)
	if req.NameEN == "" && req.NameCN == "" {
		writeMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.LearningDirection != "" && req.LearningDirection != model.DirectionCNToEN && req.LearningDirection != model.DirectionENToCN {
		writeMessage(w, http.StatusBadRequest, "learningDirection must be cn-to-en or en-to-cn")
		return
	}

	m, err := h.family.AddMember(req)
	if err != nil {
		writeError(w, h.logger, "add member", err)
		return
	}
	h.mirrorWrite("add member", func() error {
		_, err := h.mirror.AddMember(r.Context(), *m)
		return err
	})

	broadcast(h.hub, websocket.NewEvent(websocket.EntityMember, "added", m.ID, m))
	writeJSON(w, http.StatusCreated, m)
}

func (h *FamilyHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.family.DeleteMember(id); err != nil {
		writeError(w, h.logger, "delete member", err)
		return
	}
	h.mirrorWrite("delete member", func() error {
		return h.mirror.DeleteMember(r.Context(), id)
	})

	broadcast(h.hub, websocket.NewEvent(websocket.EntityMember, "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *FamilyHandler) UpdateStats(w http.ResponseWriter, r *http.Request) {
	var req store.StatsUpdate
	if !decode(w, r, &req) {
		return
	}
	if req.Accuracy != nil && (*req.Accuracy < 0 || *req.Accuracy > 100) {
		writeMessage(w, http.StatusBadRequest, "accuracy must be between 0 and 100")
		return
	}

	m, err := h.family.UpdateStats(r.PathValue("id"), req)
	if err != nil {
		writeError(w, h.logger, "update stats", err)
		return
	}
	h.mirrorWrite("update member", func() error {
		_, err := h.mirror.UpdateMember(r.Context(), m.ID, *m)
		return err
	})

	broadcast(h.hub, websocket.NewEvent(websocket.EntityMember, "updated", m.ID, m.Stats))
	writeJSON(w, http.StatusOK, m)
}

func (h *FamilyHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req store.ProgressUpdate
	if !decode(w, r, &req) {
		return
	}
	p, err := h.family.UpdateProgress(r.PathValue("id"), r.PathValue("phrase_id"), req)
	if err != nil {
		writeError(w, h.logger, "update progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Review grades one answer with SM-2 and stores the new schedule.
func (h *FamilyHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quality *int `json:"quality"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Quality == nil || !review.Quality(*req.Quality).Valid() {
		writeMessage(w, http.StatusBadRequest, "quality must be between 0 and 5")
		return
	}

	p, err := h.family.ReviseProgress(r.PathValue("id"), r.PathValue("phrase_id"), func(p *model.Progress) error {
		return h.sm2.Review(p, review.Quality(*req.Quality), h.now())
	})
	if err != nil {
		writeError(w, h.logger, "review phrase", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"progress": p,
		"mastered": h.sm2.Mastered(*p),
	})
}

func (h *FamilyHandler) SwitchUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.family.SwitchUser(id); err != nil {
		writeError(w, h.logger, "switch user", err)
		return
	}
	h.changed("user_switched", id, nil)
	writeJSON(w, http.StatusOK, map[string]string{"currentUser": id})
}

func (h *FamilyHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	byStreak, err := h.family.ByStreak()
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	byAccuracy, err := h.family.ByAccuracy()
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	stats, err := h.family.Stats()
	if err != nil {
		writeError(w, h.logger, "leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"byStreak":   byStreak,
		"byAccuracy": byAccuracy,
		"stats":      stats,
	})
}
