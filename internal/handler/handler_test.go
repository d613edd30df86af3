package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dukerupert/famlingo/internal/catalog"
	"github.com/dukerupert/famlingo/internal/database"
	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/review"
	"github.com/dukerupert/famlingo/internal/store"
	"github.com/dukerupert/famlingo/internal/syncer"
	"github.com/dukerupert/famlingo/internal/websocket"
)

type testEnv struct {
	state   *store.StateStore
	family  *store.FamilyStore
	phrases *store.PhraseStore
	library *catalog.Library
	sm2     *review.SM2
	hub     *recordingHub
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	state := store.NewStateStore(db, nil)
	phrases := store.NewPhraseStore(db)
	return &testEnv{
		state:   state,
		family:  store.NewFamilyStore(state, nil),
		phrases: phrases,
		library: catalog.NewLibrary(catalog.Default(), phrases),
		sm2:     review.NewSM2(review.Config{}),
		hub:     &recordingHub{},
	}
}

type recordingHub struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (h *recordingHub) Broadcast(e websocket.Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *recordingHub) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.Entity+":"+e.Action)
	}
	return out
}

// serve runs a request through a mux so path values resolve.
func serve(pattern string, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)

	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		json.NewEncoder(&buf).Encode(v)
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrMemberNotFound, http.StatusNotFound},
		{model.ErrFamilyFull, http.StatusConflict},
		{model.ErrConflict, http.StatusConflict},
		{model.ErrNotAuthenticated, http.StatusUnauthorized},
		{model.ErrUnauthorized, http.StatusUnauthorized},
		{model.ErrNotConfigured, http.StatusPreconditionFailed},
		{model.ErrTransient, http.StatusServiceUnavailable},
		{model.ErrInvalid, http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := errors.Join(errors.New("context"), tt.err)
		if got := statusFor(wrapped); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// mockPhrases stands in for the sync orchestrator's phrase surface.
type mockPhrases struct {
	queued    bool
	localOnly bool
	addErr  error
	delErr  error
	added   []model.Phrase
	deleted []string
}

func (m *mockPhrases) LoadPhrases(ctx context.Context, memberID string) ([]model.Phrase, error) {
	return m.added, nil
}

func (m *mockPhrases) AddPhrase(ctx context.Context, memberID string, p model.Phrase) (*syncer.AddResult, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	p.ID = "custom-1"
	m.added = append(m.added, p)
	return &syncer.AddResult{Phrase: p, Synced: !m.queued && !m.localOnly, Queued: m.queued}, nil
}

func (m *mockPhrases) DeletePhrase(ctx context.Context, memberID, phraseID string) error {
	m.deleted = append(m.deleted, phraseID)
	return m.delErr
}

func TestPhraseAddStatus(t *testing.T) {
	env := setupTestEnv(t)

	for _, tt := range []struct {
		queued bool
		want   int
	}{
		{false, http.StatusCreated},
		{true, http.StatusAccepted},
	} {
		svc := &mockPhrases{queued: tt.queued}
		h := NewPhraseHandler(svc, env.library, env.family, env.sm2, env.hub, nil)
		rec := serve("POST /api/members/{id}/phrases", h.Add, "POST", "/api/members/m1/phrases",
			map[string]string{"en": " Thank you ", "cn": "谢谢"})
		if rec.Code != tt.want {
			t.Errorf("queued=%v: status = %d, want %d", tt.queued, rec.Code, tt.want)
		}
		if len(svc.added) != 1 || svc.added[0].EN != "Thank you" {
			t.Errorf("added = %+v", svc.added)
		}
	}
}

func TestPhraseAddLoggedOutKeepsLocalCopy(t *testing.T) {
	env := setupTestEnv(t)
	svc := &mockPhrases{localOnly: true}
	h := NewPhraseHandler(svc, env.library, env.family, env.sm2, env.hub, nil)

	rec := serve("POST /api/members/{id}/phrases", h.Add, "POST", "/api/members/m1/phrases",
		map[string]string{"en": "Good night", "cn": "晚安"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	res := decodeBody[syncer.AddResult](t, rec)
	if res.Synced || res.Queued {
		t.Errorf("result = %+v, want local only", res)
	}
	if got := env.hub.actions(); len(got) != 1 || got[0] != "phrase:added" {
		t.Errorf("events = %v", got)
	}
}

func TestPhraseAddValidation(t *testing.T) {
	env := setupTestEnv(t)
	svc := &mockPhrases{}
	h := NewPhraseHandler(svc, env.library, env.family, env.sm2, env.hub, nil)

	rec := serve("POST /api/members/{id}/phrases", h.Add, "POST", "/api/members/m1/phrases",
		map[string]string{"en": "only english"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = serve("POST /api/members/{id}/phrases", h.Add, "POST", "/api/members/m1/phrases", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(svc.added) != 0 {
		t.Errorf("invalid input reached the service: %+v", svc.added)
	}
}

func TestPhraseAddUnknownMember(t *testing.T) {
	env := setupTestEnv(t)
	svc := &mockPhrases{addErr: model.ErrMemberNotFound}
	h := NewPhraseHandler(svc, env.library, env.family, env.sm2, env.hub, nil)

	rec := serve("POST /api/members/{id}/phrases", h.Add, "POST", "/api/members/ghost/phrases",
		map[string]string{"en": "Hi", "cn": "嗨"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if len(env.hub.actions()) != 0 {
		t.Errorf("events = %v, want none", env.hub.actions())
	}
}

func TestPhraseDeleteBroadcastsEvenOnBackendError(t *testing.T) {
	env := setupTestEnv(t)
	svc := &mockPhrases{delErr: model.ErrTransient}
	h := NewPhraseHandler(svc, env.library, env.family, env.sm2, env.hub, nil)

	rec := serve("DELETE /api/members/{id}/phrases/{phrase_id}", h.Delete, "DELETE", "/api/members/m1/phrases/p9", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "p9" {
		t.Errorf("deleted = %v", svc.deleted)
	}
	if got := env.hub.actions(); len(got) != 1 || got[0] != "phrase:deleted" {
		t.Errorf("events = %v", got)
	}
}

func TestPhraseCatalogAndOverride(t *testing.T) {
	env := setupTestEnv(t)
	h := NewPhraseHandler(&mockPhrases{}, env.library, env.family, env.sm2, env.hub, nil)

	rec := serve("PUT /api/members/{id}/overrides/{phrase_id}", h.SetOverride, "PUT", "/api/members/m1/overrides/greet-002",
		map[string]string{"en": "Morning!"})
	if rec.Code != http.StatusOK {
		t.Fatalf("override status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve("GET /api/members/{id}/catalog", h.Catalog, "GET", "/api/members/m1/catalog?category=greetings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog status = %d", rec.Code)
	}
	v := decodeBody[catalog.View](t, rec)
	found := false
	for _, p := range v.Phrases {
		if p.ID == "greet-002" {
			found = true
			if p.EN != "Morning!" {
				t.Errorf("greet-002 en = %q, want override", p.EN)
			}
		}
	}
	if !found {
		t.Error("greet-002 missing from greetings")
	}

	rec = serve("GET /api/members/{id}/catalog", h.Catalog, "GET", "/api/members/m1/catalog?category=nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown category status = %d, want 404", rec.Code)
	}

	rec = serve("PUT /api/members/{id}/overrides/{phrase_id}", h.SetOverride, "PUT", "/api/members/m1/overrides/greet-002", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty override status = %d, want 400", rec.Code)
	}

	rec = serve("DELETE /api/members/{id}/overrides/{phrase_id}", h.ResetOverride, "DELETE", "/api/members/m1/overrides/greet-002", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("reset status = %d", rec.Code)
	}
}

func TestPhraseDue(t *testing.T) {
	env := setupTestEnv(t)
	m, err := env.family.AddMember(store.NewMember{NameEN: "Ann"})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	h := NewPhraseHandler(&mockPhrases{}, env.library, env.family, env.sm2, env.hub, nil)

	rec := serve("GET /api/members/{id}/due", h.Due, "GET", "/api/members/"+m.ID+"/due?limit=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[struct {
		Due   []string `json:"due"`
		Total int      `json:"total"`
	}](t, rec)
	if len(got.Due) != 3 {
		t.Errorf("due = %v, want 3 ids", got.Due)
	}
	if got.Total != catalog.Default().Len() {
		t.Errorf("total = %d, want %d", got.Total, catalog.Default().Len())
	}

	rec = serve("GET /api/members/{id}/due", h.Due, "GET", "/api/members/ghost/due", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown member status = %d, want 404", rec.Code)
	}
}
