package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/store"
)

type mockMirror struct {
	familyID string
	err      error
	added    int
	deleted  int
}

func (m *mockMirror) SaveFamily(ctx context.Context, name model.Bilingual) (*model.Family, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Family{ID: m.familyID, Name: name}, nil
}

func (m *mockMirror) AddMember(ctx context.Context, mem model.Member) (*model.Member, error) {
	m.added++
	return &mem, m.err
}

func (m *mockMirror) UpdateMember(ctx context.Context, id string, mem model.Member) (*model.Member, error) {
	return &mem, m.err
}

func (m *mockMirror) DeleteMember(ctx context.Context, id string) error {
	m.deleted++
	return m.err
}

func TestFamilyCreateAdoptsBackendID(t *testing.T) {
	env := setupTestEnv(t)
	h := NewFamilyHandler(env.family, &mockMirror{familyID: "backend-fam"}, nil, env.sm2, env.hub, nil)

	rec := serve("POST /api/family", h.Create, "POST", "/api/family",
		map[string]string{"nameEn": "Smiths", "nameCn": "史密斯"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	f := decodeBody[model.Family](t, rec)
	if f.ID != "backend-fam" {
		t.Errorf("id = %q, want backend-fam", f.ID)
	}
	stored, _ := env.family.Get()
	if stored.ID != "backend-fam" {
		t.Errorf("stored id = %q", stored.ID)
	}
}

func TestFamilyCreateLoggedOutKeepsLocal(t *testing.T) {
	env := setupTestEnv(t)
	h := NewFamilyHandler(env.family, &mockMirror{err: model.ErrNotAuthenticated}, nil, env.sm2, env.hub, nil)

	rec := serve("POST /api/family", h.Create, "POST", "/api/family", map[string]string{"nameEn": "Smiths"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	stored, _ := env.family.Get()
	if !stored.Initialized() || stored.Name.EN != "Smiths" {
		t.Errorf("family = %+v", stored)
	}

	rec = serve("POST /api/family", h.Create, "POST", "/api/family", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", rec.Code)
	}
}

func TestFamilyMembersFlow(t *testing.T) {
	env := setupTestEnv(t)
	mirror := &mockMirror{}
	h := NewFamilyHandler(env.family, mirror, nil, env.sm2, env.hub, nil)

	rec := serve("POST /api/members", h.AddMember, "POST", "/api/members",
		map[string]string{"nameEn": "Ann", "learningDirection": "sideways"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad direction status = %d, want 400", rec.Code)
	}

	rec = serve("POST /api/members", h.AddMember, "POST", "/api/members",
		map[string]string{"nameEn": "Ann", "learningDirection": "en-to-cn"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body.String())
	}
	m := decodeBody[model.Member](t, rec)
	if m.TargetLanguage != model.LanguageEnglish {
		t.Errorf("target = %q", m.TargetLanguage)
	}
	if mirror.added != 1 {
		t.Errorf("mirror adds = %d, want 1", mirror.added)
	}

	rec = serve("GET /api/family", h.Get, "GET", "/api/family", nil)
	got := decodeBody[familyResponse](t, rec)
	if got.CurrentUser != m.ID || got.Stats == nil || got.Stats.TotalUsers != 1 {
		t.Errorf("family response = %+v", got)
	}

	rec = serve("PUT /api/members/{id}/stats", h.UpdateStats, "PUT", "/api/members/"+m.ID+"/stats",
		map[string]float64{"accuracy": 140})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("accuracy out of range status = %d, want 400", rec.Code)
	}

	rec = serve("POST /api/current-user/{id}", h.SwitchUser, "POST", "/api/current-user/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("switch to unknown status = %d, want 404", rec.Code)
	}

	rec = serve("DELETE /api/members/{id}", h.DeleteMember, "DELETE", "/api/members/"+m.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if mirror.deleted != 1 {
		t.Errorf("mirror deletes = %d, want 1", mirror.deleted)
	}

	want := []string{"member:added", "member:deleted"}
	events := env.hub.actions()
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestFamilyAddMemberWhenFull(t *testing.T) {
	env := setupTestEnv(t)
	for i := 0; i < model.MaxUsers; i++ {
		if _, err := env.family.AddMember(store.NewMember{NameEN: "m"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	h := NewFamilyHandler(env.family, nil, nil, env.sm2, env.hub, nil)

	rec := serve("POST /api/members", h.AddMember, "POST", "/api/members", map[string]string{"nameEn": "extra"})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestFamilyReview(t *testing.T) {
	env := setupTestEnv(t)
	m, _ := env.family.AddMember(store.NewMember{NameEN: "Ann"})
	h := NewFamilyHandler(env.family, nil, nil, env.sm2, env.hub, nil)

	rec := serve("POST /api/members/{id}/review/{phrase_id}", h.Review, "POST",
		"/api/members/"+m.ID+"/review/greet-001", map[string]int{"quality": 7})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad quality status = %d, want 400", rec.Code)
	}

	rec = serve("POST /api/members/{id}/review/{phrase_id}", h.Review, "POST",
		"/api/members/"+m.ID+"/review/greet-001", map[string]int{"quality": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[struct {
		Progress model.Progress `json:"progress"`
		Mastered bool           `json:"mastered"`
	}](t, rec)
	if got.Progress.Interval != 1 || got.Progress.CorrectCount != 1 || got.Mastered {
		t.Errorf("review = %+v", got)
	}

	f, _ := env.family.Get()
	if p := f.Member(m.ID).Progress["greet-001"]; p.Interval != 1 {
		t.Errorf("stored progress = %+v", p)
	}

	rec = serve("POST /api/members/{id}/review/{phrase_id}", h.Review, "POST",
		"/api/members/ghost/review/greet-001", map[string]int{"quality": 5})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown member status = %d, want 404", rec.Code)
	}
}

func TestFamilyLeaderboard(t *testing.T) {
	env := setupTestEnv(t)
	a, _ := env.family.AddMember(store.NewMember{NameEN: "a"})
	b, _ := env.family.AddMember(store.NewMember{NameEN: "b"})
	acc := 80.0
	env.family.UpdateStats(b.ID, store.StatsUpdate{Accuracy: &acc})
	h := NewFamilyHandler(env.family, nil, nil, env.sm2, env.hub, nil)

	rec := serve("GET /api/leaderboard", h.Leaderboard, "GET", "/api/leaderboard", nil)
	got := decodeBody[struct {
		ByAccuracy []model.Member `json:"byAccuracy"`
	}](t, rec)
	if len(got.ByAccuracy) != 2 || got.ByAccuracy[0].ID != b.ID || got.ByAccuracy[1].ID != a.ID {
		t.Errorf("byAccuracy = %+v", got.ByAccuracy)
	}
}
