package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukerupert/famlingo/internal/account"
	"github.com/dukerupert/famlingo/internal/backend"
	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/store"
)

func setupMember(t *testing.T, h *harness) *model.Member {
	t.Helper()
	if _, err := h.family.Initialize(model.Bilingual{EN: "Home"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	m, err := h.family.AddMember(store.NewMember{NameEN: "Ann"})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	return m
}

func TestAddPhraseOnline(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)

	res, err := h.o.AddPhrase(context.Background(), m.ID, model.Phrase{EN: "thank you", CN: "谢谢"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !res.Synced || res.Queued || res.Phrase.ID == "" {
		t.Errorf("result = %+v", res)
	}
	if len(h.backend.phrases[m.ID]) != 1 {
		t.Errorf("backend phrases = %+v", h.backend.phrases)
	}
	local, _ := h.phrases.List(m.ID)
	if len(local) != 1 || local[0].FamilyID == "" {
		t.Errorf("local = %+v", local)
	}
}

func TestOfflineQueueDrain(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)
	ctx := context.Background()

	h.backend.addErr = fmt.Errorf("POST /api/auth/phrases: %w", model.ErrTransient)
	res, err := h.o.AddPhrase(ctx, m.ID, model.Phrase{ID: "P1", EN: "hello", CN: "你好"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !res.Queued {
		t.Fatal("expected phrase to be queued")
	}
	if n, _ := h.queue.Count(); n != 1 {
		t.Fatalf("queue = %d, want 1", n)
	}
	if local, _ := h.phrases.List(m.ID); len(local) != 1 {
		t.Error("phrase should be saved locally while offline")
	}

	h.backend.addErr = nil
	dr, err := h.o.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if dr.Sent != 1 || dr.Remaining != 0 {
		t.Errorf("drain = %+v", dr)
	}
	if n, _ := h.queue.Count(); n != 0 {
		t.Errorf("queue = %d after drain", n)
	}
	got := h.backend.phrases[m.ID]
	if len(got) != 1 || got[0].ID != "P1" {
		t.Errorf("backend phrases = %+v", got)
	}
}

func TestDrainKeepsFailuresInOrder(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)
	ctx := context.Background()

	h.backend.addErr = fmt.Errorf("offline: %w", model.ErrTransient)
	for _, id := range []string{"P1", "P2", "P3"} {
		h.o.AddPhrase(ctx, m.ID, model.Phrase{ID: id})
	}

	dr, err := h.o.Drain(ctx)
	if err == nil {
		t.Fatal("expected drain error while offline")
	}
	if dr.Sent != 0 || dr.Remaining != 3 {
		t.Errorf("drain = %+v", dr)
	}
	items, _ := h.queue.List()
	if len(items) != 3 || items[0].Phrase.ID != "P1" || items[2].Phrase.ID != "P3" {
		t.Errorf("queue = %+v", items)
	}
}

func TestAddPhraseLoggedOutStaysLocal(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)

	h.backend.addErr = fmt.Errorf("add phrase: %w", model.ErrNotAuthenticated)
	res, err := h.o.AddPhrase(context.Background(), m.ID, model.Phrase{ID: "P1"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Queued || res.Synced {
		t.Errorf("result = %+v, want local only", res)
	}
	if n, _ := h.queue.Count(); n != 0 {
		t.Errorf("queue = %d, want 0", n)
	}
	local, _ := h.phrases.List(m.ID)
	if len(local) != 1 || local[0].ID != "P1" {
		t.Errorf("local = %+v", local)
	}
}

func TestAddPhraseUnknownMember(t *testing.T) {
	h := newHarness(t, false)
	setupMember(t, h)

	_, err := h.o.AddPhrase(context.Background(), "ghost", model.Phrase{ID: "P1"})
	if !errors.Is(err, model.ErrMemberNotFound) {
		t.Fatalf("err = %v, want ErrMemberNotFound", err)
	}
}

func TestDeletePhraseFailureSurfaced(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)
	ctx := context.Background()
	h.o.AddPhrase(ctx, m.ID, model.Phrase{ID: "P1"})

	h.backend.deleteErr = fmt.Errorf("delete: %w", model.ErrTransient)
	if err := h.o.DeletePhrase(ctx, m.ID, "P1"); !errors.Is(err, model.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if n, _ := h.queue.Count(); n != 0 {
		t.Errorf("deletes must not be queued, queue = %d", n)
	}
}

func TestLoadPhrasesMergesBackend(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)
	h.phrases.Add(m.ID, model.Phrase{ID: "local-only"})
	h.phrases.Add(m.ID, model.Phrase{ID: "shared", EN: "local"})
	h.backend.phrases[m.ID] = []model.Phrase{{ID: "shared", EN: "backend"}, {ID: "backend-only"}}

	got, err := h.o.LoadPhrases(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var ids []string
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if len(ids) != 3 || ids[0] != "shared" || ids[1] != "backend-only" || ids[2] != "local-only" {
		t.Errorf("ids = %v", ids)
	}
	if got[0].EN != "backend" {
		t.Errorf("shared = %q, want backend copy", got[0].EN)
	}
	cached, _ := h.phrases.List(m.ID)
	if len(cached) != 3 {
		t.Errorf("cache = %d phrases, want 3", len(cached))
	}
}

func TestLoadPhrasesBackendDownServesCache(t *testing.T) {
	h := newHarness(t, false)
	m := setupMember(t, h)
	h.phrases.Add(m.ID, model.Phrase{ID: "cached"})
	h.backend.getErr = fmt.Errorf("down: %w", model.ErrTransient)

	got, err := h.o.LoadPhrases(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "cached" {
		t.Errorf("phrases = %+v", got)
	}
}

func TestRefreshFamilyMergesBackend(t *testing.T) {
	h := newHarness(t, false)
	local, _ := h.family.AddMember(store.NewMember{NameEN: "local"})
	h.backend.family = &model.Family{ID: "F", Name: model.Bilingual{EN: "Server"}, Users: []model.Member{{ID: "S"}}}

	f, err := h.o.RefreshFamily(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if f.ID != "F" || len(f.Users) != 2 || f.Users[0].ID != "S" || f.Users[1].ID != local.ID {
		t.Errorf("family = %+v", f)
	}
}

// rejectingBackend wires a real backend client, whose every call is
// answered 401, into the harness the same way main does.
func rejectingBackend(t *testing.T, h *harness) *atomic.Int32 {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := backend.NewClient(backend.Config{BaseURL: server.URL}, h.state)
	client.OnUnauthorized(account.NewService(client, h.state, h.family, nil).Invalidate)
	h.o = New(Config{}, Deps{
		State:   h.state,
		Family:  h.family,
		Phrases: h.phrases,
		Queue:   h.queue,
		Backend: client,
		Remotes: h.remote.factory(),
	}, nil)
	return &hits
}

func login(t *testing.T, h *harness) {
	t.Helper()
	if err := h.state.SetSession(model.Session{Token: "stale-token", Email: "a@b.c", AccountID: "acc1"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
}

func TestRejectedTokenLogsOutFromPhraseCalls(t *testing.T) {
	h := newHarness(t, false)
	hits := rejectingBackend(t, h)
	m := setupMember(t, h)
	login(t, h)
	ctx := context.Background()

	res, err := h.o.AddPhrase(ctx, m.ID, model.Phrase{ID: "P1", EN: "hello", CN: "你好"})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("add err = %v, want ErrUnauthorized", err)
	}
	if res == nil || res.Synced || res.Queued {
		t.Errorf("result = %+v", res)
	}
	if tok, _ := h.state.Token(); tok != "" {
		t.Errorf("token = %q after rejected add, want cleared", tok)
	}
	if sess, _ := h.state.Session(); sess != nil {
		t.Errorf("session = %+v after rejected add", sess)
	}
	if f, _ := h.family.Get(); f.Initialized() {
		t.Errorf("family = %+v after rejected add, want reset", f)
	}

	// The family went with the session, so a later add fails locally.
	before := hits.Load()
	if _, err := h.o.AddPhrase(ctx, m.ID, model.Phrase{ID: "P2"}); !errors.Is(err, model.ErrMemberNotFound) {
		t.Errorf("add after logout err = %v, want ErrMemberNotFound", err)
	}
	if hits.Load() != before {
		t.Error("logged-out add reached the backend")
	}

	login(t, h)
	list, err := h.o.LoadPhrases(ctx, m.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(list) != 1 || list[0].ID != "P1" {
		t.Errorf("phrases = %+v, want the local copy", list)
	}
	if tok, _ := h.state.Token(); tok != "" {
		t.Errorf("token = %q after rejected load, want cleared", tok)
	}
}
