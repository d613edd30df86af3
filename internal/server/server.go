// Package server wires the device agent's local HTTP surface.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/famlingo/internal/handler"
	"github.com/dukerupert/famlingo/internal/middleware"
	ws "github.com/dukerupert/famlingo/internal/websocket"
)

// Handlers groups the route handlers.
type Handlers struct {
	Family  *handler.FamilyHandler
	Phrase  *handler.PhraseHandler
	Sync    *handler.SyncHandler
	Account *handler.AccountHandler
	Tutor   *handler.TutorHandler
}

type Server struct {
	h       Handlers
	hub     *ws.Hub
	tutorRL *middleware.RateLimiter
	authRL  *middleware.RateLimiter
	logger  *slog.Logger
	version string
}

func New(h Handlers, hub *ws.Hub, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		h:       h,
		hub:     hub,
		tutorRL: middleware.NewRateLimiter(30, time.Minute),
		authRL:  middleware.NewRateLimiter(10, time.Minute),
		logger:  logger,
		version: version,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /ws", ws.HandleWebSocket(s.hub))

	// Family and members
	mux.HandleFunc("GET /api/family", s.h.Family.Get)
	mux.HandleFunc("POST /api/family", s.h.Family.Create)
	mux.HandleFunc("DELETE /api/family", s.h.Family.Reset)
	mux.HandleFunc("POST /api/members", s.h.Family.AddMember)
	mux.HandleFunc("DELETE /api/members/{id}", s.h.Family.DeleteMember)
	mux.HandleFunc("PUT /api/members/{id}/stats", s.h.Family.UpdateStats)
	mux.HandleFunc("PUT /api/members/{id}/progress/{phrase_id}", s.h.Family.UpdateProgress)
	mux.HandleFunc("POST /api/members/{id}/review/{phrase_id}", s.h.Family.Review)
	mux.HandleFunc("POST /api/current-user/{id}", s.h.Family.SwitchUser)
	mux.HandleFunc("GET /api/leaderboard", s.h.Family.Leaderboard)

	// Phrases
	mux.HandleFunc("GET /api/members/{id}/phrases", s.h.Phrase.List)
	mux.HandleFunc("POST /api/members/{id}/phrases", s.h.Phrase.Add)
	mux.HandleFunc("DELETE /api/members/{id}/phrases/{phrase_id}", s.h.Phrase.Delete)
	mux.HandleFunc("GET /api/members/{id}/catalog", s.h.Phrase.Catalog)
	mux.HandleFunc("GET /api/members/{id}/due", s.h.Phrase.Due)
	mux.HandleFunc("PUT /api/members/{id}/overrides/{phrase_id}", s.h.Phrase.SetOverride)
	mux.HandleFunc("DELETE /api/members/{id}/overrides/{phrase_id}", s.h.Phrase.ResetOverride)

	// Sync
	mux.HandleFunc("POST /api/sync", s.h.Sync.Sync)
	mux.HandleFunc("GET /api/sync/status", s.h.Sync.Status)
	mux.HandleFunc("GET /api/settings/sync", s.h.Sync.GetSettings)
	mux.HandleFunc("PUT /api/settings/sync", s.h.Sync.PutSettings)
	mux.HandleFunc("DELETE /api/settings/sync", s.h.Sync.DeleteSettings)
	mux.HandleFunc("POST /api/queue/drain", s.h.Sync.Drain)

	// Account
	mux.HandleFunc("POST /api/auth/login", s.limited(s.authRL, s.h.Account.Login))
	mux.HandleFunc("POST /api/auth/register", s.limited(s.authRL, s.h.Account.Register))
	mux.HandleFunc("POST /api/auth/logout", s.h.Account.Logout)
	mux.HandleFunc("GET /api/auth/me", s.h.Account.Me)
	mux.HandleFunc("GET /api/settings/api-url", s.h.Account.GetAPIURL)
	mux.HandleFunc("PUT /api/settings/api-url", s.h.Account.PutAPIURL)

	// Tutor
	mux.HandleFunc("POST /api/tutor/translate", s.limited(s.tutorRL, s.h.Tutor.Translate))
	mux.HandleFunc("POST /api/tutor/score", s.limited(s.tutorRL, s.h.Tutor.Score))
	mux.HandleFunc("POST /api/tutor/validate", s.limited(s.tutorRL, s.h.Tutor.Validate))
	mux.HandleFunc("POST /api/tutor/card", s.limited(s.tutorRL, s.h.Tutor.Card))
	mux.HandleFunc("POST /api/tutor/context", s.limited(s.tutorRL, s.h.Tutor.Context))
	mux.HandleFunc("GET /api/settings/tutor", s.h.Tutor.GetSettings)
	mux.HandleFunc("PUT /api/settings/tutor", s.h.Tutor.PutSettings)

	httpLogger := s.logger.With("component", "http")
	return middleware.RequestLogger(httpLogger)(middleware.Recoverer(httpLogger)(mux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) limited(rl *middleware.RateLimiter, h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(rl, middleware.RealIP)(h).ServeHTTP
}
