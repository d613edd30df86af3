package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukerupert/famlingo/internal/model"
	"github.com/dukerupert/famlingo/internal/store"
	"github.com/dukerupert/famlingo/internal/websocket"
)

// AccountService is the login session surface.
type AccountService interface {
	Login(ctx context.Context, email, password string) (*model.Session, error)
	Register(ctx context.Context, email, password string) (*model.Session, error)
	Logout() error
	Session() (*model.Session, error)
	CurrentAccount(ctx context.Context) (*model.Account, error)
}

// BackendEndpoint is the backend client's adjustable base URL.
type BackendEndpoint interface {
	BaseURL() string
	SetBaseURL(u string)
}

// KeyValue persists small device settings.
type KeyValue interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

type AccountHandler struct {
	accounts AccountService
	endpoint BackendEndpoint
	state    KeyValue
	hub      Broadcaster
	logger   *slog.Logger
}

func NewAccountHandler(accounts AccountService, endpoint BackendEndpoint, state KeyValue, hub Broadcaster, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{accounts: accounts, endpoint: endpoint, state: state, hub: hub, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AccountHandler) credentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return req, false
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password are required")
		return req, false
	}
	return req, true
}

// sessionResponse never echoes the token back to the UI.
func sessionResponse(s *model.Session) map[string]any {
	return map[string]any{"email": s.Email, "accountId": s.AccountID, "loggedIn": true}
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	sess, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.credentials(w, r)
	if !ok {
		return
	}
	if len(req.Password) < 8 {
		writeMessage(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	sess, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(); err != nil {
		writeError(w, h.logger, "logout", err)
		return
	}
	broadcast(h.hub, websocket.NewEvent(websocket.EntityFamily, "reset", "", nil))
	w.WriteHeader(http.StatusNoContent)
}

// Me verifies the session with the backend. A device that cannot reach the
// backend still reports its cached login.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, err := h.accounts.Session()
	if err != nil {
		writeError(w, h.logger, "read session", err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	acc, err := h.accounts.CurrentAccount(r.Context())
	if err != nil {
		writeError(w, h.logger, "current account", err)
		return
	}
	// CurrentAccount logs out on a rejected token.
	if sess, _ = h.accounts.Session(); sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	resp := sessionResponse(sess)
	resp["verified"] = acc != nil
	if acc != nil {
		resp["family"] = acc.Family
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AccountHandler) GetAPIURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"apiUrl": h.endpoint.BaseURL()})
}

// PutAPIURL points the device at another backend and remembers it.
func (h *AccountHandler) PutAPIURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIURL string `json:"apiUrl"`
	}
	if !decode(w, r, &req) {
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.APIURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeMessage(w, http.StatusBadRequest, "apiUrl must be an http(s) URL")
		return
	}
	if err := h.state.Set(store.KeyAPIURL, u.String()); err != nil {
		writeError(w, h.logger, "save api url", err)
		return
	}
	h.endpoint.SetBaseURL(u.String())
	writeJSON(w, http.StatusOK, map[string]string{"apiUrl": h.endpoint.BaseURL()})
}
