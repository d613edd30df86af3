// Package backend is the client for the FamLingo account service: login,
// the family record, custom phrases and device registration.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/famlingo/internal/model"
)

// Config holds backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// TokenSource yields the current session token, or "" when logged out.
type TokenSource interface {
	Token() (string, error)
}

// Client calls the account service. The token is read from the TokenSource
// on every call so a logout takes effect immediately.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	tokens     TokenSource
	httpClient *http.Client
	now        func() time.Time

	onUnauthorized func()
}

func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:3001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// SetBaseURL points the client at another backend.
func (c *Client) SetBaseURL(u string) {
	c.mu.Lock()
	c.cfg.BaseURL = u
	c.mu.Unlock()
}

// OnUnauthorized registers fn to run whenever the backend rejects the
// session token. Every authenticated call goes through it.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.BaseURL
}

// token returns a usable session token or "". A JWT whose exp claim has
// passed counts as no token. Opaque tokens are passed through.
func (c *Client) token() (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	tok, err := c.tokens.Token()
	if err != nil || tok == "" {
		return "", err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return tok, nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return tok, nil
	}
	if !exp.After(c.now()) {
		return "", nil
	}
	return tok, nil
}

// apiError is the body the service returns on failure.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL(), "/")+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, model.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		json.NewDecoder(resp.Body).Decode(&ae)
		msg := ae.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, model.ErrUnauthorized)
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%s %s: %s: %w", method, path, msg, model.ErrNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%s %s: status %d: %s: %w", method, path, resp.StatusCode, msg, model.ErrTransient)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, model.ErrInvalid)
	}
	return nil
}

// authed runs a request that requires a session. Without one it fails with
// model.ErrNotAuthenticated and makes no network call.
func (c *Client) authed(ctx context.Context, method, path string, in, out any) error {
	tok, err := c.token()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if tok == "" {
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotAuthenticated)
	}
	err = c.do(ctx, method, path, tok, in, out)
	if errors.Is(err, model.ErrUnauthorized) {
		c.mu.RLock()
		fn := c.onUnauthorized
		c.mu.RUnlock()
		if fn != nil {
			fn()
		}
	}
	return err
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. The caller persists the returned session.
func (c *Client) Register(ctx context.Context, email, password string) (*model.Session, error) {
	var sess model.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", credentials{email, password}, &sess); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &sess, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Session, error) {
	var sess model.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", credentials{email, password}, &sess); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &sess, nil
}

// CurrentAccount returns the account behind the token, or nil when there is
// no usable token.
func (c *Client) CurrentAccount(ctx context.Context) (*model.Account, error) {
	var acc model.Account
	err := c.authed(ctx, http.MethodGet, "/api/auth/me", nil, &acc)
	if errors.Is(err, model.ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current account: %w", err)
	}
	return &acc, nil
}

type familyEnvelope struct {
	Family *model.Family `json:"family"`
}

// SaveFamily creates or renames the account's family.
func (c *Client) SaveFamily(ctx context.Context, name model.Bilingual) (*model.Family, error) {
	in := struct {
		NameEN string `json:"nameEn"`
		NameCN string `json:"nameCn"`
	}{name.EN, name.CN}
	var out familyEnvelope
	if err := c.authed(ctx, http.MethodPost, "/api/auth/family", in, &out); err != nil {
		return nil, fmt.Errorf("save family: %w", err)
	}
	return out.Family, nil
}

// GetFamily returns the account's family, or nil when logged out or none
// exists.
func (c *Client) GetFamily(ctx context.Context) (*model.Family, error) {
	var out familyEnvelope
	err := c.authed(ctx, http.MethodGet, "/api/auth/family", nil, &out)
	if errors.Is(err, model.ErrNotAuthenticated) || errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return out.Family, nil
}

type memberEnvelope struct {
	Member *model.Member `json:"member"`
}

func (c *Client) AddMember(ctx context.Context, m model.Member) (*model.Member, error) {
	var out memberEnvelope
	if err := c.authed(ctx, http.MethodPost, "/api/auth/members", m, &out); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return out.Member, nil
}

func (c *Client) UpdateMember(ctx context.Context, id string, m model.Member) (*model.Member, error) {
	var out memberEnvelope
	if err := c.authed(ctx, http.MethodPut, "/api/auth/members/"+url.PathEscape(id), m, &out); err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}
	return out.Member, nil
}

func (c *Client) DeleteMember(ctx context.Context, id string) error {
	if err := c.authed(ctx, http.MethodDelete, "/api/auth/members/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// GetPhrases lists a member's custom phrases. Logged out yields an empty
// list.
func (c *Client) GetPhrases(ctx context.Context, memberID string) ([]model.Phrase, error) {
	var out struct {
		Phrases []model.Phrase `json:"phrases"`
	}
	err := c.authed(ctx, http.MethodGet, "/api/auth/phrases/"+url.PathEscape(memberID), nil, &out)
	if errors.Is(err, model.ErrNotAuthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get phrases: %w", err)
	}
	return out.Phrases, nil
}

func (c *Client) AddPhrase(ctx context.Context, memberID, familyID string, p model.Phrase) (*model.Phrase, error) {
	in := struct {
		MemberID string       `json:"memberId"`
		FamilyID string       `json:"familyId,omitempty"`
		Phrase   model.Phrase `json:"phrase"`
	}{memberID, familyID, p}
	var out struct {
		Phrase *model.Phrase `json:"phrase"`
	}
	if err := c.authed(ctx, http.MethodPost, "/api/auth/phrases", in, &out); err != nil {
		return nil, fmt.Errorf("add phrase: %w", err)
	}
	if out.Phrase == nil {
		return &p, nil
	}
	return out.Phrase, nil
}

func (c *Client) DeletePhrase(ctx context.Context, id string) error {
	if err := c.authed(ctx, http.MethodDelete, "/api/auth/phrases/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete phrase: %w", err)
	}
	return nil
}

type deviceEnvelope struct {
	Device *model.DeviceSettings `json:"device"`
}

// RegisterDevice stores the device's sync settings. No session is needed.
func (c *Client) RegisterDevice(ctx context.Context, d model.DeviceSettings) (*model.DeviceSettings, error) {
	var out deviceEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/device/register", "", d, &out); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	return out.Device, nil
}

// GetDevice returns the saved device record, or nil when there is none.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*model.DeviceSettings, error) {
	var out deviceEnvelope
	err := c.do(ctx, http.MethodGet, "/api/device/"+url.PathEscape(deviceID), "", nil, &out)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return out.Device, nil
}
