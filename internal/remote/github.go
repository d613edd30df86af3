package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

const commitSuffix = "\n\n🤖 FamLingo Auto-Sync"

// GitHubConfig addresses one file in a GitHub repository.
type GitHubConfig struct {
	BaseURL string
	Token   string
	Owner   string
	Repo    string
	Path    string
	Branch  string
	Timeout time.Duration
}

// GitHub stores the snapshot through the repository contents API. The
// revision is the blob sha.
type GitHub struct {
	cfg        GitHubConfig
	httpClient *http.Client
}

func NewGitHub(cfg GitHubConfig) *GitHub {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.Path == "" {
		cfg.Path = model.DefaultSyncFilePath
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &GitHub{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// GitHubFactory builds a GitHub store from device sync settings.
func GitHubFactory(baseURL string) Factory {
	return func(settings *model.SyncSettings) (Store, error) {
		if !settings.Configured() {
			return nil, model.ErrNotConfigured
		}
		return NewGitHub(GitHubConfig{
			BaseURL: baseURL,
			Token:   settings.Token,
			Owner:   settings.Owner,
			Repo:    settings.Repo,
			Path:    settings.Path(),
		}), nil
	}
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

func (g *GitHub) url() string {
	parts := strings.Split(g.cfg.Path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimRight(g.cfg.BaseURL, "/"),
		url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), strings.Join(parts, "/"))
}

func (g *GitHub) newRequest(ctx context.Context, method string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.url(), r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (g *GitHub) Fetch(ctx context.Context) (*Object, error) {
	req, err := g.newRequest(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("ref", g.cfg.Branch)
	req.URL.RawQuery = q.Encode()

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch contents: %v: %w", err, model.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("fetch contents", resp.StatusCode)
	}

	var cr contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode contents: %v: %w", err, model.ErrInvalid)
	}
	// The API wraps base64 at 60 columns.
	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(cr.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode base64 content: %v: %w", err, model.ErrInvalid)
	}
	return &Object{Content: content, Revision: cr.SHA}, nil
}

func (g *GitHub) Write(ctx context.Context, content []byte, revision, message string) (string, error) {
	body, err := json.Marshal(putRequest{
		Message: message + commitSuffix,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     revision,
		Branch:  g.cfg.Branch,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPut, body)
	if err != nil {
		return "", err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("put contents: %v: %w", err, model.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyStatus("put contents", resp.StatusCode)
	}

	var pr putResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("decode put response: %v: %w", err, model.ErrInvalid)
	}
	return pr.Content.SHA, nil
}
