// Package tutor asks the DeepSeek chat-completions API for translations,
// pronunciation feedback and usage context.
package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

const systemPrompt = "You are a professional Chinese-English language tutor. Provide accurate translations, pronunciation guidance, and cultural context."

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// Config holds DeepSeek client configuration.
type Config struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// KeyFunc returns the stored API key, or "" when none is set.
type KeyFunc func() (string, error)

// Client calls the DeepSeek API.
type Client struct {
	cfg        Config
	key        KeyFunc
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, key KeyFunc, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		key:        key,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "tutor"),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Configured reports whether an API key is stored.
func (c *Client) Configured() bool {
	k, err := c.key()
	return err == nil && k != ""
}

// complete sends one prompt and returns the assistant's text.
func (c *Client) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	key, err := c.key()
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	if key == "" {
		return "", fmt.Errorf("deepseek: %w", model.ErrNotConfigured)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepseek request: %v: %w", err, model.ErrTransient)
	}
	defer resp.Body.Close()

	var out chatResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return "", fmt.Errorf("deepseek: %s: %w", msg, model.ErrUnauthorized)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return "", fmt.Errorf("deepseek: %s: %w", msg, model.ErrTransient)
		default:
			return "", fmt.Errorf("deepseek api error: %s", msg)
		}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode chat response: %v: %w", decodeErr, model.ErrInvalid)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices: %w", model.ErrInvalid)
	}
	return out.Choices[0].Message.Content, nil
}

// ask runs a prompt and decodes the first JSON object in the reply into v.
func (c *Client) ask(ctx context.Context, op, prompt string, temperature float64, v any) error {
	text, err := c.complete(ctx, prompt, temperature)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	raw := jsonObject.FindString(text)
	if raw == "" {
		c.logger.Warn("reply carried no json object", "op", op)
		return fmt.Errorf("%s: no json object in reply: %w", op, model.ErrInvalid)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%s: parse reply: %v: %w", op, err, model.ErrInvalid)
	}
	return nil
}
