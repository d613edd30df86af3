package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/famlingo/internal/model"
)

func staticKey(k string) KeyFunc {
	return func() (string, error) { return k, nil }
}

// fakeDeepSeek answers every completion with reply and records the last request.
func fakeDeepSeek(t *testing.T, status int, reply string) (*httptest.Server, *chatRequest) {
	t.Helper()
	var last chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&last)
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": reply}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestTranslateExtractsJSON(t *testing.T) {
	reply := "Sure! Here you go:\n```json\n{\"chinese\":\"你好\",\"pinyin\":\"nǐ hǎo\",\"formality\":\"neutral\",\"alternatives\":[{\"chinese\":\"您好\",\"note\":\"polite\"}]}\n```"
	srv, last := fakeDeepSeek(t, http.StatusOK, reply)
	c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)

	tr, err := c.Translate(context.Background(), "Hello", model.DirectionENToCN)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if tr.Chinese != "你好" || tr.Pinyin != "nǐ hǎo" || len(tr.Alternatives) != 1 {
		t.Errorf("translation = %+v", tr)
	}
	if last.Model != "deepseek-chat" || last.MaxTokens != 500 || last.Temperature != 0.5 {
		t.Errorf("request = %+v", last)
	}
	if len(last.Messages) != 2 || last.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", last.Messages)
	}
	if !strings.Contains(last.Messages[1].Content, "English phrase to Chinese") {
		t.Errorf("prompt = %q", last.Messages[1].Content)
	}
}

func TestTranslateChineseToEnglishPrompt(t *testing.T) {
	srv, last := fakeDeepSeek(t, http.StatusOK, `{"english":"Hello"}`)
	c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)

	tr, err := c.Translate(context.Background(), "你好", model.DirectionCNToEN)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if tr.English != "Hello" {
		t.Errorf("english = %q", tr.English)
	}
	if !strings.Contains(last.Messages[1].Content, "Chinese phrase to English") {
		t.Errorf("prompt = %q", last.Messages[1].Content)
	}
}

func TestNoKeyIsNotConfigured(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()
	c := NewClient(Config{BaseURL: srv.URL}, staticKey(""), nil)

	if c.Configured() {
		t.Error("client without key reports configured")
	}
	if _, err := c.GenerateContext(context.Background(), "你好"); !errors.Is(err, model.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
	if called {
		t.Error("request sent without a key")
	}
}

func TestReplyWithoutJSONIsInvalid(t *testing.T) {
	srv, _ := fakeDeepSeek(t, http.StatusOK, "I cannot help with that.")
	c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)

	if _, err := c.ScorePronunciation(context.Background(), "你好", "ni hao", "nǐ hǎo"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestMalformedJSONIsInvalid(t *testing.T) {
	srv, _ := fakeDeepSeek(t, http.StatusOK, `{"isAccurate": maybe}`)
	c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)

	if _, err := c.ValidateTranslation(context.Background(), "Hello", "你好", model.DirectionENToCN); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestAPIErrorsClassified(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, model.ErrUnauthorized},
		{http.StatusTooManyRequests, model.ErrTransient},
		{http.StatusBadGateway, model.ErrTransient},
	}
	for _, tc := range cases {
		srv, _ := fakeDeepSeek(t, tc.status, "nope")
		c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)
		_, err := c.GenerateContext(context.Background(), "x")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
		}
	}

	srv, _ := fakeDeepSeek(t, http.StatusBadRequest, "model not found")
	c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)
	_, err := c.GenerateContext(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("err = %v, want api message", err)
	}
}

func TestCardFromEnglishFillsEN(t *testing.T) {
	srv, _ := fakeDeepSeek(t, http.StatusOK, `{"cn":"走吧","pinyin":"zǒu ba","context":{"en":"leaving","cn":"离开"}}`)
	c := NewClient(Config{BaseURL: srv.URL}, staticKey("sk-test"), nil)

	card, err := c.CardFromEnglish(context.Background(), "Let's go")
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	if card.EN != "Let's go" || card.CN != "走吧" || card.Context.CN != "离开" {
		t.Errorf("card = %+v", card)
	}
}
