package tutor

import (
	"context"
	"fmt"

	"github.com/dukerupert/famlingo/internal/model"
)

// Alternative is another way to say a translated phrase.
type Alternative struct {
	Chinese string `json:"chinese,omitempty"`
	English string `json:"english,omitempty"`
	Pinyin  string `json:"pinyin,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Translation is the tutor's answer for one phrase. Chinese is set for
// en-to-cn requests and English for cn-to-en.
type Translation struct {
	Chinese      string        `json:"chinese,omitempty"`
	English      string        `json:"english,omitempty"`
	Pinyin       string        `json:"pinyin"`
	Literal      string        `json:"literal"`
	Context      string        `json:"context"`
	ContextCN    string        `json:"contextCN"`
	Formality    string        `json:"formality"`
	Alternatives []Alternative `json:"alternatives"`
}

type PronunciationScore struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	FeedbackCN   string   `json:"feedbackCN"`
	GoodPoints   []string `json:"goodPoints"`
	Improvements []string `json:"improvements"`
	Tips         string   `json:"tips"`
}

type Validation struct {
	IsAccurate        bool    `json:"isAccurate"`
	Score             float64 `json:"score"`
	Feedback          string  `json:"feedback"`
	BetterTranslation string  `json:"betterTranslation,omitempty"`
}

// Card is a phrase rebuilt from edited English text.
type Card struct {
	CN                 string          `json:"cn"`
	Pinyin             string          `json:"pinyin"`
	EN                 string          `json:"en"`
	LiteralTranslation string          `json:"literalTranslation"`
	Context            model.Bilingual `json:"context"`
}

type PhraseContext struct {
	WhenToUse     string   `json:"whenToUse"`
	WhenToUseCN   string   `json:"whenToUseCN"`
	Formality     string   `json:"formality"`
	CulturalNotes string   `json:"culturalNotes"`
	Situations    []string `json:"situations"`
}

// Translate translates text in the given direction.
func (c *Client) Translate(ctx context.Context, text string, dir model.LearningDirection) (*Translation, error) {
	var prompt string
	if dir == model.DirectionCNToEN {
		prompt = fmt.Sprintf(`Translate this Chinese phrase to English: %q

Return a JSON object with this exact structure:
{
  "english": "English translation",
  "pinyin": "Pinyin with tone marks (if Chinese characters provided)",
  "literal": "Literal word-by-word translation",
  "context": "When to use this phrase",
  "contextCN": "什么时候用这个短语",
  "formality": "formal/casual/neutral",
  "alternatives": [
    { "english": "Alternative 1", "note": "Usage note" },
    { "english": "Alternative 2", "note": "Usage note" }
  ]
}`, text)
	} else {
		prompt = fmt.Sprintf(`Translate this English phrase to Chinese: %q

Return a JSON object with this exact structure:
{
  "chinese": "Chinese translation",
  "pinyin": "Pinyin with tone marks",
  "literal": "Literal word-by-word translation",
  "context": "When to use this phrase (English)",
  "contextCN": "什么时候用这个短语（中文）",
  "formality": "formal/casual/neutral",
  "alternatives": [
    { "chinese": "Alternative 1", "pinyin": "pinyin", "note": "Usage note" },
    { "chinese": "Alternative 2", "pinyin": "pinyin", "note": "Usage note" }
  ]
}`, text)
	}

	var out Translation
	if err := c.ask(ctx, "translate", prompt, 0.5, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScorePronunciation grades a learner's attempt against the expected reading.
func (c *Client) ScorePronunciation(ctx context.Context, text, attempt, expected string) (*PronunciationScore, error) {
	prompt := fmt.Sprintf(`You are a Chinese pronunciation tutor.

The phrase is: %q
Expected pronunciation: %q
User's attempt: %q

Analyze the user's pronunciation attempt and provide:
1. Score out of 10
2. Specific feedback on what's good and what needs improvement
3. Tips for improvement

Return a JSON object:
{
  "score": 8.5,
  "feedback": "Detailed feedback here",
  "feedbackCN": "详细反馈（中文）",
  "goodPoints": ["What they did well"],
  "improvements": ["What needs work"],
  "tips": "Specific tips for improvement"
}`, text, expected, attempt)

	var out PronunciationScore
	if err := c.ask(ctx, "score pronunciation", prompt, 0.3, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateTranslation checks a learner's translation of source.
func (c *Client) ValidateTranslation(ctx context.Context, source, translation string, dir model.LearningDirection) (*Validation, error) {
	from, to := "English", "Chinese"
	if dir == model.DirectionCNToEN {
		from, to = to, from
	}
	prompt := fmt.Sprintf(`Validate this translation:
%s: %q
%s: %q

Is this translation accurate? Return JSON:
{
  "isAccurate": true/false,
  "score": 0-10,
  "feedback": "Why it's correct or what's wrong",
  "betterTranslation": "Better translation if score < 8"
}`, from, source, to, translation)

	var out Validation
	if err := c.ask(ctx, "validate translation", prompt, 0.3, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CardFromEnglish rebuilds a phrase card from edited English text.
func (c *Client) CardFromEnglish(ctx context.Context, en string) (*Card, error) {
	prompt := fmt.Sprintf(`Translate this English phrase to Chinese: %q

Return a JSON object with this exact structure:
{
  "cn": "Chinese translation (characters)",
  "pinyin": "Pinyin with tone marks",
  "en": %q,
  "literalTranslation": "Literal word-by-word translation",
  "context": {
    "en": "When and how to use this phrase (English)",
    "cn": "什么时候以及怎么用这个短语（中文）"
  }
}`, en, en)

	var out Card
	if err := c.ask(ctx, "card from english", prompt, 0.3, &out); err != nil {
		return nil, err
	}
	if out.EN == "" {
		out.EN = en
	}
	return &out, nil
}

// GenerateContext explains when and how a phrase is used.
func (c *Client) GenerateContext(ctx context.Context, phrase string) (*PhraseContext, error) {
	prompt := fmt.Sprintf(`Provide context for this phrase: %q

Include:
- When to use it
- Formality level
- Cultural notes
- Common situations

Return JSON:
{
  "whenToUse": "When to use this phrase",
  "whenToUseCN": "什么时候用",
  "formality": "formal/casual/neutral",
  "culturalNotes": "Cultural context",
  "situations": ["Situation 1", "Situation 2", "Situation 3"]
}`, phrase)

	var out PhraseContext
	if err := c.ask(ctx, "generate context", prompt, 0.5, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
