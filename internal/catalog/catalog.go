// Package catalog serves the built-in phrase library and layers each
// member's overrides and custom phrases on top of it.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dukerupert/famlingo/internal/model"
)

//go:embed phrases.json
var builtin []byte

// CustomCategoryID groups a member's own phrases.
const CustomCategoryID = "custom"

var customName = model.Bilingual{EN: "Common Phrases", CN: "常用短语"}

type file struct {
	Version     string                     `json:"version"`
	LastUpdated string                     `json:"lastUpdated"`
	Phases      map[string]model.Bilingual `json:"phases"`
	Categories  []model.Category           `json:"categories"`
}

// Summary describes a category without its phrases.
type Summary struct {
	ID          string          `json:"id"`
	Name        model.Bilingual `json:"name"`
	Icon        string          `json:"icon"`
	Phase       string          `json:"phase"`
	PhraseCount int             `json:"phraseCount"`
}

// Catalog is an immutable standard phrase library.
type Catalog struct {
	version    string
	phases     map[string]model.Bilingual
	categories []model.Category
	byID       map[string]model.StandardPhrase
}

// Parse builds a catalog from its JSON form. Phrase ids must be unique.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		version: f.Version,
		phases:  f.Phases,
		byID:    make(map[string]model.StandardPhrase),
	}
	for _, cat := range f.Categories {
		for i := range cat.Phrases {
			p := &cat.Phrases[i]
			p.CategoryID = cat.ID
			if _, dup := c.byID[p.ID]; dup {
				return nil, fmt.Errorf("parse catalog: duplicate phrase %q", p.ID)
			}
			c.byID[p.ID] = *p
		}
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(builtin)
	})
	return defaultCatalog, defaultErr
}

func (c *Catalog) Version() string { return c.version }

// Phases maps phase ids to display names.
func (c *Catalog) Phases() map[string]model.Bilingual {
	out := make(map[string]model.Bilingual, len(c.phases))
	for k, v := range c.phases {
		out[k] = v
	}
	return out
}

func (c *Catalog) Len() int { return len(c.byID) }

// Categories lists every category in catalog order.
func (c *Catalog) Categories() []Summary {
	out := make([]Summary, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Summary{ID: cat.ID, Name: cat.Name, Icon: cat.Icon, Phase: cat.Phase, PhraseCount: len(cat.Phrases)}
	}
	return out
}

// Phrase looks up one standard phrase.
func (c *Catalog) Phrase(id string) (model.StandardPhrase, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// All returns every phrase in catalog order.
func (c *Catalog) All() []model.StandardPhrase {
	return c.filter(func(string, model.StandardPhrase) bool { return true })
}

// ByCategory returns a category's phrases, or nil for an unknown id.
func (c *Catalog) ByCategory(id string) []model.StandardPhrase {
	return c.filter(func(_ string, p model.StandardPhrase) bool { return p.CategoryID == id })
}

func (c *Catalog) ByPhase(phase string) []model.StandardPhrase {
	return c.filter(func(ph string, _ model.StandardPhrase) bool { return ph == phase })
}

func (c *Catalog) ByDifficulty(d string) []model.StandardPhrase {
	return c.filter(func(_ string, p model.StandardPhrase) bool { return p.Difficulty == d })
}

func (c *Catalog) filter(keep func(phase string, p model.StandardPhrase) bool) []model.StandardPhrase {
	var out []model.StandardPhrase
	for _, cat := range c.categories {
		for _, p := range cat.Phrases {
			if keep(cat.Phase, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Apply returns phrases with each override's non-nil fields laid over the
// catalog values. The input slice is not modified.
func Apply(phrases []model.StandardPhrase, overrides map[string]model.PhraseOverride) []model.StandardPhrase {
	out := make([]model.StandardPhrase, len(phrases))
	for i, p := range phrases {
		if o, ok := overrides[p.ID]; ok {
			if o.EN != nil {
				p.EN = *o.EN
			}
			if o.CN != nil {
				p.CN = *o.CN
			}
			if o.Pinyin != nil {
				p.Pinyin = *o.Pinyin
			}
			if o.Context != nil {
				ctx := *o.Context
				p.Context = &ctx
			}
		}
		out[i] = p
	}
	return out
}
