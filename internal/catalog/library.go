package catalog

import (
	"fmt"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

// PhraseSource is the local phrase storage a Library reads from.
type PhraseSource interface {
	List(memberID string) ([]model.Phrase, error)
	Overrides(memberID string) (map[string]model.PhraseOverride, error)
	SetOverride(o model.PhraseOverride) error
	DeleteOverride(memberID, phraseID string) error
}

// View is one member's phrase library.
type View struct {
	Version    string                 `json:"version"`
	Categories []Summary              `json:"categories"`
	Phrases    []model.StandardPhrase `json:"phrases"`
	Custom     []model.Phrase         `json:"custom"`
}

// Library combines the catalog with per-member storage.
type Library struct {
	catalog *Catalog
	phrases PhraseSource
	now     func() time.Time
}

func NewLibrary(c *Catalog, phrases PhraseSource) *Library {
	return &Library{catalog: c, phrases: phrases, now: time.Now}
}

func (l *Library) Catalog() *Catalog { return l.catalog }

// ForMember returns the member's view. An empty categoryID selects every
// category; CustomCategoryID selects only the member's own phrases.
func (l *Library) ForMember(memberID, categoryID string) (*View, error) {
	custom, err := l.phrases.List(memberID)
	if err != nil {
		return nil, fmt.Errorf("list custom phrases: %w", err)
	}
	overrides, err := l.phrases.Overrides(memberID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	v := &View{
		Version:    l.catalog.Version(),
		Categories: l.catalog.Categories(),
		Custom:     custom,
	}
	if len(custom) > 0 {
		v.Categories = append([]Summary{{
			ID:          CustomCategoryID,
			Name:        customName,
			Icon:        "⭐",
			Phase:       CustomCategoryID,
			PhraseCount: len(custom),
		}}, v.Categories...)
	}

	switch categoryID {
	case "":
		v.Phrases = Apply(l.catalog.All(), overrides)
	case CustomCategoryID:
		v.Phrases = []model.StandardPhrase{}
	default:
		phrases := l.catalog.ByCategory(categoryID)
		if phrases == nil {
			return nil, fmt.Errorf("category %q: %w", categoryID, model.ErrNotFound)
		}
		v.Phrases = Apply(phrases, overrides)
		v.Custom = []model.Phrase{}
	}
	if v.Custom == nil {
		v.Custom = []model.Phrase{}
	}
	return v, nil
}

// Override stores a member's edit of a standard phrase.
func (l *Library) Override(o model.PhraseOverride) (*model.PhraseOverride, error) {
	if _, ok := l.catalog.Phrase(o.PhraseID); !ok {
		return nil, fmt.Errorf("override phrase %q: %w", o.PhraseID, model.ErrNotFound)
	}
	o.UpdatedAt = l.now().UTC()
	if err := l.phrases.SetOverride(o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ResetOverride drops a member's edit of a standard phrase.
func (l *Library) ResetOverride(memberID, phraseID string) error {
	return l.phrases.DeleteOverride(memberID, phraseID)
}
