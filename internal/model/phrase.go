package model

import "time"

// Phrase is a custom phrase owned by one member.
type Phrase struct {
	ID        string     `json:"id"`
	EN        string     `json:"en"`
	CN        string     `json:"cn"`
	Pinyin    string     `json:"pinyin,omitempty"`
	Context   *Bilingual `json:"context,omitempty"`
	Formality string     `json:"formality,omitempty"`
	MemberID  string     `json:"memberId,omitempty"`
	FamilyID  string     `json:"familyId,omitempty"`
	Created   string     `json:"created,omitempty"`
}

// StandardPhrase is an immutable catalog entry.
type StandardPhrase struct {
	ID         string     `json:"id"`
	EN         string     `json:"en"`
	CN         string     `json:"cn"`
	Pinyin     string     `json:"pinyin,omitempty"`
	Context    *Bilingual `json:"context,omitempty"`
	Difficulty string     `json:"difficulty,omitempty"`
	CategoryID string     `json:"categoryId,omitempty"`
}

type Category struct {
	ID      string           `json:"id"`
	Name    Bilingual        `json:"name"`
	Icon    string           `json:"icon"`
	Phase   string           `json:"phase"`
	Phrases []StandardPhrase `json:"phrases"`
}

// PhraseOverride is a member-scoped patch over a standard phrase. Nil fields
// leave the catalog value in place.
type PhraseOverride struct {
	MemberID  string     `json:"member_id"`
	PhraseID  string     `json:"phrase_id"`
	EN        *string    `json:"en,omitempty"`
	CN        *string    `json:"cn,omitempty"`
	Pinyin    *string    `json:"pinyin,omitempty"`
	Context   *Bilingual `json:"context,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// QueuedPhrase is a phrase addition waiting for the backend to come back.
type QueuedPhrase struct {
	ID         int64     `json:"id"`
	MemberID   string    `json:"member_id"`
	FamilyID   string    `json:"family_id"`
	Phrase     Phrase    `json:"phrase"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
