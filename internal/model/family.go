package model

import "time"

// MaxUsers is the most members a family may hold.
const MaxUsers = 10

type LearningDirection string

const (
	DirectionCNToEN LearningDirection = "cn-to-en"
	DirectionENToCN LearningDirection = "en-to-cn"
)

// Target returns the spoken language a learner with this direction practices.
// cn-to-en learners are native English speakers studying Chinese.
func (d LearningDirection) Target() Language {
	if d == DirectionENToCN {
		return LanguageEnglish
	}
	return LanguageChinese
}

type Language string

const (
	LanguageChinese Language = "zh-CN"
	LanguageEnglish Language = "en-US"
)

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

type AgeGroup string

const (
	AgeGroupChild AgeGroup = "child"
	AgeGroupTeen  AgeGroup = "teen"
	AgeGroupAdult AgeGroup = "adult"
)

// Bilingual holds the same text in English and Chinese.
type Bilingual struct {
	EN string `json:"en"`
	CN string `json:"cn"`
}

// Family is the aggregate root shared by every device of a household.
// Timestamps are ISO-8601 strings so they survive the round trip through
// other clients unchanged and compare lexicographically.
type Family struct {
	ID      string    `json:"id"`
	Name    Bilingual `json:"name"`
	Created string    `json:"created,omitempty"`
	Users   []Member  `json:"users"`
}

// Initialized reports whether the family has been given an identity.
func (f *Family) Initialized() bool {
	return f != nil && f.ID != ""
}

// Member returns the member with the given id, or nil.
func (f *Family) Member(id string) *Member {
	for i := range f.Users {
		if f.Users[i].ID == id {
			return &f.Users[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate the result freely.
func (f *Family) Clone() *Family {
	if f == nil {
		return nil
	}
	c := *f
	c.Users = make([]Member, len(f.Users))
	for i, m := range f.Users {
		c.Users[i] = m.Clone()
	}
	return &c
}

type Member struct {
	ID                string              `json:"id"`
	Name              Bilingual           `json:"name"`
	Avatar            string              `json:"avatar"`
	AgeGroup          AgeGroup            `json:"ageGroup"`
	LearningDirection LearningDirection   `json:"learningDirection"`
	TargetLanguage    Language            `json:"targetLanguage"`
	Level             Level               `json:"level"`
	Created           string              `json:"created,omitempty"`
	Stats             Stats               `json:"stats"`
	Progress          map[string]Progress `json:"progress"`
}

func (m Member) Clone() Member {
	c := m
	if m.Stats.LastPractice != nil {
		lp := *m.Stats.LastPractice
		c.Stats.LastPractice = &lp
	}
	c.Progress = make(map[string]Progress, len(m.Progress))
	for k, v := range m.Progress {
		c.Progress[k] = v
	}
	return c
}

type Stats struct {
	TotalSessions int     `json:"totalSessions"`
	TotalPhrases  int     `json:"totalPhrases"`
	CurrentStreak int     `json:"currentStreak"`
	LongestStreak int     `json:"longestStreak"`
	Accuracy      float64 `json:"accuracy"`
	LastPractice  *string `json:"lastPractice"`
}

// Progress is the spaced-repetition state of one phrase for one member.
type Progress struct {
	Interval       int     `json:"interval"`
	EaseFactor     float64 `json:"easeFactor"`
	DueDate        string  `json:"dueDate"`
	CorrectCount   int     `json:"correctCount"`
	IncorrectCount int     `json:"incorrectCount"`
	Repetitions    int     `json:"repetitions,omitempty"`
}

// FamilyStats summarizes all members for the family dashboard.
type FamilyStats struct {
	TotalSessions int     `json:"totalSessions"`
	TotalPhrases  int     `json:"totalPhrases"`
	AvgAccuracy   float64 `json:"avgAccuracy"`
	ActiveUsers   int     `json:"activeUsers"`
	TotalUsers    int     `json:"totalUsers"`
}

// Timestamp formats t the way synced records store times.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
