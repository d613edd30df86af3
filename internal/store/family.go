package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/famlingo/internal/model"
)

// NewMember is the input for AddMember. Empty fields take defaults.
type NewMember struct {
	NameEN            string                  `json:"nameEn"`
	NameCN            string                  `json:"nameCn"`
	Avatar            string                  `json:"avatar"`
	AgeGroup          model.AgeGroup          `json:"ageGroup"`
	LearningDirection model.LearningDirection `json:"learningDirection"`
	TargetLanguage    model.Language          `json:"targetLanguage"`
	Level             model.Level             `json:"level"`
}

// StatsUpdate patches a member's counters after a practice session.
type StatsUpdate struct {
	TotalSessions *int     `json:"totalSessions"`
	TotalPhrases  *int     `json:"totalPhrases"`
	Accuracy      *float64 `json:"accuracy"`
}

// ProgressUpdate patches one phrase's progress record.
type ProgressUpdate struct {
	Interval       *int     `json:"interval"`
	EaseFactor     *float64 `json:"easeFactor"`
	DueDate        *string  `json:"dueDate"`
	CorrectCount   *int     `json:"correctCount"`
	IncorrectCount *int     `json:"incorrectCount"`
}

const defaultAvatar = "👤"

// FamilyStore owns the local family aggregate. Every mutation, including the
// sync orchestrator's whole replace, runs under one mutex.
type FamilyStore struct {
	state  *StateStore
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewFamilyStore(state *StateStore, logger *slog.Logger) *FamilyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FamilyStore{
		state:  state,
		logger: logger.With("component", "family"),
		now:    time.Now,
	}
}

func emptyFamily() *model.Family {
	return &model.Family{Users: []model.Member{}}
}

// load reads the family and fills targetLanguage for members saved before
// the field existed. Caller holds mu.
func (s *FamilyStore) load() (*model.Family, error) {
	raw, err := s.state.Get(KeyFamily)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return emptyFamily(), nil
	}

	var f model.Family
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("decode family: %w", err)
	}
	if f.Users == nil {
		f.Users = []model.Member{}
	}

	migrated := false
	for i := range f.Users {
		m := &f.Users[i]
		if m.TargetLanguage == "" {
			m.TargetLanguage = m.LearningDirection.Target()
			migrated = true
			s.logger.Info("migrated member target language", "member", m.ID, "target", m.TargetLanguage)
		}
		if m.Progress == nil {
			m.Progress = map[string]model.Progress{}
		}
	}
	if migrated {
		if err := s.save(&f); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func (s *FamilyStore) save(f *model.Family) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode family: %w", err)
	}
	return s.state.Set(KeyFamily, string(data))
}

// update loads the family, applies fn and saves the result.
func (s *FamilyStore) update(fn func(f *model.Family) error) (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := fn(f); err != nil {
		return nil, err
	}
	if err := s.save(f); err != nil {
		return nil, err
	}
	return f.Clone(), nil
}

// Get returns a copy of the local family. An uninitialized family has an
// empty ID.
func (s *FamilyStore) Get() (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	return f.Clone(), nil
}

// Replace swaps the whole aggregate.
func (s *FamilyStore) Replace(f *model.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil {
		f = emptyFamily()
	}
	return s.save(f)
}

// Apply runs fn against the current family and adopts its result as a
// whole replace, without letting other mutations interleave.
func (s *FamilyStore) Apply(fn func(local *model.Family) (*model.Family, error)) (*model.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, err := s.load()
	if err != nil {
		return nil, err
	}
	next, err := fn(local)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = emptyFamily()
	}
	if err := s.save(next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Initialize gives the family an identity and name on first setup.
func (s *FamilyStore) Initialize(name model.Bilingual) (*model.Family, error) {
	f, err := s.update(func(f *model.Family) error {
		f.ID = uuid.NewString()
		f.Name = name
		f.Created = model.Timestamp(s.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("initialize family: %w", err)
	}
	s.logger.Info("family initialized", "family", f.ID, "name", name.EN)
	return f, nil
}

// AddMember appends a member with defaults filled in. The first member
// becomes the current user.
func (s *FamilyStore) AddMember(in NewMember) (*model.Member, error) {
	direction := in.LearningDirection
	if direction == "" {
		direction = model.DirectionCNToEN
	}
	target := in.TargetLanguage
	if target == "" {
		target = direction.Target()
	}
	avatar := in.Avatar
	if avatar == "" {
		avatar = defaultAvatar
	}
	age := in.AgeGroup
	if age == "" {
		age = model.AgeGroupAdult
	}
	level := in.Level
	if level == "" {
		level = model.LevelBeginner
	}

	m := model.Member{
		ID:                uuid.NewString(),
		Name:              model.Bilingual{EN: in.NameEN, CN: in.NameCN},
		Avatar:            avatar,
		AgeGroup:          age,
		LearningDirection: direction,
		TargetLanguage:    target,
		Level:             level,
		Created:           model.Timestamp(s.now()),
		Progress:          map[string]model.Progress{},
	}

	_, err := s.update(func(f *model.Family) error {
		if len(f.Users) >= model.MaxUsers {
			return fmt.Errorf("add member: %w (max %d)", model.ErrFamilyFull, model.MaxUsers)
		}
		f.Users = append(f.Users, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	current, err := s.state.Get(KeyCurrentUser)
	if err != nil {
		return nil, err
	}
	if current == "" {
		if err := s.state.Set(KeyCurrentUser, m.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("member added", "member", m.ID, "name", m.Name.EN)
	return &m, nil
}

// SwitchUser makes id the current user.
func (s *FamilyStore) SwitchUser(id string) error {
	f, err := s.Get()
	if err != nil {
		return err
	}
	if f.Member(id) == nil {
		return fmt.Errorf("switch user %q: %w", id, model.ErrMemberNotFound)
	}
	return s.state.Set(KeyCurrentUser, id)
}

// CurrentUser returns the current member, or nil when none is selected or the
// saved id no longer exists.
func (s *FamilyStore) CurrentUser() (*model.Member, error) {
	id, err := s.state.Get(KeyCurrentUser)
	if err != nil || id == "" {
		return nil, err
	}
	f, err := s.Get()
	if err != nil {
		return nil, err
	}
	m := f.Member(id)
	if m == nil {
		return nil, nil
	}
	c := m.Clone()
	return &c, nil
}

// UpdateStats applies a practice-session patch, moves lastPractice forward
// to now and recomputes the streak.
func (s *FamilyStore) UpdateStats(id string, u StatsUpdate) (*model.Member, error) {
	now := s.now()
	var out model.Member
	_, err := s.update(func(f *model.Family) error {
		m := f.Member(id)
		if m == nil {
			return fmt.Errorf("update stats %q: %w", id, model.ErrMemberNotFound)
		}
		if u.TotalSessions != nil {
			m.Stats.TotalSessions = *u.TotalSessions
		}
		if u.TotalPhrases != nil {
			m.Stats.TotalPhrases = *u.TotalPhrases
		}
		if u.Accuracy != nil {
			m.Stats.Accuracy = *u.Accuracy
		}
		applyPractice(&m.Stats, now)
		out = m.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// applyPractice records a practice at now. Consecutive calendar days extend
// the streak, a gap resets it to 1 and the same day leaves it alone.
// lastPractice never moves backwards.
func applyPractice(st *model.Stats, now time.Time) {
	stamp := model.Timestamp(now)

	if st.LastPractice == nil {
		st.CurrentStreak = 1
	} else if prev, ok := parsePractice(*st.LastPractice); !ok {
		st.CurrentStreak = 1
	} else {
		switch days := calendarDays(prev, now); {
		case days <= 0:
		case days == 1:
			st.CurrentStreak++
		default:
			st.CurrentStreak = 1
		}
	}
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}

	if st.LastPractice == nil || stamp > *st.LastPractice {
		st.LastPractice = &stamp
	}
}

// parsePractice reads a lastPractice stamp. Older snapshots and other
// clients store a bare date.
func parsePractice(v string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func calendarDays(from, to time.Time) int {
	y1, m1, d1 := from.UTC().Date()
	y2, m2, d2 := to.UTC().Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// UpdateProgress patches the progress record of one phrase.
func (s *FamilyStore) UpdateProgress(id, phraseID string, u ProgressUpdate) (*model.Progress, error) {
	var out model.Progress
	_, err := s.update(func(f *model.Family) error {
		m := f.Member(id)
		if m == nil {
			return fmt.Errorf("update progress %q: %w", id, model.ErrMemberNotFound)
		}
		p := m.Progress[phraseID]
		if u.Interval != nil {
			p.Interval = *u.Interval
		}
		if u.EaseFactor != nil {
			p.EaseFactor = *u.EaseFactor
		}
		if u.DueDate != nil {
			p.DueDate = *u.DueDate
		}
		if u.CorrectCount != nil {
			p.CorrectCount = *u.CorrectCount
		}
		if u.IncorrectCount != nil {
			p.IncorrectCount = *u.IncorrectCount
		}
		if m.Progress == nil {
			m.Progress = map[string]model.Progress{}
		}
		m.Progress[phraseID] = p
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetProgress replaces the progress record of one phrase.
func (s *FamilyStore) SetProgress(id, phraseID string, p model.Progress) error {
	_, err := s.update(func(f *model.Family) error {
		m := f.Member(id)
		if m == nil {
			return fmt.Errorf("set progress %q: %w", id, model.ErrMemberNotFound)
		}
		if m.Progress == nil {
			m.Progress = map[string]model.Progress{}
		}
		m.Progress[phraseID] = p
		return nil
	})
	return err
}

// ReviseProgress rewrites one phrase's progress record in place under the
// store lock. fn receives the zero value when the phrase has no record yet.
func (s *FamilyStore) ReviseProgress(id, phraseID string, fn func(p *model.Progress) error) (*model.Progress, error) {
	var out model.Progress
	_, err := s.update(func(f *model.Family) error {
		m := f.Member(id)
		if m == nil {
			return fmt.Errorf("revise progress %q: %w", id, model.ErrMemberNotFound)
		}
		p := m.Progress[phraseID]
		if err := fn(&p); err != nil {
			return err
		}
		if m.Progress == nil {
			m.Progress = map[string]model.Progress{}
		}
		m.Progress[phraseID] = p
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMember removes a member. If it was the current user, the first
// remaining member takes over.
func (s *FamilyStore) DeleteMember(id string) error {
	f, err := s.update(func(f *model.Family) error {
		for i := range f.Users {
			if f.Users[i].ID == id {
				f.Users = append(f.Users[:i], f.Users[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("delete member %q: %w", id, model.ErrMemberNotFound)
	})
	if err != nil {
		return err
	}

	current, err := s.state.Get(KeyCurrentUser)
	if err != nil {
		return err
	}
	if current == id {
		next := ""
		if len(f.Users) > 0 {
			next = f.Users[0].ID
		}
		if err := s.state.Set(KeyCurrentUser, next); err != nil {
			return err
		}
	}
	s.logger.Info("member deleted", "member", id)
	return nil
}

// Reset forgets the family and the current user.
func (s *FamilyStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Delete(KeyFamily, KeyCurrentUser); err != nil {
		return fmt.Errorf("reset family: %w", err)
	}
	s.logger.Info("family reset")
	return nil
}

// ByStreak returns members ordered by current streak, highest first.
func (s *FamilyStore) ByStreak() ([]model.Member, error) {
	return s.sorted(func(a, b model.Member) bool {
		return a.Stats.CurrentStreak > b.Stats.CurrentStreak
	})
}

// ByAccuracy returns members ordered by accuracy, highest first.
func (s *FamilyStore) ByAccuracy() ([]model.Member, error) {
	return s.sorted(func(a, b model.Member) bool {
		return a.Stats.Accuracy > b.Stats.Accuracy
	})
}

func (s *FamilyStore) sorted(less func(a, b model.Member) bool) ([]model.Member, error) {
	f, err := s.Get()
	if err != nil {
		return nil, err
	}
	members := f.Users
	sort.SliceStable(members, func(i, j int) bool { return less(members[i], members[j]) })
	return members, nil
}

// Stats totals the family's counters.
func (s *FamilyStore) Stats() (*model.FamilyStats, error) {
	f, err := s.Get()
	if err != nil {
		return nil, err
	}
	out := &model.FamilyStats{TotalUsers: len(f.Users)}
	var accuracy float64
	for _, m := range f.Users {
		out.TotalSessions += m.Stats.TotalSessions
		out.TotalPhrases += m.Stats.TotalPhrases
		accuracy += m.Stats.Accuracy
		if m.Stats.CurrentStreak > 0 {
			out.ActiveUsers++
		}
	}
	if len(f.Users) > 0 {
		out.AvgAccuracy = accuracy / float64(len(f.Users))
	}
	return out, nil
}
