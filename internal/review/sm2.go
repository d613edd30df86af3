// Package review schedules phrase practice with the SuperMemo-2 algorithm.
package review

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

// Quality is the learner's self-graded recall, 0 through 5.
type Quality int

const (
	QualityBlackout          Quality = 0
	QualityIncorrect         Quality = 1
	QualityIncorrectFamiliar Quality = 2
	QualityCorrectDifficult  Quality = 3
	QualityCorrectHesitation Quality = 4
	QualityPerfect           Quality = 5
)

// Valid reports whether q is a gradeable value.
func (q Quality) Valid() bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// Config tunes the scheduler. Zero fields take SM-2 defaults.
type Config struct {
	// PassThreshold is the lowest grade counted as a correct answer.
	PassThreshold Quality
	// MaxInterval caps the gap between reviews, in days.
	MaxInterval int
	InitialEase float64
	MinEase     float64
}

// SM2 applies review grades to progress records.
type SM2 struct {
	cfg Config
}

func NewSM2(cfg Config) *SM2 {
	if cfg.PassThreshold == 0 {
		cfg.PassThreshold = QualityCorrectDifficult
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 365
	}
	if cfg.InitialEase == 0 {
		cfg.InitialEase = 2.5
	}
	if cfg.MinEase == 0 {
		cfg.MinEase = 1.3
	}
	return &SM2{cfg: cfg}
}

// Review grades one answer and moves the record's due date. The record is
// updated in place.
func (sm *SM2) Review(p *model.Progress, q Quality, now time.Time) error {
	if !q.Valid() {
		return fmt.Errorf("review grade %d: %w", q, model.ErrInvalid)
	}

	ease := p.EaseFactor
	if ease == 0 {
		ease = sm.cfg.InitialEase
	}
	miss := float64(QualityPerfect - q)
	ease += 0.1 - miss*(0.08+miss*0.02)
	if ease < sm.cfg.MinEase {
		ease = sm.cfg.MinEase
	}
	p.EaseFactor = math.Round(ease*100) / 100

	if q >= sm.cfg.PassThreshold {
		switch p.Repetitions {
		case 0:
			p.Interval = 1
		case 1:
			p.Interval = 6
		default:
			p.Interval = int(math.Round(float64(p.Interval) * p.EaseFactor))
		}
		if p.Interval > sm.cfg.MaxInterval {
			p.Interval = sm.cfg.MaxInterval
		}
		p.Repetitions++
		p.CorrectCount++
	} else {
		p.Repetitions = 0
		p.Interval = 1
		p.IncorrectCount++
	}

	p.DueDate = model.Timestamp(now.AddDate(0, 0, p.Interval))
	return nil
}

// Mastered reports whether a phrase has been recalled reliably for a month.
func (sm *SM2) Mastered(p model.Progress) bool {
	return p.Repetitions >= 5 && p.Interval >= 30
}

type dueItem struct {
	id    string
	fresh bool
	ease  float64
	due   time.Time
	order int
}

// Due picks up to limit phrase ids that need practice at now. Phrases with
// no record are due. Unreviewed phrases come first, then the hardest, then
// the most overdue. A limit of zero or less returns every due phrase.
func (sm *SM2) Due(progress map[string]model.Progress, phraseIDs []string, now time.Time, limit int) []string {
	var items []dueItem
	for i, id := range phraseIDs {
		p, ok := progress[id]
		if !ok || p.DueDate == "" {
			items = append(items, dueItem{id: id, fresh: true, order: i})
			continue
		}
		due, err := time.Parse(time.RFC3339, p.DueDate)
		if err != nil || !due.After(now) {
			items = append(items, dueItem{id: id, fresh: p.Repetitions == 0 && p.CorrectCount == 0, ease: p.EaseFactor, due: due, order: i})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.fresh != b.fresh {
			return a.fresh
		}
		if a.ease != b.ease {
			return a.ease < b.ease
		}
		if !a.due.Equal(b.due) {
			return a.due.Before(b.due)
		}
		return a.order < b.order
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids
}
