package review

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/dukerupert/famlingo/internal/model"
)

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func closeTo(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestReviewSequence(t *testing.T) {
	sm := NewSM2(Config{})
	var p model.Progress

	steps := []struct {
		q        Quality
		interval int
		ease     float64
		reps     int
	}{
		{QualityPerfect, 1, 2.6, 1},
		{QualityCorrectHesitation, 6, 2.6, 2},
		{QualityCorrectDifficult, 15, 2.46, 3},
		{QualityIncorrect, 1, 1.92, 0},
	}
	for i, s := range steps {
		if err := sm.Review(&p, s.q, now); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if p.Interval != s.interval || p.Repetitions != s.reps || !closeTo(p.EaseFactor, s.ease) {
			t.Fatalf("step %d: got interval=%d reps=%d ease=%v, want %d %d %v",
				i, p.Interval, p.Repetitions, p.EaseFactor, s.interval, s.reps, s.ease)
		}
	}
	if p.CorrectCount != 3 || p.IncorrectCount != 1 {
		t.Errorf("counts = %d/%d, want 3/1", p.CorrectCount, p.IncorrectCount)
	}
	if want := model.Timestamp(now.AddDate(0, 0, 1)); p.DueDate != want {
		t.Errorf("due = %q, want %q", p.DueDate, want)
	}
}

func TestReviewEaseFloorAndCap(t *testing.T) {
	sm := NewSM2(Config{})

	p := model.Progress{EaseFactor: 1.3}
	if err := sm.Review(&p, QualityBlackout, now); err != nil {
		t.Fatalf("review: %v", err)
	}
	if !closeTo(p.EaseFactor, 1.3) {
		t.Errorf("ease = %v, want floor 1.3", p.EaseFactor)
	}

	p = model.Progress{Interval: 300, EaseFactor: 2.5, Repetitions: 5}
	if err := sm.Review(&p, QualityCorrectHesitation, now); err != nil {
		t.Fatalf("review: %v", err)
	}
	if p.Interval != 365 {
		t.Errorf("interval = %d, want cap 365", p.Interval)
	}
}

func TestReviewRejectsBadGrade(t *testing.T) {
	sm := NewSM2(Config{})
	p := model.Progress{Interval: 4}
	for _, q := range []Quality{-1, 6} {
		if err := sm.Review(&p, q, now); !errors.Is(err, model.ErrInvalid) {
			t.Errorf("grade %d: err = %v, want ErrInvalid", q, err)
		}
	}
	if p.Interval != 4 {
		t.Error("rejected grade modified the record")
	}
}

func TestDueOrdering(t *testing.T) {
	sm := NewSM2(Config{})
	past := func(d int) string { return model.Timestamp(now.AddDate(0, 0, -d)) }

	progress := map[string]model.Progress{
		"easy":    {EaseFactor: 2.8, DueDate: past(1), Repetitions: 3, CorrectCount: 3},
		"hard":    {EaseFactor: 1.5, DueDate: past(1), Repetitions: 1, CorrectCount: 1},
		"older":   {EaseFactor: 2.8, DueDate: past(5), Repetitions: 3, CorrectCount: 3},
		"future":  {EaseFactor: 1.3, DueDate: model.Timestamp(now.AddDate(0, 0, 2)), Repetitions: 2},
		"garbled": {EaseFactor: 2.0, DueDate: "soon", Repetitions: 2, CorrectCount: 2},
	}
	ids := []string{"easy", "new-b", "hard", "future", "older", "new-a", "garbled"}

	got := sm.Due(progress, ids, now, 0)
	want := []string{"new-b", "new-a", "hard", "garbled", "older", "easy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("due = %v, want %v", got, want)
	}

	if got := sm.Due(progress, ids, now, 3); !reflect.DeepEqual(got, want[:3]) {
		t.Errorf("limited due = %v, want %v", got, want[:3])
	}
}

func TestMastered(t *testing.T) {
	sm := NewSM2(Config{})
	if sm.Mastered(model.Progress{Repetitions: 5, Interval: 29}) {
		t.Error("29-day interval should not be mastered")
	}
	if !sm.Mastered(model.Progress{Repetitions: 5, Interval: 30}) {
		t.Error("5 reps at 30 days should be mastered")
	}
}
