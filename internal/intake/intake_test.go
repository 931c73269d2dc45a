package intake

import (
	"errors"
	"testing"

	"lessonbot/internal/schedule"
)

func TestLessonChainHappyPath(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Begin(7, StepDay)

	inputs := []struct {
		text string
		next Step
	}{
		{"Tuesday", StepSubject},
		{"Linear Algebra", StepStart},
		{"09:00", StepEnd},
		{"10:30", StepRoom},
	}
	for _, in := range inputs {
		res := m.Advance(7, in.text)
		if res.Err != nil {
			t.Fatalf("Advance(%q): unexpected error %v", in.text, res.Err)
		}
		if res.Step != in.next {
			t.Fatalf("Advance(%q): step = %v, want %v", in.text, res.Step, in.next)
		}
	}

	res := m.Advance(7, "C1.2.144")
	if res.Err != nil || !res.Done {
		t.Fatalf("final Advance: done=%v err=%v", res.Done, res.Err)
	}
	l := res.Lesson
	if l.ID == "" {
		t.Error("committed lesson has empty ID")
	}
	if l.Day != "Tuesday" || l.Subject != "Linear Algebra" || l.Start != "09:00" || l.End != "10:30" || l.Room != "C1.2.144" {
		t.Errorf("committed lesson = %+v", l)
	}
	if m.Step(7) != StepNone {
		t.Errorf("step after commit = %v, want StepNone", m.Step(7))
	}
}

func TestLessonChainRejectionKeepsState(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Begin(1, StepDay)

	for _, s := range []string{"Monday", "Physics", "10:00"} {
		if res := m.Advance(1, s); res.Err != nil {
			t.Fatalf("Advance(%q): %v", s, res.Err)
		}
	}

	// End at or before start is rejected and the step does not move.
	res := m.Advance(1, "08:30")
	if !errors.Is(res.Err, schedule.ErrBadOrder) {
		t.Fatalf("end before start: err = %v, want ErrBadOrder", res.Err)
	}
	if res.Step != StepEnd || m.Step(1) != StepEnd {
		t.Fatalf("step after rejection = %v, want StepEnd", m.Step(1))
	}

	// Earlier fields survive the rejection.
	d, ok := m.Draft(1)
	if !ok || d.Day != "Monday" || d.Subject != "Physics" || d.Start != "10:00" {
		t.Fatalf("draft after rejection = %+v", d)
	}

	// A valid retry proceeds.
	res = m.Advance(1, "10:30")
	if res.Err != nil || res.Step != StepRoom {
		t.Fatalf("retry: step=%v err=%v", res.Step, res.Err)
	}
}

func TestLessonChainValidation(t *testing.T) {
	t.Parallel()

	long := make([]byte, schedule.MaxSubjectLen+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		upTo    []string
		input   string
		wantErr error
	}{
		{"bad day", nil, "Someday", schedule.ErrBadDay},
		{"empty subject", []string{"Friday"}, "   ", schedule.ErrEmptyField},
		{"long subject", []string{"Friday"}, string(long), schedule.ErrSubjectLong},
		{"bad start", []string{"Friday", "PE"}, "25:00", schedule.ErrBadTime},
		{"bad end", []string{"Friday", "PE", "10:00"}, "10:60", schedule.ErrBadTime},
		{"equal end", []string{"Friday", "PE", "10:00"}, "10:00", schedule.ErrBadOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewManager()
			m.Begin(1, StepDay)
			for _, s := range tt.upTo {
				if res := m.Advance(1, s); res.Err != nil {
					t.Fatalf("setup Advance(%q): %v", s, res.Err)
				}
			}
			res := m.Advance(1, tt.input)
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Advance(%q): err = %v, want %v", tt.input, res.Err, tt.wantErr)
			}
		})
	}
}

func TestOnlineRoomNormalized(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Begin(2, StepDay)
	for _, s := range []string{"Sunday", "Club", "18:00", "19:00"} {
		if res := m.Advance(2, s); res.Err != nil {
			t.Fatalf("Advance(%q): %v", s, res.Err)
		}
	}
	res := m.Advance(2, "online")
	if res.Err != nil || !res.Done {
		t.Fatalf("online room: done=%v err=%v", res.Done, res.Err)
	}
	if res.Lesson.Room != schedule.OnlineRoom {
		t.Errorf("room = %q, want %q", res.Lesson.Room, schedule.OnlineRoom)
	}
}

func TestCancelDiscardsFlow(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Begin(3, StepDay)
	m.Advance(3, "Monday")

	if !m.Cancel(3) {
		t.Fatal("Cancel returned false for active flow")
	}
	if m.Step(3) != StepNone {
		t.Errorf("step after cancel = %v", m.Step(3))
	}
	if _, ok := m.Draft(3); ok {
		t.Error("draft survived cancel")
	}
	if m.Cancel(3) {
		t.Error("second Cancel returned true")
	}
}

func TestBeginReplacesActiveFlow(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.Begin(4, StepDay)
	m.Advance(4, "Monday")

	m.Begin(4, StepMinutes)
	if got := m.Step(4); got != StepMinutes {
		t.Fatalf("step = %v, want StepMinutes", got)
	}
	if d, _ := m.Draft(4); d.Day != "" {
		t.Errorf("stale draft survived Begin: %+v", d)
	}
}

func TestAdvanceOutsideLessonChain(t *testing.T) {
	t.Parallel()

	m := NewManager()
	if res := m.Advance(5, "Monday"); res.Err == nil {
		t.Error("Advance with no flow: want error")
	}
	m.Begin(5, StepGroup)
	if res := m.Advance(5, "SE-2301"); res.Err == nil {
		t.Error("Advance during single-step flow: want error")
	}
}
