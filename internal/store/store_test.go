package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"lessonbot/internal/schedule"
)

func testLimits() Limits {
	return Limits{MinOffset: 1, MaxOffset: 120, DefaultOffset: 10, MaxLessons: 3}
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	s, err := Open(Config{Driver: "file", Path: path}, testLimits(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestRegisterAndGet(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)

	if err := s.Register(42, "EE-2401"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	u, ok := s.Get(42)
	if !ok {
		t.Fatal("user missing after Register")
	}
	if u.Group != "EE-2401" || u.OffsetMinutes != 10 {
		t.Fatalf("unexpected record: %+v", u)
	}

	// Re-registration keeps settings, replaces group.
	if err := s.SetOffset(42, 25); err != nil {
		t.Fatalf("SetOffset: %v", err)
	}
	if err := s.Register(42, ""); err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	u, _ = s.Get(42)
	if u.Group != "" || u.OffsetMinutes != 25 {
		t.Fatalf("re-registration lost settings: %+v", u)
	}
}

func TestAddLessonEnforcesLimit(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	if err := s.Register(1, ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i := 0; i < 3; i++ {
		l := schedule.CustomLesson{ID: string(rune('a' + i)), Day: "Monday", Subject: "x", Start: "09:00", End: "10:00", Room: "GYM"}
		if err := s.AddLesson(1, l); err != nil {
			t.Fatalf("AddLesson %d: %v", i, err)
		}
	}
	err := s.AddLesson(1, schedule.CustomLesson{ID: "d", Day: "Monday"})
	if !errors.Is(err, ErrLessonLimit) {
		t.Fatalf("err = %v, want ErrLessonLimit", err)
	}
}

func TestDeleteLesson(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	_ = s.Register(1, "")
	_ = s.AddLesson(1, schedule.CustomLesson{ID: "abc", Day: "Monday"})

	ok, err := s.DeleteLesson(1, "abc")
	if err != nil || !ok {
		t.Fatalf("DeleteLesson = %v, %v", ok, err)
	}
	ok, err = s.DeleteLesson(1, "abc")
	if err != nil || ok {
		t.Fatalf("second DeleteLesson = %v, %v; want false, nil", ok, err)
	}
}

func TestRemoveFiresEvictHooks(t *testing.T) {
	t.Parallel()
	s, _ := openTestStore(t)
	var evicted []int64
	s.OnEvict(func(id int64) { evicted = append(evicted, id) })

	_ = s.Register(7, "")
	ok, err := s.Remove(7)
	if err != nil || !ok {
		t.Fatalf("Remove = %v, %v", ok, err)
	}
	if len(evicted) != 1 || evicted[0] != 7 {
		t.Fatalf("evict hooks saw %v", evicted)
	}
	if _, ok := s.Get(7); ok {
		t.Fatal("user still present after Remove")
	}
	// Removing an unknown user is a no-op, not an error.
	ok, err = s.Remove(7)
	if err != nil || ok {
		t.Fatalf("second Remove = %v, %v", ok, err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()
	s, path := openTestStore(t)
	_ = s.Register(5, "IT-2402")
	_ = s.AddLesson(5, schedule.CustomLesson{ID: "l1", Day: "Friday", Subject: "Study Group", Start: "09:00", End: "10:30", Room: "ONLINE"})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(Config{Driver: "file", Path: path}, testLimits(), zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	u, ok := s2.Get(5)
	if !ok {
		t.Fatal("user lost across restart")
	}
	if len(u.Lessons) != 1 || u.Lessons[0].Subject != "Study Group" {
		t.Fatalf("lessons lost: %+v", u.Lessons)
	}
}

func TestLoadMigratesLegacyStringFormat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "users.json")
	legacy := `{"99": "EE-2401", "100": {"group": "IT-2402", "learn_notify": true, "notification_offset": 15}}`
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s, err := Open(Config{Driver: "file", Path: path}, testLimits(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	u, ok := s.Get(99)
	if !ok || u.Group != "EE-2401" {
		t.Fatalf("legacy user = %+v, %v", u, ok)
	}
	if u.OffsetMinutes != 10 {
		t.Fatalf("legacy user offset = %d, want default 10", u.OffsetMinutes)
	}
	u, _ = s.Get(100)
	if !u.LearnNotify || u.OffsetMinutes != 15 {
		t.Fatalf("full-format user = %+v", u)
	}
}

func TestLoadTruncatesOverflowKeepingEarliest(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "users.json")
	seed := `{"1": {"custom_lessons": [
		{"id": "a", "day": "Monday", "subject": "s", "start_time": "09:00", "end_time": "10:00", "room": "GYM"},
		{"id": "b", "day": "Monday", "subject": "s", "start_time": "09:00", "end_time": "10:00", "room": "GYM"},
		{"id": "c", "day": "Monday", "subject": "s", "start_time": "09:00", "end_time": "10:00", "room": "GYM"},
		{"id": "d", "day": "Monday", "subject": "s", "start_time": "09:00", "end_time": "10:00", "room": "GYM"}
	]}}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s, err := Open(Config{Driver: "file", Path: path}, testLimits(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	u, _ := s.Get(1)
	if len(u.Lessons) != 3 {
		t.Fatalf("lessons = %d, want 3", len(u.Lessons))
	}
	if u.Lessons[0].ID != "a" || u.Lessons[2].ID != "c" {
		t.Fatalf("truncation kept wrong entries: %+v", u.Lessons)
	}
}

func TestOffsetClampedOnLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "users.json")
	seed := `{"1": {"notification_offset": 9999}}`
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, err := Open(Config{Driver: "file", Path: path}, testLimits(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	u, _ := s.Get(1)
	if u.OffsetMinutes != 120 {
		t.Fatalf("offset = %d, want clamped 120", u.OffsetMinutes)
	}
}
