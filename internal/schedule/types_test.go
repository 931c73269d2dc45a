package schedule

import "testing"

func TestValidHHMM(t *testing.T) {
	t.Parallel()
	valid := []string{"00:00", "09:00", "14:30", "23:59"}
	for _, s := range valid {
		if !ValidHHMM(s) {
			t.Errorf("ValidHHMM(%q) = false, want true", s)
		}
	}
	invalid := []string{"24:00", "9:00", "09:60", "0900", "09:0", "", "ab:cd", "09:00 "}
	for _, s := range invalid {
		if ValidHHMM(s) {
			t.Errorf("ValidHHMM(%q) = true, want false", s)
		}
	}
}

func TestMinuteOfDay(t *testing.T) {
	t.Parallel()
	m, err := MinuteOfDay("19:40")
	if err != nil {
		t.Fatalf("MinuteOfDay: %v", err)
	}
	if m != 19*60+40 {
		t.Fatalf("MinuteOfDay(19:40) = %d", m)
	}
	if _, err := MinuteOfDay("25:00"); err == nil {
		t.Fatal("expected error for 25:00")
	}
}

func TestSortLessons(t *testing.T) {
	t.Parallel()
	ls := []CustomLesson{
		{ID: "c", Day: "Friday", Start: "08:00"},
		{ID: "a", Day: "Monday", Start: "12:00"},
		{ID: "b", Day: "Monday", Start: "09:00"},
	}
	SortLessons(ls)
	got := ls[0].ID + ls[1].ID + ls[2].ID
	if got != "bac" {
		t.Fatalf("order = %s, want bac", got)
	}
}

func TestClampOffset(t *testing.T) {
	t.Parallel()
	if v := ClampOffset(0, 1, 120); v != 1 {
		t.Fatalf("low clamp = %d", v)
	}
	if v := ClampOffset(500, 1, 120); v != 120 {
		t.Fatalf("high clamp = %d", v)
	}
	if v := ClampOffset(10, 1, 120); v != 10 {
		t.Fatalf("in-range = %d", v)
	}
}

func TestUserCloneIsDeep(t *testing.T) {
	t.Parallel()
	u := User{ChatID: 1, Lessons: []CustomLesson{{ID: "x", Day: "Monday"}}}
	cp := u.Clone()
	cp.Lessons[0].Day = "Tuesday"
	if u.Lessons[0].Day != "Monday" {
		t.Fatal("Clone shares lesson slice with original")
	}
}
