package bot

import (
	"testing"
	"time"
)

func TestCooldownAllowAndDeny(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	tbl := newCooldownTable()
	tbl.now = func() time.Time { return now }

	if _, ok := tbl.allow("timetable", 1, 30*time.Second); !ok {
		t.Fatal("first use denied")
	}
	left, ok := tbl.allow("timetable", 1, 30*time.Second)
	if ok {
		t.Fatal("second immediate use allowed")
	}
	if left != 30*time.Second {
		t.Errorf("remaining = %v, want 30s", left)
	}

	// A different command or user is independent.
	if _, ok := tbl.allow("find", 1, 10*time.Second); !ok {
		t.Error("different command shares cooldown")
	}
	if _, ok := tbl.allow("timetable", 2, 30*time.Second); !ok {
		t.Error("different user shares cooldown")
	}

	now = now.Add(31 * time.Second)
	if _, ok := tbl.allow("timetable", 1, 30*time.Second); !ok {
		t.Error("use after expiry denied")
	}
}

func TestCooldownPurge(t *testing.T) {
	t.Parallel()

	tbl := newCooldownTable()
	tbl.allow("timetable", 1, time.Minute)
	tbl.allow("find", 1, time.Minute)
	tbl.allow("timetable", 21, time.Minute)

	tbl.purge(1)

	if _, ok := tbl.allow("timetable", 1, time.Minute); !ok {
		t.Error("purged user still on cooldown")
	}
	if _, ok := tbl.allow("find", 1, time.Minute); !ok {
		t.Error("purged user still on find cooldown")
	}
	// chat 21 must not be swept by the chat 1 purge.
	if _, ok := tbl.allow("timetable", 21, time.Minute); ok {
		t.Error("unrelated user's cooldown was purged")
	}
}
