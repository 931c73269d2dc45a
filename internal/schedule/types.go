// Package schedule holds the user/lesson data model and the pure helpers
// shared by the intake flows and the notification scheduler.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Days are the seven accepted weekday names, week starting Monday.
// They match time.Weekday.String() so "now" resolves without mapping tables.
var Days = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// OnlineRoom is the reserved sentinel meaning "no physical location".
const OnlineRoom = "ONLINE"

// MaxSubjectLen bounds custom-lesson subject names.
const MaxSubjectLen = 100

var reHHMM = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

var (
	ErrBadDay      = errors.New("unknown day of week")
	ErrBadTime     = errors.New("time must be HH:MM (24-hour)")
	ErrBadOrder    = errors.New("end time must be after start time")
	ErrEmptyField  = errors.New("value must not be empty")
	ErrSubjectLong = fmt.Errorf("subject longer than %d characters", MaxSubjectLen)
)

// User is one registered chat. Group may be empty when registration did not
// match the official timetable; custom lessons still work then.
type User struct {
	ChatID        int64          `json:"chat_id"`
	Group         string         `json:"group,omitempty"`
	LearnNotify   bool           `json:"learn_notify"`
	OffsetMinutes int            `json:"notification_offset"`
	Lessons       []CustomLesson `json:"custom_lessons,omitempty"`
}

// CustomLesson is a user-authored weekly reminder. ID is assigned once at
// commit and never changes; it doubles as the dedup discriminator.
type CustomLesson struct {
	ID      string `json:"id"`
	Day     string `json:"day"`
	Subject string `json:"subject"`
	Start   string `json:"start_time"`
	End     string `json:"end_time"`
	Room    string `json:"room"`
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (u *User) Clone() User {
	cp := *u
	if len(u.Lessons) > 0 {
		cp.Lessons = append([]CustomLesson(nil), u.Lessons...)
	}
	return cp
}

// LessonByID finds a custom lesson by its ID.
func (u *User) LessonByID(id string) (CustomLesson, bool) {
	for _, l := range u.Lessons {
		if l.ID == id {
			return l, true
		}
	}
	return CustomLesson{}, false
}

// IsOnline reports whether the lesson has no physical location.
func (l CustomLesson) IsOnline() bool {
	return strings.EqualFold(strings.TrimSpace(l.Room), OnlineRoom)
}

// ValidDay reports whether day is one of the seven accepted names.
// Matching is exact: the intake keyboard supplies canonical names.
func ValidDay(day string) bool {
	return dayIndex(day) >= 0
}

func dayIndex(day string) int {
	for i, d := range Days {
		if d == day {
			return i
		}
	}
	return -1
}

// ValidHHMM reports whether s is a strict 24-hour HH:MM string.
func ValidHHMM(s string) bool {
	return reHHMM.MatchString(s)
}

// MinuteOfDay parses a validated HH:MM string to minutes since midnight.
func MinuteOfDay(s string) (int, error) {
	m := reHHMM.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	h := int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	return h*60 + mm, nil
}

// SortLessons orders lessons by weekday then start time, the order shown
// in listings and deletion keyboards.
func SortLessons(ls []CustomLesson) {
	sort.SliceStable(ls, func(i, j int) bool {
		di, dj := dayIndex(ls[i].Day), dayIndex(ls[j].Day)
		if di != dj {
			return di < dj
		}
		return ls[i].Start < ls[j].Start
	})
}

// ClampOffset forces an offset into [min,max].
func ClampOffset(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
