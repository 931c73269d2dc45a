// Package refdata loads the read-only reference data: the official
// per-group timetable and the room-key to map-photo lookup table.
//
// Both files are optional. A missing or broken file degrades the official
// schedule features; custom lessons keep working.
package refdata

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Slot is one official lesson in a group's day schedule.
// Index is the ordinal position within the day (1-based in the data files);
// it is part of the notification dedup discriminator.
type Slot struct {
	Index    int
	Time     string // "08:00 - 08:50"
	Subject  string
	Room     string
	Lecturer string
	Type     string
}

// StartHHMM returns the slot's start time ("08:00") or "" when the time
// range is malformed.
func (s Slot) StartHHMM() string {
	start, _, ok := strings.Cut(s.Time, "-")
	if !ok {
		return ""
	}
	return strings.TrimSpace(start)
}

type timetable map[string]map[string][]Slot // group -> day -> ordered slots

// Data is an immutable snapshot of both reference files. Reloads swap the
// whole snapshot; readers never see a half-loaded state.
type Data struct {
	log zerolog.Logger

	timetablePath string
	roomsPath     string

	mu     sync.RWMutex
	tt     timetable
	groups map[string]string // upper-cased group -> canonical key
	rooms  map[string]string // canonical room key -> photo file ID
}

// Load reads both files. Per-file failures are logged and leave that part
// empty rather than failing startup.
func Load(timetablePath, roomsPath string, log zerolog.Logger) *Data {
	d := &Data{
		log:           log,
		timetablePath: timetablePath,
		roomsPath:     roomsPath,
	}
	d.Reload()
	return d
}

// Reload re-reads both files from disk and swaps the snapshot.
func (d *Data) Reload() {
	tt, groups := loadTimetable(d.timetablePath, d.log)
	rooms := loadRooms(d.roomsPath, d.log)

	d.mu.Lock()
	d.tt = tt
	d.groups = groups
	d.rooms = rooms
	d.mu.Unlock()

	d.log.Info().
		Int("groups", len(groups)).
		Int("rooms", len(rooms)).
		Msg("reference data loaded")
}

// HasTimetable reports whether any official timetable data is available.
func (d *Data) HasTimetable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tt) > 0
}

// HasRoomImages reports whether the room-photo table is available.
func (d *Data) HasRoomImages() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms) > 0
}

// ResolveGroup matches user input against known group keys,
// case-insensitively, returning the canonical key.
func (d *Data) ResolveGroup(input string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[strings.ToUpper(strings.TrimSpace(input))]
	return g, ok
}

// DaySchedule returns the ordered official slots for (group, day).
// Empty when the group or day is unknown.
func (d *Data) DaySchedule(group, day string) []Slot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	days, ok := d.tt[group]
	if !ok {
		return nil
	}
	return days[day]
}

// RoomImage returns the photo file ID for a canonical room key.
func (d *Data) RoomImage(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.rooms[key]
	return id, ok
}

// rawSlot matches the JSON shape of one lesson entry.
type rawSlot struct {
	Time     string `json:"time"`
	Subject  string `json:"subject"`
	Room     string `json:"room"`
	Lecturer string `json:"lecturer"`
	Type     string `json:"type"`
}

func loadTimetable(path string, log zerolog.Logger) (timetable, map[string]string) {
	tt := timetable{}
	groups := map[string]string{}
	if strings.TrimSpace(path) == "" {
		return tt, groups
	}

	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("timetable unavailable")
		return tt, groups
	}
	// group -> day -> "1"..."n" -> slot
	var raw map[string]map[string]map[string]rawSlot
	if err := json.Unmarshal(b, &raw); err != nil {
		log.Error().Err(err).Str("path", path).Msg("timetable JSON invalid")
		return tt, groups
	}

	for group, days := range raw {
		byDay := make(map[string][]Slot, len(days))
		for day, slots := range days {
			ordered := make([]Slot, 0, len(slots))
			for key, rs := range slots {
				idx, err := strconv.Atoi(key)
				if err != nil {
					log.Warn().Str("group", group).Str("day", day).Str("key", key).
						Msg("skipping non-numeric lesson index")
					continue
				}
				ordered = append(ordered, Slot{
					Index:    idx,
					Time:     rs.Time,
					Subject:  rs.Subject,
					Room:     rs.Room,
					Lecturer: rs.Lecturer,
					Type:     rs.Type,
				})
			}
			sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
			byDay[day] = ordered
		}
		tt[group] = byDay
		groups[strings.ToUpper(group)] = group
	}
	return tt, groups
}

func loadRooms(path string, log zerolog.Logger) map[string]string {
	rooms := map[string]string{}
	if strings.TrimSpace(path) == "" {
		return rooms
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("room images unavailable")
		return rooms
	}
	if err := json.Unmarshal(b, &rooms); err != nil {
		log.Error().Err(err).Str("path", path).Msg("room images JSON invalid")
		return map[string]string{}
	}
	return rooms
}
