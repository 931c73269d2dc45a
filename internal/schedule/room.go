package schedule

import "strings"

// CleanRoom normalizes raw room text into the canonical key used for map
// photo lookups. ok is false when the input names no physical location:
// the ONLINE sentinel, or text that cleans down to nothing.
//
// Policy: uppercase, cut at the first '(' or line break, then strip a
// single trailing letter only when the character before it is not a letter
// ("C1.1.256P" -> "C1.1.256" but "GYM" stays "GYM").
func CleanRoom(raw string) (string, bool) {
	room := strings.ToUpper(strings.TrimSpace(raw))
	if room == "" || room == OnlineRoom {
		return "", false
	}
	if i := strings.IndexByte(room, '('); i >= 0 {
		room = room[:i]
	}
	if i := strings.IndexByte(room, '\n'); i >= 0 {
		room = room[:i]
	}
	room = strings.TrimSpace(room)
	if n := len(room); n > 1 && isAlpha(room[n-1]) && !isAlpha(room[n-2]) {
		room = room[:n-1]
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return "", false
	}
	return room, true
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
