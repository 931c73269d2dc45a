package bot

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// cooldownTable throttles the heavier commands per user. Entries are
// dropped on eviction together with the user record.
type cooldownTable struct {
	mu   sync.Mutex
	last map[string]time.Time

	now func() time.Time
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{last: map[string]time.Time{}, now: time.Now}
}

// allow reports whether the (command, chat) pair is off cooldown and, if
// so, stamps it. On denial it returns the remaining wait.
func (t *cooldownTable) allow(command string, chatID int64, period time.Duration) (time.Duration, bool) {
	key := command + "|" + strconv.FormatInt(chatID, 10)
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[key]; ok {
		if left := period - now.Sub(last); left > 0 {
			return left, false
		}
	}
	t.last[key] = now
	return 0, true
}

// purge drops every cooldown stamp belonging to the chat.
func (t *cooldownTable) purge(chatID int64) {
	suffix := "|" + strconv.FormatInt(chatID, 10)
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.last {
		if strings.HasSuffix(k, suffix) {
			delete(t.last, k)
		}
	}
}
