// Package store holds the in-memory user table and mirrors it to durable
// storage on every mutation.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"lessonbot/internal/schedule"
)

var (
	ErrUnknownUser = errors.New("user is not registered")
	ErrLessonLimit = errors.New("custom lesson limit reached")
)

// Limits are the policy bounds applied to user records on load and on
// every mutation.
type Limits struct {
	MinOffset     int
	MaxOffset     int
	DefaultOffset int
	MaxLessons    int
}

// Backend persists the whole user table as one snapshot.
type Backend interface {
	Load() (map[int64]schedule.User, error)
	Save(users map[int64]schedule.User) error
	Close() error
}

// Config selects and configures the backend.
type Config struct {
	Driver string
	Path   string
}

// Store is the process-wide user table. Single writer per mutation by
// mutex; every mutation is flushed to the backend before it returns.
type Store struct {
	log     zerolog.Logger
	limits  Limits
	backend Backend

	mu    sync.RWMutex
	users map[int64]*schedule.User

	// evictHooks run after a user is removed, outside persistence but
	// inside the mutation lock, so per-user transient state elsewhere
	// (cooldowns, dedup records) can be cleared in the same step.
	evictHooks []func(chatID int64)
}

// Open creates the configured backend, loads the persisted table and
// sanitizes it against the limits.
func Open(cfg Config, limits Limits, log zerolog.Logger) (*Store, error) {
	var backend Backend
	var err error
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		backend, err = openFile(cfg.Path, log)
	case "sqlite", "sqlite3":
		backend, err = openSQLite(cfg.Path, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	loaded, err := backend.Load()
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("load user table: %w", err)
	}

	s := &Store{
		log:     log,
		limits:  limits,
		backend: backend,
		users:   make(map[int64]*schedule.User, len(loaded)),
	}
	for id, u := range loaded {
		u := u
		s.sanitize(&u)
		u.ChatID = id
		s.users[id] = &u
	}
	log.Info().Int("users", len(s.users)).Msg("user table loaded")
	return s, nil
}

// sanitize clamps the offset and truncates overflowing lesson lists.
// Truncation keeps the EARLIEST entries: the list is append-ordered, so
// the oldest lessons are the ones the user has relied on longest.
func (s *Store) sanitize(u *schedule.User) {
	if u.OffsetMinutes == 0 {
		u.OffsetMinutes = s.limits.DefaultOffset
	}
	u.OffsetMinutes = schedule.ClampOffset(u.OffsetMinutes, s.limits.MinOffset, s.limits.MaxOffset)
	if max := s.limits.MaxLessons; max > 0 && len(u.Lessons) > max {
		s.log.Warn().Int64("chat_id", u.ChatID).Int("have", len(u.Lessons)).Int("max", max).
			Msg("truncating custom lessons to limit")
		u.Lessons = u.Lessons[:max]
	}
}

// OnEvict registers a hook called whenever a user is removed.
// Register before the scheduler and router start.
func (s *Store) OnEvict(fn func(chatID int64)) {
	s.evictHooks = append(s.evictHooks, fn)
}

// Get returns a deep copy of the user record.
func (s *Store) Get(chatID int64) (schedule.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[chatID]
	if !ok {
		return schedule.User{}, false
	}
	return u.Clone(), true
}

// Len returns the number of registered users.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// All returns a snapshot copy of every user record.
func (s *Store) All() []schedule.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schedule.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.Clone())
	}
	return out
}

// Register creates the user if needed and sets (or clears) the group.
// Existing settings and lessons survive re-registration.
func (s *Store) Register(chatID int64, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	if !ok {
		u = &schedule.User{ChatID: chatID, OffsetMinutes: s.limits.DefaultOffset}
		s.users[chatID] = u
	}
	u.Group = group
	return s.flushLocked()
}

// SetOffset updates the notification lead time. The caller validates the
// range; the store clamps defensively anyway.
func (s *Store) SetOffset(chatID int64, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	if !ok {
		return ErrUnknownUser
	}
	u.OffsetMinutes = schedule.ClampOffset(minutes, s.limits.MinOffset, s.limits.MaxOffset)
	return s.flushLocked()
}

// ToggleLearn flips the learn-reminder opt-in and returns the new state.
func (s *Store) ToggleLearn(chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	if !ok {
		return false, ErrUnknownUser
	}
	u.LearnNotify = !u.LearnNotify
	return u.LearnNotify, s.flushLocked()
}

// AddLesson appends a committed custom lesson. The limit is re-checked
// here so a race with another add during an intake flow cannot overflow.
func (s *Store) AddLesson(chatID int64, l schedule.CustomLesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	if !ok {
		return ErrUnknownUser
	}
	if len(u.Lessons) >= s.limits.MaxLessons {
		return ErrLessonLimit
	}
	u.Lessons = append(u.Lessons, l)
	return s.flushLocked()
}

// DeleteLesson removes a custom lesson by ID. Reports whether it existed.
func (s *Store) DeleteLesson(chatID int64, lessonID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[chatID]
	if !ok {
		return false, ErrUnknownUser
	}
	for i, l := range u.Lessons {
		if l.ID == lessonID {
			u.Lessons = append(u.Lessons[:i], u.Lessons[i+1:]...)
			return true, s.flushLocked()
		}
	}
	return false, nil
}

// Remove evicts a user. This is the only deletion path for user records;
// eviction hooks fire so dependent per-user state is cleared atomically
// with the removal.
func (s *Store) Remove(chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[chatID]; !ok {
		return false, nil
	}
	delete(s.users, chatID)
	for _, fn := range s.evictHooks {
		fn(chatID)
	}
	return true, s.flushLocked()
}

// Flush writes the current table even without a mutation (shutdown path).
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes once more and releases the backend.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.log.Error().Err(err).Msg("final user table flush failed")
	}
	return s.backend.Close()
}

func (s *Store) flushLocked() error {
	snap := make(map[int64]schedule.User, len(s.users))
	for id, u := range s.users {
		snap[id] = u.Clone()
	}
	if err := s.backend.Save(snap); err != nil {
		return fmt.Errorf("persist user table: %w", err)
	}
	return nil
}
