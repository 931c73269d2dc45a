// Package notifier runs the minute-exact reminder scheduler: one scan per
// check interval over every registered user, matching official and custom
// lessons whose start time is exactly the user's offset away.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"lessonbot/internal/refdata"
	"lessonbot/internal/schedule"
	"lessonbot/internal/store"
	"lessonbot/internal/transport"
)

// Config carries the scheduler policy. All fields are required except
// LearnCron/LearnText, which disable the periodic study reminder when empty.
type Config struct {
	CheckInterval time.Duration
	Location      *time.Location

	LearnCron string
	LearnText string

	// RatePerSec paces outbound sends within one scan.
	RatePerSec int
}

// Service owns the scan loop, the per-day dedup set and the eviction of
// unreachable recipients. One instance per process.
type Service struct {
	log   zerolog.Logger
	store *store.Store
	ref   *refdata.Data
	gw    transport.Gateway

	cfg     Config
	learn   cron.Schedule
	limiter *rate.Limiter

	// now is the clock; replaced in tests.
	now func() time.Time

	mu          sync.Mutex
	sent        map[string]struct{}
	clearedDate string // ISO date the sent set was last reset for
	lastLearn   string // "date minute" key of the last learn broadcast
}

func New(cfg Config, st *store.Store, ref *refdata.Data, gw transport.Gateway, log zerolog.Logger) (*Service, error) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}

	s := &Service{
		log:     log,
		store:   st,
		ref:     ref,
		gw:      gw,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		now:     time.Now,
		sent:    map[string]struct{}{},
	}
	if cfg.LearnCron != "" {
		sched, err := cron.ParseStandard(cfg.LearnCron)
		if err != nil {
			return nil, fmt.Errorf("learn reminder cron %q: %w", cfg.LearnCron, err)
		}
		s.learn = sched
	}

	// Clear dedup and cooldown state together with the user record.
	st.OnEvict(s.purge)
	return s, nil
}

// Run blocks until ctx is cancelled. A panicking scan is logged and the
// loop resumes after a backoff that doubles per consecutive panic.
func (s *Service) Run(ctx context.Context) {
	s.log.Info().
		Dur("interval", s.cfg.CheckInterval).
		Str("timezone", s.cfg.Location.String()).
		Msg("scheduler started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	backoff := s.cfg.CheckInterval
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		}

		if s.safeScan(ctx) {
			backoff = s.cfg.CheckInterval
			continue
		}
		if backoff < 10*time.Minute {
			backoff *= 2
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// safeScan runs one scan and reports whether it completed without panicking.
func (s *Service) safeScan(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("scan panicked")
			ok = false
		}
	}()
	s.Scan(ctx, s.now())
	return true
}

// Scan performs one full pass at the given wall time: dedup rollover, the
// learn broadcast when its cron minute matches, then the per-user lesson
// matching. Exported for tests; Run is the production entry point.
func (s *Service) Scan(ctx context.Context, now time.Time) {
	now = now.In(s.cfg.Location)
	s.rollover(now)
	s.learnBroadcast(ctx, now)

	today := now.Weekday().String()
	minute := now.Hour()*60 + now.Minute()

	for _, u := range s.store.All() {
		if ctx.Err() != nil {
			return
		}
		s.scanUser(ctx, u.ChatID, now, today, minute)
	}
}

// rollover clears yesterday's dedup records during the first minutes of a
// new day. The date guard makes repeated ticks in that window idempotent.
func (s *Service) rollover(now time.Time) {
	if now.Hour() != 0 || now.Minute() >= 5 {
		return
	}
	date := isoDate(now)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearedDate == date {
		return
	}
	cleared := 0
	for k := range s.sent {
		if !strings.Contains(k, "|"+date+"|") {
			delete(s.sent, k)
			cleared++
		}
	}
	s.clearedDate = date
	s.log.Info().Int("cleared", cleared).Msg("stale notification dedup records dropped")
}

func (s *Service) learnBroadcast(ctx context.Context, now time.Time) {
	if s.learn == nil || s.cfg.LearnText == "" {
		return
	}
	minute := now.Truncate(time.Minute)
	if !s.learn.Next(minute.Add(-time.Minute)).Equal(minute) {
		return
	}

	key := minute.Format("2006-01-02 15:04")
	s.mu.Lock()
	if s.lastLearn == key {
		s.mu.Unlock()
		return
	}
	s.lastLearn = key
	s.mu.Unlock()

	sent := 0
	for _, u := range s.store.All() {
		if !u.LearnNotify || ctx.Err() != nil {
			continue
		}
		if _, ok := s.store.Get(u.ChatID); !ok {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.gw.SendText(ctx, u.ChatID, s.cfg.LearnText); err != nil {
			s.handleSendError(u.ChatID, err, "learn reminder")
			continue
		}
		sent++
	}
	s.log.Info().Int("sent", sent).Msg("learn reminder broadcast")
}

func (s *Service) scanUser(ctx context.Context, chatID int64, now time.Time, today string, minute int) {
	u, ok := s.store.Get(chatID)
	if !ok {
		return
	}
	// A lesson within offset minutes after midnight is due late the
	// previous evening: the target wraps around the clock and is matched
	// against today's list, same as the wall time would.
	target := (minute + u.OffsetMinutes) % (24 * 60)
	date := isoDate(now)

	if u.Group != "" {
		for _, slot := range s.ref.DaySchedule(u.Group, today) {
			start, err := schedule.MinuteOfDay(slot.StartHHMM())
			if err != nil || start != target {
				continue
			}
			key := fmt.Sprintf("%d|%s|official_%s_%s_%d", u.ChatID, date, u.Group, today, slot.Index)
			room, hasRoom := schedule.CleanRoom(slot.Room)
			if !s.deliver(ctx, u, key, officialText(slot, u.OffsetMinutes), room, hasRoom) {
				return
			}
		}
	}

	for _, l := range u.Lessons {
		if l.Day != today {
			continue
		}
		start, err := schedule.MinuteOfDay(l.Start)
		if err != nil || start != target {
			continue
		}
		key := fmt.Sprintf("%d|%s|custom_%s", u.ChatID, date, l.ID)
		room, hasRoom := "", false
		if !l.IsOnline() {
			room, hasRoom = schedule.CleanRoom(l.Room)
		}
		if !s.deliver(ctx, u, key, customText(l, u.OffsetMinutes), room, hasRoom) {
			return
		}
	}
}

// deliver sends one reminder with its optional room photo. The dedup record
// is written only after the text message succeeds, so a transiently failed
// attempt stays eligible. Returns false when the user is gone, was evicted,
// or vanished during the send; the rest of their lessons are skipped then.
func (s *Service) deliver(ctx context.Context, u schedule.User, key, text, room string, hasRoom bool) bool {
	s.mu.Lock()
	_, dup := s.sent[key]
	s.mu.Unlock()
	if dup {
		return true
	}

	// The command surface can evict the user between our sends.
	if _, ok := s.store.Get(u.ChatID); !ok {
		return false
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return false
	}
	if err := s.gw.SendText(ctx, u.ChatID, text); err != nil {
		return !s.handleSendError(u.ChatID, err, "lesson reminder")
	}

	// An eviction can also race the send itself; recording the key then
	// would resurrect what the eviction purge just dropped.
	if _, ok := s.store.Get(u.ChatID); !ok {
		return false
	}

	s.mu.Lock()
	s.sent[key] = struct{}{}
	s.mu.Unlock()

	// Room photo is best effort. A failure here never undoes the dedup
	// record; the reminder itself got through.
	if hasRoom && s.ref.HasRoomImages() {
		if fileID, ok := s.ref.RoomImage(room); ok {
			if err := s.gw.SendPhoto(ctx, u.ChatID, fileID, "Room "+room); err != nil {
				s.log.Warn().Err(err).Int64("chat_id", u.ChatID).Str("room", room).
					Str("kind", s.gw.Classify(err).String()).
					Msg("room photo not delivered")
			}
		}
	}
	return true
}

// handleSendError logs the failure and evicts the recipient on a permanent
// one. Reports whether the user was evicted.
func (s *Service) handleSendError(chatID int64, err error, what string) bool {
	kind := s.gw.Classify(err)
	ev := s.log.Warn().Err(err).Int64("chat_id", chatID).Str("kind", kind.String())
	if kind != transport.FailPermanent {
		ev.Msg(what + " not delivered")
		return false
	}
	ev.Msg(what + " recipient unreachable, evicting")
	s.Evict(chatID)
	return true
}

// Evict removes the user and, via the store's eviction hooks, all of their
// pending dedup records. Shared with the command layer, which calls it when
// an interactive reply hits the same permanent failures.
func (s *Service) Evict(chatID int64) {
	if removed, err := s.store.Remove(chatID); err != nil {
		s.log.Error().Err(err).Int64("chat_id", chatID).Msg("eviction failed to persist")
	} else if removed {
		s.log.Info().Int64("chat_id", chatID).Msg("user evicted")
	}
}

// purge drops every dedup record belonging to the chat. Runs as a store
// eviction hook.
func (s *Service) purge(chatID int64) {
	prefix := fmt.Sprintf("%d|", chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.sent {
		if strings.HasPrefix(k, prefix) {
			delete(s.sent, k)
		}
	}
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func officialText(slot refdata.Slot, offset int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ <b>%s</b> starts in %d min!\n", slot.Subject, offset)
	fmt.Fprintf(&b, "🕐 %s\n", slot.Time)
	if room, ok := schedule.CleanRoom(slot.Room); ok {
		fmt.Fprintf(&b, "🚪 Room %s\n", room)
	} else if strings.TrimSpace(slot.Room) != "" {
		fmt.Fprintf(&b, "🚪 %s\n", strings.TrimSpace(slot.Room))
	}
	if slot.Lecturer != "" {
		fmt.Fprintf(&b, "👤 %s\n", slot.Lecturer)
	}
	if slot.Type != "" {
		fmt.Fprintf(&b, "📚 %s", slot.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}

func customText(l schedule.CustomLesson, offset int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ <b>%s</b> starts in %d min!\n", l.Subject, offset)
	fmt.Fprintf(&b, "🕐 %s - %s\n", l.Start, l.End)
	if l.IsOnline() {
		b.WriteString("💻 Online")
	} else {
		fmt.Fprintf(&b, "🚪 Room %s", l.Room)
	}
	return b.String()
}
