// Package bot wires the Telegram command surface: slash commands, the
// guided dialogues and the inline keyboards.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"lessonbot/internal/intake"
	"lessonbot/internal/notifier"
	"lessonbot/internal/refdata"
	"lessonbot/internal/schedule"
	"lessonbot/internal/store"
	"lessonbot/internal/transport"
)

const (
	timetableCooldown = 30 * time.Second
	findCooldown      = 10 * time.Second

	cbDayPrefix    = "add_day_"
	cbDeletePrefix = "delete_lesson_"
	cbDeleteCancel = "delete_lesson_cancel"
)

// Config carries the router policy knobs.
type Config struct {
	AdminID int64

	MinOffset  int
	MaxOffset  int
	MaxLessons int

	// Location resolves "today" for /timetable.
	Location *time.Location

	// BroadcastRatePerSec paces admin broadcast delivery.
	BroadcastRatePerSec int
}

// Router owns all incoming-update handling. Outbound multi-message
// sequences go through the gateway so failures share one classification
// path with the scheduler.
type Router struct {
	log   zerolog.Logger
	cfg   Config
	store *store.Store
	ref   *refdata.Data
	flows *intake.Manager
	notif *notifier.Service
	gw    transport.Gateway

	cooldowns *cooldownTable
	bcLimiter *rate.Limiter

	// ctx bounds outbound gateway calls; set in Attach.
	ctx context.Context
}

func New(cfg Config, st *store.Store, ref *refdata.Data, flows *intake.Manager, notif *notifier.Service, gw transport.Gateway, log zerolog.Logger) *Router {
	if cfg.BroadcastRatePerSec <= 0 {
		cfg.BroadcastRatePerSec = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	r := &Router{
		log:       log,
		cfg:       cfg,
		store:     st,
		ref:       ref,
		flows:     flows,
		notif:     notif,
		gw:        gw,
		cooldowns: newCooldownTable(),
		bcLimiter: rate.NewLimiter(rate.Limit(cfg.BroadcastRatePerSec), 1),
	}
	st.OnEvict(func(chatID int64) {
		r.cooldowns.purge(chatID)
		r.flows.Cancel(chatID)
	})
	return r
}

// Attach registers every handler on the bot. Call once before polling.
func (r *Router) Attach(ctx context.Context, b *tele.Bot) {
	r.ctx = ctx

	b.Handle("/start", r.handleStart)
	b.Handle("/cancel", r.handleCancel)
	b.Handle("/help", r.handleHelp)
	b.Handle("/timetable", r.handleTimetable)
	b.Handle("/find", r.handleFind)
	b.Handle("/minutes", r.handleMinutes)
	b.Handle("/learn", r.handleLearn)
	b.Handle("/add_lesson", r.handleAddLesson)
	b.Handle("/view_lessons", r.handleViewLessons)
	b.Handle("/delete_lesson", r.handleDeleteLesson)
	b.Handle("/broadcast", r.handleBroadcast)
	b.Handle(tele.OnText, r.handleText)
	b.Handle(tele.OnCallback, r.handleCallback)
}

func (r *Router) handleStart(c tele.Context) error {
	chatID := c.Chat().ID
	r.log.Info().Int64("chat_id", chatID).Msg("user started the bot")
	r.flows.Begin(chatID, intake.StepGroup)
	return c.Reply(textWelcome)
}

func (r *Router) handleCancel(c tele.Context) error {
	if !r.flows.Cancel(c.Chat().ID) {
		return c.Reply(textNothingCancel)
	}
	return c.Reply(textCancelled)
}

func (r *Router) handleHelp(c tele.Context) error {
	return c.Reply(helpText(c.Sender().ID == r.cfg.AdminID))
}

func (r *Router) handleTimetable(c tele.Context) error {
	chatID := c.Chat().ID
	if left, ok := r.cooldowns.allow("timetable", chatID, timetableCooldown); !ok {
		r.log.Warn().Int64("chat_id", chatID).Dur("remaining", left).Msg("/timetable cooldown hit")
		return c.Reply(fmt.Sprintf("⏳ Please wait %ds before using /timetable again.", int(left.Seconds())+1))
	}
	u, ok := r.store.Get(chatID)
	if !ok {
		return c.Reply(textUnknownUser)
	}
	if u.Group == "" {
		return c.Reply(textNoGroup)
	}
	if !r.ref.HasTimetable() {
		return c.Reply(textNoTimetable)
	}

	day := time.Now().In(r.cfg.Location).Weekday().String()
	slots := r.ref.DaySchedule(u.Group, day)
	if len(slots) == 0 {
		return c.Reply(fmt.Sprintf("🎉 No official lessons scheduled for your group (%s) today (%s)! Check /view_lessons for custom ones.", u.Group, day))
	}

	if err := c.Reply(fmt.Sprintf("📅 <b>Official Timetable for %s (%s):</b>", day, u.Group)); err != nil {
		return err
	}
	for _, slot := range slots {
		if err := r.sendSlot(chatID, slot); err != nil {
			kind := r.gw.Classify(err)
			if kind == transport.FailPermanent {
				r.log.Warn().Int64("chat_id", chatID).Err(err).Msg("user unreachable during /timetable, evicting")
				r.notif.Evict(chatID)
				return nil
			}
			r.log.Warn().Int64("chat_id", chatID).Err(err).
				Str("kind", kind.String()).Msg("continuing /timetable past delivery error")
		}
	}
	return nil
}

// sendSlot delivers one timetable entry: the room map photo with the
// lesson text as caption when a map exists, plain text otherwise.
func (r *Router) sendSlot(chatID int64, slot refdata.Slot) error {
	text := slotText(slot)

	if strings.EqualFold(strings.TrimSpace(slot.Room), schedule.OnlineRoom) {
		return r.gw.SendText(r.ctx, chatID, text)
	}
	room, ok := schedule.CleanRoom(slot.Room)
	if !ok || !r.ref.HasRoomImages() {
		return r.gw.SendText(r.ctx, chatID, text+"\n\nℹ️ Room location unknown or map data missing.")
	}
	fileID, found := r.ref.RoomImage(room)
	if !found {
		return r.gw.SendText(r.ctx, chatID, text+fmt.Sprintf("\n\nℹ️ Map photo for room '%s' is not available.", room))
	}

	err := r.gw.SendPhoto(r.ctx, chatID, fileID, text+fmt.Sprintf("\n\n📍 Location Map (%s)", room))
	if err == nil {
		return nil
	}
	if r.gw.Classify(err) == transport.FailPermanent {
		return err
	}
	// Broken file IDs degrade to text so the schedule still arrives.
	r.log.Error().Err(err).Int64("chat_id", chatID).Str("room", room).Msg("timetable map photo failed, sending text")
	return r.gw.SendText(r.ctx, chatID, text+fmt.Sprintf("\n\n⚠️ Couldn't send map photo (%v).", err))
}

func (r *Router) handleFind(c tele.Context) error {
	chatID := c.Chat().ID
	if left, ok := r.cooldowns.allow("find", chatID, findCooldown); !ok {
		r.log.Warn().Int64("chat_id", chatID).Dur("remaining", left).Msg("/find cooldown hit")
		return c.Reply(fmt.Sprintf("⏳ Please wait %ds before using /find again.", int(left.Seconds())+1))
	}
	query := strings.TrimSpace(c.Message().Payload)
	if query == "" {
		return c.Reply(textFindUsage)
	}
	room, ok := schedule.CleanRoom(query)
	if !ok {
		r.log.Warn().Int64("chat_id", chatID).Str("query", query).Msg("/find query cleaned to nothing")
		return c.Reply(fmt.Sprintf("❌ Sorry, '%s' doesn't look like a valid physical room number I can search for (after cleaning).", query))
	}
	if !r.ref.HasRoomImages() {
		return c.Reply(textNoRoomData)
	}
	fileID, found := r.ref.RoomImage(room)
	if !found {
		r.log.Warn().Int64("chat_id", chatID).Str("room", room).Msg("/find map not found")
		return c.Reply(fmt.Sprintf("❌ Sorry, I couldn't find a map for room '%s'. Check the room number or it might not be in my database.", room))
	}

	err := r.gw.SendPhoto(r.ctx, chatID, fileID, fmt.Sprintf("📍 Location map for room %s", room))
	if err == nil {
		return nil
	}
	r.log.Error().Err(err).Int64("chat_id", chatID).Str("room", room).Msg("/find photo failed")
	switch r.gw.Classify(err) {
	case transport.FailInvalidContent:
		return c.Reply(fmt.Sprintf("ℹ️ The map data for room '%s' seems to be invalid or corrupted.", room))
	case transport.FailPermanent:
		r.notif.Evict(chatID)
		return nil
	default:
		return c.Reply(fmt.Sprintf("❌ An error occurred while sending the map for '%s'.", room))
	}
}

func (r *Router) handleMinutes(c tele.Context) error {
	chatID := c.Chat().ID
	u, ok := r.store.Get(chatID)
	if !ok {
		return c.Reply(textNeedRegister)
	}
	r.flows.Begin(chatID, intake.StepMinutes)
	return c.Reply(fmt.Sprintf(
		"Your current notification offset is <b>%d minutes</b> before the lesson.\n\n"+
			"Please enter the new number of minutes you want (from %d to %d), or /cancel:",
		u.OffsetMinutes, r.cfg.MinOffset, r.cfg.MaxOffset))
}

func (r *Router) handleLearn(c tele.Context) error {
	chatID := c.Chat().ID
	on, err := r.store.ToggleLearn(chatID)
	if err != nil {
		return c.Reply(textNeedRegister)
	}
	status := "OFF"
	if on {
		status = "ON"
	}
	r.log.Info().Int64("chat_id", chatID).Str("state", status).Msg("learn notifications toggled")
	return c.Reply(fmt.Sprintf("✅ Learn platform notifications turned %s.", status))
}

func (r *Router) handleAddLesson(c tele.Context) error {
	chatID := c.Chat().ID
	u, ok := r.store.Get(chatID)
	if !ok {
		return c.Reply("Please register using /start before adding custom lessons.")
	}
	if len(u.Lessons) >= r.cfg.MaxLessons {
		return c.Reply(fmt.Sprintf("❌ You have reached the maximum limit of %d custom lessons. Use /delete_lesson to remove old ones first.", r.cfg.MaxLessons))
	}

	markup := &tele.ReplyMarkup{}
	rows := make([][]tele.InlineButton, 0, len(schedule.Days))
	for _, day := range schedule.Days {
		rows = append(rows, []tele.InlineButton{{Text: day, Data: cbDayPrefix + day}})
	}
	markup.InlineKeyboard = rows

	r.flows.Begin(chatID, intake.StepDay)
	return c.Reply("Let's add a custom lesson. First, select the day of the week:", markup)
}

func (r *Router) handleViewLessons(c tele.Context) error {
	u, ok := r.store.Get(c.Chat().ID)
	if !ok || len(u.Lessons) == 0 {
		return c.Reply(textNoLessons)
	}
	schedule.SortLessons(u.Lessons)
	return c.Reply(lessonListText(u.Lessons))
}

func (r *Router) handleDeleteLesson(c tele.Context) error {
	u, ok := r.store.Get(c.Chat().ID)
	if !ok || len(u.Lessons) == 0 {
		return c.Reply(textNoLessonsDelete)
	}
	schedule.SortLessons(u.Lessons)

	rows := make([][]tele.InlineButton, 0, len(u.Lessons)+1)
	for _, l := range u.Lessons {
		rows = append(rows, []tele.InlineButton{{Text: deleteLabel(l), Data: cbDeletePrefix + l.ID}})
	}
	rows = append(rows, []tele.InlineButton{{Text: "❌ Cancel Deletion", Data: cbDeleteCancel}})

	return c.Reply("Select the custom lesson you want to delete:", &tele.ReplyMarkup{InlineKeyboard: rows})
}

func (r *Router) handleBroadcast(c tele.Context) error {
	if c.Sender().ID != r.cfg.AdminID {
		return nil
	}
	r.flows.Begin(c.Chat().ID, intake.StepBroadcast)
	r.log.Info().Int64("admin_id", r.cfg.AdminID).Msg("broadcast sequence initiated")
	return c.Reply("Okay, Admin! Send me the message you want to broadcast, or /cancel.")
}

// handleText dispatches free-form messages by the sender's dialogue state.
func (r *Router) handleText(c tele.Context) error {
	chatID := c.Chat().ID
	switch step := r.flows.Step(chatID); step {
	case intake.StepGroup:
		return r.finishRegistration(c)
	case intake.StepMinutes:
		return r.finishMinutes(c)
	case intake.StepBroadcast:
		if c.Sender().ID != r.cfg.AdminID {
			return nil
		}
		r.flows.Cancel(chatID)
		return r.runBroadcast(c)
	case intake.StepNone:
		return r.handleFallback(c)
	default:
		return r.advanceLessonFlow(c, c.Text())
	}
}

func (r *Router) finishRegistration(c tele.Context) error {
	chatID := c.Chat().ID
	input := strings.TrimSpace(c.Text())
	_, existed := r.store.Get(chatID)

	if group, ok := r.ref.ResolveGroup(input); ok {
		if err := r.store.Register(chatID, group); err != nil {
			return err
		}
		r.flows.Cancel(chatID)
		u, _ := r.store.Get(chatID)
		r.log.Info().Int64("chat_id", chatID).Str("group", group).Int("offset_min", u.OffsetMinutes).
			Msg("user registered")
		return c.Reply(registeredText(group, u.OffsetMinutes))
	}

	if existed {
		// Keep prompting; a typo should not wipe the stored group.
		r.log.Warn().Int64("chat_id", chatID).Str("input", input).Msg("group not found for existing user")
		return c.Reply("❌ Sorry, I couldn't find that group number in the timetable. " +
			"Please check the format (e.g., EE-2401) and try again, or use /cancel.")
	}

	if err := r.store.Register(chatID, ""); err != nil {
		return err
	}
	r.flows.Cancel(chatID)
	r.log.Warn().Int64("chat_id", chatID).Str("input", input).Msg("registered without official group")
	return c.Reply(unmatchedGroupText(input))
}

func (r *Router) finishMinutes(c tele.Context) error {
	chatID := c.Chat().ID
	minutes, err := strconv.Atoi(strings.TrimSpace(c.Text()))
	if err != nil {
		return c.Reply(fmt.Sprintf("❌ That doesn't look like a valid number. Please enter a whole number between %d and %d, or /cancel.", r.cfg.MinOffset, r.cfg.MaxOffset))
	}
	if minutes < r.cfg.MinOffset || minutes > r.cfg.MaxOffset {
		return c.Reply(fmt.Sprintf("❌ Invalid number. Please enter a value between %d and %d, or /cancel.", r.cfg.MinOffset, r.cfg.MaxOffset))
	}
	if err := r.store.SetOffset(chatID, minutes); err != nil {
		r.flows.Cancel(chatID)
		return c.Reply("Something went wrong, couldn't find your user data. Please try /start again.")
	}
	r.flows.Cancel(chatID)
	r.log.Info().Int64("chat_id", chatID).Int("offset_min", minutes).Msg("notification offset updated")
	return c.Reply(fmt.Sprintf("✅ Okay! Your notification offset has been updated to <b>%d minutes</b> before each lesson.", minutes))
}

func (r *Router) advanceLessonFlow(c tele.Context, input string) error {
	chatID := c.Chat().ID
	res := r.flows.Advance(chatID, input)
	if res.Err != nil {
		return c.Reply(rejectionText(res.Step, res.Err))
	}
	if res.Done {
		return r.commitLesson(c, res.Lesson)
	}
	return c.Reply(acceptanceText(res.Step, input))
}

func (r *Router) commitLesson(c tele.Context, l schedule.CustomLesson) error {
	chatID := c.Chat().ID
	if err := r.store.AddLesson(chatID, l); err != nil {
		if errors.Is(err, store.ErrLessonLimit) {
			return c.Reply(fmt.Sprintf("❌ Could not save. You have reached the maximum limit of %d custom lessons.", r.cfg.MaxLessons))
		}
		return c.Reply("Error: Could not find your user data. Please try /start again.")
	}
	mapKey := ""
	if !l.IsOnline() {
		if cleaned, ok := schedule.CleanRoom(l.Room); ok {
			mapKey = cleaned
		}
	}
	r.log.Info().Int64("chat_id", chatID).Str("lesson_id", l.ID).Str("day", l.Day).
		Str("start", l.Start).Msg("custom lesson added")
	return c.Reply(lessonAddedText(l, mapKey))
}

// rejectionText keeps the user in the same step with a format hint.
func rejectionText(step intake.Step, err error) string {
	switch step {
	case intake.StepDay:
		return "❌ Please pick one of the weekday buttons, or /cancel."
	case intake.StepSubject:
		if errors.Is(err, schedule.ErrSubjectLong) {
			return "Subject name is too long (max 100 chars). Please enter a shorter name, or /cancel."
		}
		return "Subject cannot be empty. Please enter a name, or /cancel."
	case intake.StepStart:
		return "❌ Invalid time format. Please use HH:MM (e.g., 09:00, 14:30), or /cancel."
	case intake.StepEnd:
		if errors.Is(err, schedule.ErrBadOrder) {
			return "❌ End time must be after the start time. Please enter a valid end time, or /cancel."
		}
		return "❌ Invalid time format. Please use HH:MM (e.g., 10:30, 16:00), or /cancel."
	case intake.StepRoom:
		return "❌ Invalid room format. Please use a format like C1.3.122, C1.1.256P, or type 'ONLINE', or /cancel."
	default:
		return "Use /help to see available commands."
	}
}

// acceptanceText confirms the captured value and prompts for the next step.
func acceptanceText(next intake.Step, accepted string) string {
	switch next {
	case intake.StepSubject:
		return fmt.Sprintf("✅ Day set to: <b>%s</b>.\n\n%s", accepted, promptSubject)
	case intake.StepStart:
		return fmt.Sprintf("✅ Subject set to: <b>%s</b>.\n\n%s", accepted, promptStart)
	case intake.StepEnd:
		return fmt.Sprintf("✅ Start time set to: <b>%s</b>.\n\n%s", accepted, promptEnd)
	case intake.StepRoom:
		return fmt.Sprintf("✅ End time set to: <b>%s</b>.\n\n%s", accepted, promptRoom)
	default:
		return "OK."
	}
}

func (r *Router) handleFallback(c tele.Context) error {
	chatID := c.Chat().ID
	r.log.Info().Int64("chat_id", chatID).Str("text", c.Text()).Msg("unrecognized message")
	u, ok := r.store.Get(chatID)
	if !ok {
		return c.Reply("Hello! I didn't understand that. Use /start to register or /help to see commands.")
	}
	group := u.Group
	if group == "" {
		group = "Not Set"
	}
	return c.Reply(fmt.Sprintf("Hi! Your group: %s\nNotify %d min before lessons.\n\n"+
		"I didn't understand that. Use /help to see available commands.", group, u.OffsetMinutes))
}

func (r *Router) handleCallback(c tele.Context) error {
	data := strings.TrimSpace(c.Callback().Data)
	chatID := c.Chat().ID

	switch {
	case data == cbDeleteCancel:
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Edit("Deletion cancelled.")

	case strings.HasPrefix(data, cbDeletePrefix):
		return r.deleteLessonCallback(c, strings.TrimPrefix(data, cbDeletePrefix))

	case strings.HasPrefix(data, cbDayPrefix):
		if r.flows.Step(chatID) != intake.StepDay {
			return c.Respond(&tele.CallbackResponse{Text: "This keyboard has expired."})
		}
		day := strings.TrimPrefix(data, cbDayPrefix)
		res := r.flows.Advance(chatID, day)
		if res.Err != nil {
			return c.Respond(&tele.CallbackResponse{Text: "Unknown day", ShowAlert: true})
		}
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Edit(acceptanceText(res.Step, day))

	default:
		return c.Respond()
	}
}

func (r *Router) deleteLessonCallback(c tele.Context, lessonID string) error {
	chatID := c.Chat().ID
	removed, err := r.store.DeleteLesson(chatID, lessonID)
	if err != nil {
		if respErr := c.Respond(&tele.CallbackResponse{Text: "Error", ShowAlert: true}); respErr != nil {
			return respErr
		}
		return c.Edit("Error: Could not find your lesson data.")
	}
	if !removed {
		r.log.Warn().Int64("chat_id", chatID).Str("lesson_id", lessonID).Msg("delete target already gone")
		if respErr := c.Respond(&tele.CallbackResponse{Text: "Lesson not found", ShowAlert: true}); respErr != nil {
			return respErr
		}
		return c.Edit("Could not find the selected lesson to delete. It might have already been removed.")
	}
	r.log.Info().Int64("chat_id", chatID).Str("lesson_id", lessonID).Msg("custom lesson deleted")
	if err := c.Respond(&tele.CallbackResponse{Text: "Lesson deleted"}); err != nil {
		return err
	}
	return c.Edit("✅ Custom lesson deleted successfully!")
}

// runBroadcast copies the admin's message to every registered user and
// reports a delivery summary. Unreachable users are evicted afterwards.
func (r *Router) runBroadcast(c tele.Context) error {
	users := r.store.All()
	if len(users) == 0 {
		return c.Reply("No registered users to broadcast to.")
	}
	if err := c.Reply(fmt.Sprintf("Starting broadcast to %d users...", len(users))); err != nil {
		return err
	}

	src := c.Message()
	var success, failed int
	var blocked []int64
	for _, u := range users {
		if err := r.bcLimiter.Wait(r.ctx); err != nil {
			break
		}
		if err := r.gw.Copy(r.ctx, u.ChatID, src.Chat.ID, src.ID); err != nil {
			failed++
			r.log.Error().Err(err).Int64("chat_id", u.ChatID).Msg("broadcast delivery failed")
			if r.gw.Classify(err) == transport.FailPermanent {
				blocked = append(blocked, u.ChatID)
			}
			continue
		}
		success++
	}
	for _, id := range blocked {
		r.notif.Evict(id)
	}

	summary := fmt.Sprintf("Broadcast finished.\nSuccess: %d\nFailed: %d", success, failed)
	if len(blocked) > 0 {
		summary += fmt.Sprintf("\nRemoved %d blocked/deactivated users.", len(blocked))
	}
	r.log.Info().Int("success", success).Int("failed", failed).Int("removed", len(blocked)).
		Msg("broadcast finished")
	return c.Reply(summary)
}
