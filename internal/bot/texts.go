package bot

import (
	"fmt"
	"strings"

	"lessonbot/internal/refdata"
	"lessonbot/internal/schedule"
)

const (
	textWelcome = "Welcome! 👋 Please enter your group number (e.g., EE-2401 or IoT-2401) to get started, or use /help."

	textUnknownUser   = "I don't know you yet. Please use /start to register."
	textNeedRegister  = "I need to know you first. Please use /start to register."
	textCancelled     = "✅ Action cancelled."
	textNothingCancel = "Nothing to cancel."

	textNoTimetable = "The official timetable data is currently unavailable. Please try again later."
	textNoGroup     = "Your group isn't set or wasn't found in the official schedule. Use /start to set it, or /view_lessons for your custom schedule."

	textNoRoomData = "Room map data is currently unavailable."
	textFindUsage  = "❓ Please specify the room number after the command.\nExample: <code>/find C1.3.122</code> or <code>/find C1.1.256P</code>"

	textNoLessons       = "You haven't added any custom lessons yet. Use /add_lesson to create one."
	textNoLessonsDelete = "You don't have any custom lessons to delete. Use /add_lesson first."

	promptSubject = "Now, please enter a name or subject for this lesson (e.g., 'Study Group', 'AI Club Meeting'), or /cancel:"
	promptStart   = "Now, enter the <b>start time</b> in HH:MM format (e.g., 09:00, 14:30), or /cancel:"
	promptEnd     = "Now, enter the <b>end time</b> in HH:MM format (e.g., 10:30, 16:00), or /cancel:"
	promptRoom    = "Finally, enter the <b>room number</b> (e.g., C1.3.122 or C1.1.256P) (if it is Physical Education type anything, e.g. <b>Gym</b>), or type 'ONLINE', or /cancel:"
)

func registeredText(group string, offset int) string {
	return fmt.Sprintf("✅ Great! Your group '%s' is registered. "+
		"I will notify you <b>%d minutes</b> before your lessons.\n"+
		"Use /timetable for today's official schedule.\n"+
		"Use /add_lesson to add your own reminders.\n"+
		"See all commands with /help.", group, offset)
}

func unmatchedGroupText(input string) string {
	return fmt.Sprintf("⚠️ Couldn't find group '%s' in the official timetable. "+
		"I've registered you, but official schedule features won't work.\n"+
		"You can still use /add_lesson for custom reminders.\n"+
		"If '%s' was a typo, use /start again.\n"+
		"See commands with /help.", input, input)
}

func helpText(admin bool) string {
	var b strings.Builder
	b.WriteString("<b>Available Commands:</b>\n\n")
	b.WriteString("/start - Register or change your group\n")
	b.WriteString("/timetable - Show today's official schedule\n")
	b.WriteString("/find <code>[room]</code> - Find a room map (e.g., /find C1.3.122 or /find C1.1.256P)\n")
	b.WriteString("/minutes - Set lesson notification time (before lesson starts)\n")
	b.WriteString("/learn - Toggle Learn platform reminders (Mon, Wed, Fri at 19:40)\n")
	b.WriteString("\n<b>Custom Lessons:</b>\n")
	b.WriteString("/add_lesson - Add a custom lesson/reminder\n")
	b.WriteString("/view_lessons - View your added custom lessons\n")
	b.WriteString("/delete_lesson - Delete a custom lesson\n")
	b.WriteString("\n/help - Show this help message\n")
	b.WriteString("/cancel - Cancel current operation (like adding a lesson)\n")
	if admin {
		b.WriteString("\n<b>Admin Commands:</b>\n")
		b.WriteString("/broadcast - Send a message to all users\n")
	}
	return b.String()
}

func slotText(slot refdata.Slot) string {
	return fmt.Sprintf("<b>%d. %s</b> (%s)\n🕒 Time: %s\n👨‍🏫 Lecturer: %s\n🚪 Room: %s",
		slot.Index, slot.Subject, capitalize(slot.Type), slot.Time, slot.Lecturer, slot.Room)
}

func lessonAddedText(l schedule.CustomLesson, mapKey string) string {
	room := l.Room
	if mapKey != "" {
		room += fmt.Sprintf(" (Map lookup: %s)", mapKey)
	}
	return fmt.Sprintf("✅ <b>Custom lesson added!</b>\n\n"+
		"📌 Subject: %s\n📅 Day: %s\n🕒 Time: %s - %s\n🚪 Room: %s\n\n"+
		"Use /view_lessons to see all your custom lessons.",
		l.Subject, l.Day, l.Start, l.End, room)
}

func lessonListText(lessons []schedule.CustomLesson) string {
	var b strings.Builder
	b.WriteString("📅 <b>Your Custom Lessons:</b>\n\n")
	for i, l := range lessons {
		fmt.Fprintf(&b, "<b>%d. %s</b>\n   - Day: %s\n   - Time: %s - %s\n   - Room: %s\n\n",
			i+1, l.Subject, l.Day, l.Start, l.End, l.Room)
	}
	b.WriteString("Use /delete_lesson to remove lessons.")
	return b.String()
}

func deleteLabel(l schedule.CustomLesson) string {
	day := l.Day
	if len(day) > 3 {
		day = day[:3] // weekday names are ASCII
	}
	// Subjects are free text; truncate on runes so multi-byte characters
	// are never split mid-sequence.
	subject := l.Subject
	if r := []rune(subject); len(r) > 20 {
		subject = string(r[:20])
	}
	return fmt.Sprintf("%s %s - %s", day, l.Start, subject)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
