// Package intake implements the per-user guided dialogues: the five-step
// custom-lesson chain and the structurally identical single-step flows
// (group registration, offset minutes, admin broadcast body).
//
// State is an explicit tagged step plus a scratch draft keyed by chat ID.
// Nothing here touches durable storage; the draft lives only until commit
// or cancel.
package intake

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"lessonbot/internal/schedule"
)

// Step tags the state a user's dialogue is in.
type Step int

const (
	StepNone Step = iota

	// Single-step flows sharing the cancellation contract.
	StepGroup     // registration: awaiting group number
	StepMinutes   // awaiting notification offset
	StepBroadcast // admin: awaiting broadcast message

	// The custom-lesson chain, strictly linear.
	StepDay
	StepSubject
	StepStart
	StepEnd
	StepRoom
)

// Draft accumulates the lesson chain fields between steps.
type Draft struct {
	Day     string
	Subject string
	Start   string
	End     string
}

type flow struct {
	step  Step
	draft Draft
}

// Manager tracks one active flow per user.
type Manager struct {
	mu    sync.Mutex
	flows map[int64]*flow
}

func NewManager() *Manager {
	return &Manager{flows: make(map[int64]*flow)}
}

// Step returns the user's current step (StepNone when idle).
func (m *Manager) Step(chatID int64) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flows[chatID]; ok {
		return f.step
	}
	return StepNone
}

// Begin starts a flow at the given step, replacing any active one.
func (m *Manager) Begin(chatID int64, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flows[chatID] = &flow{step: step}
}

// Cancel discards the active flow. Reports whether there was one.
func (m *Manager) Cancel(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flows[chatID]
	delete(m.flows, chatID)
	return ok
}

// Draft returns a copy of the accumulated lesson fields.
func (m *Manager) Draft(chatID int64) (Draft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flows[chatID]; ok {
		return f.draft, true
	}
	return Draft{}, false
}

// Result is the outcome of feeding one input to the lesson chain.
type Result struct {
	// Step is the state after the input was applied. On rejection it
	// equals the state before, so the same prompt repeats.
	Step Step
	// Done is set when the chain committed; Lesson carries the record.
	Done   bool
	Lesson schedule.CustomLesson
	// Err is the user-visible rejection reason; nil on acceptance.
	Err error
}

// Advance feeds one input to the user's lesson chain. A rejection keeps
// the step and every previously accumulated field. On the final accepted
// input the completed lesson (with a fresh ID) is returned and the flow
// ends; appending it to the store is the caller's job.
func (m *Manager) Advance(chatID int64, input string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flows[chatID]
	if !ok || f.step < StepDay {
		return Result{Step: StepNone, Err: fmt.Errorf("no lesson flow in progress")}
	}

	input = strings.TrimSpace(input)
	switch f.step {
	case StepDay:
		if !schedule.ValidDay(input) {
			return Result{Step: f.step, Err: schedule.ErrBadDay}
		}
		f.draft.Day = input
		f.step = StepSubject

	case StepSubject:
		if input == "" {
			return Result{Step: f.step, Err: schedule.ErrEmptyField}
		}
		if len(input) > schedule.MaxSubjectLen {
			return Result{Step: f.step, Err: schedule.ErrSubjectLong}
		}
		f.draft.Subject = input
		f.step = StepStart

	case StepStart:
		if !schedule.ValidHHMM(input) {
			return Result{Step: f.step, Err: schedule.ErrBadTime}
		}
		f.draft.Start = input
		f.step = StepEnd

	case StepEnd:
		if !schedule.ValidHHMM(input) {
			return Result{Step: f.step, Err: schedule.ErrBadTime}
		}
		start, _ := schedule.MinuteOfDay(f.draft.Start)
		end, _ := schedule.MinuteOfDay(input)
		if end <= start {
			return Result{Step: f.step, Err: schedule.ErrBadOrder}
		}
		f.draft.End = input
		f.step = StepRoom

	case StepRoom:
		if input == "" {
			return Result{Step: f.step, Err: schedule.ErrEmptyField}
		}
		room := input
		if strings.EqualFold(input, schedule.OnlineRoom) {
			room = schedule.OnlineRoom
		} else if _, ok := schedule.CleanRoom(input); !ok {
			return Result{Step: f.step, Err: fmt.Errorf("room %q is not a usable room number", input)}
		}
		lesson := schedule.CustomLesson{
			ID:      uuid.NewString(),
			Day:     f.draft.Day,
			Subject: f.draft.Subject,
			Start:   f.draft.Start,
			End:     f.draft.End,
			Room:    room,
		}
		delete(m.flows, chatID)
		return Result{Step: StepNone, Done: true, Lesson: lesson}
	}

	return Result{Step: f.step}
}
