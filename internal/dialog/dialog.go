// Package dialog implements the multi-step capture of a reminder draft: a
// per-owner accumulator that walks the owner through supplying a schedule
// and a message, one field at a time, before the draft is finalized into a
// persisted reminder.
//
// Each expected input is an explicit Step value handled exhaustively in
// Supply; there is no string-keyed mode dispatch. Drafts live only in
// memory: an in-progress dialog is a UI concern and does not survive a
// restart.
//
// Prompts are returned as stable machine-readable tokens; rendering them in
// the owner's locale is the conversation layer's job.
package dialog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/schedule"
	"github.com/remindkit/reminderd/internal/services"
)

// Step identifies the input a draft expects next.
type Step int

const (
	// StepNone means no dialog is in progress.
	StepNone Step = iota
	// StepRelativeSpec expects a duration like "5m" or "2h".
	StepRelativeSpec
	// StepRelativeMessage expects the message for a relative reminder.
	StepRelativeMessage
	// StepRepeatChoice expects "yes" or "no".
	StepRepeatChoice
	// StepRepeatCount expects a non-negative integer.
	StepRepeatCount
	// StepDate expects a calendar date like "15/11/25".
	StepDate
	// StepClock expects a 12-hour time like "10.15 PM".
	StepClock
	// StepAbsoluteMessage expects the message for an absolute reminder.
	StepAbsoluteMessage
	// StepDailyTimes expects one or more times of day, one per line.
	StepDailyTimes
	// StepDailyMessage expects the message for a daily reminder.
	StepDailyMessage
	// StepNotifyTarget expects a recipient id or "@handle" (admin flow).
	StepNotifyTarget
	// StepNotifyKind expects a schedule kind for the notify flow.
	StepNotifyKind
	// StepReady means the draft is complete and can be finalized.
	StepReady
)

// Prompt tokens returned to the conversation layer.
const (
	PromptDuration    = "enter_duration"
	PromptMessage     = "enter_message"
	PromptRepeat      = "choose_repeat"
	PromptRepeatCount = "enter_repeat_count"
	PromptDate        = "enter_date"
	PromptClock       = "enter_time"
	PromptDailyTimes  = "enter_daily_times"
	PromptRecipient   = "enter_recipient"
	PromptKind        = "choose_kind"
	PromptReady       = "ready_to_finalize"
)

var (
	// ErrNoDialog is returned when an owner supplies input or finalizes
	// without a dialog in progress.
	ErrNoDialog = errors.New("no dialog in progress")

	// ErrNotReady is returned by Finalize when the draft is still missing
	// fields.
	ErrNotReady = errors.New("dialog is not complete")

	// ErrBadKind is returned when a schedule kind is not one of
	// relative, absolute, or daily.
	ErrBadKind = errors.New("unknown reminder kind")

	// ErrBadChoice is returned for a repeat choice other than yes or no.
	ErrBadChoice = errors.New("answer yes or no")
)

// Draft accumulates the fields of a reminder being specified.
type Draft struct {
	OwnerID  string
	TargetID string // delivery recipient; differs from OwnerID in admin-notify
	Kind     string
	Step     Step

	Spec    string   // relative duration spec
	Date    string   // absolute date part
	Clock   string   // absolute time part
	Times   []string // daily times of day
	Message string
	Repeat  int
}

// Manager holds in-progress drafts and turns completed ones into persisted
// reminders through the lifecycle controller. Safe for concurrent use.
type Manager struct {
	svc       *services.ReminderService
	deliverer services.Deliverer
	adminID   string

	mu     sync.Mutex
	drafts map[string]*Draft
}

// NewManager constructs a Manager. adminID may be empty, which disables the
// notify flow entirely.
func NewManager(svc *services.ReminderService, d services.Deliverer, adminID string) *Manager {
	return &Manager{
		svc:       svc,
		deliverer: d,
		adminID:   adminID,
		drafts:    make(map[string]*Draft),
	}
}

// Begin starts (or restarts) a scheduling dialog for the owner. Any
// previous draft for the same owner is discarded.
func (m *Manager) Begin(ownerID, kind string) (string, error) {
	d := &Draft{OwnerID: ownerID, TargetID: ownerID}
	prompt, err := startKind(d, kind)
	if err != nil {
		return "", err
	}
	m.put(d)
	return prompt, nil
}

// BeginNotify starts the admin-notify dialog: the admin first names a
// recipient, then walks the regular scheduling steps on their behalf.
func (m *Manager) BeginNotify(ownerID string) (string, error) {
	if m.adminID == "" || ownerID != m.adminID {
		return "", services.ErrNotAdmin
	}
	m.put(&Draft{OwnerID: ownerID, Step: StepNotifyTarget})
	return PromptRecipient, nil
}

// Supply drives the dialog forward one step with the owner's input and
// returns the next prompt token. A validation failure returns the error and
// leaves the draft at the same step. The lock is held across the whole
// transition so concurrent inputs for the same owner serialize instead of
// interleaving on a half-updated draft.
func (m *Manager) Supply(ctx context.Context, ownerID, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.drafts[ownerID]
	if !ok {
		return "", ErrNoDialog
	}

	value = strings.TrimSpace(value)

	switch d.Step {
	case StepRelativeSpec:
		if _, err := schedule.ParseRelative(value); err != nil {
			return "", err
		}
		d.Spec = value
		d.Step = StepRelativeMessage
		return PromptMessage, nil

	case StepRelativeMessage:
		if value == "" {
			return "", services.ErrEmptyMessage
		}
		d.Message = value
		d.Step = StepRepeatChoice
		return PromptRepeat, nil

	case StepRepeatChoice:
		switch strings.ToLower(value) {
		case "yes", "y":
			d.Step = StepRepeatCount
			return PromptRepeatCount, nil
		case "no", "n":
			d.Repeat = 0
			d.Step = StepReady
			return PromptReady, nil
		default:
			return "", ErrBadChoice
		}

	case StepRepeatCount:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return "", services.ErrBadRepeatCount
		}
		d.Repeat = n
		d.Step = StepReady
		return PromptReady, nil

	case StepDate:
		if err := schedule.ValidateDate(value); err != nil {
			return "", err
		}
		d.Date = value
		d.Step = StepClock
		return PromptClock, nil

	case StepClock:
		if _, err := schedule.ParseClock(value); err != nil {
			return "", err
		}
		d.Clock = value
		d.Step = StepAbsoluteMessage
		return PromptMessage, nil

	case StepAbsoluteMessage:
		if value == "" {
			return "", services.ErrEmptyMessage
		}
		d.Message = value
		d.Step = StepReady
		return PromptReady, nil

	case StepDailyTimes:
		times, err := splitTimes(value)
		if err != nil {
			return "", err
		}
		d.Times = times
		d.Step = StepDailyMessage
		return PromptMessage, nil

	case StepDailyMessage:
		if value == "" {
			return "", services.ErrEmptyMessage
		}
		d.Message = value
		d.Step = StepReady
		return PromptReady, nil

	case StepNotifyTarget:
		target, err := m.resolveTarget(ctx, value)
		if err != nil {
			return "", err
		}
		d.TargetID = target
		d.Step = StepNotifyKind
		return PromptKind, nil

	case StepNotifyKind:
		return startKind(d, value)

	case StepReady:
		return PromptReady, nil
	}

	return "", ErrNoDialog
}

// Finalize turns a complete draft into a persisted, armed reminder and
// clears the dialog. The draft is claimed under the lock before persistence
// starts, so two concurrent Finalize calls cannot both create a reminder;
// on a failed persistence attempt the draft is put back so the owner can
// retry.
func (m *Manager) Finalize(ctx context.Context, ownerID string) (*domain.Reminder, error) {
	m.mu.Lock()
	d, ok := m.drafts[ownerID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoDialog
	}
	if d.Step != StepReady {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	delete(m.drafts, ownerID)
	m.mu.Unlock()

	var (
		r   *domain.Reminder
		err error
	)
	switch d.Kind {
	case domain.KindRelative:
		r, err = m.svc.CreateRelative(ctx, d.TargetID, d.Message, d.Spec, d.Repeat)
	case domain.KindAbsolute:
		r, err = m.svc.CreateAbsolute(ctx, d.TargetID, d.Message, d.Date, d.Clock)
	case domain.KindDaily:
		r, err = m.svc.CreateDaily(ctx, d.TargetID, d.Message, d.Times)
	default:
		err = ErrBadKind
	}
	if err != nil {
		m.mu.Lock()
		if _, exists := m.drafts[ownerID]; !exists {
			m.drafts[ownerID] = d
		}
		m.mu.Unlock()
		return nil, err
	}

	return r, nil
}

// Abort discards the owner's draft, if any.
func (m *Manager) Abort(ownerID string) {
	m.mu.Lock()
	delete(m.drafts, ownerID)
	m.mu.Unlock()
}

// Current returns the owner's draft step, StepNone when no dialog is in
// progress.
func (m *Manager) Current(ownerID string) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.drafts[ownerID]; ok {
		return d.Step
	}
	return StepNone
}

func (m *Manager) put(d *Draft) {
	m.mu.Lock()
	m.drafts[d.OwnerID] = d
	m.mu.Unlock()
}

// resolveTarget accepts a numeric recipient id as-is and resolves "@handle"
// through the transport.
func (m *Manager) resolveTarget(ctx context.Context, raw string) (string, error) {
	if strings.HasPrefix(raw, "@") {
		id, err := m.deliverer.ResolveRecipient(ctx, raw)
		if err != nil {
			return "", services.ErrBadRecipient
		}
		return id, nil
	}
	if raw == "" || strings.IndexFunc(raw, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		return "", services.ErrBadRecipient
	}
	return raw, nil
}

// startKind routes a draft into the first step of the chosen schedule kind.
func startKind(d *Draft, kind string) (string, error) {
	switch kind {
	case domain.KindRelative:
		d.Kind = kind
		d.Step = StepRelativeSpec
		return PromptDuration, nil
	case domain.KindAbsolute:
		d.Kind = kind
		d.Step = StepDate
		return PromptDate, nil
	case domain.KindDaily:
		d.Kind = kind
		d.Step = StepDailyTimes
		return PromptDailyTimes, nil
	}
	return "", ErrBadKind
}

// splitTimes parses a possibly multi-line time list, rejecting the whole
// input if any line fails validation.
func splitTimes(value string) ([]string, error) {
	var times []string
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := schedule.ParseClock(line); err != nil {
			return nil, err
		}
		times = append(times, line)
	}
	if len(times) == 0 {
		return nil, schedule.ErrNoTimes
	}
	return times, nil
}
