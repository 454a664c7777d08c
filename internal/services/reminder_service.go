// Package services – ReminderService
//
// This file implements the reminder lifecycle controller: it validates and
// normalizes schedule specifications, persists reminder records, arms
// triggers in the engine, records the resulting handles in the trigger
// registry, and drives the Active → Completed and Active → Deleted
// transitions. The firing callback lives here too, so delivery, completion
// marking, and registry cleanup stay in one place.
//
// Delivery and completion are not transactionally linked: a failed delivery
// is logged and swallowed, and the one-shot reminder still completes.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/engine"
	"github.com/remindkit/reminderd/internal/repo"
	"github.com/remindkit/reminderd/internal/schedule"
)

var (
	// deliveries counts delivery attempts by outcome ("ok" or "error").
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_deliveries_total",
			Help: "Total number of reminder delivery attempts.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(deliveries)
}

// Deliverer is the consumed transport capability: best-effort text delivery
// plus handle resolution for the admin-notify flow.
type Deliverer interface {
	// Deliver sends text to the recipient. Failures are reported, never
	// panicked; the caller decides whether to swallow them.
	Deliver(ctx context.Context, recipientID, text string) error

	// ResolveRecipient maps a human-entered "@handle" to a deliverable
	// recipient id.
	ResolveRecipient(ctx context.Context, handle string) (string, error)
}

// MirrorNotifier is poked after every store mutation so the remote mirror
// can refresh itself, debounced, off the request path.
type MirrorNotifier interface {
	Notify()
}

// noopMirror satisfies MirrorNotifier when no mirror is configured.
type noopMirror struct{}

func (noopMirror) Notify() {}

// ReminderService orchestrates creation, arming, firing, completion,
// deletion, and recovery of reminders. Construct with NewReminderService,
// then bind the engine with AttachEngine once the engine has been built
// around this service's HandleFire callback.
type ReminderService struct {
	DB        *gorm.DB
	Deliverer Deliverer
	Mirror    MirrorNotifier
	Loc       *time.Location

	eng *engine.Engine
	lg  zerolog.Logger

	// now is a seam for tests.
	now func() time.Time
}

// NewReminderService constructs a ReminderService without an engine bound
// yet. loc is the single configured timezone for absolute and daily
// schedules; mirror may be nil.
func NewReminderService(db *gorm.DB, d Deliverer, mirror MirrorNotifier, loc *time.Location) *ReminderService {
	if mirror == nil {
		mirror = noopMirror{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &ReminderService{
		DB:        db,
		Deliverer: d,
		Mirror:    mirror,
		Loc:       loc,
		lg:        log.With().Str("component", "reminders").Logger(),
		now:       time.Now,
	}
}

// AttachEngine binds the trigger engine. Must be called before any create,
// delete, or recovery operation. The engine's fire callback should be this
// service's HandleFire.
func (s *ReminderService) AttachEngine(e *engine.Engine) { s.eng = e }

// CreateRelative persists and arms a relative reminder. spec is the user
// string ("5m", "2h"); repeat is the number of additional repetitions
// (0 = fire once). repeat = N arms N+1 independent one-shot triggers at
// multiples of the base interval from now, all sharing the reminder id.
func (s *ReminderService) CreateRelative(ctx context.Context, ownerID, message, spec string, repeat int) (*domain.Reminder, error) {
	d, err := schedule.ParseRelative(spec)
	if err != nil {
		return nil, err
	}
	if repeat < 0 {
		return nil, ErrBadRepeatCount
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	r, err := repo.CreateReminder(ctx, s.DB, ownerID, message, domain.KindRelative, spec, repeat)
	if err != nil {
		return nil, err
	}

	// Each handle is recorded before arming: an instant already due fires
	// asynchronously, and its completion path must find the registry row.
	base := s.now()
	for i := 0; i <= repeat; i++ {
		at := base.Add(time.Duration(i+1) * d)
		handle := engine.NewOnceHandle()
		if err := repo.AttachTrigger(ctx, s.DB, r.ID, handle); err != nil {
			s.lg.Error().Err(err).Str("reminder_id", r.ID).Msg("attach trigger failed")
			continue
		}
		s.eng.ArmOnce(handle, at, engine.Payload{
			ReminderID: r.ID,
			OwnerID:    ownerID,
			Message:    message,
			Completes:  true,
		})
	}

	s.Mirror.Notify()
	return r, nil
}

// CreateAbsolute persists and arms a single-shot reminder at the given
// calendar date ("15/11/25") and 12-hour time ("10.15 PM") in the
// configured timezone. Validation is format-only: a date already in the
// past is accepted and fires immediately.
func (s *ReminderService) CreateAbsolute(ctx context.Context, ownerID, message, date, clock string) (*domain.Reminder, error) {
	if err := schedule.ValidateDate(date); err != nil {
		return nil, err
	}
	if _, err := schedule.ParseClock(clock); err != nil {
		return nil, err
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	spec := schedule.AbsoluteSpec(date, clock)
	at, err := schedule.ParseAbsolute(spec, s.Loc)
	if err != nil {
		return nil, err
	}

	r, err := repo.CreateReminder(ctx, s.DB, ownerID, message, domain.KindAbsolute, spec, 0)
	if err != nil {
		return nil, err
	}

	// Record the handle before arming; a past instant fires right away and
	// its completion path must find the registry row.
	handle := engine.NewOnceHandle()
	if err := repo.AttachTrigger(ctx, s.DB, r.ID, handle); err != nil {
		s.lg.Error().Err(err).Str("reminder_id", r.ID).Msg("attach trigger failed")
	}
	s.eng.ArmOnce(handle, at, engine.Payload{
		ReminderID: r.ID,
		OwnerID:    ownerID,
		Message:    message,
		Completes:  true,
	})

	s.Mirror.Notify()
	return r, nil
}

// CreateDaily persists and arms a recurring reminder firing every day at
// each of the given 12-hour times. Daily reminders never complete; they
// live until deleted.
func (s *ReminderService) CreateDaily(ctx context.Context, ownerID, message string, times []string) (*domain.Reminder, error) {
	specStr, err := schedule.DailySpec(times)
	if err != nil {
		return nil, err
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}
	clocks, err := schedule.ParseDaily(specStr)
	if err != nil {
		return nil, err
	}

	r, err := repo.CreateReminder(ctx, s.DB, ownerID, message, domain.KindDaily, specStr, 0)
	if err != nil {
		return nil, err
	}

	if err := s.armDaily(ctx, r, clocks); err != nil {
		return nil, err
	}

	s.Mirror.Notify()
	return r, nil
}

// Delete cancels each trigger armed for the reminder, detaching its
// registry row as it goes, then removes the reminder. Cancel-then-detach
// ordering avoids leaving a live engine timer referenced by nothing.
// Returns ErrReminderNotFound when the id does not belong to ownerID.
func (s *ReminderService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := repo.GetReminder(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReminderNotFound
		}
		return err
	}

	handles, err := repo.TriggerHandles(ctx, s.DB, id)
	if err != nil {
		return err
	}
	for _, h := range handles {
		s.eng.Cancel(h)
		if err := repo.DetachHandle(ctx, s.DB, id, h); err != nil {
			return err
		}
	}
	if err := repo.DeleteReminder(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReminderNotFound
		}
		return err
	}

	s.Mirror.Notify()
	s.lg.Info().Str("reminder_id", id).Str("owner_id", ownerID).Msg("reminder deleted")
	return nil
}

// ListActive returns the owner's active reminders, oldest first.
func (s *ReminderService) ListActive(ctx context.Context, ownerID string) ([]domain.Reminder, error) {
	return repo.ListReminders(ctx, s.DB, ownerID, domain.StatusActive)
}

// ListCompleted returns the owner's completed reminders, oldest first.
func (s *ReminderService) ListCompleted(ctx context.Context, ownerID string) ([]domain.Reminder, error) {
	return repo.ListReminders(ctx, s.DB, ownerID, domain.StatusCompleted)
}

// ClearCompleted deletes all completed reminders owned by ownerID and
// returns the number removed.
func (s *ReminderService) ClearCompleted(ctx context.Context, ownerID string) (int64, error) {
	n, err := repo.ClearCompleted(ctx, s.DB, ownerID)
	if err == nil && n > 0 {
		s.Mirror.Notify()
	}
	return n, err
}

// HandleFire is the engine's delivery callback. It runs on a trigger's own
// goroutine: it delivers the message, and for one-shot triggers marks the
// reminder completed and clears its registry rows.
//
// Known latent behavior, preserved on purpose: a relative reminder with
// repeat > 0 arms several one-shot triggers that all carry Completes, so
// the reminder is marked completed after the first fire even though later
// repeats are still armed and will still deliver.
//
// A fire racing a concurrent delete may arrive for an id no longer in the
// store; that is tolerated as a no-op, not an error.
func (s *ReminderService) HandleFire(p engine.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Deliverer.Deliver(ctx, p.OwnerID, p.Message); err != nil {
		deliveries.WithLabelValues("error").Inc()
		s.lg.Error().Err(err).
			Str("reminder_id", p.ReminderID).
			Str("owner_id", p.OwnerID).
			Msg("delivery failed")
	} else {
		deliveries.WithLabelValues("ok").Inc()
	}

	if !p.Completes {
		return
	}

	if err := repo.MarkCompleted(ctx, s.DB, p.ReminderID); err != nil {
		s.lg.Error().Err(err).Str("reminder_id", p.ReminderID).Msg("mark completed failed")
	}
	if err := repo.DetachTriggers(ctx, s.DB, p.ReminderID); err != nil {
		s.lg.Error().Err(err).Str("reminder_id", p.ReminderID).Msg("detach triggers failed")
	}
	s.Mirror.Notify()
}

// armDaily arms one recurring trigger per time-of-day entry and records the
// handles.
func (s *ReminderService) armDaily(ctx context.Context, r *domain.Reminder, clocks []schedule.Clock) error {
	for _, c := range clocks {
		handle, err := s.eng.ArmDaily(c.Hour, c.Minute, engine.Payload{
			ReminderID: r.ID,
			OwnerID:    r.OwnerID,
			Message:    r.Message,
			Completes:  false,
		})
		if err != nil {
			return err
		}
		if err := repo.AttachTrigger(ctx, s.DB, r.ID, handle); err != nil {
			s.lg.Error().Err(err).Str("reminder_id", r.ID).Msg("attach trigger failed")
		}
	}
	return nil
}
