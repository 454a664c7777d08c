// Package services – recovery.
//
// On process start the engine holds no state, so every active reminder must
// be re-armed from its stored schedule spec. Registry rows left over from
// the previous process reference dead handles; they are dropped and
// replaced with the freshly armed ones.
//
// Re-arming policy:
//   - relative: the countdown restarts from now ("now + duration"), one
//     trigger regardless of the stored repeat count. The effective delay is
//     not conserved across restarts.
//   - absolute: re-armed only if the instant is still in the future; a
//     missed absolute reminder gets no catch-up delivery.
//   - daily: one recurring trigger per stored time-of-day entry.
package services

import (
	"context"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/engine"
	"github.com/remindkit/reminderd/internal/repo"
	"github.com/remindkit/reminderd/internal/schedule"
)

// Recover re-arms every active reminder. Completed reminders are never
// touched. Individual reminders with undecodable specs are logged and
// skipped so one bad row cannot block the rest.
func (s *ReminderService) Recover(ctx context.Context) error {
	reminders, err := repo.ListActiveReminders(ctx, s.DB)
	if err != nil {
		return err
	}

	rearmed := 0
	for i := range reminders {
		r := &reminders[i]
		if err := s.recoverOne(ctx, r); err != nil {
			s.lg.Error().Err(err).
				Str("reminder_id", r.ID).
				Str("kind", r.Kind).
				Str("spec", r.Spec).
				Msg("recovery skipped reminder")
			continue
		}
		rearmed++
	}

	s.lg.Info().Int("active", len(reminders)).Int("rearmed", rearmed).Msg("recovery complete")
	return nil
}

func (s *ReminderService) recoverOne(ctx context.Context, r *domain.Reminder) error {
	// Stale handles from the previous process are superseded, not consulted.
	if err := repo.DetachTriggers(ctx, s.DB, r.ID); err != nil {
		return err
	}

	switch r.Kind {
	case domain.KindRelative:
		d, err := schedule.ParseRelative(r.Spec)
		if err != nil {
			return err
		}
		handle := engine.NewOnceHandle()
		if err := repo.AttachTrigger(ctx, s.DB, r.ID, handle); err != nil {
			return err
		}
		s.eng.ArmOnce(handle, s.now().Add(d), engine.Payload{
			ReminderID: r.ID,
			OwnerID:    r.OwnerID,
			Message:    r.Message,
			Completes:  true,
		})
		return nil

	case domain.KindAbsolute:
		at, err := schedule.ParseAbsolute(r.Spec, s.Loc)
		if err != nil {
			return err
		}
		if !at.After(s.now()) {
			s.lg.Info().Str("reminder_id", r.ID).Time("fire_at", at).
				Msg("absolute instant already past, not re-armed")
			return nil
		}
		handle := engine.NewOnceHandle()
		if err := repo.AttachTrigger(ctx, s.DB, r.ID, handle); err != nil {
			return err
		}
		s.eng.ArmOnce(handle, at, engine.Payload{
			ReminderID: r.ID,
			OwnerID:    r.OwnerID,
			Message:    r.Message,
			Completes:  true,
		})
		return nil

	case domain.KindDaily:
		clocks, err := schedule.ParseDaily(r.Spec)
		if err != nil {
			return err
		}
		return s.armDaily(ctx, r, clocks)
	}

	return ErrUnknownKind
}
