// Trigger registry persistence.
//
// The registry records which engine trigger handles are armed for each
// reminder. Handles are opaque strings owned by the engine; rows only
// reference them. Detaching does not cancel timers: callers cancel in the
// engine first, then detach, so a racing fire never finds a dangling timer.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/remindkit/reminderd/internal/domain"
)

// AttachTrigger records one engine handle for a reminder. A reminder may
// accumulate multiple handles (one per daily time entry, or one per repeat
// of a relative reminder).
func AttachTrigger(ctx context.Context, db *gorm.DB, reminderID, handle string) error {
	m := &domain.TriggerMapping{
		ID:         uuid.NewString(),
		ReminderID: reminderID,
		Handle:     handle,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(m).Error
}

// TriggerHandles returns the handles currently recorded for a reminder, in
// attach order. An unknown reminder id yields an empty slice.
func TriggerHandles(ctx context.Context, db *gorm.DB, reminderID string) ([]string, error) {
	var handles []string
	err := db.WithContext(ctx).
		Model(&domain.TriggerMapping{}).
		Where("reminder_id = ?", reminderID).
		Order("created_at asc").
		Pluck("handle", &handles).Error
	return handles, err
}

// DetachTriggers removes every recorded handle for a reminder. It does not
// touch the engine; cancel there first.
func DetachTriggers(ctx context.Context, db *gorm.DB, reminderID string) error {
	return db.WithContext(ctx).
		Where("reminder_id = ?", reminderID).
		Delete(&domain.TriggerMapping{}).Error
}

// DetachHandle removes a single recorded handle, used when one of several
// triggers for a reminder fires terminally while the others stay armed.
func DetachHandle(ctx context.Context, db *gorm.DB, reminderID, handle string) error {
	return db.WithContext(ctx).
		Where("reminder_id = ? AND handle = ?", reminderID, handle).
		Delete(&domain.TriggerMapping{}).Error
}
