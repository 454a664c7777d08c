// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Reminder
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a reminder is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/remindkit/reminderd/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateReminder inserts a new active Reminder owned by ownerID. The id is
// a randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateReminder(ctx context.Context, db *gorm.DB, ownerID, message, kind, spec string, repeatCount int) (*domain.Reminder, error) {
	r := &domain.Reminder{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Message:     message,
		Kind:        kind,
		Spec:        spec,
		RepeatCount: repeatCount,
		Status:      domain.StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetReminder fetches a reminder by id enforcing owner scope. Returns
// ErrNotFound when the id does not exist or belongs to someone else.
func GetReminder(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Reminder, error) {
	var r domain.Reminder
	err := db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkCompleted transitions a reminder to StatusCompleted. It is
// idempotent: marking an already-completed or absent reminder is a no-op,
// not an error.
func MarkCompleted(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("id = ?", id).
		Update("status", domain.StatusCompleted).Error
}

// DeleteReminder removes a reminder owned by ownerID together with its
// trigger mappings. Returns ErrNotFound if no such reminder exists for that
// owner. Callers must cancel the underlying engine timers first.
func DeleteReminder(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&domain.Reminder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	// Explicit cascade: SQLite only honors the FK constraint with
	// foreign_keys=ON, and AutoMigrate-created tables may predate it.
	return db.WithContext(ctx).
		Where("reminder_id = ?", id).
		Delete(&domain.TriggerMapping{}).Error
}

// ListReminders returns the reminders owned by ownerID, oldest first for
// stable display. status filters by lifecycle status when non-empty.
func ListReminders(ctx context.Context, db *gorm.DB, ownerID, status string) ([]domain.Reminder, error) {
	q := db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Reminder
	err := q.Order("created_at asc").Find(&out).Error
	return out, err
}

// ListActiveReminders returns every active reminder regardless of owner.
// Used by recovery to re-arm triggers after a restart.
func ListActiveReminders(ctx context.Context, db *gorm.DB) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusActive).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountActiveReminders returns the number of active reminders across all
// owners. Recovery uses it to decide whether the store is empty enough to
// seed from the remote mirror.
func CountActiveReminders(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Reminder{}).
		Where("status = ?", domain.StatusActive).
		Count(&total).Error
	return total, err
}

// ClearCompleted deletes all completed reminders owned by ownerID and
// returns how many were removed.
func ClearCompleted(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, domain.StatusCompleted).
		Delete(&domain.Reminder{})
	return res.RowsAffected, res.Error
}
