// Whole-table reads for the mirror snapshot.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/remindkit/reminderd/internal/domain"
)

// ListAllReminders returns every reminder row regardless of owner or
// status, in creation order.
func ListAllReminders(ctx context.Context, db *gorm.DB) ([]domain.Reminder, error) {
	var out []domain.Reminder
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}

// ListAllTriggerMappings returns every registry row. Mirrored for shape
// compatibility only; handles from a previous process are stale by
// definition and recovery never consults them.
func ListAllTriggerMappings(ctx context.Context, db *gorm.DB) ([]domain.TriggerMapping, error) {
	var out []domain.TriggerMapping
	err := db.WithContext(ctx).Order("created_at asc").Find(&out).Error
	return out, err
}
