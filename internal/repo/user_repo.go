// User persistence.
//
// Users exist only to remember a preferred locale per owner; the
// conversation layer renders localized strings with it.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/remindkit/reminderd/internal/domain"
)

// UpsertUser stores (or replaces) the preferred locale for an owner.
func UpsertUser(ctx context.Context, db *gorm.DB, ownerID, locale string) error {
	u := &domain.User{
		ID:        ownerID,
		Locale:    locale,
		CreatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"locale", "updated_at"}),
		}).
		Create(u).Error
}

// UserLocale returns the stored locale for an owner, or "" when the owner
// has never set one.
func UserLocale(ctx context.Context, db *gorm.DB, ownerID string) (string, error) {
	var u domain.User
	err := db.WithContext(ctx).First(&u, "id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Locale, nil
}

// ListUsers returns all known users, used by the mirror snapshot.
func ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).Order("id asc").Find(&out).Error
	return out, err
}
