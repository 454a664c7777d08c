// Package services – UserService
//
// Owners carry a preferred locale used by the conversation layer when
// rendering prompts. This service validates and canonicalizes the tag;
// the strings themselves are not this service's concern.
package services

import (
	"context"

	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/remindkit/reminderd/internal/repo"
)

// UserService stores per-owner preferences.
type UserService struct {
	DB *gorm.DB
}

// SetLocale validates tag as BCP-47 and stores its canonical form for the
// owner. Returns ErrBadLocale on an unparsable tag.
func (s *UserService) SetLocale(ctx context.Context, ownerID, tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", ErrBadLocale
	}
	canonical := t.String()
	if err := repo.UpsertUser(ctx, s.DB, ownerID, canonical); err != nil {
		return "", err
	}
	return canonical, nil
}

// Locale returns the stored locale for an owner, defaulting to "en" when
// none has been set.
func (s *UserService) Locale(ctx context.Context, ownerID string) (string, error) {
	loc, err := repo.UserLocale(ctx, s.DB, ownerID)
	if err != nil {
		return "", err
	}
	if loc == "" {
		loc = "en"
	}
	return loc, nil
}
