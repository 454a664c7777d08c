// User HTTP handlers.
//
// One endpoint: PUT /users/locale stores the owner's preferred locale. The
// value is validated and canonicalized as a BCP-47 tag; the conversation
// layer uses it to pick prompt strings.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remindkit/reminderd/internal/services"
)

// UserService defines the preference operations consumed by HTTP handlers.
type UserService interface {
	SetLocale(ctx context.Context, ownerID, tag string) (string, error)
	Locale(ctx context.Context, ownerID string) (string, error)
}

// SetLocaleRequest carries the locale tag to store.
type SetLocaleRequest struct {
	Locale string `json:"locale" binding:"required"`
}

// LocaleResponse echoes the canonical stored tag.
type LocaleResponse struct {
	Locale string `json:"locale"`
}

// SetLocale validates and stores the owner's preferred locale.
func (h *Handlers) SetLocale(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}
	var req SetLocaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "locale is required")
		return
	}

	canonical, err := h.users.SetLocale(c.Request.Context(), owner, req.Locale)
	if err != nil {
		if errors.Is(err, services.ErrBadLocale) {
			fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "locale must be a valid BCP-47 tag")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not store locale")
		return
	}
	ok(c, http.StatusOK, LocaleResponse{Locale: canonical})
}

// GetLocale returns the owner's stored locale, defaulting to "en".
func (h *Handlers) GetLocale(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}
	loc, err := h.users.Locale(c.Request.Context(), owner)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read locale")
		return
	}
	ok(c, http.StatusOK, LocaleResponse{Locale: loc})
}
