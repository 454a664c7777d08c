// Reminder HTTP handlers.
//
// This file exposes REST endpoints for reminder resources:
//   - GET    /reminders              (list, ?status=active|completed)
//   - DELETE /reminders/completed    (clear completed)
//   - DELETE /reminders/:id          (delete one, cancels its triggers)
//
// Handlers are transport-thin: they validate input, call the lifecycle
// controller, and translate results into HTTP responses. The owner
// identity comes from the X-Owner-ID header set by the conversation layer.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/services"
)

// ReminderService defines the lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use.
type ReminderService interface {
	ListActive(ctx context.Context, ownerID string) ([]domain.Reminder, error)
	ListCompleted(ctx context.Context, ownerID string) ([]domain.Reminder, error)
	Delete(ctx context.Context, ownerID, id string) error
	ClearCompleted(ctx context.Context, ownerID string) (int64, error)
}

// ownerID extracts the acting owner identity from the request. The
// conversation layer authenticates its users; this service trusts the
// header it forwards.
func ownerID(c *gin.Context) string {
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-Owner-ID")); h != "" {
			return h
		}
	}
	return ""
}

// requireOwner fetches the owner id or fails the request.
func requireOwner(c *gin.Context) (string, bool) {
	id := ownerID(c)
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-Owner-ID header is required")
		return "", false
	}
	return id, true
}

// ListRemindersResponse wraps a reminder listing.
type ListRemindersResponse struct {
	Reminders []domain.Reminder `json:"reminders"`
}

// ClearCompletedResponse reports how many reminders were removed.
type ClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// ListReminders returns the owner's reminders filtered by status
// (default: active).
func (h *Handlers) ListReminders(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}

	status := c.DefaultQuery("status", domain.StatusActive)
	var (
		items []domain.Reminder
		err   error
	)
	switch status {
	case domain.StatusActive:
		items, err = h.reminders.ListActive(c.Request.Context(), owner)
	case domain.StatusCompleted:
		items, err = h.reminders.ListCompleted(c.Request.Context(), owner)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status must be active or completed")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list reminders")
		return
	}
	if items == nil {
		items = []domain.Reminder{}
	}
	ok(c, http.StatusOK, ListRemindersResponse{Reminders: items})
}

// DeleteReminder removes one reminder and cancels its triggers.
func (h *Handlers) DeleteReminder(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}

	id := c.Param("id")
	if err := h.reminders.Delete(c.Request.Context(), owner, id); err != nil {
		if errors.Is(err, services.ErrReminderNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reminder not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not delete reminder")
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearCompleted bulk-deletes the owner's completed reminders.
func (h *Handlers) ClearCompleted(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}

	n, err := h.reminders.ClearCompleted(c.Request.Context(), owner)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not clear completed reminders")
		return
	}
	ok(c, http.StatusOK, ClearCompletedResponse{Removed: n})
}
