// Dialog HTTP handlers.
//
// The conversation layer drives the draft state machine through these
// endpoints:
//   - POST   /dialogs           (begin a scheduling dialog)
//   - POST   /dialogs/notify    (begin the admin-notify dialog)
//   - POST   /dialogs/input     (supply the next field)
//   - POST   /dialogs/finalize  (Draft → Active transition)
//   - DELETE /dialogs           (abort)
//
// Validation failures return 422 with a stable code and leave the dialog at
// the same step, so the conversation layer can simply re-prompt.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remindkit/reminderd/internal/dialog"
	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/schedule"
	"github.com/remindkit/reminderd/internal/services"
)

// DialogManager defines the draft dialog operations consumed by HTTP
// handlers.
type DialogManager interface {
	Begin(ownerID, kind string) (string, error)
	BeginNotify(ownerID string) (string, error)
	Supply(ctx context.Context, ownerID, value string) (string, error)
	Finalize(ctx context.Context, ownerID string) (*domain.Reminder, error)
	Abort(ownerID string)
}

// BeginDialogRequest selects the schedule kind for a new dialog.
type BeginDialogRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// SupplyFieldRequest carries one user input for the current step.
type SupplyFieldRequest struct {
	Value string `json:"value" binding:"required"`
}

// PromptResponse tells the conversation layer what to ask next.
type PromptResponse struct {
	Prompt string `json:"prompt"`
}

// BeginDialog starts a scheduling dialog.
func (h *Handlers) BeginDialog(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}
	var req BeginDialogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kind is required")
		return
	}

	prompt, err := h.dialogs.Begin(owner, req.Kind)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "kind must be relative, absolute, or daily")
		return
	}
	ok(c, http.StatusCreated, PromptResponse{Prompt: prompt})
}

// BeginNotify starts the admin-notify dialog for another recipient.
func (h *Handlers) BeginNotify(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}

	prompt, err := h.dialogs.BeginNotify(owner)
	if err != nil {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "notify flow is admin-only")
		return
	}
	ok(c, http.StatusCreated, PromptResponse{Prompt: prompt})
}

// SupplyField drives the dialog forward one step.
func (h *Handlers) SupplyField(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}
	var req SupplyFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value is required")
		return
	}

	prompt, err := h.dialogs.Supply(c.Request.Context(), owner, req.Value)
	if err != nil {
		status, code := dialogErrStatus(err)
		fail(c, status, code, err.Error())
		return
	}
	ok(c, http.StatusOK, PromptResponse{Prompt: prompt})
}

// FinalizeDialog commits a complete draft into a persisted, armed reminder.
func (h *Handlers) FinalizeDialog(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}

	r, err := h.dialogs.Finalize(c.Request.Context(), owner)
	if err != nil {
		status, code := dialogErrStatus(err)
		fail(c, status, code, err.Error())
		return
	}
	ok(c, http.StatusCreated, r)
}

// AbortDialog discards the owner's draft.
func (h *Handlers) AbortDialog(c *gin.Context) {
	owner, okID := requireOwner(c)
	if !okID {
		return
	}
	h.dialogs.Abort(owner)
	c.Status(http.StatusNoContent)
}

// dialogErrStatus maps dialog and validation errors to HTTP status and
// stable code. Unknown errors are treated as server-side storage failures.
func dialogErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dialog.ErrNoDialog):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, dialog.ErrNotReady):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, dialog.ErrBadKind),
		errors.Is(err, dialog.ErrBadChoice),
		errors.Is(err, schedule.ErrBadDuration),
		errors.Is(err, schedule.ErrBadDate),
		errors.Is(err, schedule.ErrBadTime),
		errors.Is(err, schedule.ErrNoTimes),
		errors.Is(err, services.ErrBadRepeatCount),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrBadRecipient):
		return http.StatusUnprocessableEntity, ErrCodeValidation
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
