package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/services"
)

// fakeReminders implements ReminderService with canned data per owner.
type fakeReminders struct {
	active    map[string][]domain.Reminder
	completed map[string][]domain.Reminder
	deleted   []string
	cleared   int64
	err       error
}

func (f *fakeReminders) ListActive(_ context.Context, owner string) ([]domain.Reminder, error) {
	return f.active[owner], f.err
}

func (f *fakeReminders) ListCompleted(_ context.Context, owner string) ([]domain.Reminder, error) {
	return f.completed[owner], f.err
}

func (f *fakeReminders) Delete(_ context.Context, owner, id string) error {
	if f.err != nil {
		return f.err
	}
	for _, r := range f.active[owner] {
		if r.ID == id {
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return services.ErrReminderNotFound
}

func (f *fakeReminders) ClearCompleted(_ context.Context, owner string) (int64, error) {
	return f.cleared, f.err
}

func reminderRouter(f *fakeReminders) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(f, nil, nil)
	r := gin.New()
	r.GET("/reminders", h.ListReminders)
	r.DELETE("/reminders/completed", h.ClearCompleted)
	r.DELETE("/reminders/:id", h.DeleteReminder)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleReminder(id, owner string) domain.Reminder {
	now := time.Now().UTC()
	return domain.Reminder{
		ID: id, OwnerID: owner, Message: "m",
		Kind: domain.KindRelative, Spec: "5m",
		Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
}

func TestListReminders_Active(t *testing.T) {
	f := &fakeReminders{active: map[string][]domain.Reminder{
		"u1": {sampleReminder("r1", "u1"), sampleReminder("r2", "u1")},
	}}
	w := doRequest(t, reminderRouter(f), http.MethodGet, "/reminders", "u1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ListRemindersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Reminders) != 2 {
		t.Fatalf("reminders = %d, want 2", len(resp.Reminders))
	}
}

func TestListReminders_CompletedFilter(t *testing.T) {
	f := &fakeReminders{completed: map[string][]domain.Reminder{
		"u1": {sampleReminder("r9", "u1")},
	}}
	w := doRequest(t, reminderRouter(f), http.MethodGet, "/reminders?status=completed", "u1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListRemindersResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Reminders) != 1 || resp.Reminders[0].ID != "r9" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestListReminders_EmptyIsArrayNotNull(t *testing.T) {
	f := &fakeReminders{}
	w := doRequest(t, reminderRouter(f), http.MethodGet, "/reminders", "u1", "")

	if !strings.Contains(w.Body.String(), `"reminders":[]`) {
		t.Fatalf("body = %s, want empty array", w.Body.String())
	}
}

func TestListReminders_BadStatus(t *testing.T) {
	w := doRequest(t, reminderRouter(&fakeReminders{}), http.MethodGet, "/reminders?status=archived", "u1", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeBadRequest {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestListReminders_MissingOwnerHeader(t *testing.T) {
	w := doRequest(t, reminderRouter(&fakeReminders{}), http.MethodGet, "/reminders", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListReminders_ServiceError(t *testing.T) {
	f := &fakeReminders{err: errors.New("db closed")}
	w := doRequest(t, reminderRouter(f), http.MethodGet, "/reminders", "u1", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestDeleteReminder(t *testing.T) {
	f := &fakeReminders{active: map[string][]domain.Reminder{
		"u1": {sampleReminder("r1", "u1")},
	}}
	r := reminderRouter(f)

	w := doRequest(t, r, http.MethodDelete, "/reminders/r1", "u1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "r1" {
		t.Fatalf("deleted = %v", f.deleted)
	}

	w = doRequest(t, r, http.MethodDelete, "/reminders/missing", "u1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeNotFound {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestClearCompleted(t *testing.T) {
	f := &fakeReminders{cleared: 3}
	w := doRequest(t, reminderRouter(f), http.MethodDelete, "/reminders/completed", "u1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ClearCompletedResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Removed != 3 {
		t.Fatalf("removed = %d, want 3", resp.Removed)
	}
}
