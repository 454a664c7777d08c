package repo

import (
	"context"
	"testing"

	"github.com/remindkit/reminderd/internal/domain"
)

func TestAttachAndListHandles(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	r, err := CreateReminder(ctx, db, "u1", "m", domain.KindDaily, "09.00 AM;09.00 PM", 0)
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	for _, h := range []string{"daily:one", "daily:two"} {
		if err := AttachTrigger(ctx, db, r.ID, h); err != nil {
			t.Fatalf("AttachTrigger(%s): %v", h, err)
		}
	}

	handles, err := TriggerHandles(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("TriggerHandles: %v", err)
	}
	if len(handles) != 2 || handles[0] != "daily:one" || handles[1] != "daily:two" {
		t.Fatalf("unexpected handles: %v", handles)
	}
}

func TestTriggerHandles_UnknownReminder(t *testing.T) {
	db := newTestDB(t, true)
	handles, err := TriggerHandles(context.Background(), db, "missing")
	if err != nil {
		t.Fatalf("TriggerHandles: %v", err)
	}
	if len(handles) != 0 {
		t.Fatalf("expected empty, got %v", handles)
	}
}

func TestDetachTriggers(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	r, _ := CreateReminder(ctx, db, "u1", "m", domain.KindRelative, "5m", 1)
	AttachTrigger(ctx, db, r.ID, "once:a")
	AttachTrigger(ctx, db, r.ID, "once:b")

	if err := DetachTriggers(ctx, db, r.ID); err != nil {
		t.Fatalf("DetachTriggers: %v", err)
	}
	handles, _ := TriggerHandles(ctx, db, r.ID)
	if len(handles) != 0 {
		t.Fatalf("expected no handles, got %v", handles)
	}

	// Detaching again is a no-op.
	if err := DetachTriggers(ctx, db, r.ID); err != nil {
		t.Fatalf("second DetachTriggers: %v", err)
	}
}

func TestDetachHandle_RemovesOnlyThatRow(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	r, _ := CreateReminder(ctx, db, "u1", "m", domain.KindDaily, "09.00 AM;09.00 PM", 0)
	AttachTrigger(ctx, db, r.ID, "daily:a")
	AttachTrigger(ctx, db, r.ID, "daily:b")

	if err := DetachHandle(ctx, db, r.ID, "daily:a"); err != nil {
		t.Fatalf("DetachHandle: %v", err)
	}
	handles, _ := TriggerHandles(ctx, db, r.ID)
	if len(handles) != 1 || handles[0] != "daily:b" {
		t.Fatalf("unexpected handles: %v", handles)
	}
}
