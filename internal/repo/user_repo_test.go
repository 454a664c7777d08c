package repo

import (
	"context"
	"testing"

	"github.com/remindkit/reminderd/internal/domain"
)

func TestUpsertUser_InsertThenUpdate(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	if err := UpsertUser(ctx, db, "u1", "en"); err != nil {
		t.Fatalf("UpsertUser insert: %v", err)
	}
	if err := UpsertUser(ctx, db, "u1", "bn"); err != nil {
		t.Fatalf("UpsertUser update: %v", err)
	}

	loc, err := UserLocale(ctx, db, "u1")
	if err != nil {
		t.Fatalf("UserLocale: %v", err)
	}
	if loc != "bn" {
		t.Fatalf("locale = %q, want bn", loc)
	}

	users, err := ListUsers(ctx, db)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one user row, got %d", len(users))
	}
}

func TestUserLocale_UnknownUser(t *testing.T) {
	db := newTestDB(t, true)
	loc, err := UserLocale(context.Background(), db, "nobody")
	if err != nil {
		t.Fatalf("UserLocale: %v", err)
	}
	if loc != "" {
		t.Fatalf("locale = %q, want empty", loc)
	}
}

func TestSnapshotQueries(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	r1, _ := CreateReminder(ctx, db, "u1", "a", domain.KindRelative, "5m", 0)
	r2, _ := CreateReminder(ctx, db, "u2", "b", domain.KindDaily, "09.00 AM", 0)
	AttachTrigger(ctx, db, r1.ID, "once:x")
	AttachTrigger(ctx, db, r2.ID, "daily:y")
	MarkCompleted(ctx, db, r1.ID)

	all, err := ListAllReminders(ctx, db)
	if err != nil {
		t.Fatalf("ListAllReminders: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(all))
	}

	maps, err := ListAllTriggerMappings(ctx, db)
	if err != nil {
		t.Fatalf("ListAllTriggerMappings: %v", err)
	}
	if len(maps) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(maps))
	}
}
