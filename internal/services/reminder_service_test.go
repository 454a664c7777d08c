package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/remindkit/reminderd/internal/domain"
	"github.com/remindkit/reminderd/internal/engine"
	"github.com/remindkit/reminderd/internal/repo"
	"github.com/remindkit/reminderd/internal/schedule"
)

type sentMsg struct {
	RecipientID string
	Text        string
}

// fakeDeliverer records deliveries and lets tests wait for them.
type fakeDeliverer struct {
	mu   sync.Mutex
	sent []sentMsg
	ch   chan sentMsg
	err  error
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{ch: make(chan sentMsg, 16)}
}

func (f *fakeDeliverer) Deliver(_ context.Context, recipientID, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentMsg{recipientID, text})
	err := f.err
	f.mu.Unlock()
	f.ch <- sentMsg{recipientID, text}
	return err
}

func (f *fakeDeliverer) ResolveRecipient(_ context.Context, handle string) (string, error) {
	return "resolved:" + handle, nil
}

func (f *fakeDeliverer) wait(t *testing.T, d time.Duration) sentMsg {
	t.Helper()
	select {
	case m := <-f.ch:
		return m
	case <-time.After(d):
		t.Fatal("timed out waiting for delivery")
		return sentMsg{}
	}
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// countingMirror counts Notify pokes.
type countingMirror struct {
	mu sync.Mutex
	n  int
}

func (m *countingMirror) Notify() {
	m.mu.Lock()
	m.n++
	m.mu.Unlock()
}

func (m *countingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

// newTestService wires a service, engine, and fakes over a temp sqlite file.
func newTestService(t *testing.T) (*ReminderService, *engine.Engine, *fakeDeliverer, *countingMirror) {
	t.Helper()

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	d := newFakeDeliverer()
	mir := &countingMirror{}
	svc := NewReminderService(db, d, mir, time.UTC)
	eng := engine.New(time.UTC, svc.HandleFire)
	svc.AttachEngine(eng)
	t.Cleanup(eng.Stop)
	return svc, eng, d, mir
}

func mappingCount(t *testing.T, db *gorm.DB, reminderID string) int {
	t.Helper()
	handles, err := repo.TriggerHandles(context.Background(), db, reminderID)
	if err != nil {
		t.Fatalf("TriggerHandles: %v", err)
	}
	return len(handles)
}

func reminderStatus(t *testing.T, db *gorm.DB, id, ownerID string) string {
	t.Helper()
	r, err := repo.GetReminder(context.Background(), db, id, ownerID)
	if err != nil {
		t.Fatalf("GetReminder: %v", err)
	}
	return r.Status
}

func TestCreateRelative_ArmsOneTriggerPerRepetition(t *testing.T) {
	svc, eng, _, mir := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRelative(ctx, "u1", "stretch", "5m", 0)
	if err != nil {
		t.Fatalf("CreateRelative: %v", err)
	}
	if r.Kind != domain.KindRelative || r.Spec != "5m" || r.Status != domain.StatusActive {
		t.Fatalf("unexpected row: %+v", r)
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 1 {
		t.Fatalf("mappings = %d, want 1", got)
	}

	r2, err := svc.CreateRelative(ctx, "u1", "drink water", "1h", 2)
	if err != nil {
		t.Fatalf("CreateRelative repeat: %v", err)
	}
	if got := mappingCount(t, svc.DB, r2.ID); got != 3 {
		t.Fatalf("mappings = %d, want 3 for repeat=2", got)
	}
	if eng.Armed() != 4 {
		t.Fatalf("Armed() = %d, want 4", eng.Armed())
	}
	if mir.count() != 2 {
		t.Fatalf("mirror notified %d times, want 2", mir.count())
	}
}

func TestCreateRelative_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateRelative(ctx, "u1", "m", "5x", 0); !errors.Is(err, schedule.ErrBadDuration) {
		t.Fatalf("bad spec err = %v", err)
	}
	if _, err := svc.CreateRelative(ctx, "u1", "m", "5m", -1); !errors.Is(err, ErrBadRepeatCount) {
		t.Fatalf("negative repeat err = %v", err)
	}
	if _, err := svc.CreateRelative(ctx, "u1", "", "5m", 0); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message err = %v", err)
	}

	// Nothing was persisted by the failed attempts.
	rows, err := svc.ListActive(ctx, "u1")
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestCreateAbsolute_PastInstantDeliversAndCompletes(t *testing.T) {
	svc, _, d, _ := newTestService(t)
	ctx := context.Background()

	// A calendar instant well in the past is accepted and fires at once.
	r, err := svc.CreateAbsolute(ctx, "u1", "pay rent", "01/01/20", "10.15 AM")
	if err != nil {
		t.Fatalf("CreateAbsolute: %v", err)
	}
	if r.Spec != "01/01/20 10.15 AM" {
		t.Fatalf("spec = %q", r.Spec)
	}

	msg := d.wait(t, 2*time.Second)
	if msg.RecipientID != "u1" || msg.Text != "pay rent" {
		t.Fatalf("unexpected delivery: %+v", msg)
	}

	// Completion lands on the fire goroutine shortly after delivery.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if reminderStatus(t, svc.DB, r.ID, "u1") == domain.StatusCompleted &&
			mappingCount(t, svc.DB, r.ID) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reminder never completed after immediate fire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreateAbsolute_ManyPastInstantsLeaveNoMappings(t *testing.T) {
	svc, _, d, _ := newTestService(t)
	ctx := context.Background()

	const n = 25
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r, err := svc.CreateAbsolute(ctx, "u1", "overdue", "01/01/20", "10.15 AM")
		if err != nil {
			t.Fatalf("CreateAbsolute #%d: %v", i, err)
		}
		ids = append(ids, r.ID)
	}
	for i := 0; i < n; i++ {
		d.wait(t, 2*time.Second)
	}

	// Every completion path must have found and removed its registry row,
	// however the immediate fire interleaved with the create that armed it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		left := 0
		for _, id := range ids {
			left += mappingCount(t, svc.DB, id)
		}
		if left == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d registry rows left after all fires completed", left)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCreateAbsolute_FutureInstantStaysArmed(t *testing.T) {
	svc, eng, d, _ := newTestService(t)
	ctx := context.Background()

	future := time.Now().UTC().AddDate(1, 0, 0)
	r, err := svc.CreateAbsolute(ctx, "u1", "renew passport",
		future.Format(schedule.DateLayout), future.Format(schedule.ClockLayout))
	if err != nil {
		t.Fatalf("CreateAbsolute: %v", err)
	}
	if eng.Armed() != 1 {
		t.Fatalf("Armed() = %d, want 1", eng.Armed())
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 1 {
		t.Fatalf("mappings = %d, want 1", got)
	}
	if d.count() != 0 {
		t.Fatalf("unexpected early delivery")
	}
}

func TestCreateAbsolute_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateAbsolute(ctx, "u1", "m", "2026-01-01", "10.15 AM"); !errors.Is(err, schedule.ErrBadDate) {
		t.Fatalf("bad date err = %v", err)
	}
	if _, err := svc.CreateAbsolute(ctx, "u1", "m", "15/11/26", "22.15"); !errors.Is(err, schedule.ErrBadTime) {
		t.Fatalf("bad clock err = %v", err)
	}
	if _, err := svc.CreateAbsolute(ctx, "u1", "", "15/11/26", "10.15 PM"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message err = %v", err)
	}
}

func TestCreateDaily_ArmsOneTriggerPerTime(t *testing.T) {
	svc, eng, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateDaily(ctx, "u1", "take meds", []string{"09.00 AM", "09.00 PM"})
	if err != nil {
		t.Fatalf("CreateDaily: %v", err)
	}
	if r.Kind != domain.KindDaily || r.Spec != "09.00 AM;09.00 PM" {
		t.Fatalf("unexpected row: %+v", r)
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 2 {
		t.Fatalf("mappings = %d, want 2", got)
	}
	if eng.Armed() != 2 {
		t.Fatalf("Armed() = %d, want 2", eng.Armed())
	}
}

func TestCreateDaily_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateDaily(ctx, "u1", "m", nil); !errors.Is(err, schedule.ErrNoTimes) {
		t.Fatalf("no times err = %v", err)
	}
	if _, err := svc.CreateDaily(ctx, "u1", "m", []string{"25.00 AM"}); !errors.Is(err, schedule.ErrBadTime) {
		t.Fatalf("bad time err = %v", err)
	}
	if _, err := svc.CreateDaily(ctx, "u1", "", []string{"09.00 AM"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("empty message err = %v", err)
	}
}

func TestDelete_CancelsTriggersAndRemovesRows(t *testing.T) {
	svc, eng, _, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateDaily(ctx, "u1", "take meds", []string{"09.00 AM", "09.00 PM"})
	if err != nil {
		t.Fatalf("CreateDaily: %v", err)
	}
	other, err := svc.CreateDaily(ctx, "u1", "walk the dog", []string{"07.00 AM"})
	if err != nil {
		t.Fatalf("CreateDaily: %v", err)
	}

	if err := svc.Delete(ctx, "u1", r.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if eng.Armed() != 1 {
		t.Fatalf("Armed() = %d after delete, want 1", eng.Armed())
	}
	if _, err := repo.GetReminder(ctx, svc.DB, r.ID, "u1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("row survives delete: %v", err)
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 0 {
		t.Fatalf("mappings = %d after delete, want 0", got)
	}
	// Handle removal is scoped to the deleted reminder.
	if got := mappingCount(t, svc.DB, other.ID); got != 1 {
		t.Fatalf("other reminder mappings = %d, want 1", got)
	}
}

func TestDelete_UnknownOrForeignReminder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.Delete(ctx, "u1", "no-such-id"); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("unknown id err = %v", err)
	}

	r, _ := svc.CreateRelative(ctx, "u1", "m", "5m", 0)
	if err := svc.Delete(ctx, "u2", r.ID); !errors.Is(err, ErrReminderNotFound) {
		t.Fatalf("foreign owner err = %v", err)
	}
	if reminderStatus(t, svc.DB, r.ID, "u1") != domain.StatusActive {
		t.Fatal("foreign delete attempt touched the row")
	}
}

func TestHandleFire_FirstRepeatCompletesEarly(t *testing.T) {
	svc, eng, d, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRelative(ctx, "u1", "hydrate", "1h", 2)
	if err != nil {
		t.Fatalf("CreateRelative: %v", err)
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 3 {
		t.Fatalf("mappings = %d, want 3", got)
	}

	handles, _ := repo.TriggerHandles(ctx, svc.DB, r.ID)
	svc.HandleFire(engine.Payload{
		ReminderID: r.ID,
		OwnerID:    "u1",
		Message:    "hydrate",
		Handle:     handles[0],
		Completes:  true,
	})

	msg := d.wait(t, time.Second)
	if msg.Text != "hydrate" {
		t.Fatalf("delivered %q", msg.Text)
	}

	// One fire drives the whole reminder to completed and clears the
	// registry, while the remaining timers stay armed in the engine.
	if got := reminderStatus(t, svc.DB, r.ID, "u1"); got != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 0 {
		t.Fatalf("mappings = %d after first fire, want 0", got)
	}
	if eng.Armed() != 3 {
		t.Fatalf("Armed() = %d, want 3 still armed", eng.Armed())
	}
}

func TestHandleFire_DeliveryErrorStillCompletes(t *testing.T) {
	svc, _, d, _ := newTestService(t)
	ctx := context.Background()

	r, _ := svc.CreateRelative(ctx, "u1", "m", "5m", 0)
	d.err = errors.New("network down")

	svc.HandleFire(engine.Payload{
		ReminderID: r.ID, OwnerID: "u1", Message: "m", Completes: true,
	})
	d.wait(t, time.Second)

	if got := reminderStatus(t, svc.DB, r.ID, "u1"); got != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed despite delivery error", got)
	}
}

func TestHandleFire_MissingReminderIsNoOp(t *testing.T) {
	svc, _, d, _ := newTestService(t)

	svc.HandleFire(engine.Payload{
		ReminderID: "gone", OwnerID: "u1", Message: "m", Completes: true,
	})
	d.wait(t, time.Second)
	// No panic and no error surfaced is the contract.
}

func TestHandleFire_DailyFireLeavesReminderActive(t *testing.T) {
	svc, _, d, _ := newTestService(t)
	ctx := context.Background()

	r, _ := svc.CreateDaily(ctx, "u1", "meds", []string{"09.00 AM"})
	handles, _ := repo.TriggerHandles(ctx, svc.DB, r.ID)

	svc.HandleFire(engine.Payload{
		ReminderID: r.ID, OwnerID: "u1", Message: "meds",
		Handle: handles[0], Completes: false,
	})
	d.wait(t, time.Second)

	if got := reminderStatus(t, svc.DB, r.ID, "u1"); got != domain.StatusActive {
		t.Fatalf("status = %q, want active after daily fire", got)
	}
	if got := mappingCount(t, svc.DB, r.ID); got != 1 {
		t.Fatalf("mappings = %d, want 1 retained", got)
	}
}

func TestClearCompleted(t *testing.T) {
	svc, _, _, mir := newTestService(t)
	ctx := context.Background()

	r1, _ := svc.CreateRelative(ctx, "u1", "a", "5m", 0)
	svc.CreateRelative(ctx, "u1", "b", "5m", 0)
	repo.MarkCompleted(ctx, svc.DB, r1.ID)

	before := mir.count()
	n, err := svc.ClearCompleted(ctx, "u1")
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleared %d, want 1", n)
	}
	if mir.count() != before+1 {
		t.Fatal("mirror not notified after clear")
	}

	// A second pass has nothing left and skips the mirror poke.
	n, _ = svc.ClearCompleted(ctx, "u1")
	if n != 0 || mir.count() != before+1 {
		t.Fatalf("second clear n=%d notifications=%d", n, mir.count())
	}
}
