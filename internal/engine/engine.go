// Package engine implements the in-process trigger engine: it arms one-shot
// and recurring daily timers and invokes a delivery callback when they fire.
//
// One instance is shared per process. One-shot triggers are plain timers;
// recurring triggers ride on a robfig/cron scheduler pinned to the
// configured timezone. Both fire their callback on a fresh goroutine, so a
// slow delivery never stalls other due triggers.
//
// The callback is captured at construction. The engine therefore always has
// a durable reference to the delivery capability at arm time; there is no
// global fallback to reach for when a trigger fires.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// triggersArmed counts trigger arms by mode ("once" or "daily").
	triggersArmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_triggers_armed_total",
			Help: "Total number of triggers armed.",
		},
		[]string{"mode"},
	)

	// triggersFired counts trigger fires by mode.
	triggersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_triggers_fired_total",
			Help: "Total number of trigger fires.",
		},
		[]string{"mode"},
	)

	// triggersCancelled counts effective cancellations (no-op cancels of
	// unknown or already-fired handles are not counted).
	triggersCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_triggers_cancelled_total",
			Help: "Total number of triggers cancelled before firing.",
		},
	)
)

func init() {
	prometheus.MustRegister(triggersArmed, triggersFired, triggersCancelled)
}

// Handle prefixes distinguish the two trigger families; cancellation routes
// on them.
const (
	oncePrefix  = "once:"
	dailyPrefix = "daily:"
)

// Payload is what a trigger carries to the delivery callback.
type Payload struct {
	// ReminderID identifies the reminder the trigger belongs to.
	ReminderID string
	// OwnerID is the recipient the message is delivered to.
	OwnerID string
	// Message is the opaque text to deliver.
	Message string
	// Handle is the engine handle of the trigger that fired, set by the
	// engine at arm time.
	Handle string
	// Completes is true for one-shot triggers: the callback should drive
	// the completion transition after delivering. Daily triggers leave it
	// false so the reminder stays active.
	Completes bool
}

// FireFunc is invoked once per trigger occurrence, on its own goroutine.
type FireFunc func(p Payload)

// Engine arms and fires timers for the whole process. Safe for concurrent
// use.
type Engine struct {
	fire FireFunc
	loc  *time.Location
	lg   zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	crons  map[string]cron.EntryID
	cron   *cron.Cron

	// now is a seam for tests.
	now func() time.Time
}

// New constructs an Engine firing in the given timezone. The callback must
// be non-nil; it is retained for the engine's lifetime.
func New(loc *time.Location, fire FireFunc) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		fire:   fire,
		loc:    loc,
		lg:     log.With().Str("component", "engine").Logger(),
		timers: make(map[string]*time.Timer),
		crons:  make(map[string]cron.EntryID),
		cron:   cron.New(cron.WithLocation(loc)),
		now:    time.Now,
	}
}

// Start launches the recurring scheduler loop. One-shot triggers work
// without it; daily triggers do not fire until Start is called.
func (e *Engine) Start() {
	e.cron.Start()
	e.lg.Info().Str("timezone", e.loc.String()).Msg("trigger engine started")
}

// Stop cancels every armed trigger and halts the recurring scheduler.
// In-flight callbacks are not interrupted.
func (e *Engine) Stop() {
	e.mu.Lock()
	for h, t := range e.timers {
		t.Stop()
		delete(e.timers, h)
	}
	for h, id := range e.crons {
		e.cron.Remove(id)
		delete(e.crons, h)
	}
	e.mu.Unlock()
	e.cron.Stop()
	e.lg.Info().Msg("trigger engine stopped")
}

// NewOnceHandle allocates a handle for a one-shot trigger. Handles are
// allocated separately from arming so a caller can record the handle
// durably before ArmOnce can fire it.
func NewOnceHandle() string { return oncePrefix + uuid.NewString() }

// ArmOnce schedules a single delivery at fireAt under a handle obtained
// from NewOnceHandle. An instant already in the past fires immediately
// (asynchronously) rather than being dropped; recovery relies on that for
// delays that elapsed while the process was down. Callers that track the
// handle in storage must persist it before arming, since an immediate fire
// can reach the callback straight away.
func (e *Engine) ArmOnce(handle string, fireAt time.Time, p Payload) {
	p.Handle = handle
	triggersArmed.WithLabelValues("once").Inc()

	delay := fireAt.Sub(e.now())
	if delay <= 0 {
		e.lg.Debug().Str("handle", handle).Str("reminder_id", p.ReminderID).
			Time("fire_at", fireAt).Msg("arm instant already due, firing now")
		go e.fireOnce(p)
		return
	}

	e.mu.Lock()
	e.timers[handle] = time.AfterFunc(delay, func() {
		e.mu.Lock()
		delete(e.timers, handle)
		e.mu.Unlock()
		e.fireOnce(p)
	})
	e.mu.Unlock()

	e.lg.Debug().Str("handle", handle).Str("reminder_id", p.ReminderID).
		Time("fire_at", fireAt).Msg("one-shot trigger armed")
}

// ArmDaily schedules a recurring delivery every day at hour:minute in the
// engine's timezone and returns the trigger handle. The trigger never
// self-cancels; it fires until Cancel or Stop.
func (e *Engine) ArmDaily(hour, minute int, p Payload) (string, error) {
	handle := dailyPrefix + uuid.NewString()
	p.Handle = handle

	id, err := e.cron.AddFunc(fmt.Sprintf("%d %d * * *", minute, hour), func() {
		triggersFired.WithLabelValues("daily").Inc()
		e.fire(p)
	})
	if err != nil {
		return "", fmt.Errorf("arm daily %02d:%02d: %w", hour, minute, err)
	}

	e.mu.Lock()
	e.crons[handle] = id
	e.mu.Unlock()

	triggersArmed.WithLabelValues("daily").Inc()
	e.lg.Debug().Str("handle", handle).Str("reminder_id", p.ReminderID).
		Int("hour", hour).Int("minute", minute).Msg("daily trigger armed")
	return handle, nil
}

// Cancel disarms the trigger identified by handle. Cancelling an unknown or
// already-fired handle is a no-op, not an error.
func (e *Engine) Cancel(handle string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[handle]; ok {
		t.Stop()
		delete(e.timers, handle)
		triggersCancelled.Inc()
		e.lg.Debug().Str("handle", handle).Msg("one-shot trigger cancelled")
		return
	}
	if id, ok := e.crons[handle]; ok {
		e.cron.Remove(id)
		delete(e.crons, handle)
		triggersCancelled.Inc()
		e.lg.Debug().Str("handle", handle).Msg("daily trigger cancelled")
	}
}

// Armed reports how many triggers are currently armed (timers plus cron
// entries). Immediate fires of past instants are never counted.
func (e *Engine) Armed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers) + len(e.crons)
}

func (e *Engine) fireOnce(p Payload) {
	triggersFired.WithLabelValues("once").Inc()
	e.fire(p)
}
