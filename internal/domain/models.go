// Package domain defines the persistence models for users, reminders, and
// trigger mappings. These types are mapped with GORM and form the core data
// layer of the reminder service.
package domain

import (
	"time"
)

// Schedule kinds supported by a Reminder.
const (
	// KindRelative schedules a single delivery a fixed duration after
	// creation (spec format "<n>m" or "<n>h"), optionally repeated.
	KindRelative = "relative"
	// KindAbsolute schedules a single delivery at a calendar date+time
	// (spec format "15/11/25 10.15 PM").
	KindAbsolute = "absolute"
	// KindDaily schedules recurring deliveries every day at one or more
	// times of day (spec format "09.00 AM;09.00 PM").
	KindDaily = "daily"
)

// Reminder lifecycle statuses.
const (
	// StatusActive marks a reminder with at least one armed trigger.
	StatusActive = "active"
	// StatusCompleted marks a one-shot reminder whose trigger has fired.
	// Daily reminders never reach this status.
	StatusCompleted = "completed"
)

// User maps a reminder owner to a preferred locale. The locale is a BCP-47
// tag; rendering of localized strings is a concern of the conversation
// layer, not this service.
type User struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Locale    string    `json:"locale"     gorm:"type:varchar(16);not null;default:'en'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Reminder is the unit of scheduling: a message delivered to its owner at
// one or more future instants.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerID: identifier of the recipient; indexed for listing.
//   - Message: opaque text payload delivered verbatim.
//   - Kind: one of KindRelative, KindAbsolute, KindDaily.
//   - Spec: kind-specific schedule encoding (see kind constants).
//   - RepeatCount: extra repetitions for relative reminders (0 = fire once).
//     Absolute reminders are always single-shot; daily reminders repeat by
//     construction, so both leave this at 0.
//   - Status: StatusActive or StatusCompleted.
type Reminder struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	OwnerID     string    `json:"owner_id"     gorm:"type:varchar(64);not null;index:idx_owner_reminders"`
	Message     string    `json:"message"      gorm:"type:text;not null"`
	Kind        string    `json:"kind"         gorm:"type:varchar(16);not null;check:kind IN ('relative','absolute','daily')"`
	Spec        string    `json:"spec"         gorm:"type:varchar(255);not null"`
	RepeatCount int       `json:"repeat_count" gorm:"not null;default:0"`
	Status      string    `json:"status"       gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','completed')"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Reminder.
func (Reminder) TableName() string { return "reminders" }

// TriggerMapping links a reminder to one trigger handle armed on its behalf
// in the engine. Relative and absolute reminders have one row per armed
// one-shot trigger; a daily reminder has one row per time-of-day entry.
//
// The Handle column references (never owns) a live engine timer. Rows are
// removed when their timer is cancelled or fires terminally; rows surviving
// a process restart are stale and are superseded by recovery.
type TriggerMapping struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	ReminderID string    `json:"reminder_id" gorm:"type:char(36);not null;index"`
	Handle     string    `json:"handle"      gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time `json:"created_at"`

	// Reminder is the owning row. Mappings are cascade-deleted when the
	// reminder is removed.
	Reminder Reminder `json:"-" gorm:"foreignKey:ReminderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TriggerMapping.
func (TriggerMapping) TableName() string { return "trigger_mappings" }
