// Package services defines the business logic for reminder scheduling.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed
// at the handler layer. Schedule format errors (bad duration, date, or
// time) live in the schedule package next to the parsers.
package services

import "errors"

var (
	// ErrReminderNotFound indicates that the requested reminder does not
	// exist or does not belong to the current owner.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrEmptyMessage is returned when a reminder is finalized without a
	// message payload.
	ErrEmptyMessage = errors.New("reminder message is empty")

	// ErrBadRepeatCount is returned when a relative reminder's repeat
	// count is negative or non-numeric.
	ErrBadRepeatCount = errors.New("repeat count must be a non-negative integer")

	// ErrBadLocale is returned when a locale string is not a valid
	// BCP-47 language tag.
	ErrBadLocale = errors.New("invalid locale tag")

	// ErrNotAdmin is returned when a non-admin owner attempts the
	// notify-another-recipient flow.
	ErrNotAdmin = errors.New("owner is not the administrator")

	// ErrBadRecipient is returned when an admin-notify target cannot be
	// resolved to a deliverable recipient.
	ErrBadRecipient = errors.New("recipient could not be resolved")

	// ErrUnknownKind is returned when a stored reminder row carries a
	// schedule kind this build does not understand.
	ErrUnknownKind = errors.New("unknown schedule kind")
)
