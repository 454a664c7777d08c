// Package schedule parses and formats the user-facing schedule encodings:
// relative durations ("5m", "2h"), calendar dates ("15/11/25"), 12-hour
// clock times ("10.15 PM"), and semicolon-joined daily time lists. All
// format validation happens here, at input time; invalid specs never reach
// the trigger engine.
package schedule

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Layouts mirror the strptime formats accepted by the conversation layer.
const (
	// DateLayout parses "15/11/25" (day/month/two-digit year).
	DateLayout = "02/01/06"
	// ClockLayout parses "10.15 PM" (12-hour clock, explicit meridiem).
	ClockLayout = "3.04 PM"
	// DateTimeLayout parses the stored absolute spec "15/11/25 10.15 PM".
	DateTimeLayout = DateLayout + " " + ClockLayout
)

// dailySep joins multiple times-of-day in a stored daily spec.
const dailySep = ";"

var (
	// ErrBadDuration reports a relative spec that is not a positive
	// integer followed by "m" or "h".
	ErrBadDuration = errors.New("invalid duration: want <positive-int>m or <positive-int>h")
	// ErrBadDate reports a date that does not match DateLayout.
	ErrBadDate = errors.New("invalid date: want dd/mm/yy")
	// ErrBadTime reports a clock time that does not match ClockLayout.
	ErrBadTime = errors.New("invalid time: want hh.mm AM or hh.mm PM")
	// ErrNoTimes reports an empty daily time list.
	ErrNoTimes = errors.New("at least one time of day is required")
)

// Clock is a time of day in 24-hour form, date-free.
type Clock struct {
	Hour   int
	Minute int
}

// ParseRelative converts a relative spec ("5m", "2h") to a duration.
// The numeric part must be a positive integer; the unit suffix must be
// "m" (minutes) or "h" (hours).
func ParseRelative(spec string) (time.Duration, error) {
	spec = strings.TrimSpace(spec)
	if len(spec) < 2 {
		return 0, ErrBadDuration
	}
	var unit time.Duration
	switch spec[len(spec)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return 0, ErrBadDuration
	}
	n, err := strconv.Atoi(spec[:len(spec)-1])
	if err != nil || n <= 0 {
		return 0, ErrBadDuration
	}
	return time.Duration(n) * unit, nil
}

// ParseClock converts a 12-hour clock string ("10.15 PM") to a Clock.
// Strings missing the meridiem or using 24-hour notation are rejected.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse(ClockLayout, strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return Clock{}, ErrBadTime
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ValidateDate checks a calendar date string ("15/11/25") without
// converting it; the date keeps its textual form until it is combined with
// a time into an absolute spec.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, strings.TrimSpace(s)); err != nil {
		return ErrBadDate
	}
	return nil
}

// AbsoluteSpec combines a validated date and time into the stored absolute
// spec encoding.
func AbsoluteSpec(date, clock string) string {
	return strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
}

// ParseAbsolute converts a stored absolute spec to a concrete instant in
// loc. Format validity is checked at input time, so recovery treats a parse
// failure here as data corruption, not user error.
func ParseAbsolute(spec string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.ToUpper(strings.TrimSpace(spec)), loc)
	if err != nil {
		return time.Time{}, ErrBadDate
	}
	return t, nil
}

// DailySpec joins one or more validated clock strings into the stored daily
// spec encoding. Returns ErrNoTimes for an empty list and ErrBadTime if any
// entry fails ParseClock.
func DailySpec(times []string) (string, error) {
	if len(times) == 0 {
		return "", ErrNoTimes
	}
	out := make([]string, 0, len(times))
	for _, s := range times {
		if _, err := ParseClock(s); err != nil {
			return "", err
		}
		out = append(out, strings.TrimSpace(s))
	}
	return strings.Join(out, dailySep), nil
}

// ParseDaily splits a stored daily spec back into its Clock entries,
// preserving order.
func ParseDaily(spec string) ([]Clock, error) {
	parts := strings.Split(spec, dailySep)
	clocks := make([]Clock, 0, len(parts))
	for _, p := range parts {
		c, err := ParseClock(p)
		if err != nil {
			return nil, err
		}
		clocks = append(clocks, c)
	}
	if len(clocks) == 0 {
		return nil, ErrNoTimes
	}
	return clocks, nil
}

// DailyTimes splits a stored daily spec into its textual entries without
// re-validating, for display.
func DailyTimes(spec string) []string {
	return strings.Split(spec, dailySep)
}
