// Package domain holds the appointment state machine.
//
// Engine-driven transitions: upcoming -> {done, missed, cancelled} and
// missed -> upcoming (re-open via explicit re-booking only). Everything else
// is terminal as far as the engine is concerned; humans edit through a
// different surface.
package domain

import (
	"fmt"
	"time"

	"loancrm_backend/platform/apperr"
)

// AppointmentStatus is the closed set of appointment states.
type AppointmentStatus string

const (
	StatusUpcoming  AppointmentStatus = "upcoming"
	StatusDone      AppointmentStatus = "done"
	StatusMissed    AppointmentStatus = "missed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Valid reports whether s is a member of the closed status set.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusDone, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

var engineTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusUpcoming: {StatusDone, StatusMissed, StatusCancelled},
	StatusMissed:   {StatusUpcoming},
}

// CanTransition reports whether the engine may move an appointment from one
// status to another.
func CanTransition(from, to AppointmentStatus) bool {
	for _, allowed := range engineTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a typed error when the transition is not in the
// engine's table.
func ValidateTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return apperr.Conflict(fmt.Sprintf("appointment cannot move from %q to %q", from, to))
	}
	return nil
}

// ValidateMissed enforces the time precondition on upcoming -> missed: the
// appointment start must be at least threshold in the past. The threshold is
// a parameter because the live path and the time-only sweep use different
// values.
func ValidateMissed(startAt, now time.Time, threshold time.Duration) error {
	if now.Sub(startAt) < threshold {
		return apperr.Conflict(fmt.Sprintf(
			"appointment started %s ago, below the %s missed threshold",
			now.Sub(startAt).Round(time.Minute), threshold))
	}
	return nil
}

// CanReopen reports whether a missed appointment may be set back to upcoming.
// Re-opening is only allowed when no newer appointment exists for the same
// lead; otherwise the caller books a fresh appointment instead.
func CanReopen(current AppointmentStatus, hasNewer bool) bool {
	return current == StatusMissed && !hasNewer
}

// ThresholdFromHours converts a fractional hour figure (e.g. 2.5) into a
// duration.
func ThresholdFromHours(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
