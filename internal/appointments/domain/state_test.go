package domain

import (
	"testing"
	"time"

	"loancrm_backend/platform/apperr"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []AppointmentStatus{StatusUpcoming, StatusDone, StatusMissed, StatusCancelled} {
		if !s.Valid() {
			t.Fatalf("status %q must be valid", s)
		}
	}
	if AppointmentStatus("rescheduled").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestCanTransitionTable(t *testing.T) {
	allowed := []struct{ from, to AppointmentStatus }{
		{StatusUpcoming, StatusDone},
		{StatusUpcoming, StatusMissed},
		{StatusUpcoming, StatusCancelled},
		{StatusMissed, StatusUpcoming},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to AppointmentStatus }{
		{StatusDone, StatusUpcoming},
		{StatusDone, StatusMissed},
		{StatusCancelled, StatusUpcoming},
		{StatusMissed, StatusDone},
		{StatusUpcoming, StatusUpcoming},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %q -> %q to be denied", tc.from, tc.to)
		}
	}
}

func TestValidateTransitionReturnsConflict(t *testing.T) {
	err := ValidateTransition(StatusDone, StatusMissed)
	if err == nil {
		t.Fatalf("expected error for done -> missed")
	}
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict kind, got %v", apperr.GetKind(err))
	}
}

func TestValidateMissedThreshold(t *testing.T) {
	now := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	threshold := 3 * time.Hour

	// 4 hours old: past threshold.
	if err := ValidateMissed(now.Add(-4*time.Hour), now, threshold); err != nil {
		t.Fatalf("expected 4h-old appointment to pass 3h threshold: %v", err)
	}

	// 2 hours old: within threshold.
	if err := ValidateMissed(now.Add(-2*time.Hour), now, threshold); err == nil {
		t.Fatalf("expected 2h-old appointment to fail 3h threshold")
	}

	// Exactly at threshold: allowed.
	if err := ValidateMissed(now.Add(-threshold), now, threshold); err != nil {
		t.Fatalf("expected exact-threshold appointment to pass: %v", err)
	}
}

func TestCanReopen(t *testing.T) {
	if !CanReopen(StatusMissed, false) {
		t.Fatalf("missed without newer appointment should reopen")
	}
	if CanReopen(StatusMissed, true) {
		t.Fatalf("missed with newer appointment must not reopen")
	}
	if CanReopen(StatusDone, false) {
		t.Fatalf("done must never reopen")
	}
}

func TestThresholdFromHours(t *testing.T) {
	if got := ThresholdFromHours(2.5); got != 2*time.Hour+30*time.Minute {
		t.Fatalf("ThresholdFromHours(2.5) = %v", got)
	}
}
