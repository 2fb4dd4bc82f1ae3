package engine

import (
	apptdomain "loancrm_backend/internal/appointments/domain"
	leaddomain "loancrm_backend/internal/leads/domain"
)

// Projection is the target state pair computed from a call outcome. Empty
// fields mean "leave unchanged".
type Projection struct {
	Appointment apptdomain.AppointmentStatus
	Lead        leaddomain.LeadStatus
	Notify      bool // outbound reminder webhook for rejected-with-reminder rows
}

// ProjectOutcome maps a row's code and UW flag to target statuses. The
// second return value reports whether the row carried an actionable outcome
// at all; a non-matching row leaves both records untouched.
//
// RS wins over a filled UW column: a system-rejected appointment counts as
// attended, but the lead is demoted rather than closed.
func ProjectOutcome(code Code, uwFilled bool) (Projection, bool) {
	switch {
	case code == CodeRS:
		return Projection{Appointment: apptdomain.StatusDone, Lead: leaddomain.LeadStatusMissedRS}, true
	case uwFilled:
		return Projection{Appointment: apptdomain.StatusDone, Lead: leaddomain.LeadStatusDone}, true
	case code == CodeP, code == CodePRS:
		return Projection{Appointment: apptdomain.StatusDone, Lead: leaddomain.LeadStatusDone}, true
	case code == CodeR:
		return Projection{Appointment: apptdomain.StatusDone, Lead: leaddomain.LeadStatusDone, Notify: true}, true
	default:
		return Projection{}, false
	}
}

// ProjectTimeoutMiss is the mid-day sweep projection for an upcoming
// appointment past the threshold with no code: the miss is recoverable, so
// the lead goes to follow_up rather than a terminal status.
func ProjectTimeoutMiss() Projection {
	return Projection{Appointment: apptdomain.StatusMissed, Lead: leaddomain.LeadStatusFollowUp}
}

// ProjectEndOfDayMiss is the finalization projection: a done appointment
// whose persisted loan status is RS demotes its lead to missed/RS. The two
// sweeps intentionally disagree on the no-code outcome; keep them as
// separate functions.
func ProjectEndOfDayMiss(loanStatus string) (Projection, bool) {
	if Code(loanStatus) != CodeRS {
		return Projection{}, false
	}
	return Projection{Lead: leaddomain.LeadStatusMissedRS}, true
}
