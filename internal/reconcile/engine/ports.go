package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	apptdomain "loancrm_backend/internal/appointments/domain"
	apptrepo "loancrm_backend/internal/appointments/repository"
	borrowerrepo "loancrm_backend/internal/borrowers/repository"
	leaddomain "loancrm_backend/internal/leads/domain"
	leadrepo "loancrm_backend/internal/leads/repository"
	slotrepo "loancrm_backend/internal/timeslots/repository"
)

// The engine depends on narrow store interfaces rather than the concrete
// repositories so tests can run against in-memory fakes. The pgx-backed
// repositories satisfy these directly.

type LeadStore interface {
	// Create persists the lead under the caller-assigned ID.
	Create(ctx context.Context, lead leadrepo.Lead) (*leadrepo.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (*leadrepo.Lead, error)
	FindByPhoneKey(ctx context.Context, key string) (*leadrepo.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status leaddomain.LeadStatus, tag *string) (*leadrepo.Lead, error)
	SetFollowUpDate(ctx context.Context, id uuid.UUID, followUp time.Time) error
	SetEligibility(ctx context.Context, id uuid.UUID, eligible bool, notes string) error
}

type BorrowerStore interface {
	FindByPhoneKey(ctx context.Context, key string) (*borrowerrepo.Borrower, error)
}

type AppointmentStore interface {
	Create(ctx context.Context, appt apptrepo.Appointment) (*apptrepo.Appointment, error)
	GetUpcomingByLead(ctx context.Context, leadID uuid.UUID) (*apptrepo.Appointment, error)
	GetUpcomingByBorrower(ctx context.Context, borrowerID uuid.UUID) (*apptrepo.Appointment, error)
	GetLatestByLead(ctx context.Context, leadID uuid.UUID) (*apptrepo.Appointment, error)
	HasNewerThan(ctx context.Context, leadID uuid.UUID, after time.Time) (bool, error)
	ListByStatusBetween(ctx context.Context, status apptdomain.AppointmentStatus, from, to time.Time) ([]apptrepo.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to apptdomain.AppointmentStatus, loanStatus, loanNotes *string) (*apptrepo.Appointment, error)
	Move(ctx context.Context, id uuid.UUID, timeslotID uuid.UUID, startAt, endAt time.Time) (*apptrepo.Appointment, error)
}

type TimeslotStore interface {
	FindNearest(ctx context.Context, date time.Time, after *time.Time) (*slotrepo.Timeslot, error)
	Allocate(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
}

// EligibilityResult is the outcome of an external eligibility check for a
// freshly created lead.
type EligibilityResult struct {
	Eligible bool
	Notes    string
}

type EligibilityChecker interface {
	Check(ctx context.Context, lead *leadrepo.Lead) (EligibilityResult, error)
}

// NotificationSink delivers outbound notifications for rows that request a
// reminder. Delivery failures must not fail the row.
type NotificationSink interface {
	Send(ctx context.Context, payload map[string]any) error
}
