package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apptdomain "loancrm_backend/internal/appointments/domain"
	apptrepo "loancrm_backend/internal/appointments/repository"
	borrowerrepo "loancrm_backend/internal/borrowers/repository"
	leaddomain "loancrm_backend/internal/leads/domain"
	leadrepo "loancrm_backend/internal/leads/repository"
	slotrepo "loancrm_backend/internal/timeslots/repository"
	"loancrm_backend/platform/apperr"
)

// In-memory stores mirroring the repository semantics, including the
// engine-writable status checks and the conditional slot allocation.

type memLeads struct {
	mu    sync.Mutex
	items map[uuid.UUID]*leadrepo.Lead
}

func newMemLeads() *memLeads {
	return &memLeads{items: make(map[uuid.UUID]*leadrepo.Lead)}
}

// Create stores the lead under the ID the caller assigned, enforcing the
// primary key the way the database would.
func (m *memLeads) Create(_ context.Context, lead leadrepo.Lead) (*leadrepo.Lead, error) {
	if !lead.Status.Valid() {
		return nil, apperr.Validation("invalid lead status")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[lead.ID]; exists {
		return nil, apperr.Conflict("duplicate lead id")
	}
	lead.CreatedAt = time.Now()
	lead.UpdatedAt = lead.CreatedAt
	m.items[lead.ID] = &lead
	out := lead
	return &out, nil
}

func (m *memLeads) GetByID(_ context.Context, id uuid.UUID) (*leadrepo.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	out := *l
	return &out, nil
}

func (m *memLeads) FindByPhoneKey(_ context.Context, key string) (*leadrepo.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.items {
		if l.DeletedAt != nil {
			continue
		}
		if l.PhoneKey == key ||
			(l.PhoneAlt1Key != nil && *l.PhoneAlt1Key == key) ||
			(l.PhoneAlt2Key != nil && *l.PhoneAlt2Key == key) {
			out := *l
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memLeads) UpdateStatus(_ context.Context, id uuid.UUID, status leaddomain.LeadStatus, tag *string) (*leadrepo.Lead, error) {
	if !leaddomain.EngineCanSet(status) {
		return nil, apperr.Forbidden("status not writable by engine")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	l.Status = status
	if tag != nil {
		l.Tag = tag
	}
	out := *l
	return &out, nil
}

func (m *memLeads) SetFollowUpDate(_ context.Context, id uuid.UUID, followUp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[id]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	l.FollowUpDate = &followUp
	return nil
}

func (m *memLeads) SetEligibility(_ context.Context, id uuid.UUID, eligible bool, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[id]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	l.Eligible = &eligible
	l.EligibilityNotes = &notes
	return nil
}

func (m *memLeads) get(id uuid.UUID) *leadrepo.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.items[id]
	if !ok {
		return nil
	}
	out := *l
	return &out
}

func (m *memLeads) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memBorrowers struct {
	mu    sync.Mutex
	items map[uuid.UUID]*borrowerrepo.Borrower
}

func newMemBorrowers() *memBorrowers {
	return &memBorrowers{items: make(map[uuid.UUID]*borrowerrepo.Borrower)}
}

func (m *memBorrowers) add(b borrowerrepo.Borrower) borrowerrepo.Borrower {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.items[b.ID] = &b
	return b
}

func (m *memBorrowers) FindByPhoneKey(_ context.Context, key string) (*borrowerrepo.Borrower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.items {
		if b.PhoneKey == key {
			out := *b
			return &out, nil
		}
	}
	return nil, nil
}

type memAppointments struct {
	mu    sync.Mutex
	items map[uuid.UUID]*apptrepo.Appointment
}

func newMemAppointments() *memAppointments {
	return &memAppointments{items: make(map[uuid.UUID]*apptrepo.Appointment)}
}

// Create stores the appointment under the caller-assigned ID, mirroring the
// database primary key constraint.
func (m *memAppointments) Create(_ context.Context, appt apptrepo.Appointment) (*apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[appt.ID]; exists {
		return nil, apperr.Conflict("duplicate appointment id")
	}
	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	m.items[appt.ID] = &appt
	out := appt
	return &out, nil
}

func (m *memAppointments) byLead(leadID uuid.UUID) []*apptrepo.Appointment {
	var found []*apptrepo.Appointment
	for _, a := range m.items {
		if a.LeadID != nil && *a.LeadID == leadID {
			found = append(found, a)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].StartAt.After(found[j].StartAt) })
	return found
}

func (m *memAppointments) GetUpcomingByLead(_ context.Context, leadID uuid.UUID) (*apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byLead(leadID) {
		if a.Status == apptdomain.StatusUpcoming {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memAppointments) GetUpcomingByBorrower(_ context.Context, borrowerID uuid.UUID) (*apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.items {
		if a.BorrowerID != nil && *a.BorrowerID == borrowerID && a.Status == apptdomain.StatusUpcoming {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memAppointments) GetLatestByLead(_ context.Context, leadID uuid.UUID) (*apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := m.byLead(leadID)
	if len(found) == 0 {
		return nil, nil
	}
	out := *found[0]
	return &out, nil
}

func (m *memAppointments) HasNewerThan(_ context.Context, leadID uuid.UUID, after time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byLead(leadID) {
		if a.StartAt.After(after) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAppointments) ListByStatusBetween(_ context.Context, status apptdomain.AppointmentStatus, from, to time.Time) ([]apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []apptrepo.Appointment
	for _, a := range m.items {
		if a.Status == status && !a.StartAt.Before(from) && a.StartAt.Before(to) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *memAppointments) UpdateStatus(_ context.Context, id uuid.UUID, to apptdomain.AppointmentStatus, loanStatus, loanNotes *string) (*apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	if err := apptdomain.ValidateTransition(a.Status, to); err != nil {
		return nil, err
	}
	a.Status = to
	if loanStatus != nil {
		a.LoanStatus = loanStatus
	}
	if loanNotes != nil {
		a.LoanNotes = loanNotes
	}
	out := *a
	return &out, nil
}

func (m *memAppointments) Move(_ context.Context, id uuid.UUID, timeslotID uuid.UUID, startAt, endAt time.Time) (*apptrepo.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	a.TimeslotID = timeslotID
	a.StartAt = startAt
	a.EndAt = endAt
	a.Status = apptdomain.StatusUpcoming
	out := *a
	return &out, nil
}

func (m *memAppointments) get(id uuid.UUID) *apptrepo.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil
	}
	out := *a
	return &out
}

func (m *memAppointments) add(a apptrepo.Appointment) apptrepo.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.items[a.ID] = &a
	return a
}

func (m *memAppointments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memSlots struct {
	mu    sync.Mutex
	items map[uuid.UUID]*slotrepo.Timeslot
}

func newMemSlots() *memSlots {
	return &memSlots{items: make(map[uuid.UUID]*slotrepo.Timeslot)}
}

func (m *memSlots) add(s slotrepo.Timeslot) slotrepo.Timeslot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.items[s.ID] = &s
	return s
}

func (m *memSlots) FindNearest(_ context.Context, date time.Time, after *time.Time) (*slotrepo.Timeslot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*slotrepo.Timeslot
	for _, s := range m.items {
		if s.Disabled || s.OccupiedCount >= s.MaxCapacity {
			continue
		}
		if !sameDate(s.SlotDate, date) {
			continue
		}
		// slots starting exactly at the search instant are eligible,
		// matching the >= comparison in the SQL
		if after != nil && s.StartAt.Before(*after) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil, apperr.NotFound("no available timeslot")
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].StartAt.Before(candidates[j].StartAt) })
	out := *candidates[0]
	return &out, nil
}

func (m *memSlots) Allocate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return apperr.NotFound("timeslot not found")
	}
	if s.Disabled || s.OccupiedCount >= s.MaxCapacity {
		return slotrepo.ErrSlotFull
	}
	s.OccupiedCount++
	return nil
}

func (m *memSlots) Release(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return apperr.NotFound("timeslot not found")
	}
	if s.OccupiedCount > 0 {
		s.OccupiedCount--
	}
	return nil
}

func (m *memSlots) get(id uuid.UUID) *slotrepo.Timeslot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil
	}
	out := *s
	return &out
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type staticChecker struct {
	eligible bool
	err      error
}

func (s staticChecker) Check(_ context.Context, _ *leadrepo.Lead) (EligibilityResult, error) {
	if s.err != nil {
		return EligibilityResult{}, s.err
	}
	return EligibilityResult{Eligible: s.eligible}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	payloads []map[string]any
}

func (r *recordingSink) Send(_ context.Context, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}
