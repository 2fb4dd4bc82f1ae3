// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"loancrm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a new lead is created, whether by intake or by
// the reconciliation engine.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	Phone    string    `json:"phone"`
	FullName string    `json:"fullName"`
	Source   string    `json:"source"`
	Status   string    `json:"status"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadStatusChanged is published when a lead status is written by the engine.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Tag       string    `json:"tag,omitempty"`
	Actor     string    `json:"actor"` // "engine" or "agent"
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// =============================================================================
// Appointments Domain Events
// =============================================================================

// AppointmentBooked is published when an appointment is created against a slot.
type AppointmentBooked struct {
	BaseEvent
	AppointmentID uuid.UUID  `json:"appointmentId"`
	LeadID        *uuid.UUID `json:"leadId,omitempty"`
	BorrowerID    *uuid.UUID `json:"borrowerId,omitempty"`
	TimeslotID    uuid.UUID  `json:"timeslotId"`
	StartAt       time.Time  `json:"startAt"`
	EndAt         time.Time  `json:"endAt"`
}

func (e AppointmentBooked) EventName() string { return "appointments.booked" }

// AppointmentStatusChanged is published on every appointment state transition.
type AppointmentStatusChanged struct {
	BaseEvent
	AppointmentID uuid.UUID  `json:"appointmentId"`
	LeadID        *uuid.UUID `json:"leadId,omitempty"`
	OldStatus     string     `json:"oldStatus"`
	NewStatus     string     `json:"newStatus"`
	Reason        string     `json:"reason,omitempty"` // e.g. "code_match", "timeout", "rebook"
}

func (e AppointmentStatusChanged) EventName() string { return "appointments.status.changed" }

// AppointmentMoved is published when an appointment is rescheduled to a new slot.
type AppointmentMoved struct {
	BaseEvent
	AppointmentID uuid.UUID `json:"appointmentId"`
	OldTimeslotID uuid.UUID `json:"oldTimeslotId"`
	NewTimeslotID uuid.UUID `json:"newTimeslotId"`
	StartAt       time.Time `json:"startAt"`
}

func (e AppointmentMoved) EventName() string { return "appointments.moved" }

// =============================================================================
// Reconciliation Domain Events
// =============================================================================

// ReconciliationRunCompleted is published when a batch run finishes.
type ReconciliationRunCompleted struct {
	BaseEvent
	Mode       string `json:"mode"`
	Processed  int    `json:"processed"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
}

func (e ReconciliationRunCompleted) EventName() string { return "reconcile.run.completed" }
