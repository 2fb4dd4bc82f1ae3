// Package engine implements the appointment-lead status reconciliation
// engine: it ingests batches of external call-outcome rows and today's
// appointment set, and drives the lead and appointment state machines forward.
package engine

import (
	"github.com/google/uuid"
)

// ActionKind identifies the scenario an action executed.
type ActionKind string

const (
	ActionCreateLead                ActionKind = "create_lead"
	ActionCreateAppointment         ActionKind = "create_appointment"
	ActionMoveAppointment           ActionKind = "move_appointment"
	ActionUpdateAppointment         ActionKind = "update_appointment"
	ActionUpdateBorrowerAppointment ActionKind = "update_borrower_appointment"
	ActionTimeoutAppointment        ActionKind = "timeout_appointment"
	ActionFinalStatusUpdate         ActionKind = "final_status_update"

	// ActionInvalidRow records a row that could not be parsed or matched;
	// the row is skipped, the batch continues.
	ActionInvalidRow ActionKind = "invalid_row"
)

// Action is the decision and outcome of processing one call-outcome row or
// one sweep candidate. Actions are aggregated into the run summary and
// logged; they are not persisted.
type Action struct {
	Kind          ActionKind `json:"kind"`
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	Phone         string     `json:"phone,omitempty"`
	LeadID        *uuid.UUID `json:"leadId,omitempty"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	BeforeStatus  string     `json:"beforeStatus,omitempty"`
	AfterStatus   string     `json:"afterStatus,omitempty"`
}

// ActionTypeCounts buckets successful actions for the run summary.
type ActionTypeCounts struct {
	LeadsCreated        int `json:"leads_created"`
	AppointmentsCreated int `json:"appointments_created"`
	AppointmentsMoved   int `json:"appointments_moved"`
	AppointmentsUpdated int `json:"appointments_updated"`
	TimeoutUpdates      int `json:"timeout_updates"`
}

// Summary aggregates a run's actions.
type Summary struct {
	TotalActions int              `json:"totalActions"`
	Successful   int              `json:"successful"`
	Failed       int              `json:"failed"`
	ActionTypes  ActionTypeCounts `json:"actionTypes"`
}

// RunResult is the outcome of one batch run.
type RunResult struct {
	Processed int      `json:"processedCount"`
	Succeeded int      `json:"successCount"`
	Failed    int      `json:"errorCount"`
	Actions   []Action `json:"actions"`
}

// Summarize buckets actions into the summary. Only successful actions count
// toward the per-type totals; failures are reported via Failed and the
// per-action messages.
func Summarize(actions []Action) Summary {
	s := Summary{TotalActions: len(actions)}
	for _, a := range actions {
		if !a.Success {
			s.Failed++
			continue
		}
		s.Successful++
		switch a.Kind {
		case ActionCreateLead:
			s.ActionTypes.LeadsCreated++
		case ActionCreateAppointment:
			s.ActionTypes.AppointmentsCreated++
		case ActionMoveAppointment:
			s.ActionTypes.AppointmentsMoved++
		case ActionUpdateAppointment, ActionUpdateBorrowerAppointment:
			s.ActionTypes.AppointmentsUpdated++
		case ActionTimeoutAppointment, ActionFinalStatusUpdate:
			s.ActionTypes.TimeoutUpdates++
		}
	}
	return s
}
