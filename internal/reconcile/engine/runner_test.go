package engine

import (
	"context"
	"testing"
	"time"

	apptdomain "loancrm_backend/internal/appointments/domain"
	apptrepo "loancrm_backend/internal/appointments/repository"
	leaddomain "loancrm_backend/internal/leads/domain"
	"loancrm_backend/platform/logger"
)

func newTestRunner(rig *testRig) *Runner {
	return NewRunner(rig.orch, rig.sweeper, nil, logger.New("development"), 4)
}

func TestRunLiveBatch(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 5)
	rig.addSlot(0, 11, 5)
	runner := newTestRunner(rig)

	rows := []map[string]string{
		{"Phone": "91234567", "Code": "P", "Name": "Tan Wei"},
		{"Phone": "81234567", "Code": "RS"},
		{"Name": "no phone here"},
	}

	result := runner.Run(context.Background(), ModeLive, rows, 0)
	if result.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Processed)
	}
	if result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("succeeded/failed = %d/%d, want 2/1", result.Succeeded, result.Failed)
	}

	summary := Summarize(result.Actions)
	if summary.ActionTypes.LeadsCreated != 2 {
		t.Fatalf("leads created = %d, want 2", summary.ActionTypes.LeadsCreated)
	}
	if summary.ActionTypes.AppointmentsCreated != 2 {
		t.Fatalf("appointments created = %d, want 2", summary.ActionTypes.AppointmentsCreated)
	}
	if summary.Failed != 1 {
		t.Fatalf("summary failed = %d, want 1", summary.Failed)
	}
}

func TestRunLiveDuplicateRowsCreateOneLead(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 5)
	runner := newTestRunner(rig)

	rows := []map[string]string{
		{"Phone": "91234567", "Code": "P"},
		{"Phone": "9123 4567", "Code": "P"},
		{"Phone": "+6591234567", "Code": "P"},
	}

	result := runner.Run(context.Background(), ModeLive, rows, 0)
	if result.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", result.Actions)
	}
	if rig.leads.count() != 1 {
		t.Fatalf("expected 1 lead from duplicate rows, got %d", rig.leads.count())
	}
	if rig.appts.count() != 1 {
		t.Fatalf("expected 1 appointment from duplicate rows, got %d", rig.appts.count())
	}
}

func TestRunEndOfDayModeIgnoresRows(t *testing.T) {
	rig := newTestRig(t)
	runner := newTestRunner(rig)

	rs := "RS"
	lead := rig.addLead("6591234567", leaddomain.LeadStatusDone)
	rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		Status:     apptdomain.StatusDone,
		StartAt:    testNow.Add(-2 * time.Hour),
		EndAt:      testNow.Add(-1 * time.Hour),
		LoanStatus: &rs,
	})

	rows := []map[string]string{{"Phone": "81234567", "Code": "P"}}
	result := runner.Run(context.Background(), ModeEndOfDay, rows, 0)

	if len(result.Actions) != 1 || result.Actions[0].Kind != ActionFinalStatusUpdate {
		t.Fatalf("expected only the finalization action, got %+v", result.Actions)
	}
	if rig.leads.count() != 1 {
		t.Fatalf("end-of-day mode must not process rows, got %d leads", rig.leads.count())
	}
	if got := rig.leads.get(lead.ID); got.Status != leaddomain.LeadStatusMissedRS {
		t.Fatalf("lead status = %s, want missed/RS", got.Status)
	}
}

func TestRunTimeoutSweep(t *testing.T) {
	rig := newTestRig(t)
	runner := newTestRunner(rig)

	lead := rig.addLead("6591234567", leaddomain.LeadStatusBooked)
	rig.appts.add(apptrepo.Appointment{
		LeadID:  &lead.ID,
		Status:  apptdomain.StatusUpcoming,
		StartAt: testNow.Add(-4 * time.Hour),
		EndAt:   testNow.Add(-3 * time.Hour),
	})

	result := runner.RunTimeoutSweep(context.Background(), DurationFromHours(2.5))
	if result.Processed != 1 || result.Succeeded != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := rig.leads.get(lead.ID); got.Status != leaddomain.LeadStatusFollowUp {
		t.Fatalf("lead status = %s, want follow_up", got.Status)
	}
}

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeLive, ModeEndOfDay} {
		if !m.Valid() {
			t.Fatalf("mode %q must be valid", m)
		}
	}
	if Mode("nightly").Valid() {
		t.Fatalf("unknown mode must be invalid")
	}
}

func TestSummarizeBucketsActionKinds(t *testing.T) {
	actions := []Action{
		{Kind: ActionCreateLead, Success: true},
		{Kind: ActionCreateAppointment, Success: true},
		{Kind: ActionMoveAppointment, Success: true},
		{Kind: ActionUpdateAppointment, Success: true},
		{Kind: ActionUpdateBorrowerAppointment, Success: true},
		{Kind: ActionTimeoutAppointment, Success: true},
		{Kind: ActionFinalStatusUpdate, Success: true},
		{Kind: ActionCreateAppointment, Success: false},
	}

	s := Summarize(actions)
	if s.TotalActions != 8 || s.Successful != 7 || s.Failed != 1 {
		t.Fatalf("totals = %+v", s)
	}
	if s.ActionTypes.LeadsCreated != 1 || s.ActionTypes.AppointmentsCreated != 1 {
		t.Fatalf("creation counts = %+v", s.ActionTypes)
	}
	if s.ActionTypes.AppointmentsMoved != 1 || s.ActionTypes.AppointmentsUpdated != 2 {
		t.Fatalf("update counts = %+v", s.ActionTypes)
	}
	if s.ActionTypes.TimeoutUpdates != 2 {
		t.Fatalf("timeout counts = %+v", s.ActionTypes)
	}
}
