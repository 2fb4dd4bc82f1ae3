package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	apptdomain "loancrm_backend/internal/appointments/domain"
	apptrepo "loancrm_backend/internal/appointments/repository"
	leaddomain "loancrm_backend/internal/leads/domain"
	leadrepo "loancrm_backend/internal/leads/repository"
	slotrepo "loancrm_backend/internal/timeslots/repository"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/logger"
)

// testNow is 09:00 Singapore time so the same-day slots are still ahead.
var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, clock.Singapore)

type testRig struct {
	leads     *memLeads
	borrowers *memBorrowers
	appts     *memAppointments
	slots     *memSlots
	sink      *recordingSink
	orch      *Orchestrator
	sweeper   *Sweeper
	clk       clock.Fixed
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	r := &testRig{
		leads:     newMemLeads(),
		borrowers: newMemBorrowers(),
		appts:     newMemAppointments(),
		slots:     newMemSlots(),
		sink:      &recordingSink{},
		clk:       clock.Fixed{T: testNow},
	}
	log := logger.New("development")
	r.orch = NewOrchestrator(r.leads, r.borrowers, r.appts, r.slots, staticChecker{eligible: true}, r.sink, r.clk, nil, log, OrchestratorConfig{
		SlotSearchDays: 3,
	})
	r.sweeper = NewSweeper(r.leads, r.appts, r.clk, nil, log)
	return r
}

// addSlot adds a slot on the given day offset at the given Singapore hour.
func (r *testRig) addSlot(dayOffset, hour, capacity int) slotrepo.Timeslot {
	start := time.Date(2026, 3, 2+dayOffset, hour, 0, 0, 0, clock.Singapore)
	return r.slots.add(slotrepo.Timeslot{
		SlotDate:    clock.SingaporeDate(start),
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		MaxCapacity: capacity,
	})
}

func (r *testRig) addLead(phoneKey string, status leaddomain.LeadStatus) *leadrepo.Lead {
	lead, err := r.leads.Create(context.Background(), leadrepo.Lead{
		ID:       uuid.New(),
		Phone:    phoneKey,
		PhoneKey: phoneKey,
		Status:   status,
	})
	if err != nil {
		panic(err)
	}
	return lead
}

func TestProcessCreatesLeadAndAppointment(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 2)

	out, err := NormalizeRow(map[string]string{
		"Phone": "91234567", "Name": "Tan Wei", "Code": "P", "Loan Type": "New Loan",
	})
	if err != nil {
		t.Fatalf("NormalizeRow: %v", err)
	}

	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d: %+v", len(actions), actions)
	}
	if actions[0].Kind != ActionCreateLead || !actions[0].Success {
		t.Fatalf("unexpected first action: %+v", actions[0])
	}
	if actions[1].Kind != ActionCreateAppointment || !actions[1].Success {
		t.Fatalf("unexpected second action: %+v", actions[1])
	}

	lead := rig.leads.get(*actions[0].LeadID)
	if lead.Status != leaddomain.LeadStatusDone {
		t.Fatalf("lead status = %s, want done", lead.Status)
	}
	appt := rig.appts.get(*actions[1].AppointmentID)
	if appt.Status != apptdomain.StatusDone {
		t.Fatalf("appointment status = %s, want done", appt.Status)
	}
	slot := rig.slots.get(appt.TimeslotID)
	if slot.OccupiedCount != 1 {
		t.Fatalf("slot occupancy = %d, want 1", slot.OccupiedCount)
	}
}

func TestProcessIneligibleLeadGetsNoAppointment(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 2)
	log := logger.New("development")
	rig.orch = NewOrchestrator(rig.leads, rig.borrowers, rig.appts, rig.slots, staticChecker{eligible: false}, rig.sink, rig.clk, nil, log, OrchestratorConfig{SlotSearchDays: 3})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "P"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 1 || actions[0].Kind != ActionCreateLead || !actions[0].Success {
		t.Fatalf("expected single create_lead action, got %+v", actions)
	}
	if rig.appts.count() != 0 {
		t.Fatalf("expected no appointments, got %d", rig.appts.count())
	}
}

func TestProcessEligibilityFailureIsPartialSuccess(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 2)
	log := logger.New("development")
	rig.orch = NewOrchestrator(rig.leads, rig.borrowers, rig.appts, rig.slots, staticChecker{err: context.DeadlineExceeded}, rig.sink, rig.clk, nil, log, OrchestratorConfig{SlotSearchDays: 3})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "P"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %+v", actions)
	}
	if !actions[0].Success || actions[0].Kind != ActionCreateLead {
		t.Fatalf("lead creation should succeed: %+v", actions[0])
	}
	if actions[1].Success || actions[1].Kind != ActionCreateAppointment {
		t.Fatalf("appointment step should be a recorded failure: %+v", actions[1])
	}
	if rig.leads.count() != 1 {
		t.Fatalf("lead must be kept after eligibility failure")
	}
}

func TestProcessExistingLeadTodayRS(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 10, 2)
	lead := rig.addLead("6591234567", leaddomain.LeadStatusBooked)
	appt := rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		TimeslotID: slot.ID,
		Status:     apptdomain.StatusUpcoming,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
	})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "RS"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 1 || actions[0].Kind != ActionUpdateAppointment || !actions[0].Success {
		t.Fatalf("expected update_appointment success, got %+v", actions)
	}

	if got := rig.appts.get(appt.ID); got.Status != apptdomain.StatusDone {
		t.Fatalf("appointment status = %s, want done", got.Status)
	}
	if got := rig.leads.get(lead.ID); got.Status != leaddomain.LeadStatusMissedRS {
		t.Fatalf("lead status = %s, want missed/RS", got.Status)
	}
}

func TestProcessMovesAppointmentFromAnotherDate(t *testing.T) {
	rig := newTestRig(t)
	today := rig.addSlot(0, 10, 2)
	tomorrow := rig.addSlot(1, 10, 2)
	_ = rig.slots.Allocate(context.Background(), tomorrow.ID)

	lead := rig.addLead("6591234567", leaddomain.LeadStatusBooked)
	appt := rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		TimeslotID: tomorrow.ID,
		Status:     apptdomain.StatusUpcoming,
		StartAt:    tomorrow.StartAt,
		EndAt:      tomorrow.EndAt,
	})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 1 || actions[0].Kind != ActionMoveAppointment || !actions[0].Success {
		t.Fatalf("expected move_appointment success, got %+v", actions)
	}

	moved := rig.appts.get(appt.ID)
	if moved.TimeslotID != today.ID {
		t.Fatalf("appointment not moved to today's slot")
	}
	if got := rig.slots.get(today.ID); got.OccupiedCount != 1 {
		t.Fatalf("new slot occupancy = %d, want 1", got.OccupiedCount)
	}
	if got := rig.slots.get(tomorrow.ID); got.OccupiedCount != 0 {
		t.Fatalf("old slot occupancy = %d, want 0", got.OccupiedCount)
	}
}

func TestProcessIdempotentResubmission(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 2)

	row := map[string]string{"Phone": "91234567", "Code": "P", "Loan Type": "New Loan"}
	out, _ := NormalizeRow(row)

	first := rig.orch.Process(context.Background(), out, 0)
	if len(first) != 2 {
		t.Fatalf("first run: expected 2 actions, got %+v", first)
	}

	second := rig.orch.Process(context.Background(), out, 0)
	if len(second) != 0 {
		t.Fatalf("second run must emit no actions when nothing changes, got %+v", second)
	}

	if rig.leads.count() != 1 {
		t.Fatalf("expected 1 lead after resubmission, got %d", rig.leads.count())
	}
	if rig.appts.count() != 1 {
		t.Fatalf("expected 1 appointment after resubmission, got %d", rig.appts.count())
	}
}

func TestProcessFullyBookedDayFailsWithoutAppointment(t *testing.T) {
	rig := newTestRig(t)
	log := logger.New("development")
	rig.orch = NewOrchestrator(rig.leads, rig.borrowers, rig.appts, rig.slots, staticChecker{eligible: true}, rig.sink, rig.clk, nil, log, OrchestratorConfig{SlotSearchDays: 1})

	slot := rig.addSlot(0, 10, 1)
	_ = rig.slots.Allocate(context.Background(), slot.ID)

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "P"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %+v", actions)
	}
	if actions[1].Success {
		t.Fatalf("appointment step must fail on a fully booked day: %+v", actions[1])
	}
	if rig.appts.count() != 0 {
		t.Fatalf("no slot-less appointment may be created, got %d", rig.appts.count())
	}
}

func TestProcessReopensMissedAppointment(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 10, 2)
	_ = rig.slots.Allocate(context.Background(), slot.ID)

	lead := rig.addLead("6591234567", leaddomain.LeadStatusFollowUp)
	appt := rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		TimeslotID: slot.ID,
		Status:     apptdomain.StatusMissed,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
	})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "P"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 1 || actions[0].Kind != ActionUpdateAppointment || !actions[0].Success {
		t.Fatalf("expected update_appointment on reopened appointment, got %+v", actions)
	}

	if got := rig.appts.get(appt.ID); got.Status != apptdomain.StatusDone {
		t.Fatalf("appointment status = %s, want done after reopen + code match", got.Status)
	}
	if rig.appts.count() != 1 {
		t.Fatalf("reopen must not create a new appointment")
	}
}

func TestProcessRCodeTriggersNotification(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 10, 2)
	lead := rig.addLead("6591234567", leaddomain.LeadStatusBooked)
	rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		TimeslotID: slot.ID,
		Status:     apptdomain.StatusUpcoming,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
	})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "R"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 1 || !actions[0].Success {
		t.Fatalf("expected successful update, got %+v", actions)
	}
	if rig.sink.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", rig.sink.count())
	}
	rig.sink.mu.Lock()
	gotPhone := rig.sink.payloads[0]["phone"]
	rig.sink.mu.Unlock()
	if gotPhone != "+6591234567" {
		t.Fatalf("notification phone = %v, want E.164 +6591234567", gotPhone)
	}
}

func TestProcessAssignsDistinctRecordIDs(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 4)

	var leadIDs, apptIDs []uuid.UUID
	for _, phone := range []string{"91234567", "98765432"} {
		out, err := NormalizeRow(map[string]string{"Phone": phone, "Code": "P"})
		if err != nil {
			t.Fatalf("NormalizeRow: %v", err)
		}
		actions := rig.orch.Process(context.Background(), out, 0)
		if len(actions) != 2 || !actions[0].Success || !actions[1].Success {
			t.Fatalf("row %s: expected 2 successful actions, got %+v", phone, actions)
		}
		leadIDs = append(leadIDs, *actions[0].LeadID)
		apptIDs = append(apptIDs, *actions[1].AppointmentID)
	}

	if leadIDs[0] == uuid.Nil || leadIDs[1] == uuid.Nil || leadIDs[0] == leadIDs[1] {
		t.Fatalf("lead ids must be distinct and non-zero, got %v", leadIDs)
	}
	if apptIDs[0] == uuid.Nil || apptIDs[1] == uuid.Nil || apptIDs[0] == apptIDs[1] {
		t.Fatalf("appointment ids must be distinct and non-zero, got %v", apptIDs)
	}
}

func TestProcessNoCodeTimesOutOverdueAppointment(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 4, 2) // 5h before testNow
	lead := rig.addLead("6591234567", leaddomain.LeadStatusBooked)
	appt := rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		TimeslotID: slot.ID,
		Status:     apptdomain.StatusUpcoming,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
	})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567"})
	actions := rig.orch.Process(context.Background(), out, 3*time.Hour)
	if len(actions) != 1 || actions[0].Kind != ActionTimeoutAppointment || !actions[0].Success {
		t.Fatalf("expected timeout_appointment success, got %+v", actions)
	}

	if got := rig.appts.get(appt.ID); got.Status != apptdomain.StatusMissed {
		t.Fatalf("appointment status = %s, want missed", got.Status)
	}
	got := rig.leads.get(lead.ID)
	if got.Status != leaddomain.LeadStatusFollowUp {
		t.Fatalf("lead status = %s, want follow_up", got.Status)
	}
	if got.FollowUpDate == nil {
		t.Fatalf("follow-up date must be set")
	}
}

func TestProcessNoCodeWithinThresholdLeavesAppointment(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 8, 2) // 1h before testNow
	lead := rig.addLead("6591234567", leaddomain.LeadStatusBooked)
	appt := rig.appts.add(apptrepo.Appointment{
		LeadID:     &lead.ID,
		TimeslotID: slot.ID,
		Status:     apptdomain.StatusUpcoming,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
	})

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567"})
	actions := rig.orch.Process(context.Background(), out, 3*time.Hour)
	if len(actions) != 0 {
		t.Fatalf("expected no actions within the threshold, got %+v", actions)
	}
	if got := rig.appts.get(appt.ID); got.Status != apptdomain.StatusUpcoming {
		t.Fatalf("appointment status = %s, want upcoming", got.Status)
	}
}

func TestProcessBooksSlotStartingNow(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 9, 2) // exactly testNow

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567", "Code": "P"})
	actions := rig.orch.Process(context.Background(), out, 0)
	if len(actions) != 2 || !actions[1].Success {
		t.Fatalf("expected booking into the slot starting now, got %+v", actions)
	}
	if got := rig.slots.get(slot.ID); got.OccupiedCount != 1 {
		t.Fatalf("slot occupancy = %d, want 1", got.OccupiedCount)
	}
}

func TestConcurrentAllocationNeverExceedsCapacity(t *testing.T) {
	rig := newTestRig(t)
	slot := rig.addSlot(0, 10, 3)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rig.slots.Allocate(context.Background(), slot.ID)
		}()
	}
	wg.Wait()

	if got := rig.slots.get(slot.ID); got.OccupiedCount != 3 {
		t.Fatalf("occupancy = %d, want capped at capacity 3", got.OccupiedCount)
	}
}

func TestConcurrentRowsSingleUpcomingAppointment(t *testing.T) {
	rig := newTestRig(t)
	rig.addSlot(0, 10, 10)
	rig.addSlot(0, 11, 10)
	lead := rig.addLead("6591234567", leaddomain.LeadStatusAssigned)

	out, _ := NormalizeRow(map[string]string{"Phone": "91234567"})

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rig.orch.Process(context.Background(), out, 0)
		}()
	}
	wg.Wait()

	upcoming := 0
	appts, _ := rig.appts.ListByStatusBetween(context.Background(), apptdomain.StatusUpcoming, time.Time{}, testNow.AddDate(0, 0, 7))
	for _, a := range appts {
		if a.LeadID != nil && *a.LeadID == lead.ID {
			upcoming++
		}
	}
	if upcoming != 1 {
		t.Fatalf("expected exactly 1 upcoming appointment, got %d", upcoming)
	}
}
