package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apptdomain "loancrm_backend/internal/appointments/domain"
	apptrepo "loancrm_backend/internal/appointments/repository"
	borrowerrepo "loancrm_backend/internal/borrowers/repository"
	"loancrm_backend/internal/events"
	leaddomain "loancrm_backend/internal/leads/domain"
	leadrepo "loancrm_backend/internal/leads/repository"
	slotrepo "loancrm_backend/internal/timeslots/repository"
	"loancrm_backend/platform/apperr"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/logger"
	"loancrm_backend/platform/phone"
)

// OrchestratorConfig carries the tunables for scenario execution.
type OrchestratorConfig struct {
	SlotSearchDays int    // how many Singapore days to scan for a free slot
	DefaultSource  string // lead source recorded for engine-created leads
}

// Orchestrator executes one logical reconciliation action per call outcome.
// It picks a scenario from lead-existence x appointment-existence x
// appointment-date and drives the stores, the eligibility checker and the
// notification sink accordingly.
type Orchestrator struct {
	matcher     *PhoneMatcher
	leads       LeadStore
	appts       AppointmentStore
	slots       TimeslotStore
	eligibility EligibilityChecker
	notifier    NotificationSink
	clk         clock.Clock
	bus         events.Bus
	log         *logger.Logger
	cfg         OrchestratorConfig

	// rows resolving to the same phone or lead must not interleave, or two
	// rows could both see "no upcoming appointment" and both book one
	locks keyedLocks
}

func NewOrchestrator(
	leads LeadStore,
	borrowers BorrowerStore,
	appts AppointmentStore,
	slots TimeslotStore,
	eligibility EligibilityChecker,
	notifier NotificationSink,
	clk clock.Clock,
	bus events.Bus,
	log *logger.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.SlotSearchDays <= 0 {
		cfg.SlotSearchDays = 7
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = "SEO"
	}
	return &Orchestrator{
		matcher:     NewPhoneMatcher(leads, borrowers),
		leads:       leads,
		appts:       appts,
		slots:       slots,
		eligibility: eligibility,
		notifier:    notifier,
		clk:         clk,
		bus:         bus,
		log:         log,
		cfg:         cfg,
	}
}

// Process executes the scenario for one normalized row. Row-level failures
// come back as failed actions; they never abort the batch. liveThreshold is
// how long an upcoming appointment may be past its start before a no-code
// row flags it missed; zero disables the check.
func (o *Orchestrator) Process(ctx context.Context, out CallOutcome, liveThreshold time.Duration) []Action {
	unlock := o.locks.lock("phone:" + out.PhoneKey)
	defer unlock()

	match, err := o.matcher.Resolve(ctx, out.PhoneKey)
	if err != nil {
		return []Action{{
			Kind:    ActionInvalidRow,
			Message: fmt.Sprintf("failed to resolve phone %s: %v", out.PhoneKey, err),
			Phone:   out.Phone,
		}}
	}

	// Reloan rows target the borrower/appointment pairing when a borrower
	// record exists for the number.
	if out.LoanType == LoanTypeReloan && match.Borrower != nil {
		return o.processBorrower(ctx, out, match, liveThreshold)
	}

	if match.Lead == nil {
		return o.createLeadScenario(ctx, out)
	}

	unlockLead := o.locks.lock("lead:" + match.Lead.ID.String())
	defer unlockLead()
	return o.processLead(ctx, out, match.Lead, liveThreshold)
}

// createLeadScenario is scenario A: no lead exists for the number. The lead
// is created first and kept even when a later step fails; a half-done row is
// reported as a partial success, not rolled back.
func (o *Orchestrator) createLeadScenario(ctx context.Context, out CallOutcome) []Action {
	created, err := o.leads.Create(ctx, leadrepo.Lead{
		ID:       uuid.New(),
		Phone:    out.Phone,
		PhoneKey: out.PhoneKey,
		FullName: out.Name,
		Status:   leaddomain.LeadStatusNew,
		Source:   o.cfg.DefaultSource,
	})
	if err != nil {
		return []Action{{
			Kind:    ActionCreateLead,
			Message: fmt.Sprintf("failed to create lead: %v", err),
			Phone:   out.Phone,
		}}
	}

	actions := []Action{{
		Kind:        ActionCreateLead,
		Success:     true,
		Message:     "lead created",
		Phone:       out.Phone,
		LeadID:      &created.ID,
		AfterStatus: string(created.Status),
	}}
	o.publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    created.ID,
		Phone:     created.Phone,
		FullName:  created.FullName,
		Source:    created.Source,
		Status:    string(created.Status),
	})

	res, err := o.eligibility.Check(ctx, created)
	if err != nil {
		actions = append(actions, Action{
			Kind:    ActionCreateAppointment,
			Message: fmt.Sprintf("eligibility check failed: %v", err),
			Phone:   out.Phone,
			LeadID:  &created.ID,
		})
		return actions
	}
	if err := o.leads.SetEligibility(ctx, created.ID, res.Eligible, res.Notes); err != nil {
		o.log.Warn("failed to record eligibility", "leadId", created.ID, "error", err)
	}
	if !res.Eligible {
		o.log.Info("lead not eligible, skipping appointment", "leadId", created.ID, "notes", res.Notes)
		return actions
	}

	return append(actions, o.bookAndApply(ctx, out, created, nil, ActionCreateAppointment))
}

func (o *Orchestrator) processLead(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, liveThreshold time.Duration) []Action {
	appt, err := o.appts.GetUpcomingByLead(ctx, lead.ID)
	if err != nil {
		return []Action{storeFailure(ActionUpdateAppointment, out, lead, err)}
	}

	if appt != nil {
		if clock.SameSingaporeDate(appt.StartAt, o.clk.Now()) {
			// scenario D: today's appointment already exists
			return o.applyOutcomeScenario(ctx, out, lead, appt, ActionUpdateAppointment, liveThreshold)
		}
		// scenario C: reschedule onto today
		return o.moveScenario(ctx, out, lead, appt)
	}

	latest, err := o.appts.GetLatestByLead(ctx, lead.ID)
	if err != nil {
		return []Action{storeFailure(ActionUpdateAppointment, out, lead, err)}
	}
	if latest != nil {
		if reopened := o.tryReopen(ctx, out, lead, latest); reopened != nil {
			return o.applyOutcomeScenario(ctx, out, lead, reopened, ActionUpdateAppointment, liveThreshold)
		}
		// A resubmitted row finds its already-resolved appointment here and
		// re-applies the outcome instead of booking a duplicate.
		if latest.Status == apptdomain.StatusDone && clock.SameSingaporeDate(latest.StartAt, o.clk.Now()) {
			return o.applyOutcomeScenario(ctx, out, lead, latest, ActionUpdateAppointment, liveThreshold)
		}
	}

	// scenario B: book today's nearest slot
	return []Action{o.bookAndApply(ctx, out, lead, nil, ActionCreateAppointment)}
}

func (o *Orchestrator) processBorrower(ctx context.Context, out CallOutcome, match Match, liveThreshold time.Duration) []Action {
	borrower := match.Borrower
	unlock := o.locks.lock("borrower:" + borrower.ID.String())
	defer unlock()

	appt, err := o.appts.GetUpcomingByBorrower(ctx, borrower.ID)
	if err != nil {
		return []Action{storeFailure(ActionUpdateBorrowerAppointment, out, match.Lead, err)}
	}
	if appt == nil {
		return []Action{o.bookAndApply(ctx, out, match.Lead, borrower, ActionCreateAppointment)}
	}
	if clock.SameSingaporeDate(appt.StartAt, o.clk.Now()) {
		return o.applyOutcomeScenario(ctx, out, match.Lead, appt, ActionUpdateBorrowerAppointment, liveThreshold)
	}
	return o.moveScenario(ctx, out, match.Lead, appt)
}

// tryReopen handles the reversible miss: when a later batch shows UW filled
// or code P for a lead whose latest appointment is missed, that appointment
// goes back to upcoming, provided no newer one was booked since.
func (o *Orchestrator) tryReopen(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, latest *apptrepo.Appointment) *apptrepo.Appointment {
	if !out.UWFilled && out.Code != CodeP {
		return nil
	}
	if latest.Status != apptdomain.StatusMissed {
		return nil
	}
	hasNewer, err := o.appts.HasNewerThan(ctx, lead.ID, latest.StartAt)
	if err != nil || !apptdomain.CanReopen(latest.Status, hasNewer) {
		return nil
	}
	reopened, err := o.appts.UpdateStatus(ctx, latest.ID, apptdomain.StatusUpcoming, nil, nil)
	if err != nil {
		o.log.Warn("failed to reopen missed appointment", "appointmentId", latest.ID, "error", err)
		return nil
	}
	o.publish(ctx, events.AppointmentStatusChanged{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: reopened.ID,
		LeadID:        reopened.LeadID,
		OldStatus:     string(apptdomain.StatusMissed),
		NewStatus:     string(apptdomain.StatusUpcoming),
		Reason:        "rebook",
	})
	return reopened
}

// bookAndApply allocates the nearest slot, creates the appointment, then
// applies the row's outcome so an attended row lands in its final state in
// one pass. lead may be nil for borrower-owned appointments.
func (o *Orchestrator) bookAndApply(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, borrower *borrowerrepo.Borrower, kind ActionKind) Action {
	fail := func(msg string) Action {
		a := Action{Kind: kind, Message: msg, Phone: out.Phone}
		if lead != nil {
			a.LeadID = &lead.ID
		}
		return a
	}

	slot, err := o.allocateNearest(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return fail(fmt.Sprintf("no timeslot available within %d days", o.cfg.SlotSearchDays))
		}
		return fail(fmt.Sprintf("failed to allocate timeslot: %v", err))
	}

	appt := apptrepo.Appointment{
		ID:         uuid.New(),
		TimeslotID: slot.ID,
		Status:     apptdomain.StatusUpcoming,
		StartAt:    slot.StartAt,
		EndAt:      slot.EndAt,
		LoanStatus: loanStatusPtr(out.Code),
	}
	if lead != nil {
		appt.LeadID = &lead.ID
	}
	if borrower != nil {
		appt.BorrowerID = &borrower.ID
	}
	created, err := o.appts.Create(ctx, appt)
	if err != nil {
		if relErr := o.slots.Release(ctx, slot.ID); relErr != nil {
			o.log.Error("failed to release slot after create failure", "timeslotId", slot.ID, "error", relErr)
		}
		return fail(fmt.Sprintf("failed to create appointment: %v", err))
	}
	o.publish(ctx, events.AppointmentBooked{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: created.ID,
		LeadID:        created.LeadID,
		BorrowerID:    created.BorrowerID,
		TimeslotID:    created.TimeslotID,
		StartAt:       created.StartAt,
		EndAt:         created.EndAt,
	})

	action := Action{
		Kind:          kind,
		Success:       true,
		Message:       fmt.Sprintf("appointment booked at %s", created.StartAt.In(clock.Singapore).Format("02/01/2006 15:04")),
		Phone:         out.Phone,
		AppointmentID: &created.ID,
		AfterStatus:   string(created.Status),
	}
	if lead != nil {
		action.LeadID = &lead.ID
	}

	if proj, ok := ProjectOutcome(out.Code, out.UWFilled); ok {
		if err := o.applyProjection(ctx, out, lead, created, proj); err != nil {
			action.Message += fmt.Sprintf("; outcome not applied: %v", err)
			return action
		}
		action.AfterStatus = string(proj.Appointment)
	}
	return action
}

// moveScenario is scenario C: an upcoming appointment exists on a different
// Singapore date, so it is rescheduled onto today's nearest slot. The new
// slot is allocated before the old one is released so capacity accounting
// never dips.
func (o *Orchestrator) moveScenario(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, appt *apptrepo.Appointment) []Action {
	fail := func(msg string) []Action {
		a := Action{Kind: ActionMoveAppointment, Message: msg, Phone: out.Phone, AppointmentID: &appt.ID}
		if lead != nil {
			a.LeadID = &lead.ID
		}
		return []Action{a}
	}

	slot, err := o.allocateNearest(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return fail(fmt.Sprintf("no timeslot available within %d days", o.cfg.SlotSearchDays))
		}
		return fail(fmt.Sprintf("failed to allocate timeslot: %v", err))
	}

	oldSlotID := appt.TimeslotID
	moved, err := o.appts.Move(ctx, appt.ID, slot.ID, slot.StartAt, slot.EndAt)
	if err != nil {
		if relErr := o.slots.Release(ctx, slot.ID); relErr != nil {
			o.log.Error("failed to release slot after move failure", "timeslotId", slot.ID, "error", relErr)
		}
		return fail(fmt.Sprintf("failed to move appointment: %v", err))
	}
	if err := o.slots.Release(ctx, oldSlotID); err != nil {
		o.log.Error("failed to release old slot after move", "timeslotId", oldSlotID, "error", err)
	}
	o.publish(ctx, events.AppointmentMoved{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: moved.ID,
		OldTimeslotID: oldSlotID,
		NewTimeslotID: slot.ID,
		StartAt:       moved.StartAt,
	})

	action := Action{
		Kind:          ActionMoveAppointment,
		Success:       true,
		Message:       fmt.Sprintf("appointment moved to %s", moved.StartAt.In(clock.Singapore).Format("02/01/2006 15:04")),
		Phone:         out.Phone,
		AppointmentID: &moved.ID,
		BeforeStatus:  string(appt.Status),
		AfterStatus:   string(moved.Status),
	}
	if lead != nil {
		action.LeadID = &lead.ID
	}

	if proj, ok := ProjectOutcome(out.Code, out.UWFilled); ok {
		if err := o.applyProjection(ctx, out, lead, moved, proj); err != nil {
			action.Message += fmt.Sprintf("; outcome not applied: %v", err)
			return []Action{action}
		}
		action.AfterStatus = string(proj.Appointment)
	}
	return []Action{action}
}

// applyOutcomeScenario is scenario D: today's appointment exists, so the
// row's code and UW flag are projected onto it. A row with no actionable
// outcome leaves both records untouched, unless the appointment is already
// past the live threshold, in which case it times out right here instead of
// waiting for the next sweep. A row whose projection matches the stored
// statuses produces no action.
func (o *Orchestrator) applyOutcomeScenario(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, appt *apptrepo.Appointment, kind ActionKind, liveThreshold time.Duration) []Action {
	proj, ok := ProjectOutcome(out.Code, out.UWFilled)
	if !ok {
		return o.timeoutOverdue(ctx, out, lead, appt, liveThreshold)
	}

	apptSettled := proj.Appointment == "" || proj.Appointment == appt.Status
	leadSettled := proj.Lead == "" || lead == nil || proj.Lead == lead.Status
	if apptSettled && leadSettled {
		return nil
	}

	action := Action{
		Kind:          kind,
		Phone:         out.Phone,
		AppointmentID: &appt.ID,
		BeforeStatus:  string(appt.Status),
	}
	if lead != nil {
		action.LeadID = &lead.ID
	}
	if err := o.applyProjection(ctx, out, lead, appt, proj); err != nil {
		action.Message = fmt.Sprintf("failed to apply outcome: %v", err)
		return []Action{action}
	}
	action.Success = true
	action.AfterStatus = string(proj.Appointment)
	action.Message = fmt.Sprintf("appointment %s, lead %s", proj.Appointment, proj.Lead)
	return []Action{action}
}

// timeoutOverdue applies the mid-day miss inside live processing: a no-code
// row whose upcoming appointment is older than the live threshold flags it
// missed and moves the lead to follow_up, the same transition the timeout
// sweep would make later.
func (o *Orchestrator) timeoutOverdue(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, appt *apptrepo.Appointment, liveThreshold time.Duration) []Action {
	if liveThreshold <= 0 || appt.Status != apptdomain.StatusUpcoming {
		return nil
	}
	if err := apptdomain.ValidateMissed(appt.StartAt, o.clk.Now(), liveThreshold); err != nil {
		return nil
	}

	action := Action{
		Kind:          ActionTimeoutAppointment,
		Phone:         out.Phone,
		AppointmentID: &appt.ID,
		BeforeStatus:  string(appt.Status),
	}
	if lead != nil {
		action.LeadID = &lead.ID
	}

	updated, err := o.appts.UpdateStatus(ctx, appt.ID, apptdomain.StatusMissed, nil, nil)
	if err != nil {
		action.Message = fmt.Sprintf("failed to mark appointment missed: %v", err)
		return []Action{action}
	}
	o.publish(ctx, events.AppointmentStatusChanged{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: updated.ID,
		LeadID:        updated.LeadID,
		OldStatus:     string(apptdomain.StatusUpcoming),
		NewStatus:     string(updated.Status),
		Reason:        "timeout",
	})

	proj := ProjectTimeoutMiss()
	if lead != nil && lead.Status != proj.Lead {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, proj.Lead, nil); err != nil {
			action.Message = fmt.Sprintf("appointment missed but lead update failed: %v", err)
			return []Action{action}
		}
		followUp := o.clk.TodaySingapore().AddDate(0, 0, 1)
		if err := o.leads.SetFollowUpDate(ctx, lead.ID, followUp); err != nil {
			o.log.Warn("failed to set follow-up date", "leadId", lead.ID, "error", err)
		}
	}

	action.Success = true
	action.AfterStatus = string(apptdomain.StatusMissed)
	action.Message = fmt.Sprintf("appointment missed past live threshold, lead %s", proj.Lead)
	return []Action{action}
}

// applyProjection transitions the appointment, cascades the lead status, and
// fires the notification side effect. Notification failures are logged and
// never propagated.
func (o *Orchestrator) applyProjection(ctx context.Context, out CallOutcome, lead *leadrepo.Lead, appt *apptrepo.Appointment, proj Projection) error {
	if proj.Appointment != "" && proj.Appointment != appt.Status {
		updated, err := o.appts.UpdateStatus(ctx, appt.ID, proj.Appointment, loanStatusPtr(out.Code), nil)
		if err != nil {
			return fmt.Errorf("appointment transition: %w", err)
		}
		o.publish(ctx, events.AppointmentStatusChanged{
			BaseEvent:     events.NewBaseEvent(),
			AppointmentID: updated.ID,
			LeadID:        updated.LeadID,
			OldStatus:     string(appt.Status),
			NewStatus:     string(updated.Status),
			Reason:        "code_match",
		})
	}

	if proj.Lead != "" && lead != nil && proj.Lead != lead.Status {
		if _, err := o.leads.UpdateStatus(ctx, lead.ID, proj.Lead, nil); err != nil {
			return fmt.Errorf("lead status: %w", err)
		}
		o.publish(ctx, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			OldStatus: string(lead.Status),
			NewStatus: string(proj.Lead),
			Actor:     "engine",
		})
	}

	if proj.Notify {
		o.sendNotification(ctx, out, lead)
	}
	return nil
}

func (o *Orchestrator) sendNotification(ctx context.Context, out CallOutcome, lead *leadrepo.Lead) {
	if o.notifier == nil {
		return
	}
	payload := map[string]any{
		"type":  "loan_rejected_reminder",
		"phone": phone.NormalizeE164(out.Phone),
		"name":  out.Name,
		"code":  string(out.Code),
		"date":  o.clk.TodaySingapore().Format("02/01/2006"),
	}
	if lead != nil {
		payload["leadId"] = lead.ID.String()
	}
	if err := o.notifier.Send(ctx, payload); err != nil {
		o.log.Warn("outbound notification failed", "phone", out.PhoneKey, "error", err)
	}
}

// allocateNearest scans today's slots from "now" forward, rolling over one
// Singapore day at a time up to SlotSearchDays. Losing a slot to a
// concurrent booking rescans the same date; the conditional update in the
// store keeps occupancy within capacity.
func (o *Orchestrator) allocateNearest(ctx context.Context) (*slotrepo.Timeslot, error) {
	date := o.clk.TodaySingapore()
	now := o.clk.Now()
	after := &now

	for day := 0; day < o.cfg.SlotSearchDays; {
		slot, err := o.slots.FindNearest(ctx, date, after)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				day++
				date = date.AddDate(0, 0, 1)
				after = nil
				continue
			}
			return nil, err
		}
		switch err := o.slots.Allocate(ctx, slot.ID); {
		case err == nil:
			return slot, nil
		case errors.Is(err, slotrepo.ErrSlotFull) || apperr.Is(err, apperr.KindConflict):
			continue // lost the race, rescan this date
		default:
			return nil, err
		}
	}
	return nil, apperr.NotFound(fmt.Sprintf("no available timeslot within %d days", o.cfg.SlotSearchDays))
}

func (o *Orchestrator) publish(ctx context.Context, event events.Event) {
	if o.bus != nil {
		o.bus.Publish(ctx, event)
	}
}

func storeFailure(kind ActionKind, out CallOutcome, lead *leadrepo.Lead, err error) Action {
	a := Action{Kind: kind, Message: fmt.Sprintf("failed to load appointment: %v", err), Phone: out.Phone}
	if lead != nil {
		a.LeadID = &lead.ID
	}
	return a
}

func loanStatusPtr(code Code) *string {
	if code == CodeOther || code == "" {
		return nil
	}
	s := string(code)
	return &s
}

// keyedLocks serializes work per phone, lead, or borrower key. Entries are
// reference-counted and removed once the last holder unlocks.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	e := k.locks[key]
	if e == nil {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
