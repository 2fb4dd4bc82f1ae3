package engine

import (
	"context"
	"fmt"
	"time"

	apptdomain "loancrm_backend/internal/appointments/domain"
	apptrepo "loancrm_backend/internal/appointments/repository"
	"loancrm_backend/internal/events"
	"loancrm_backend/platform/clock"
	"loancrm_backend/platform/logger"
)

// DurationFromHours converts a fractional hour threshold, as configured or
// supplied per request, to a duration.
func DurationFromHours(hours float64) time.Duration {
	return apptdomain.ThresholdFromHours(hours)
}

// Sweeper runs the two time-driven passes over today's appointment set. It
// shares no state with the orchestrator beyond the stores.
type Sweeper struct {
	leads LeadStore
	appts AppointmentStore
	clk   clock.Clock
	bus   events.Bus
	log   *logger.Logger
}

func NewSweeper(leads LeadStore, appts AppointmentStore, clk clock.Clock, bus events.Bus, log *logger.Logger) *Sweeper {
	return &Sweeper{leads: leads, appts: appts, clk: clk, bus: bus, log: log}
}

// SweepTimeouts flags today's upcoming appointments older than the threshold
// as missed and moves their leads to follow_up. A mid-day miss is
// recoverable, so the lead stays workable rather than being finalized.
func (s *Sweeper) SweepTimeouts(ctx context.Context, threshold time.Duration) []Action {
	from, to := s.todayBounds()
	upcoming, err := s.appts.ListByStatusBetween(ctx, apptdomain.StatusUpcoming, from, to)
	if err != nil {
		s.log.Error("timeout sweep failed to list appointments", "error", err)
		return []Action{{Kind: ActionTimeoutAppointment, Message: fmt.Sprintf("failed to list today's upcoming appointments: %v", err)}}
	}

	now := s.clk.Now()
	var actions []Action
	for i := range upcoming {
		appt := &upcoming[i]
		if err := apptdomain.ValidateMissed(appt.StartAt, now, threshold); err != nil {
			continue // still within the threshold
		}
		actions = append(actions, s.timeoutOne(ctx, appt))
	}
	return actions
}

func (s *Sweeper) timeoutOne(ctx context.Context, appt *apptrepo.Appointment) Action {
	action := Action{
		Kind:          ActionTimeoutAppointment,
		AppointmentID: &appt.ID,
		LeadID:        appt.LeadID,
		BeforeStatus:  string(appt.Status),
	}

	updated, err := s.appts.UpdateStatus(ctx, appt.ID, apptdomain.StatusMissed, nil, nil)
	if err != nil {
		action.Message = fmt.Sprintf("failed to mark appointment missed: %v", err)
		return action
	}
	s.publish(ctx, events.AppointmentStatusChanged{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: updated.ID,
		LeadID:        updated.LeadID,
		OldStatus:     string(appt.Status),
		NewStatus:     string(updated.Status),
		Reason:        "timeout",
	})

	proj := ProjectTimeoutMiss()
	if appt.LeadID != nil {
		if _, err := s.leads.UpdateStatus(ctx, *appt.LeadID, proj.Lead, nil); err != nil {
			action.Message = fmt.Sprintf("appointment missed but lead update failed: %v", err)
			return action
		}
		// follow up the next Singapore day
		followUp := s.clk.TodaySingapore().AddDate(0, 0, 1)
		if err := s.leads.SetFollowUpDate(ctx, *appt.LeadID, followUp); err != nil {
			s.log.Warn("failed to set follow-up date", "leadId", *appt.LeadID, "error", err)
		}
	}

	action.Success = true
	action.AfterStatus = string(apptdomain.StatusMissed)
	action.Message = fmt.Sprintf("appointment missed, lead %s", proj.Lead)
	return action
}

// SweepEndOfDay is the finalization pass: every done appointment today whose
// persisted loan status is RS demotes its lead to missed/RS, catching leads
// whose status was never corrected during the day.
func (s *Sweeper) SweepEndOfDay(ctx context.Context) []Action {
	from, to := s.todayBounds()
	done, err := s.appts.ListByStatusBetween(ctx, apptdomain.StatusDone, from, to)
	if err != nil {
		s.log.Error("end-of-day sweep failed to list appointments", "error", err)
		return []Action{{Kind: ActionFinalStatusUpdate, Message: fmt.Sprintf("failed to list today's done appointments: %v", err)}}
	}

	var actions []Action
	for i := range done {
		appt := &done[i]
		if appt.LeadID == nil || appt.LoanStatus == nil {
			continue
		}
		proj, ok := ProjectEndOfDayMiss(*appt.LoanStatus)
		if !ok {
			continue
		}
		// A repeated run finds the lead already finalized; nothing to report.
		if lead, err := s.leads.GetByID(ctx, *appt.LeadID); err == nil && lead.Status == proj.Lead {
			continue
		}

		action := Action{
			Kind:          ActionFinalStatusUpdate,
			AppointmentID: &appt.ID,
			LeadID:        appt.LeadID,
		}
		updated, err := s.leads.UpdateStatus(ctx, *appt.LeadID, proj.Lead, nil)
		if err != nil {
			action.Message = fmt.Sprintf("failed to finalize lead status: %v", err)
			actions = append(actions, action)
			continue
		}
		action.Success = true
		action.AfterStatus = string(updated.Status)
		action.Message = fmt.Sprintf("lead finalized to %s from loan status %s", proj.Lead, *appt.LoanStatus)
		actions = append(actions, action)
		s.publish(ctx, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    *appt.LeadID,
			NewStatus: string(proj.Lead),
			Actor:     "engine",
		})
	}
	return actions
}

// todayBounds returns today's Singapore day as a UTC instant range.
func (s *Sweeper) todayBounds() (time.Time, time.Time) {
	start := s.clk.TodaySingapore()
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (s *Sweeper) publish(ctx context.Context, event events.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}
