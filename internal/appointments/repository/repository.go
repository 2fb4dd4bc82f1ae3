// Package repository provides Postgres persistence for appointments.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loancrm_backend/internal/appointments/domain"
	"loancrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appointment is one scheduled meeting for a lead (or borrower) with an agent.
// Appointments are never hard-deleted; they only transition to cancelled.
type Appointment struct {
	ID         uuid.UUID
	LeadID     *uuid.UUID
	BorrowerID *uuid.UUID
	AgentID    *uuid.UUID
	TimeslotID uuid.UUID
	Status     domain.AppointmentStatus
	StartAt    time.Time // UTC
	EndAt      time.Time // UTC
	LoanStatus *string   // P | PRS | RS | R
	LoanNotes  *string
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const appointmentColumns = `id, lead_id, borrower_id, agent_id, timeslot_id, status,
	start_at, end_at, loan_status, loan_notes, notes, created_at, updated_at`

// Repository provides appointment persistence backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new appointments repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.LeadID,
		&a.BorrowerID,
		&a.AgentID,
		&a.TimeslotID,
		&a.Status,
		&a.StartAt,
		&a.EndAt,
		&a.LoanStatus,
		&a.LoanNotes,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new appointment.
func (r *Repository) Create(ctx context.Context, appt Appointment) (*Appointment, error) {
	query := `
		INSERT INTO appointments
			(id, lead_id, borrower_id, agent_id, timeslot_id, status, start_at, end_at,
			 loan_status, loan_notes, notes)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + appointmentColumns

	saved, err := scanAppointment(r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.LeadID,
		appt.BorrowerID,
		appt.AgentID,
		appt.TimeslotID,
		appt.Status,
		appt.StartAt,
		appt.EndAt,
		appt.LoanStatus,
		appt.LoanNotes,
		appt.Notes,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	return saved, nil
}

// GetByID returns the appointment with the given id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// GetUpcomingByLead returns the lead's upcoming appointment, or nil when it
// has none. At most one upcoming appointment exists per lead; the newest is
// returned if data ever violates that.
func (r *Repository) GetUpcomingByLead(ctx context.Context, leadID uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE lead_id = $1 AND status = 'upcoming'
		 ORDER BY start_at DESC LIMIT 1`, leadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming appointment: %w", err)
	}
	return appt, nil
}

// GetUpcomingByBorrower returns the borrower's upcoming appointment, or nil.
func (r *Repository) GetUpcomingByBorrower(ctx context.Context, borrowerID uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE borrower_id = $1 AND status = 'upcoming'
		 ORDER BY start_at DESC LIMIT 1`, borrowerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming borrower appointment: %w", err)
	}
	return appt, nil
}

// GetLatestByLead returns the lead's most recent appointment in any status,
// or nil when it has none.
func (r *Repository) GetLatestByLead(ctx context.Context, leadID uuid.UUID) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE lead_id = $1 ORDER BY start_at DESC LIMIT 1`, leadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest appointment: %w", err)
	}
	return appt, nil
}

// HasNewerThan reports whether the lead has an appointment starting after the
// given instant. Used by the missed -> upcoming re-open rule.
func (r *Repository) HasNewerThan(ctx context.Context, leadID uuid.UUID, after time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE lead_id = $1 AND start_at > $2)`,
		leadID, after).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check newer appointments: %w", err)
	}
	return exists, nil
}

// ListByStatusBetween returns appointments in the given status whose start
// falls inside [from, to). The caller supplies Singapore day bounds in UTC.
func (r *Repository) ListByStatusBetween(ctx context.Context, status domain.AppointmentStatus, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments
		 WHERE status = $1 AND start_at >= $2 AND start_at < $3
		 ORDER BY start_at`, status, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	items := make([]Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	return items, nil
}

// UpdateStatus transitions the appointment, validating against the engine's
// transition table, and optionally records the loan outcome fields.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus, loanStatus, loanNotes *string) (*Appointment, error) {
	if !to.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid appointment status %q", to))
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(current.Status, to); err != nil {
		return nil, err
	}

	query := `UPDATE appointments
		SET status = $2,
		    loan_status = COALESCE($3, loan_status),
		    loan_notes = COALESCE($4, loan_notes),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + appointmentColumns

	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, to, loanStatus, loanNotes))
	if err != nil {
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}
	return appt, nil
}

// Move reschedules the appointment onto a new slot and sets it back to
// upcoming. Capacity bookkeeping (release old slot, allocate new) is the
// caller's responsibility and must happen around this call.
func (r *Repository) Move(ctx context.Context, id uuid.UUID, timeslotID uuid.UUID, startAt, endAt time.Time) (*Appointment, error) {
	query := `UPDATE appointments
		SET timeslot_id = $2, start_at = $3, end_at = $4, status = 'upcoming', updated_at = now()
		WHERE id = $1
		RETURNING ` + appointmentColumns

	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, timeslotID, startAt, endAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to move appointment: %w", err)
	}
	return appt, nil
}
