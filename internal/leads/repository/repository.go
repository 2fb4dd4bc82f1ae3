// Package repository provides Postgres persistence for leads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loancrm_backend/internal/leads/domain"
	"loancrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lead is a prospective or returning borrower.
type Lead struct {
	ID               uuid.UUID
	Phone            string // as received
	PhoneKey         string // canonical matching key
	PhoneAlt1Key     *string
	PhoneAlt2Key     *string
	FullName         string
	Status           domain.LeadStatus
	Tag              *string
	AssignedAgentID  *uuid.UUID
	FollowUpDate     *time.Time
	Source           string
	Eligible         *bool
	EligibilityNotes *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

const leadColumns = `id, phone, phone_key, phone_alt1_key, phone_alt2_key, full_name,
	status, tag, assigned_agent_id, follow_up_date, source, eligible, eligibility_notes,
	created_at, updated_at, deleted_at`

// Repository provides lead persistence backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID,
		&l.Phone,
		&l.PhoneKey,
		&l.PhoneAlt1Key,
		&l.PhoneAlt2Key,
		&l.FullName,
		&l.Status,
		&l.Tag,
		&l.AssignedAgentID,
		&l.FollowUpDate,
		&l.Source,
		&l.Eligible,
		&l.EligibilityNotes,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new lead under the caller-assigned id and returns the
// stored row.
func (r *Repository) Create(ctx context.Context, lead Lead) (*Lead, error) {
	if !lead.Status.Valid() {
		return nil, apperr.Validation(fmt.Sprintf("invalid lead status %q", lead.Status))
	}

	query := `
		INSERT INTO leads
			(id, phone, phone_key, phone_alt1_key, phone_alt2_key, full_name, status, tag,
			 assigned_agent_id, follow_up_date, source, eligible, eligibility_notes)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + leadColumns

	saved, err := scanLead(r.pool.QueryRow(ctx, query,
		lead.ID,
		lead.Phone,
		lead.PhoneKey,
		lead.PhoneAlt1Key,
		lead.PhoneAlt2Key,
		lead.FullName,
		lead.Status,
		lead.Tag,
		lead.AssignedAgentID,
		lead.FollowUpDate,
		lead.Source,
		lead.Eligible,
		lead.EligibilityNotes,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	return saved, nil
}

// GetByID returns the lead with the given id, excluding soft-deleted leads.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND deleted_at IS NULL`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lead not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return lead, nil
}

// FindByPhoneKey returns the lead whose primary or alternate phone matches the
// canonical key, or nil when no lead matches. Matching is exact on the key.
func (r *Repository) FindByPhoneKey(ctx context.Context, key string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE deleted_at IS NULL
		  AND (phone_key = $1 OR phone_alt1_key = $1 OR phone_alt2_key = $1)
		ORDER BY created_at DESC
		LIMIT 1`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lead by phone: %w", err)
	}

	return lead, nil
}

// UpdateStatus writes a new status (and optional tag) for the lead.
// The engine-licensed set is enforced here; agent edits go through a
// different surface and are not restricted by this method.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.LeadStatus, tag *string) (*Lead, error) {
	if !domain.EngineCanSet(status) {
		return nil, apperr.Forbidden(fmt.Sprintf("engine is not licensed to set lead status %q", status))
	}

	query := `UPDATE leads
		SET status = $2, tag = $3, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + leadColumns

	lead, err := scanLead(r.pool.QueryRow(ctx, query, id, status, tag))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lead not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update lead status: %w", err)
	}

	return lead, nil
}

// SetFollowUpDate stamps the follow-up date the sweepers set on missed leads.
func (r *Repository) SetFollowUpDate(ctx context.Context, id uuid.UUID, followUp time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET follow_up_date = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, followUp)
	if err != nil {
		return fmt.Errorf("failed to set follow-up date: %w", err)
	}
	return nil
}

// SetEligibility records the outcome of an external eligibility check.
func (r *Repository) SetEligibility(ctx context.Context, id uuid.UUID, eligible bool, notes string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET eligible = $2, eligibility_notes = $3, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		id, eligible, notes)
	if err != nil {
		return fmt.Errorf("failed to set eligibility: %w", err)
	}
	return nil
}

// Ping verifies database connectivity for health checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
