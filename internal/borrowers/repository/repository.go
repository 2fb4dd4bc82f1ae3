// Package repository provides Postgres persistence for borrowers.
// Borrowers are customers with a disbursed loan; reloan-type call rows
// resolve against this table instead of leads.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Borrower is an existing customer eligible for reloan outreach.
type Borrower struct {
	ID        uuid.UUID
	LeadID    *uuid.UUID
	Phone     string
	PhoneKey  string
	FullName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository provides borrower persistence backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new borrowers repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByPhoneKey returns the borrower matching the canonical phone key,
// or nil when none matches.
func (r *Repository) FindByPhoneKey(ctx context.Context, key string) (*Borrower, error) {
	query := `SELECT id, lead_id, phone, phone_key, full_name, created_at, updated_at
		FROM borrowers WHERE phone_key = $1 ORDER BY created_at DESC LIMIT 1`

	var b Borrower
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&b.ID,
		&b.LeadID,
		&b.Phone,
		&b.PhoneKey,
		&b.FullName,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find borrower by phone: %w", err)
	}

	return &b, nil
}
