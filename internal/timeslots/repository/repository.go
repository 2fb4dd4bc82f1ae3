// Package repository provides Postgres persistence for timeslots and the
// calendar configuration they are generated from.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loancrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSlotFull is returned when a conditional allocate finds no spare capacity.
// It is retryable: the caller should re-run the nearest-slot search.
var ErrSlotFull = apperr.Conflict("timeslot is full")

// Timeslot is a bookable unit of shared agent capacity.
type Timeslot struct {
	ID            uuid.UUID
	SlotDate      time.Time // Singapore calendar date
	StartAt       time.Time // UTC instant
	EndAt         time.Time // UTC instant
	MaxCapacity   int
	OccupiedCount int
	Disabled      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CalendarSettings drives slot generation.
type CalendarSettings struct {
	WorkingDays     []time.Weekday
	DayStartMinutes int // minutes after Singapore midnight
	DayEndMinutes   int
	SlotMinutes     int
	DefaultCapacity int
}

const slotColumns = `id, slot_date, start_at, end_at, max_capacity, occupied_count, disabled, created_at, updated_at`

// Repository provides timeslot persistence backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new timeslots repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSlot(row pgx.Row) (*Timeslot, error) {
	var s Timeslot
	err := row.Scan(
		&s.ID,
		&s.SlotDate,
		&s.StartAt,
		&s.EndAt,
		&s.MaxCapacity,
		&s.OccupiedCount,
		&s.Disabled,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindNearest returns the first enabled slot on the given date with spare
// capacity, scanning chronologically. When after is non-nil, slots starting
// before it are skipped. Returns a NotFound error when no slot fits.
func (r *Repository) FindNearest(ctx context.Context, date time.Time, after *time.Time) (*Timeslot, error) {
	query := `SELECT ` + slotColumns + ` FROM timeslots
		WHERE slot_date = $1
		  AND NOT disabled
		  AND occupied_count < max_capacity
		  AND ($2::timestamptz IS NULL OR start_at >= $2)
		ORDER BY start_at
		LIMIT 1`

	slot, err := scanSlot(r.pool.QueryRow(ctx, query, date, after))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no available timeslot on date")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find nearest timeslot: %w", err)
	}

	return slot, nil
}

// Allocate atomically claims one unit of capacity on the slot. The conditional
// update is the only write path for occupancy, so occupied_count can never
// exceed max_capacity even under concurrent callers. Zero affected rows means
// the slot filled up (or was disabled) since it was found; the caller treats
// that as ErrSlotFull and retries the search.
func (r *Repository) Allocate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE timeslots
		 SET occupied_count = occupied_count + 1, updated_at = now()
		 WHERE id = $1 AND NOT disabled AND occupied_count < max_capacity`,
		id)
	if err != nil {
		return fmt.Errorf("failed to allocate timeslot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotFull
	}
	return nil
}

// Release returns one unit of capacity to the slot, flooring at zero.
func (r *Repository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE timeslots
		 SET occupied_count = occupied_count - 1, updated_at = now()
		 WHERE id = $1 AND occupied_count > 0`,
		id)
	if err != nil {
		return fmt.Errorf("failed to release timeslot: %w", err)
	}
	return nil
}

// GetByID returns a slot by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Timeslot, error) {
	slot, err := scanSlot(r.pool.QueryRow(ctx,
		`SELECT `+slotColumns+` FROM timeslots WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("timeslot not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get timeslot: %w", err)
	}
	return slot, nil
}

// ListByDate returns all slots on the date in chronological order.
func (r *Repository) ListByDate(ctx context.Context, date time.Time) ([]Timeslot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+slotColumns+` FROM timeslots WHERE slot_date = $1 ORDER BY start_at`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeslots: %w", err)
	}
	defer rows.Close()

	items := make([]Timeslot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeslot: %w", err)
		}
		items = append(items, *slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeslots: %w", err)
	}

	return items, nil
}

// GetSettings loads the single calendar settings row.
func (r *Repository) GetSettings(ctx context.Context) (*CalendarSettings, error) {
	query := `SELECT working_days, day_start_minutes, day_end_minutes, slot_minutes, default_capacity
		FROM calendar_settings LIMIT 1`

	var (
		days     []int32
		settings CalendarSettings
	)
	err := r.pool.QueryRow(ctx, query).Scan(
		&days,
		&settings.DayStartMinutes,
		&settings.DayEndMinutes,
		&settings.SlotMinutes,
		&settings.DefaultCapacity,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("calendar settings not configured")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar settings: %w", err)
	}

	settings.WorkingDays = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		settings.WorkingDays = append(settings.WorkingDays, time.Weekday(d))
	}

	return &settings, nil
}

// IsClosedDate reports whether the date has a calendar exception.
func (r *Repository) IsClosedDate(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM calendar_exceptions WHERE exception_date = $1)`, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check calendar exception: %w", err)
	}
	return exists, nil
}

// InsertSlots inserts generated slots, skipping any that already exist for
// their date and start instant.
func (r *Repository) InsertSlots(ctx context.Context, slots []Timeslot) (int, error) {
	inserted := 0
	for _, slot := range slots {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO timeslots (id, slot_date, start_at, end_at, max_capacity, occupied_count, disabled)
			 VALUES ($1, $2, $3, $4, $5, 0, false)
			 ON CONFLICT (slot_date, start_at) DO NOTHING`,
			slot.ID, slot.SlotDate, slot.StartAt, slot.EndAt, slot.MaxCapacity)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert timeslot: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
