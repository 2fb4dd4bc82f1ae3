// Package service provides business logic for timeslot availability and
// calendar-driven slot generation.
package service

import (
	"context"
	"time"

	"loancrm_backend/internal/timeslots/repository"
	"loancrm_backend/platform/clock"

	"github.com/google/uuid"
)

// Service provides timeslot operations.
type Service struct {
	repo *repository.Repository
	clk  clock.Clock
}

// New creates a new timeslots service.
func New(repo *repository.Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clk: clk}
}

// ListByDate returns all slots for a Singapore calendar date.
func (s *Service) ListByDate(ctx context.Context, date time.Time) ([]repository.Timeslot, error) {
	return s.repo.ListByDate(ctx, clock.SingaporeDate(date))
}

// GenerateForDate materializes slots for the date from calendar settings,
// honoring working days and exception (closed) dates. Existing slots are
// left untouched. Returns the number of newly created slots.
func (s *Service) GenerateForDate(ctx context.Context, date time.Time) (int, error) {
	day := clock.SingaporeDate(date)

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return 0, err
	}

	if !isWorkingDay(settings.WorkingDays, day.Weekday()) {
		return 0, nil
	}

	closed, err := s.repo.IsClosedDate(ctx, day)
	if err != nil {
		return 0, err
	}
	if closed {
		return 0, nil
	}

	slots := buildSlots(day, settings)
	if len(slots) == 0 {
		return 0, nil
	}

	return s.repo.InsertSlots(ctx, slots)
}

// GenerateAhead generates slots for today plus the next n-1 days.
func (s *Service) GenerateAhead(ctx context.Context, days int) (int, error) {
	total := 0
	start := s.clk.TodaySingapore()
	for i := 0; i < days; i++ {
		created, err := s.GenerateForDate(ctx, start.AddDate(0, 0, i))
		if err != nil {
			return total, err
		}
		total += created
	}
	return total, nil
}

func isWorkingDay(working []time.Weekday, day time.Weekday) bool {
	for _, w := range working {
		if w == day {
			return true
		}
	}
	return false
}

func buildSlots(day time.Time, settings *repository.CalendarSettings) []repository.Timeslot {
	if settings.SlotMinutes <= 0 || settings.DayEndMinutes <= settings.DayStartMinutes {
		return nil
	}

	slots := make([]repository.Timeslot, 0)
	for start := settings.DayStartMinutes; start+settings.SlotMinutes <= settings.DayEndMinutes; start += settings.SlotMinutes {
		startAt := day.Add(time.Duration(start) * time.Minute)
		slots = append(slots, repository.Timeslot{
			ID:          uuid.New(),
			SlotDate:    day,
			StartAt:     startAt.UTC(),
			EndAt:       startAt.Add(time.Duration(settings.SlotMinutes) * time.Minute).UTC(),
			MaxCapacity: settings.DefaultCapacity,
		})
	}
	return slots
}
