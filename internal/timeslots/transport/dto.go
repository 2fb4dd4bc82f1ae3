package transport

import (
	"time"

	"github.com/google/uuid"
)

// ListTimeslotsRequest is the query parameters for listing a date's slots.
type ListTimeslotsRequest struct {
	Date string `form:"date" validate:"required,datetime=2006-01-02"`
}

// GenerateTimeslotsRequest asks the service to materialize slots ahead.
type GenerateTimeslotsRequest struct {
	Days int `json:"days" validate:"required,min=1,max=60"`
}

// TimeslotResponse is the response body for one timeslot.
type TimeslotResponse struct {
	ID            uuid.UUID `json:"id"`
	SlotDate      string    `json:"slotDate"`
	StartAt       time.Time `json:"startAt"`
	EndAt         time.Time `json:"endAt"`
	MaxCapacity   int       `json:"maxCapacity"`
	OccupiedCount int       `json:"occupiedCount"`
	Disabled      bool      `json:"disabled"`
	Available     bool      `json:"available"`
}

// GenerateTimeslotsResponse reports how many slots were created.
type GenerateTimeslotsResponse struct {
	Created int `json:"created"`
}
