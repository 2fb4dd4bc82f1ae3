// Package clock provides time capabilities for business-date math.
// All stored timestamps are UTC; business rules run on Singapore local dates.
// This is part of the platform layer and contains no business logic.
package clock

import (
	"fmt"
	"strings"
	"time"
)

// Singapore is the business timezone. A fixed UTC+8 zone is used so date math
// does not depend on the host tzdata.
var Singapore = time.FixedZone("Asia/Singapore", 8*60*60)

// Clock supplies the current time. Injected so tests can fix time.
type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time
	// TodaySingapore returns the current Singapore calendar date at midnight,
	// in the Singapore zone.
	TodaySingapore() time.Time
}

// Real is the production clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

func (Real) TodaySingapore() time.Time { return SingaporeDate(time.Now()) }

// Fixed is a test clock pinned to a single instant.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T.UTC() }

func (f Fixed) TodaySingapore() time.Time { return SingaporeDate(f.T) }

// SingaporeDate truncates an instant to its Singapore calendar date.
func SingaporeDate(t time.Time) time.Time {
	local := t.In(Singapore)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Singapore)
}

// SameSingaporeDate reports whether two instants fall on the same Singapore
// calendar date.
func SameSingaporeDate(a, b time.Time) bool {
	return SingaporeDate(a).Equal(SingaporeDate(b))
}

// ParseRowDate parses an external row date in DD/MM/YY or DD/MM/YYYY form as a
// Singapore local date.
func ParseRowDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	for _, layout := range []string{"02/01/2006", "2/1/2006", "02/01/06", "2/1/06"} {
		if parsed, err := time.ParseInLocation(layout, trimmed, Singapore); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q, want DD/MM/YY or DD/MM/YYYY", raw)
}
