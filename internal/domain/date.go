package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of session dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date. Errors wrap ErrBadDateFormat.
func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("Bad date parameter provided '%s' - %w", raw, ErrBadDateFormat)
	}
	return parsed, nil
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CivilDate drops the time of day, keeping the calendar date as UTC midnight.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
