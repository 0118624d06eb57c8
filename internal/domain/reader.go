package domain

import (
	"context"
	"time"
)

// Reader rebuilds grouped session views from stored records.
type Reader struct {
	store Store
}

// NewReader constructs a Reader.
func NewReader(store Store) *Reader {
	return &Reader{store: store}
}

// Read returns the user's sessions ordered by date, or only the session on date
// when date is non-nil.
func (r *Reader) Read(ctx context.Context, userID int64, date *time.Time) ([]SessionView, error) {
	if date != nil {
		d := CivilDate(*date)
		date = &d
	}
	rows, err := r.store.SessionRows(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return GroupSessionRows(rows), nil
}

// ReadDate parses raw before reading, so malformed dates never reach the store.
func (r *Reader) ReadDate(ctx context.Context, userID int64, raw string) ([]SessionView, error) {
	date, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return r.Read(ctx, userID, &date)
}
