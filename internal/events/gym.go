// Package events defines the payloads published for gym-log domain changes.
package events

import (
	"strconv"
	"time"
)

// Event types recorded in the outbox.
const (
	TypeSessionRecorded     = "session.recorded"
	TypeSessionDeleted      = "session.deleted"
	TypeExercisesRegistered = "exercises.registered"
)

// SessionRecorded is emitted once a session and all its records have been committed.
type SessionRecorded struct {
	SessionID  int64     `json:"session_id"`
	UserID     int64     `json:"user_id"`
	Date       string    `json:"date"`
	Exercises  []string  `json:"exercises"`
	Records    int       `json:"records"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SessionDeleted is emitted after a session and its records were removed.
type SessionDeleted struct {
	SessionID      int64     `json:"session_id"`
	UserID         int64     `json:"user_id"`
	Date           string    `json:"date"`
	RecordsRemoved int64     `json:"records_removed"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ExercisesRegistered is emitted when new names join the exercise catalog.
type ExercisesRegistered struct {
	Names      []string  `json:"names"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event is a domain event waiting to be written to the outbox.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   string
	PartitionKey  string
	Payload       interface{}
}

// DedupeKey identifies the event for idempotent outbox inserts.
func (e Event) DedupeKey() string {
	return e.AggregateType + ":" + e.AggregateID + ":" + e.Type
}

// NewSessionRecorded wraps the payload keyed by user so a user's sessions stay ordered.
func NewSessionRecorded(p SessionRecorded) Event {
	return Event{
		Type:          TypeSessionRecorded,
		AggregateType: "session",
		AggregateID:   strconv.FormatInt(p.SessionID, 10),
		PartitionKey:  strconv.FormatInt(p.UserID, 10),
		Payload:       p,
	}
}

// NewSessionDeleted wraps the payload keyed by user.
func NewSessionDeleted(p SessionDeleted) Event {
	return Event{
		Type:          TypeSessionDeleted,
		AggregateType: "session",
		AggregateID:   strconv.FormatInt(p.SessionID, 10),
		PartitionKey:  strconv.FormatInt(p.UserID, 10),
		Payload:       p,
	}
}

// NewExercisesRegistered wraps the payload; the catalog is a single aggregate.
func NewExercisesRegistered(p ExercisesRegistered) Event {
	return Event{
		Type:          TypeExercisesRegistered,
		AggregateType: "exercise_catalog",
		AggregateID:   p.OccurredAt.UTC().Format(time.RFC3339Nano),
		PartitionKey:  "catalog",
		Payload:       p,
	}
}
