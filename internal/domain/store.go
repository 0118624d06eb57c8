package domain

import (
	"context"
	"time"

	"example.com/gymlog/internal/events"
)

// UserRepository persists credentials. Finders return (nil, nil) when nothing matches.
type UserRepository interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByTokenDigest(ctx context.Context, digest string) (*User, error)
	SaveToken(ctx context.Context, userID int64, digest string, expiry time.Time) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

// Store is the relational store shared by all components.
type Store interface {
	UserRepository
	ListExercises(ctx context.Context) ([]string, error)
	// SessionRows returns the user's sessions joined with their records, ordered
	// by date, session id, exercise name (byte order) and record id. A nil date
	// selects every session.
	SessionRows(ctx context.Context, userID int64, date *time.Time) ([]SessionRow, error)
	// InTx runs fn inside one transaction, committing only if fn returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the write operations available inside a transaction.
type Tx interface {
	// ExistingExercises returns the names already in the catalog, compared case-insensitively.
	ExistingExercises(ctx context.Context, names []string) ([]string, error)
	// InsertExercises inserts names, returning *DuplicateExerciseError on a unique violation.
	InsertExercises(ctx context.Context, names []string) error
	// ExerciseIDs resolves catalog names to ids; unknown names are absent from the result.
	ExerciseIDs(ctx context.Context, names []string) (map[string]int64, error)
	// CreateSession returns ErrDuplicateSession when (userID, date) exists.
	CreateSession(ctx context.Context, userID int64, date time.Time) (int64, error)
	InsertRecords(ctx context.Context, records []GymRecord) error
	FindSession(ctx context.Context, userID int64, date time.Time) (*Session, error)
	DeleteRecords(ctx context.Context, sessionID int64) (int64, error)
	DeleteSession(ctx context.Context, sessionID int64) error
	// Emit records a domain event that commits or rolls back with the transaction.
	Emit(ctx context.Context, event events.Event) error
}
