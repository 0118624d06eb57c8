// Package domain holds the gym-log business rules: credentials, the exercise
// catalog, the session ledger and the aggregation read path.
package domain

import "time"

// User is a registered account. TokenDigest holds the SHA-256 digest of the
// current bearer token, never the token itself.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	TokenDigest  *string
	TokenExpiry  *time.Time
}

// Token is a freshly issued bearer token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Exercise is a catalog entry.
type Exercise struct {
	ID   int64
	Name string
}

// Session is one user's training day.
type Session struct {
	ID     int64
	UserID int64
	Date   time.Time
}

// GymRecord is a single set: reps at a weight for one exercise.
type GymRecord struct {
	ID         int64
	SessionID  int64
	ExerciseID int64
	Reps       int
	Weight     float64
}

// ExerciseSpec is the write-side shape of one exercise within a session.
type ExerciseSpec struct {
	Name    string
	Reps    []int
	Weights []float64
}

// SessionReceipt summarises a committed session write.
type SessionReceipt struct {
	SessionID int64
	Date      time.Time
	Records   int
}

// SessionRow is one row of the flattened session/record join. HasRecord is
// false for a session without records.
type SessionRow struct {
	SessionID    int64
	Date         time.Time
	Username     string
	HasRecord    bool
	ExerciseName string
	Reps         int
	Weight       float64
}

// SessionView is the grouped read model of one session.
type SessionView struct {
	Date      time.Time
	Username  string
	Exercises []string
	Reps      [][]int
	Weights   [][]float64
}
