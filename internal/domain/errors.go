package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation failed")
	ErrDuplicate    = errors.New("duplicate resource")
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrPersistence  = errors.New("persistence failure")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

var (
	// ErrDuplicateUsername is returned when registering a username that is taken.
	ErrDuplicateUsername = &kindError{kind: ErrDuplicate, msg: "please select a unique username"}
	// ErrDuplicateSession is returned when the user already has a session on the date.
	ErrDuplicateSession = &kindError{kind: ErrDuplicate, msg: "sessions must be unique across dates for each user"}
	// ErrSessionNotFound is returned when no session exists for the user and date.
	ErrSessionNotFound = &kindError{kind: ErrNotFound, msg: "session not found"}
	// ErrUserNotFound is returned by administrative operations on unknown users.
	ErrUserNotFound = &kindError{kind: ErrNotFound, msg: "user not found"}
	// ErrBadCredentials covers unknown users and wrong passwords alike.
	ErrBadCredentials = &kindError{kind: ErrUnauthorized, msg: "invalid username or password"}
	// ErrUnknownToken is returned when no user holds the presented bearer token.
	ErrUnknownToken = &kindError{kind: ErrUnauthorized, msg: "invalid bearer token"}
	// ErrTokenExpired is returned when the bearer token is at or past its expiry.
	ErrTokenExpired = &kindError{kind: ErrUnauthorized, msg: "bearer token expired"}
	// ErrBadDateFormat is returned for dates not in YYYY-MM-DD form.
	ErrBadDateFormat = &kindError{kind: ErrValidation, msg: "could not be parsed in format 'YYYY-MM-DD'"}
	// ErrDeleteFailed wraps store failures during a session delete.
	ErrDeleteFailed = &kindError{kind: ErrPersistence, msg: "failed to delete session"}
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid parameter '%s'", e.Field)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MissingField builds the error for an absent required parameter.
func MissingField(field string) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf("Missing required parameter '%s' in the JSON body", field)}
}

// DuplicateExerciseError names the catalog entry that already exists.
type DuplicateExerciseError struct {
	Name string
}

func (e *DuplicateExerciseError) Error() string {
	return fmt.Sprintf("Exercise '%s' already exists", e.Name)
}

func (e *DuplicateExerciseError) Unwrap() error { return ErrDuplicate }

// UnknownExerciseError names an exercise missing from the catalog.
type UnknownExerciseError struct {
	Name string
}

func (e *UnknownExerciseError) Error() string {
	return fmt.Sprintf("Exercise '%s' not recognised - please add as an exercise", e.Name)
}

func (e *UnknownExerciseError) Unwrap() error { return ErrNotFound }

// LengthMismatchError carries both series of an exercise spec whose lengths differ.
type LengthMismatchError struct {
	Exercise string
	Reps     []int
	Weights  []float64
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("Mismatch between 'reps' (%v) and 'weights' (%v) for exercise '%s'", e.Reps, e.Weights, e.Exercise)
}

func (e *LengthMismatchError) Unwrap() error { return ErrValidation }
