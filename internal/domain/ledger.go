package domain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"example.com/gymlog/internal/events"
	"example.com/gymlog/internal/observability"
)

// Ledger is the transactional write path for sessions and their records.
type Ledger struct {
	store Store
}

// NewLedger constructs a Ledger.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Record creates the user's session on date and attaches every spec's records
// in one transaction. Nothing is written if any step fails.
func (l *Ledger) Record(ctx context.Context, userID int64, date time.Time, specs []ExerciseSpec) (SessionReceipt, error) {
	if err := ValidateExerciseSpecs(specs); err != nil {
		return SessionReceipt{}, err
	}
	date = CivilDate(date)

	var receipt SessionReceipt
	err := l.store.InTx(ctx, func(tx Tx) error {
		sessionID, err := l.CreateSession(ctx, tx, userID, date)
		if err != nil {
			return err
		}
		count, err := l.AttachRecords(ctx, tx, sessionID, specs)
		if err != nil {
			return err
		}
		receipt = SessionReceipt{SessionID: sessionID, Date: date, Records: count}

		exercises := make([]string, 0, len(specs))
		for _, spec := range specs {
			exercises = append(exercises, NormalizeExerciseName(spec.Name))
		}
		return tx.Emit(ctx, events.NewSessionRecorded(events.SessionRecorded{
			SessionID:  sessionID,
			UserID:     userID,
			Date:       FormatDate(date),
			Exercises:  exercises,
			Records:    count,
			OccurredAt: time.Now().UTC(),
		}))
	})
	if err != nil {
		return SessionReceipt{}, err
	}

	observability.RecordSessionPersisted(time.Now(), receipt.Records)
	return receipt, nil
}

// CreateSession inserts the (userID, date) session. A second session on the
// same date fails with ErrDuplicateSession.
func (l *Ledger) CreateSession(ctx context.Context, tx Tx, userID int64, date time.Time) (int64, error) {
	return tx.CreateSession(ctx, userID, CivilDate(date))
}

// AttachRecords inserts one record per (reps, weight) pair of every spec, in
// request order, and returns the number of records written.
func (l *Ledger) AttachRecords(ctx context.Context, tx Tx, sessionID int64, specs []ExerciseSpec) (int, error) {
	if err := ValidateExerciseSpecs(specs); err != nil {
		return 0, err
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, NormalizeExerciseName(spec.Name))
	}
	ids, err := tx.ExerciseIDs(ctx, names)
	if err != nil {
		return 0, err
	}

	records := make([]GymRecord, 0)
	for i, spec := range specs {
		exerciseID, ok := ids[names[i]]
		if !ok {
			return 0, &UnknownExerciseError{Name: names[i]}
		}
		for j := range spec.Reps {
			records = append(records, GymRecord{
				SessionID:  sessionID,
				ExerciseID: exerciseID,
				Reps:       spec.Reps[j],
				Weight:     spec.Weights[j],
			})
		}
	}

	if err := tx.InsertRecords(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Delete removes the user's session on date together with its records. Store
// failures roll the whole deletion back and are reported as ErrDeleteFailed.
func (l *Ledger) Delete(ctx context.Context, userID int64, date time.Time) error {
	date = CivilDate(date)
	err := l.store.InTx(ctx, func(tx Tx) error {
		session, err := tx.FindSession(ctx, userID, date)
		if err != nil {
			return err
		}
		if session == nil {
			return ErrSessionNotFound
		}
		removed, err := tx.DeleteRecords(ctx, session.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSession(ctx, session.ID); err != nil {
			return err
		}
		return tx.Emit(ctx, events.NewSessionDeleted(events.SessionDeleted{
			SessionID:      session.ID,
			UserID:         userID,
			Date:           FormatDate(date),
			RecordsRemoved: removed,
			OccurredAt:     time.Now().UTC(),
		}))
	})
	switch {
	case err == nil:
		observability.RecordSessionDeleted()
		return nil
	case errors.Is(err, ErrSessionNotFound):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
}

// ValidateExerciseSpecs checks the shape of a session write before any store access.
func ValidateExerciseSpecs(specs []ExerciseSpec) error {
	if len(specs) == 0 {
		return &ValidationError{Field: "exercises", Message: "at least one exercise is required"}
	}
	for _, spec := range specs {
		name := NormalizeExerciseName(spec.Name)
		if name == "" {
			return &ValidationError{Field: "exercise name", Message: "exercise name must not be empty"}
		}
		if len(spec.Reps) != len(spec.Weights) {
			return &LengthMismatchError{Exercise: name, Reps: spec.Reps, Weights: spec.Weights}
		}
		if len(spec.Reps) == 0 {
			return &ValidationError{Field: "reps", Message: fmt.Sprintf("Exercise '%s' requires at least one set", name)}
		}
		for _, reps := range spec.Reps {
			if reps <= 0 {
				return &ValidationError{Field: "reps", Message: fmt.Sprintf("Exercise '%s' has non-positive reps %d", name, reps)}
			}
			if reps > math.MaxInt32 {
				return &ValidationError{Field: "reps", Message: fmt.Sprintf("Exercise '%s' has out of range reps %d", name, reps)}
			}
		}
	}
	return nil
}
