package domain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"example.com/gymlog/internal/events"
)

type fakeState struct {
	users     []User
	exercises []Exercise
	sessions  []Session
	records   []GymRecord
	events    []events.Event
	nextID    int64
}

func (s fakeState) clone() fakeState {
	out := s
	out.users = append([]User(nil), s.users...)
	out.exercises = append([]Exercise(nil), s.exercises...)
	out.sessions = append([]Session(nil), s.sessions...)
	out.records = append([]GymRecord(nil), s.records...)
	out.events = append([]events.Event(nil), s.events...)
	return out
}

// fakeStore keeps everything in memory. InTx works on a copy that replaces the
// committed state only when fn succeeds.
type fakeStore struct {
	state fakeState

	failDeleteSession error
	failInsertRecords error
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) id() int64 {
	s.state.nextID++
	return s.state.nextID
}

func (s *fakeStore) CreateUser(_ context.Context, username, hash string) (*User, error) {
	for _, u := range s.state.users {
		if u.Username == username {
			return nil, ErrDuplicateUsername
		}
	}
	u := User{ID: s.id(), Username: username, PasswordHash: hash}
	s.state.users = append(s.state.users, u)
	return &u, nil
}

func (s *fakeStore) FindUserByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range s.state.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindUserByTokenDigest(_ context.Context, digest string) (*User, error) {
	for _, u := range s.state.users {
		if u.TokenDigest != nil && *u.TokenDigest == digest {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SaveToken(_ context.Context, userID int64, digest string, expiry time.Time) error {
	for i := range s.state.users {
		if s.state.users[i].ID == userID {
			s.state.users[i].TokenDigest = &digest
			s.state.users[i].TokenExpiry = &expiry
			return nil
		}
	}
	return errors.New("no such user")
}

func (s *fakeStore) UpdatePassword(_ context.Context, userID int64, hash string) error {
	for i := range s.state.users {
		if s.state.users[i].ID == userID {
			s.state.users[i].PasswordHash = hash
			s.state.users[i].TokenDigest = nil
			s.state.users[i].TokenExpiry = nil
			return nil
		}
	}
	return errors.New("no such user")
}

func (s *fakeStore) ListExercises(context.Context) ([]string, error) {
	out := make([]string, 0, len(s.state.exercises))
	for _, e := range s.state.exercises {
		out = append(out, e.Name)
	}
	return out, nil
}

func (s *fakeStore) SessionRows(_ context.Context, userID int64, date *time.Time) ([]SessionRow, error) {
	names := make(map[int64]string)
	for _, e := range s.state.exercises {
		names[e.ID] = e.Name
	}
	var username string
	for _, u := range s.state.users {
		if u.ID == userID {
			username = u.Username
		}
	}

	rows := make([]SessionRow, 0)
	for _, sess := range s.state.sessions {
		if sess.UserID != userID || (date != nil && !sess.Date.Equal(*date)) {
			continue
		}
		found := false
		for _, r := range s.state.records {
			if r.SessionID != sess.ID {
				continue
			}
			found = true
			rows = append(rows, SessionRow{
				SessionID: sess.ID, Date: sess.Date, Username: username, HasRecord: true,
				ExerciseName: names[r.ExerciseID], Reps: r.Reps, Weight: r.Weight,
			})
		}
		if !found {
			rows = append(rows, SessionRow{SessionID: sess.ID, Date: sess.Date, Username: username})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		return a.ExerciseName < b.ExerciseName
	})
	return rows, nil
}

func (s *fakeStore) InTx(_ context.Context, fn func(Tx) error) error {
	tx := &fakeTx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *fakeStore) sessionCount() int { return len(s.state.sessions) }
func (s *fakeStore) recordCount() int  { return len(s.state.records) }

type fakeTx struct {
	store *fakeStore
	state fakeState
}

func (t *fakeTx) id() int64 {
	t.state.nextID++
	return t.state.nextID
}

func (t *fakeTx) ExistingExercises(_ context.Context, names []string) ([]string, error) {
	out := make([]string, 0)
	for _, n := range names {
		for _, e := range t.state.exercises {
			if strings.EqualFold(e.Name, n) {
				out = append(out, e.Name)
			}
		}
	}
	return out, nil
}

func (t *fakeTx) InsertExercises(_ context.Context, names []string) error {
	for _, n := range names {
		for _, e := range t.state.exercises {
			if strings.EqualFold(e.Name, n) {
				return &DuplicateExerciseError{Name: n}
			}
		}
		t.state.exercises = append(t.state.exercises, Exercise{ID: t.id(), Name: n})
	}
	return nil
}

func (t *fakeTx) ExerciseIDs(_ context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, n := range names {
		for _, e := range t.state.exercises {
			if e.Name == n {
				out[n] = e.ID
			}
		}
	}
	return out, nil
}

func (t *fakeTx) CreateSession(_ context.Context, userID int64, date time.Time) (int64, error) {
	for _, s := range t.state.sessions {
		if s.UserID == userID && s.Date.Equal(date) {
			return 0, ErrDuplicateSession
		}
	}
	s := Session{ID: t.id(), UserID: userID, Date: date}
	t.state.sessions = append(t.state.sessions, s)
	return s.ID, nil
}

func (t *fakeTx) InsertRecords(_ context.Context, records []GymRecord) error {
	if t.store.failInsertRecords != nil {
		return t.store.failInsertRecords
	}
	for _, r := range records {
		r.ID = t.id()
		t.state.records = append(t.state.records, r)
	}
	return nil
}

func (t *fakeTx) FindSession(_ context.Context, userID int64, date time.Time) (*Session, error) {
	for _, s := range t.state.sessions {
		if s.UserID == userID && s.Date.Equal(date) {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) DeleteRecords(_ context.Context, sessionID int64) (int64, error) {
	kept := t.state.records[:0:0]
	var removed int64
	for _, r := range t.state.records {
		if r.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	t.state.records = kept
	return removed, nil
}

func (t *fakeTx) DeleteSession(_ context.Context, sessionID int64) error {
	if t.store.failDeleteSession != nil {
		return t.store.failDeleteSession
	}
	kept := t.state.sessions[:0:0]
	for _, s := range t.state.sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	t.state.sessions = kept
	return nil
}

func (t *fakeTx) Emit(_ context.Context, event events.Event) error {
	t.state.events = append(t.state.events, event)
	return nil
}
