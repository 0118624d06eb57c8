// Package sqlite implements the gym-log store on an embedded SQLite database.
// Domain events are not recorded in this mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/events"
	"example.com/gymlog/internal/persistence/migrations"
)

// Store is a domain.Store backed by database/sql and modernc.org/sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; transactions queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := migrations.Apply(ctx, db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// CreateUser inserts a user, mapping a taken username to domain.ErrDuplicateUsername.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateUsername
		}
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: id, Username: username, PasswordHash: passwordHash}, nil
}

// FindUserByUsername returns nil when the username is unknown.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE username = ?`, username)
}

// FindUserByTokenDigest returns nil when no user holds the digest.
func (s *Store) FindUserByTokenDigest(ctx context.Context, digest string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE access_token = ?`, digest)
}

func (s *Store) findUser(ctx context.Context, where string, arg interface{}) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, username, password_hash, access_token, token_expiry FROM users `+where, arg)

	var (
		user   domain.User
		token  sql.NullString
		expiry sql.NullTime
	)
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &token, &expiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if token.Valid {
		user.TokenDigest = &token.String
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		user.TokenExpiry = &t
	}
	return &user, nil
}

// SaveToken overwrites the user's token digest and expiry.
func (s *Store) SaveToken(ctx context.Context, userID int64, digest string, expiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET access_token = ?, token_expiry = ? WHERE user_id = ?`, digest, expiry.UTC(), userID)
	return err
}

// UpdatePassword replaces the hash and clears the current token.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, access_token = NULL, token_expiry = NULL WHERE user_id = ?`,
		passwordHash, userID)
	return err
}

// ListExercises returns all exercise names in byte order.
func (s *Store) ListExercises(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT exercise_name FROM exercises ORDER BY exercise_name COLLATE BINARY`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SessionRows returns the flattened session/record join in grouping order.
func (s *Store) SessionRows(ctx context.Context, userID int64, date *time.Time) ([]domain.SessionRow, error) {
	query := `SELECT s.session_id, s.date, u.username, e.exercise_name, r.reps, r.weight
        FROM sessions s
        JOIN users u ON u.user_id = s.user_id
        LEFT JOIN gym_records r ON r.session_id = s.session_id
        LEFT JOIN exercises e ON e.exercise_id = r.exercise_id
        WHERE s.user_id = ?`
	args := []interface{}{userID}
	if date != nil {
		query += ` AND s.date = ?`
		args = append(args, domain.FormatDate(*date))
	}
	query += ` ORDER BY s.date, s.session_id, e.exercise_name COLLATE BINARY, r.record_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SessionRow, 0)
	for rows.Next() {
		var (
			row    domain.SessionRow
			date   string
			name   sql.NullString
			reps   sql.NullInt64
			weight sql.NullFloat64
		)
		if err := rows.Scan(&row.SessionID, &date, &row.Username, &name, &reps, &weight); err != nil {
			return nil, err
		}
		if row.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("session %d: %w", row.SessionID, err)
		}
		if name.Valid {
			row.HasRecord = true
			row.ExerciseName = name.String
			row.Reps = int(reps.Int64)
			row.Weight = weight.Float64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InTx runs fn in a transaction, rolling back on any error.
func (s *Store) InTx(ctx context.Context, fn func(domain.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txn{tx: tx}); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

type txn struct {
	tx *sql.Tx
}

func (t *txn) ExistingExercises(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	// exercise_name is COLLATE NOCASE, so IN compares case-insensitively.
	rows, err := t.tx.QueryContext(ctx,
		`SELECT exercise_name FROM exercises WHERE exercise_name IN (`+placeholders(len(names))+`)`,
		stringArgs(names)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (t *txn) InsertExercises(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := t.tx.ExecContext(ctx, `INSERT INTO exercises (exercise_name) VALUES (?)`, name); err != nil {
			if isUniqueViolation(err) {
				return &domain.DuplicateExerciseError{Name: name}
			}
			return err
		}
	}
	return nil
}

func (t *txn) ExerciseIDs(ctx context.Context, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	if len(names) == 0 {
		return ids, nil
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT exercise_id, exercise_name FROM exercises WHERE exercise_name COLLATE BINARY IN (`+placeholders(len(names))+`)`,
		stringArgs(names)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

func (t *txn) CreateSession(ctx context.Context, userID int64, date time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `INSERT INTO sessions (user_id, date) VALUES (?, ?)`, userID, domain.FormatDate(date))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicateSession
		}
		return 0, err
	}
	return result.LastInsertId()
}

func (t *txn) InsertRecords(ctx context.Context, records []domain.GymRecord) error {
	stmt, err := t.tx.PrepareContext(ctx, `INSERT INTO gym_records (session_id, exercise_id, reps, weight) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.ExerciseID, r.Reps, r.Weight); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) FindSession(ctx context.Context, userID int64, date time.Time) (*domain.Session, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT session_id FROM sessions WHERE user_id = ? AND date = ?`, userID, domain.FormatDate(date))
	session := domain.Session{UserID: userID, Date: domain.CivilDate(date)}
	if err := row.Scan(&session.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (t *txn) DeleteRecords(ctx context.Context, sessionID int64) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM gym_records WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (t *txn) DeleteSession(ctx context.Context, sessionID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

func (t *txn) Emit(context.Context, events.Event) error { return nil }

func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
