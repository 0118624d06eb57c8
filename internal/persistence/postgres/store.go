// Package postgres implements the gym-log store on PostgreSQL. Domain events
// are written to the outbox table inside the same transaction as the change.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/events"
	"example.com/gymlog/internal/persistence/migrations"
)

const uniqueViolation = "23505"

// Store provides Postgres-backed persistence for users, the catalog and sessions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies pending migrations through a database/sql view of the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	db := stdlib.OpenDBFromPool(pool)
	return migrations.Apply(ctx, db, migrations.Postgres)
}

// Pool exposes the underlying pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// CreateUser inserts a user, mapping a taken username to domain.ErrDuplicateUsername.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	user := domain.User{Username: username, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING user_id`,
		username, passwordHash,
	).Scan(&user.ID)
	if err != nil {
		if constraint, ok := violatedConstraint(err); ok && constraint == "users_username_key" {
			return nil, domain.ErrDuplicateUsername
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByUsername returns nil when the username is unknown.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE username = $1`, username)
}

// FindUserByTokenDigest returns nil when no user holds the digest.
func (s *Store) FindUserByTokenDigest(ctx context.Context, digest string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE access_token = $1`, digest)
}

func (s *Store) findUser(ctx context.Context, where string, arg interface{}) (*domain.User, error) {
	var (
		user   domain.User
		token  pgtype.Text
		expiry pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, username, password_hash, access_token, token_expiry FROM users `+where, arg,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &token, &expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.pool.Exec(ctx, `UPDATE users SET access_token = $1, token_expiry = $2 WHERE user_id = $3`, digest, expiry, userID)
	return err
}

// UpdatePassword replaces the hash and clears the current token.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, access_token = NULL, token_expiry = NULL WHERE user_id = $2`,
		passwordHash, userID)
	return err
}

// ListExercises returns all exercise names in byte order.
func (s *Store) ListExercises(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT exercise_name FROM exercises ORDER BY exercise_name COLLATE "C"`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// SessionRows returns the flattened session/record join in grouping order.
func (s *Store) SessionRows(ctx context.Context, userID int64, date *time.Time) ([]domain.SessionRow, error) {
	args := []interface{}{userID}
	query := `SELECT s.session_id, s.date, u.username, e.exercise_name, r.reps, r.weight
        FROM sessions s
        JOIN users u ON u.user_id = s.user_id
        LEFT JOIN gym_records r ON r.session_id = s.session_id
        LEFT JOIN exercises e ON e.exercise_id = r.exercise_id
        WHERE s.user_id = $1`
	if date != nil {
		query += ` AND s.date = $2`
		args = append(args, domain.CivilDate(*date))
	}
	query += ` ORDER BY s.date, s.session_id, e.exercise_name COLLATE "C", r.record_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SessionRow, 0)
	for rows.Next() {
		var (
			row    domain.SessionRow
			day    pgtype.Date
			name   pgtype.Text
			reps   pgtype.Int4
			weight pgtype.Float8
		)
		if err := rows.Scan(&row.SessionID, &day, &row.Username, &name, &reps, &weight); err != nil {
			return nil, err
		}
		row.Date = domain.CivilDate(day.Time)
		if name.Valid {
			row.HasRecord = true
			row.ExerciseName = name.String
			row.Reps = int(reps.Int32)
			row.Weight = weight.Float64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InTx runs fn inside a transaction, rolling back on any error.
func (s *Store) InTx(ctx context.Context, fn func(domain.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(&txn{tx: tx}); err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

type txn struct {
	tx pgx.Tx
}

func (t *txn) ExistingExercises(ctx context.Context, names []string) ([]string, error) {
	lowered := make([]string, len(names))
	for i, name := range names {
		lowered[i] = strings.ToLower(name)
	}
	rows, err := t.tx.Query(ctx, `SELECT exercise_name FROM exercises WHERE lower(exercise_name) = ANY($1)`, lowered)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (t *txn) InsertExercises(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := t.tx.Exec(ctx, `INSERT INTO exercises (exercise_name) VALUES ($1)`, name); err != nil {
			if constraint, ok := violatedConstraint(err); ok && strings.HasPrefix(constraint, "exercises_") {
				return &domain.DuplicateExerciseError{Name: name}
			}
			return err
		}
	}
	return nil
}

func (t *txn) ExerciseIDs(ctx context.Context, names []string) (map[string]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT exercise_id, exercise_name FROM exercises WHERE exercise_name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int64, len(names))
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
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sessions (user_id, date) VALUES ($1, $2) RETURNING session_id`,
		userID, domain.CivilDate(date),
	).Scan(&id)
	if err != nil {
		if constraint, ok := violatedConstraint(err); ok && constraint == "sessions_user_id_date_key" {
			return 0, domain.ErrDuplicateSession
		}
		return 0, err
	}
	return id, nil
}

func (t *txn) InsertRecords(ctx context.Context, records []domain.GymRecord) error {
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"gym_records"},
		[]string{"session_id", "exercise_id", "reps", "weight"},
		pgx.CopyFromSlice(len(records), func(i int) ([]interface{}, error) {
			r := records[i]
			return []interface{}{r.SessionID, r.ExerciseID, r.Reps, r.Weight}, nil
		}),
	)
	return err
}

func (t *txn) FindSession(ctx context.Context, userID int64, date time.Time) (*domain.Session, error) {
	session := domain.Session{UserID: userID, Date: domain.CivilDate(date)}
	err := t.tx.QueryRow(ctx,
		`SELECT session_id FROM sessions WHERE user_id = $1 AND date = $2 FOR UPDATE`,
		userID, domain.CivilDate(date),
	).Scan(&session.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (t *txn) DeleteRecords(ctx context.Context, sessionID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM gym_records WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txn) DeleteSession(ctx context.Context, sessionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	return err
}

// Emit records event in the outbox; a repeated dedupe key is ignored.
func (t *txn) Emit(ctx context.Context, event events.Event) error {
	route, ok := events.RouteFor(event.Type)
	if !ok {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_version, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = t.tx.Exec(ctx, stmt,
		event.AggregateType,
		event.AggregateID,
		event.Type,
		route.Topic,
		route.SchemaVersion,
		event.PartitionKey,
		body,
		event.DedupeKey(),
	)
	return err
}

func violatedConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
