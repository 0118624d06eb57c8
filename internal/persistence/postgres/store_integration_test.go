//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/events"
	"example.com/gymlog/internal/persistence/postgres"
	"example.com/gymlog/internal/testsupport"
)

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := postgres.NewStore(pool)

	testsupport.RunStoreContract(t, func(t *testing.T) testsupport.Harness {
		testsupport.ResetPostgres(ctx, t, pool)
		return testsupport.Harness{
			Store: store,
			Counts: func(t *testing.T) testsupport.Counts {
				return testsupport.CountPostgres(ctx, t, pool)
			},
		}
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)

	applied, err := postgres.Migrate(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestRecordWritesOutboxInSameTransaction(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := postgres.NewStore(pool)

	user, err := store.CreateUser(ctx, "neil", "hash")
	require.NoError(t, err)
	_, err = domain.NewCatalog(store, nil).Register(ctx, []string{"squat"})
	require.NoError(t, err)

	ledger := domain.NewLedger(store)
	date := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	receipt, err := ledger.Record(ctx, user.ID, date, []domain.ExerciseSpec{
		{Name: "squat", Reps: []int{5, 5}, Weights: []float64{100, 102.5}},
	})
	require.NoError(t, err)

	var (
		topic, version, partitionKey string
		payload                      []byte
	)
	err = pool.QueryRow(ctx,
		`SELECT topic, schema_version, partition_key, payload FROM outbox WHERE event_type = $1`,
		events.TypeSessionRecorded,
	).Scan(&topic, &version, &partitionKey, &payload)
	require.NoError(t, err)
	require.Equal(t, "gym_session_events", topic)
	require.Equal(t, "v1", version)

	var recorded events.SessionRecorded
	require.NoError(t, json.Unmarshal(payload, &recorded))
	require.Equal(t, receipt.SessionID, recorded.SessionID)
	require.Equal(t, "2024-02-29", recorded.Date)
	require.Equal(t, 2, recorded.Records)

	_, err = ledger.Record(ctx, user.ID, date, []domain.ExerciseSpec{
		{Name: "squat", Reps: []int{1}, Weights: []float64{1}},
	})
	require.ErrorIs(t, err, domain.ErrDuplicateSession)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE event_type = $1`, events.TypeSessionRecorded).Scan(&outboxRows))
	require.Equal(t, 1, outboxRows)
}

func TestDeleteEmitsSessionDeleted(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := postgres.NewStore(pool)

	user, err := store.CreateUser(ctx, "neil", "hash")
	require.NoError(t, err)
	_, err = domain.NewCatalog(store, nil).Register(ctx, []string{"squat"})
	require.NoError(t, err)

	ledger := domain.NewLedger(store)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = ledger.Record(ctx, user.ID, date, []domain.ExerciseSpec{
		{Name: "squat", Reps: []int{5, 5, 5}, Weights: []float64{1, 2, 3}},
	})
	require.NoError(t, err)
	require.NoError(t, ledger.Delete(ctx, user.ID, date))

	var payload []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload FROM outbox WHERE event_type = $1`, events.TypeSessionDeleted).Scan(&payload))

	var deleted events.SessionDeleted
	require.NoError(t, json.Unmarshal(payload, &deleted))
	require.Equal(t, int64(3), deleted.RecordsRemoved)
}

func TestInsertRecordsRejectsRepsBeyondColumnRange(t *testing.T) {
	ctx := context.Background()
	pool := testsupport.StartPostgres(ctx, t)
	store := postgres.NewStore(pool)

	user, err := store.CreateUser(ctx, "neil", "hash")
	require.NoError(t, err)
	_, err = domain.NewCatalog(store, nil).Register(ctx, []string{"squat"})
	require.NoError(t, err)

	err = store.InTx(ctx, func(tx domain.Tx) error {
		ids, err := tx.ExerciseIDs(ctx, []string{"Squat"})
		if err != nil {
			return err
		}
		sessionID, err := tx.CreateSession(ctx, user.ID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return err
		}
		return tx.InsertRecords(ctx, []domain.GymRecord{
			{SessionID: sessionID, ExerciseID: ids["Squat"], Reps: 4294967301, Weight: 100},
		})
	})
	require.Error(t, err)

	counts := testsupport.CountPostgres(ctx, t, pool)
	require.Zero(t, counts.Sessions)
	require.Zero(t, counts.Records)
}
