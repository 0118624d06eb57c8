// Package testsupport holds helpers shared by the store and pipeline tests.
package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"example.com/gymlog/internal/domain"
)

// Counts is a row count snapshot of the core tables.
type Counts struct {
	Users     int
	Exercises int
	Sessions  int
	Records   int
}

// Harness is a freshly emptied store plus a way to count its rows.
type Harness struct {
	Store  domain.Store
	Counts func(t *testing.T) Counts
}

// RunStoreContract drives the domain services against a real store and checks
// the behaviour every backend must share. newHarness is called once per subtest.
func RunStoreContract(t *testing.T, newHarness func(t *testing.T) Harness) {
	t.Run("duplicate username is rejected", func(t *testing.T) {
		h := newHarness(t)
		gw := newGateway(h.Store, nil)
		ctx := context.Background()

		_, err := gw.Register(ctx, "neil", "pw")
		require.NoError(t, err)

		_, err = gw.Register(ctx, " neil ", "other")
		require.ErrorIs(t, err, domain.ErrDuplicateUsername)
		require.ErrorIs(t, err, domain.ErrDuplicate)
		require.Equal(t, 1, h.Counts(t).Users)
	})

	t.Run("basic credentials round trip", func(t *testing.T) {
		h := newHarness(t)
		gw := newGateway(h.Store, nil)
		ctx := context.Background()

		_, err := gw.Register(ctx, "neil", "pw")
		require.NoError(t, err)

		ok, err := gw.VerifyBasic(ctx, "neil", "pw")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = gw.VerifyBasic(ctx, "neil", "wrong")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = gw.VerifyBasic(ctx, "nobody", "pw")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("bearer token expires and is replaced", func(t *testing.T) {
		h := newHarness(t)
		now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		gw := newGateway(h.Store, func() time.Time { return now })
		ctx := context.Background()

		user, err := gw.Register(ctx, "neil", "pw")
		require.NoError(t, err)

		first, err := gw.IssueToken(ctx, "neil")
		require.NoError(t, err)
		require.Equal(t, now.Add(domain.DefaultTokenTTL), first.ExpiresAt)

		got, err := gw.VerifyBearer(ctx, first.Value)
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)

		second, err := gw.IssueToken(ctx, "neil")
		require.NoError(t, err)
		_, err = gw.VerifyBearer(ctx, first.Value)
		require.ErrorIs(t, err, domain.ErrUnknownToken)

		now = now.Add(domain.DefaultTokenTTL - time.Second)
		_, err = gw.VerifyBearer(ctx, second.Value)
		require.NoError(t, err)

		now = now.Add(time.Second)
		_, err = gw.VerifyBearer(ctx, second.Value)
		require.ErrorIs(t, err, domain.ErrTokenExpired)
	})

	t.Run("stored token expiry is the issued expiry", func(t *testing.T) {
		h := newHarness(t)
		now := time.Date(2024, 3, 1, 12, 0, 0, 987654321, time.UTC)
		gw := newGateway(h.Store, func() time.Time { return now })
		ctx := context.Background()

		_, err := gw.Register(ctx, "neil", "pw")
		require.NoError(t, err)
		token, err := gw.IssueToken(ctx, "neil")
		require.NoError(t, err)

		stored, err := h.Store.FindUserByUsername(ctx, "neil")
		require.NoError(t, err)
		require.NotNil(t, stored.TokenExpiry)
		require.True(t, stored.TokenExpiry.Equal(token.ExpiresAt), "stored %s, issued %s", stored.TokenExpiry, token.ExpiresAt)

		now = token.ExpiresAt.Add(-time.Microsecond)
		_, err = gw.VerifyBearer(ctx, token.Value)
		require.NoError(t, err)

		now = token.ExpiresAt
		_, err = gw.VerifyBearer(ctx, token.Value)
		require.ErrorIs(t, err, domain.ErrTokenExpired)
	})

	t.Run("password reset revokes the token", func(t *testing.T) {
		h := newHarness(t)
		gw := newGateway(h.Store, nil)
		ctx := context.Background()

		_, err := gw.Register(ctx, "neil", "pw")
		require.NoError(t, err)
		token, err := gw.IssueToken(ctx, "neil")
		require.NoError(t, err)

		require.NoError(t, gw.ResetPassword(ctx, "neil", "new-pw"))

		_, err = gw.VerifyBearer(ctx, token.Value)
		require.ErrorIs(t, err, domain.ErrUnknownToken)
		ok, err := gw.VerifyBasic(ctx, "neil", "new-pw")
		require.NoError(t, err)
		require.True(t, ok)
		require.ErrorIs(t, gw.ResetPassword(ctx, "nobody", "pw"), domain.ErrUserNotFound)
	})

	t.Run("catalog normalises and rejects duplicates", func(t *testing.T) {
		h := newHarness(t)
		catalog := domain.NewCatalog(h.Store, nil)
		ctx := context.Background()

		names, err := catalog.Register(ctx, []string{"  bench   press ", "SQUAT"})
		require.NoError(t, err)
		require.Equal(t, []string{"Bench Press", "Squat"}, names)

		_, err = catalog.Register(ctx, []string{"Deadlift", "squat"})
		var dup *domain.DuplicateExerciseError
		require.ErrorAs(t, err, &dup)
		require.Equal(t, "Squat", dup.Name)

		listed, err := catalog.List(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"Bench Press", "Squat"}, listed)
		require.Equal(t, 2, h.Counts(t).Exercises)
	})

	t.Run("one session per user and date", func(t *testing.T) {
		h := newHarness(t)
		neil, ledger := seedContract(t, h.Store)
		ctx := context.Background()
		date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		specs := []domain.ExerciseSpec{{Name: "squat", Reps: []int{5}, Weights: []float64{100}}}

		_, err := ledger.Record(ctx, neil.ID, date, specs)
		require.NoError(t, err)
		_, err = ledger.Record(ctx, neil.ID, date, specs)
		require.ErrorIs(t, err, domain.ErrDuplicateSession)

		other, err := newGateway(h.Store, nil).Register(ctx, "amy", "pw")
		require.NoError(t, err)
		_, err = ledger.Record(ctx, other.ID, date, specs)
		require.NoError(t, err)

		counts := h.Counts(t)
		require.Equal(t, 2, counts.Sessions)
		require.Equal(t, 2, counts.Records)
	})

	t.Run("concurrent records on one date", func(t *testing.T) {
		h := newHarness(t)
		neil, ledger := seedContract(t, h.Store)
		date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		specs := []domain.ExerciseSpec{{Name: "squat", Reps: []int{5, 5}, Weights: []float64{100, 100}}}

		errs := make([]error, 4)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = ledger.Record(context.Background(), neil.ID, date, specs)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			require.ErrorIs(t, err, domain.ErrDuplicateSession)
		}
		require.Equal(t, 1, succeeded)
		counts := h.Counts(t)
		require.Equal(t, 1, counts.Sessions)
		require.Equal(t, 2, counts.Records)
	})

	t.Run("unknown exercise rolls back the session", func(t *testing.T) {
		h := newHarness(t)
		neil, ledger := seedContract(t, h.Store)

		_, err := ledger.Record(context.Background(), neil.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []domain.ExerciseSpec{
			{Name: "squat", Reps: []int{5}, Weights: []float64{100}},
			{Name: "curl", Reps: []int{10}, Weights: []float64{15}},
		})
		var unknown *domain.UnknownExerciseError
		require.ErrorAs(t, err, &unknown)
		require.Equal(t, "Curl", unknown.Name)

		counts := h.Counts(t)
		require.Zero(t, counts.Sessions)
		require.Zero(t, counts.Records)
	})

	t.Run("length mismatch writes nothing", func(t *testing.T) {
		h := newHarness(t)
		neil, ledger := seedContract(t, h.Store)

		_, err := ledger.Record(context.Background(), neil.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []domain.ExerciseSpec{
			{Name: "squat", Reps: []int{1, 2, 3}, Weights: []float64{1, 2}},
		})
		var mismatch *domain.LengthMismatchError
		require.ErrorAs(t, err, &mismatch)

		counts := h.Counts(t)
		require.Zero(t, counts.Sessions)
		require.Zero(t, counts.Records)
	})

	t.Run("sessions are grouped by date and exercise", func(t *testing.T) {
		h := newHarness(t)
		neil, ledger := seedContract(t, h.Store)
		ctx := context.Background()
		jan2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		_, err := ledger.Record(ctx, neil.ID, jan2, []domain.ExerciseSpec{
			{Name: "bench", Reps: []int{8}, Weights: []float64{60}},
		})
		require.NoError(t, err)
		_, err = ledger.Record(ctx, neil.ID, jan1, []domain.ExerciseSpec{
			{Name: "squat", Reps: []int{5, 3}, Weights: []float64{100, 110.5}},
			{Name: "bench", Reps: []int{10}, Weights: []float64{50}},
		})
		require.NoError(t, err)

		reader := domain.NewReader(h.Store)
		views, err := reader.Read(ctx, neil.ID, nil)
		require.NoError(t, err)
		require.Equal(t, []domain.SessionView{
			{
				Date:      jan1,
				Username:  "neil",
				Exercises: []string{"Bench", "Squat"},
				Reps:      [][]int{{10}, {5, 3}},
				Weights:   [][]float64{{50}, {100, 110.5}},
			},
			{
				Date:      jan2,
				Username:  "neil",
				Exercises: []string{"Bench"},
				Reps:      [][]int{{8}},
				Weights:   [][]float64{{60}},
			},
		}, views)

		views, err = reader.ReadDate(ctx, neil.ID, "2024-01-02")
		require.NoError(t, err)
		require.Len(t, views, 1)
		require.Equal(t, jan2, views[0].Date)

		views, err = reader.ReadDate(ctx, neil.ID, "2023-12-31")
		require.NoError(t, err)
		require.Empty(t, views)
	})

	t.Run("delete removes session and records", func(t *testing.T) {
		h := newHarness(t)
		neil, ledger := seedContract(t, h.Store)
		ctx := context.Background()
		date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		_, err := ledger.Record(ctx, neil.ID, date, []domain.ExerciseSpec{
			{Name: "squat", Reps: []int{5, 5, 5}, Weights: []float64{100, 100, 100}},
		})
		require.NoError(t, err)
		_, err = ledger.Record(ctx, neil.ID, date.AddDate(0, 0, 1), []domain.ExerciseSpec{
			{Name: "bench", Reps: []int{8}, Weights: []float64{60}},
		})
		require.NoError(t, err)

		require.NoError(t, ledger.Delete(ctx, neil.ID, date))
		counts := h.Counts(t)
		require.Equal(t, 1, counts.Sessions)
		require.Equal(t, 1, counts.Records)

		require.ErrorIs(t, ledger.Delete(ctx, neil.ID, date), domain.ErrSessionNotFound)

		views, err := domain.NewReader(h.Store).Read(ctx, neil.ID, nil)
		require.NoError(t, err)
		require.Len(t, views, 1)
		require.Equal(t, []string{"Bench"}, views[0].Exercises)
	})
}

func newGateway(store domain.Store, now func() time.Time) *domain.Gateway {
	opts := []domain.GatewayOption{domain.WithBcryptCost(bcrypt.MinCost)}
	if now != nil {
		opts = append(opts, domain.WithClock(now))
	}
	return domain.NewGateway(store, opts...)
}

func seedContract(t *testing.T, store domain.Store) (*domain.User, *domain.Ledger) {
	t.Helper()
	ctx := context.Background()

	user, err := newGateway(store, nil).Register(ctx, "neil", "pw")
	require.NoError(t, err)
	_, err = domain.NewCatalog(store, nil).Register(ctx, []string{"Squat", "Bench"})
	require.NoError(t, err)
	return user, domain.NewLedger(store)
}
