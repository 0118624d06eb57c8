package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"example.com/gymlog/internal/auth"
	"example.com/gymlog/internal/config"
	"example.com/gymlog/internal/domain"
	"example.com/gymlog/internal/persistence"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gym.db")
	t.Setenv("STORE_DRIVER", config.DriverSQLite)
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("BCRYPT_COST", "4")
	return path
}

func TestTokenMintPrintsVerifiableToken(t *testing.T) {
	t.Setenv("ADMIN_JWT_SECRET", "test-secret")
	t.Setenv("ADMIN_JWT_ISSUER", "gymlog.test")

	out, err := run(t, "token", "mint", "--subject", "ops", "--ttl", "5m")
	require.NoError(t, err)

	claims, err := auth.Parse(strings.TrimSpace(out), auth.Config{Secret: "test-secret", Issuer: "gymlog.test"})
	require.NoError(t, err)
	require.Equal(t, "ops", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeAdminUsers))
	require.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt, time.Minute)
}

func TestUpdatePassword(t *testing.T) {
	path := useSQLite(t)
	ctx := context.Background()
	logger, _ := test.NewNullLogger()

	handle, err := persistence.Open(ctx, config.Config{StoreDriver: config.DriverSQLite, SQLitePath: path}, logger)
	require.NoError(t, err)
	gateway := domain.NewGateway(handle.Store, domain.WithBcryptCost(bcrypt.MinCost))
	_, err = gateway.Register(ctx, "neil", "old-password")
	require.NoError(t, err)
	handle.Close()

	out, err := run(t, "update-password", "neil", "new-password")
	require.NoError(t, err)
	require.Equal(t, "password updated for neil\n", out)

	handle, err = persistence.Open(ctx, config.Config{StoreDriver: config.DriverSQLite, SQLitePath: path}, logger)
	require.NoError(t, err)
	defer handle.Close()
	gateway = domain.NewGateway(handle.Store)

	ok, err := gateway.VerifyBasic(ctx, "neil", "new-password")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = gateway.VerifyBasic(ctx, "neil", "old-password")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdatePasswordUnknownUser(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "update-password", "nobody", "secret")
	require.ErrorContains(t, err, `username "nobody" not recognised`)
}

func TestUpdatePasswordRequiresBothArguments(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "update-password", "neil")
	require.ErrorContains(t, err, "requires non-empty USERNAME and PASSWORD")
}

func TestMigrate(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	require.Equal(t, "sqlite schema is up to date\n", out)
}
