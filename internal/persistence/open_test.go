package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"example.com/gymlog/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := config.Config{StoreDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "nested", "gym.db")}

	handle, err := Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer handle.Close()

	require.Nil(t, handle.Pool)
	names, err := handle.Store.ListExercises(context.Background())
	require.NoError(t, err)
	require.Empty(t, names)
	require.Equal(t, cfg.SQLitePath, hook.LastEntry().Data["path"])
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := Open(context.Background(), config.Config{StoreDriver: "mysql"}, logger)
	require.ErrorContains(t, err, `unknown store driver "mysql"`)
}
