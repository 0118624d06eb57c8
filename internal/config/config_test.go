package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, 900*time.Second, cfg.TokenTTL)
	require.Equal(t, []string{"gym_session_events", "gym_catalog_events"}, cfg.ConsumerTopics)
	require.True(t, cfg.OutboxEnabled)
	require.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("TOKEN_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_ENABLED", "false")
	t.Setenv("TOKEN_RATE_LIMIT", "2.5")
	t.Setenv("BCRYPT_COST", "not-a-number")

	cfg := Load()

	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, 90*time.Second, cfg.TokenTTL)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.OutboxEnabled)
	require.Equal(t, 2.5, cfg.TokenRateLimit)
	require.Equal(t, 10, cfg.BcryptCost)
}
