package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "")
		t.Setenv("DIRECTORY_OP_TIMEOUT_SECONDS", "")
		t.Setenv("NOTIFY_KAFKA_BROKERS", "")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Store.Backend)
		assert.Equal(t, 10*time.Second, cfg.Directory.OpTimeout())
		assert.Nil(t, cfg.Notification.KafkaBrokers)
	})
	t.Run("Should read backend, brokers and timeouts from the environment", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "Postgres")
		t.Setenv("DIRECTORY_OP_TIMEOUT_SECONDS", "3")
		t.Setenv("DIRECTORY_RECONCILE_SECONDS", "5")
		t.Setenv("NOTIFY_KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("APP_PORT", "9000")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, BackendPostgres, cfg.Store.Backend)
		assert.Equal(t, 3*time.Second, cfg.Directory.OpTimeout())
		assert.Equal(t, 5*time.Second, cfg.Directory.ReconcileInterval())
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notification.KafkaBrokers)
		assert.Equal(t, "0.0.0.0:9000", cfg.App.Addr())
	})
	t.Run("Should reject unknown backends and bad redis db", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "sqlite")
		_, err := Load()
		assert.Error(t, err)

		t.Setenv("STORE_BACKEND", "memory")
		t.Setenv("REDIS_DB", "x")
		_, err = Load()
		assert.Error(t, err)
	})
}
