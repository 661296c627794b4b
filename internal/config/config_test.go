package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hvac")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 8*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Inventory.UndoWindow)
	assert.Equal(t, 5000, cfg.Inventory.ImportMaxRows)
	assert.Equal(t, "inventory.movements", cfg.Kafka.MovementsTopic)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hvac")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("UNDO_WINDOW", "5m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")
	t.Setenv("OUTBOX_LEASE", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Inventory.UndoWindow)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Outbox.Lease)
}

func TestLoad_RequiredVariables(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database", map[string]string{"JWT_SECRET": "s"}, "DATABASE_URL"},
		{"missing secret", map[string]string{"DATABASE_URL": "postgres://x"}, "JWT_SECRET"},
		{"bad undo window", map[string]string{"DATABASE_URL": "postgres://x", "JWT_SECRET": "s", "UNDO_WINDOW": "-1m"}, "UNDO_WINDOW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
