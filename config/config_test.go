package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAppConfig_Defaults(t *testing.T) {
	cfg := NewAppConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Database.Backend)
	assert.Equal(t, BackendRedis, cfg.Ranking.IndexBackend)
	assert.Equal(t, int64(100), cfg.Ranking.InvalidationThreshold)
	assert.Equal(t, 500, cfg.Ranking.MaxRange)
	assert.Equal(t, 500, cfg.Ranking.SnapshotLimit)
	assert.Equal(t, 30*time.Second, cfg.Ranking.SnapshotTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Ranking.IndexTimeout)
	assert.Equal(t, 3, cfg.WriteThrough.MaxAttempts)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "@every 30s", cfg.Monitor.Schedule)
}

func TestNewAppConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RANKING_INVALIDATION_THRESHOLD", "250")
	t.Setenv("RANKING_SNAPSHOT_TTL", "1m")
	t.Setenv("INDEX_BACKEND", BackendMemory)

	cfg := NewAppConfig()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(250), cfg.Ranking.InvalidationThreshold)
	assert.Equal(t, time.Minute, cfg.Ranking.SnapshotTTL)
	assert.Equal(t, BackendMemory, cfg.Ranking.IndexBackend)
}

func TestNewAppConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("KAFKA_ENABLED", "maybe")
	t.Setenv("RANKING_DURABLE_TIMEOUT", "soon")

	cfg := NewAppConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Ranking.DurableTimeout)
}
