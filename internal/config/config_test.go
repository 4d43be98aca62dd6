package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SLA_AGENT_ROLES", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SLA_SWEEP_BATCH_SIZE", "")
	t.Setenv("SLA_RESTAMP_ON_PRIORITY_CHANGE", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("APP_NAME", "")
	t.Setenv("AUTH_ISSUER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Redis.Addr, "sweep lock is opt-in")
	assert.Equal(t, "ticket-sla-engine", cfg.Logger.Service)
	assert.Equal(t, cfg.App.Name, cfg.Auth.Issuer)
	assert.Equal(t, 5000, cfg.Postgres.StatementTimeoutMS)

	assert.Equal(t, []string{"AGENT", "TEAM_LEAD"}, cfg.SLA.AgentRoles)
	assert.False(t, cfg.SLA.RestampOnPriorityChange)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 200, cfg.Sweep.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Sweep.LockTTL())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SLA_AGENT_ROLES", "AGENT, ADMIN ,")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SLA_SWEEP_CONCURRENCY", "8")
	t.Setenv("SLA_SWEEP_LOCK_TTL_SECONDS", "60")
	t.Setenv("SLA_RESTAMP_ON_PRIORITY_CHANGE", "true")
	t.Setenv("SENTIMENT_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"AGENT", "ADMIN"}, cfg.SLA.AgentRoles)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Sweep.Concurrency)
	assert.Equal(t, time.Minute, cfg.Sweep.LockTTL())
	assert.True(t, cfg.SLA.RestampOnPriorityChange)
	assert.Equal(t, 5*time.Second, cfg.Sentiment.Timeout())
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "primary")
	_, err := Load()
	assert.Error(t, err)
}
