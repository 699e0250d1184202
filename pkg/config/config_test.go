package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mapleaiorg/substrate/pkg/config"
)

// System must boot with safe local defaults when no env is set.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SUBSTRATE_NODE_ID", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR", "POLICY_BUNDLE_DIR", "STATE_DIR", "CHECKPOINT_DIR", "GATE_HIGH_WATER", "GATE_ADMIT_PER_SECOND", "SUSPENSION_DEADLINE"} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "node-0", cfg.NodeID)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, int64(1024), cfg.GateHighWater)
	assert.Equal(t, 24*time.Hour, cfg.SuspensionDeadline)
	assert.Equal(t, "state/provenance/checkpoints", cfg.CheckpointDir)
}

// Ops control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SUBSTRATE_NODE_ID", "node-7")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("GATE_HIGH_WATER", "32")
	t.Setenv("GATE_ADMIT_PER_SECOND", "5.5")
	t.Setenv("SUSPENSION_DEADLINE", "30m")
	t.Setenv("CHECKPOINT_DIR", "/var/lib/substrate/checkpoints")

	cfg := config.Load()

	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, int64(32), cfg.GateHighWater)
	assert.Equal(t, 5.5, cfg.GateAdmitPerSecond)
	assert.Equal(t, 30*time.Minute, cfg.SuspensionDeadline)
	assert.Equal(t, "/var/lib/substrate/checkpoints", cfg.CheckpointDir)
}

// Malformed numeric env values fall back instead of crashing boot.
func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("GATE_HIGH_WATER", "many")
	t.Setenv("SUSPENSION_DEADLINE", "whenever")

	cfg := config.Load()
	assert.Equal(t, int64(1024), cfg.GateHighWater)
	assert.Equal(t, 24*time.Hour, cfg.SuspensionDeadline)
}
