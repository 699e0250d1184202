// Package config is the outer deployment-configuration layer, read only by
// the cmd/ entry points. The core packages never read environment
// variables or files; everything below this layer is injected through
// constructors.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process-level deployment settings.
type Config struct {
	// NodeID names this node in temporal anchors and audit records.
	NodeID   string
	LogLevel string

	// DatabaseURL selects the Postgres commitment store used by the operator
	// commands. Empty means the JSON file store under StateDir.
	DatabaseURL string
	// RedisAddr selects the suspension-context backend. Empty means
	// in-memory.
	RedisAddr string

	// PolicyBundleDir is scanned for CEL policy bundles.
	PolicyBundleDir string
	// PolicyPDPEndpoint, when set, adjudicates policy through an external
	// decision point (OPA/Cedar agent) instead of local CEL bundles.
	PolicyPDPEndpoint string
	// PolicyPDPBackend names the engine behind PolicyPDPEndpoint.
	PolicyPDPBackend string
	// PolicyPDPHash is the content hash of the policy set that engine
	// serves, stamped onto decision cards.
	PolicyPDPHash string
	// OTLPEndpoint enables telemetry export when set.
	OTLPEndpoint string
	// CheckpointDir receives provenance compaction checkpoints.
	CheckpointDir string
	// StateDir is the root of the persisted state layout (commitments/,
	// audit/, receipts/, provenance/, identities/).
	StateDir string

	// GateHighWater bounds the gate's pending queue before the router
	// quarantines new commitments.
	GateHighWater int64
	// GateAdmitPerSecond rate-limits gate admission.
	GateAdmitPerSecond float64
	// SuspensionDeadline bounds how long a commitment may await
	// co-signatures or human review.
	SuspensionDeadline time.Duration
}

// Load loads configuration from environment variables with safe local
// defaults.
func Load() *Config {
	cfg := &Config{
		NodeID:             envOr("SUBSTRATE_NODE_ID", "node-0"),
		LogLevel:           envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		PolicyBundleDir:    envOr("POLICY_BUNDLE_DIR", "policies"),
		PolicyPDPEndpoint:  os.Getenv("POLICY_PDP_ENDPOINT"),
		PolicyPDPBackend:   envOr("POLICY_PDP_BACKEND", "opa"),
		PolicyPDPHash:      os.Getenv("POLICY_PDP_HASH"),
		OTLPEndpoint:       os.Getenv("OTLP_ENDPOINT"),
		StateDir:           envOr("STATE_DIR", "state"),
		GateHighWater:      envInt64("GATE_HIGH_WATER", 1024),
		GateAdmitPerSecond: envFloat("GATE_ADMIT_PER_SECOND", 200),
		SuspensionDeadline: envDuration("SUSPENSION_DEADLINE", 24*time.Hour),
	}
	cfg.CheckpointDir = envOr("CHECKPOINT_DIR", cfg.StateDir+"/provenance/checkpoints")
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
