// Package ledger implements durable persistence for commitment ledger
// entries: a database/sql backend (Postgres in production, SQLite for
// local/dev), and a JSON-file backend for the simplest deployments. The
// in-memory CommitmentLedger remains the lifecycle authority; these stores
// give its records durability under the commitments/ layout.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// ErrNotFound is returned when a ledger record is not found.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-swap status update observes a
// different current status than expected.
var ErrConflict = errors.New("status conflict")

// ErrDuplicate is returned when creating a record whose commitment id
// already exists.
var ErrDuplicate = errors.New("duplicate commitment")

// Record is a durably persisted ledger entry. Declaration and DecisionCard
// are stored as opaque JSON: the store never interprets them, so the
// immutability contract reduces to "these columns are written once".
type Record struct {
	CommitmentID string            `json:"commitment_id"`
	Sequence     uint64            `json:"sequence"`
	Declaration  json.RawMessage   `json:"declaration"`
	DecisionCard json.RawMessage   `json:"decision_card,omitempty"`
	Status       commitment.Status `json:"status"`
	Outcome      string            `json:"outcome,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Store is the durable commitment store interface.
type Store interface {
	// Create persists a new record. Returns ErrDuplicate when the
	// commitment id already exists.
	Create(ctx context.Context, rec Record) error
	// Get returns a record by commitment id.
	Get(ctx context.Context, commitmentID string) (Record, error)
	// UpdateStatus advances the lifecycle with compare-and-swap semantics:
	// the row is updated only if its current status equals from, otherwise
	// ErrConflict. The transition itself must already have been validated
	// against the lifecycle graph by the caller.
	UpdateStatus(ctx context.Context, commitmentID string, from, to commitment.Status, outcome string, at time.Time) error
	// AttachDecision writes the decision card exactly once; a second attach
	// returns ErrConflict.
	AttachDecision(ctx context.Context, commitmentID string, card json.RawMessage, at time.Time) error
	// List returns records, optionally filtered by status, in sequence
	// order. limit <= 0 means no limit.
	List(ctx context.Context, status commitment.Status, limit int) ([]Record, error)
}
