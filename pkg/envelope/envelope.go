// Package envelope implements the typed routing envelope and its router:
// every artifact moving through the substrate travels in an envelope typed
// along the resonance ladder Meaning < Intent < Commitment < Consequence,
// and the router is the single choke point that classifies envelopes,
// enforces non-escalation, and dispatches them to cognition, the gate, or
// the consequence surface.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mapleaiorg/substrate/pkg/anchor"
	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/crypto"
)

// ResonanceType is a rung on the resonance ladder. The ladder ordering is
// total and forward-only: no transformation may bump an artifact to a
// higher rung without passing through the gate.
type ResonanceType string

const (
	Meaning     ResonanceType = "MEANING"
	Intent      ResonanceType = "INTENT"
	Commitment  ResonanceType = "COMMITMENT"
	Consequence ResonanceType = "CONSEQUENCE"
)

var ladder = map[ResonanceType]int{
	Meaning:     0,
	Intent:      1,
	Commitment:  2,
	Consequence: 3,
}

// Level returns the rung's position on the ladder, or -1 for an unknown
// type.
func (r ResonanceType) Level() int {
	lvl, ok := ladder[r]
	if !ok {
		return -1
	}
	return lvl
}

// Known reports whether r is one of the four ladder rungs.
func (r ResonanceType) Known() bool { return r.Level() >= 0 }

// Header carries an envelope's routing metadata. DeclaredType is the
// sender's claim about the payload's type; the validator rejects any
// envelope whose claim disagrees with the header's resonance type, since a
// mismatch is exactly the silent-escalation hole the ladder exists to close.
type Header struct {
	ResonanceType      ResonanceType `json:"resonance_type"`
	Origin             string        `json:"origin"`
	DeclaredType       ResonanceType `json:"declared_type"`
	TTLMillis          int64         `json:"ttl_ms"`
	RoutingConstraints []string      `json:"routing_constraints,omitempty"`
}

// Envelope is one typed artifact in flight. Payload is opaque to the
// router except for Consequence envelopes, whose payload must decode to a
// ConsequencePayload so origin integrity can be checked.
type Envelope struct {
	Header        Header                `json:"header"`
	Payload       json.RawMessage       `json:"payload"`
	IntegrityHash string                `json:"integrity_block"`
	Anchor        anchor.TemporalAnchor `json:"temporal_anchor"`
}

// ConsequencePayload is the required payload shape of a Consequence
// envelope: the effect the executor carried out, bound to the commitment
// that authorized it.
type ConsequencePayload struct {
	ConsequenceID string `json:"consequence_id"`
	CommitmentID  string `json:"commitment_id"`
	ReceiptID     string `json:"receipt_id"`
	ExecutorID    string `json:"executor_id"`
	Summary       string `json:"summary,omitempty"`
}

// Seal computes and stamps the envelope's integrity hash over its canonical
// bytes with the hash field blanked. An envelope must be sealed before the
// router will accept it.
func (e *Envelope) Seal() error {
	hash, err := e.computeIntegrity()
	if err != nil {
		return err
	}
	e.IntegrityHash = hash
	return nil
}

// VerifyIntegrity recomputes the integrity hash and compares it to the
// stored value.
func (e *Envelope) VerifyIntegrity() error {
	hash, err := e.computeIntegrity()
	if err != nil {
		return err
	}
	if hash != e.IntegrityHash {
		return fmt.Errorf("%w: envelope hash mismatch", commitment.ErrIntegrityFailure)
	}
	return nil
}

func (e *Envelope) computeIntegrity() (string, error) {
	unhashed := *e
	unhashed.IntegrityHash = ""
	hash, err := crypto.HashJCS(unhashed)
	if err != nil {
		return "", fmt.Errorf("envelope: canonical hashing failed: %w", err)
	}
	return hash, nil
}

// Expired reports whether the envelope's TTL has elapsed at now, measured
// from the envelope's temporal anchor. A zero TTL never expires.
func (e *Envelope) Expired(now time.Time) bool {
	if e.Header.TTLMillis <= 0 {
		return false
	}
	deadline := e.Anchor.Time().Add(time.Duration(e.Header.TTLMillis) * time.Millisecond)
	return now.After(deadline)
}

// Less orders two envelopes for dispatch: by temporal anchor, with ties
// broken by (node_id, logical_counter) per the router's tie-break rule.
func Less(a, b *Envelope) bool {
	if c := a.Anchor.Compare(b.Anchor); c != 0 {
		return c < 0
	}
	if a.Anchor.NodeID != b.Anchor.NodeID {
		return a.Anchor.NodeID < b.Anchor.NodeID
	}
	return a.Anchor.LogicalCounter < b.Anchor.LogicalCounter
}

// WrapConsequence seals a Consequence envelope around an executed
// commitment's consequence payload, with the executor's identity as the
// origin the router checks against the commitment's binding.
func WrapConsequence(executorID string, payload ConsequencePayload, at anchor.TemporalAnchor, ttl time.Duration) (*Envelope, error) {
	payload.ExecutorID = executorID
	return New(Consequence, executorID, payload, at, ttl)
}

// New builds a sealed envelope of the given type around an
// already-serialized payload.
func New(rt ResonanceType, origin string, payload any, at anchor.TemporalAnchor, ttl time.Duration) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: payload marshal failed: %w", err)
	}
	env := &Envelope{
		Header: Header{
			ResonanceType: rt,
			Origin:        origin,
			DeclaredType:  rt,
			TTLMillis:     ttl.Milliseconds(),
		},
		Payload: raw,
		Anchor:  at,
	}
	if err := env.Seal(); err != nil {
		return nil, err
	}
	return env, nil
}
