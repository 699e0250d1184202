package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
	"github.com/mapleaiorg/substrate/pkg/observability"
	"github.com/mapleaiorg/substrate/pkg/store"
)

// CommitmentRecord is the ledger's stored view of a commitment: its
// immutable declaration and decision card, plus the mutable lifecycle
// status that the gate and executor advance via Transition.
type CommitmentRecord struct {
	CommitmentID string                        `json:"commitment_id"`
	Declaration  *commitment.Declaration        `json:"declaration"`
	DecisionCard *governance.PolicyDecisionCard `json:"decision_card,omitempty"`
	Status       commitment.Status              `json:"status"`
	Outcome      string                         `json:"outcome,omitempty"`
	CreatedAt    time.Time                      `json:"created_at"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

// CommitmentLedger is the strict, lifecycle-enforcing, hash-chained store
// of commitments. Every declaration, decision card and status transition is
// also appended to the backing AuditStore, so those can be rebuilt from the
// audit chain alone; the outcome text SetOutcome records is kept only in
// the ledger's own record.
type CommitmentLedger struct {
	mu      sync.Mutex
	records map[string]*CommitmentRecord
	audit   *store.AuditStore
	obs     *observability.Provider
}

// NewCommitmentLedger creates an empty ledger backed by the given audit
// store. Passing nil creates a private audit store for the ledger's own use.
func NewCommitmentLedger(audit *store.AuditStore) *CommitmentLedger {
	if audit == nil {
		audit = store.NewAuditStore()
	}
	return &CommitmentLedger{
		records: make(map[string]*CommitmentRecord),
		audit:   audit,
	}
}

// WithObservability counts every applied lifecycle transition on the
// provider's transition instrument.
func (l *CommitmentLedger) WithObservability(p *observability.Provider) *CommitmentLedger {
	l.obs = p
	return l
}

// Append registers a newly-declared commitment. The declaration field is
// immutable from this point on: no subsequent call may change it.
func (l *CommitmentLedger) Append(d *commitment.Declaration, at time.Time) (*CommitmentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[d.DeclarationID]; exists {
		return nil, fmt.Errorf("%w: commitment %s already declared", commitment.ErrLedgerImmutability, d.DeclarationID)
	}

	rec := &CommitmentRecord{
		CommitmentID: d.DeclarationID,
		Declaration:  d,
		Status:       commitment.StatusDeclared,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	l.records[d.DeclarationID] = rec

	if _, err := l.audit.Append(store.EntryTypeDeclaration, d.DeclarationID, "declared", d, map[string]string{
		"stage":  "declaration",
		"actor":  d.DeclaringIdentity,
		"status": string(rec.Status),
	}); err != nil {
		return nil, fmt.Errorf("ledger: audit append failed: %w", err)
	}
	return rec, nil
}

// AttachDecision attaches a policy decision card to a commitment. Like the
// declaration, once attached the card never changes; attaching a second
// card to the same commitment is a violation.
func (l *CommitmentLedger) AttachDecision(commitmentID string, card *governance.PolicyDecisionCard) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[commitmentID]
	if !ok {
		return fmt.Errorf("ledger: commitment %s not found", commitmentID)
	}
	if rec.DecisionCard != nil {
		return fmt.Errorf("%w: commitment %s already has a decision card", commitment.ErrLedgerImmutability, commitmentID)
	}
	rec.DecisionCard = card

	if _, err := l.audit.Append(store.EntryTypeDecision, commitmentID, "decision_attached", card, map[string]string{
		"stage":    "policy_evaluation",
		"decision": string(card.Decision),
	}); err != nil {
		return fmt.Errorf("ledger: audit append failed: %w", err)
	}
	return nil
}

// Transition moves a commitment from its current status to a new one, with
// compare-and-swap semantics: the caller must supply the expected current
// status, and the call fails if it doesn't match (someone else moved it
// first) or if the transition isn't legal under the lifecycle graph.
func (l *CommitmentLedger) Transition(commitmentID string, from, to commitment.Status, at time.Time, actor string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[commitmentID]
	if !ok {
		return fmt.Errorf("ledger: commitment %s not found", commitmentID)
	}
	if rec.Status != from {
		return fmt.Errorf("%w: commitment %s is %s, expected %s", commitment.ErrInvalidLifecycleTransition, commitmentID, rec.Status, from)
	}
	if !commitment.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s is not a legal transition", commitment.ErrInvalidLifecycleTransition, from, to)
	}

	rec.Status = to
	rec.UpdatedAt = at
	if l.obs != nil {
		l.obs.RecordTransition(context.Background(), string(from), string(to))
	}

	if _, err := l.audit.Append(store.EntryTypeTransition, commitmentID, "transition", map[string]string{
		"from": string(from),
		"to":   string(to),
	}, map[string]string{
		"stage": "lifecycle",
		"actor": actor,
	}); err != nil {
		return fmt.Errorf("ledger: audit append failed: %w", err)
	}
	return nil
}

// SetOutcome records the terminal outcome of execution. Only legal from
// StatusExecuting, moving to either StatusExecuted or StatusFailed.
func (l *CommitmentLedger) SetOutcome(commitmentID string, to commitment.Status, outcome string, at time.Time) error {
	if to != commitment.StatusExecuted && to != commitment.StatusFailed {
		return fmt.Errorf("%w: outcome must resolve to EXECUTED or FAILED, got %s", commitment.ErrInvalidLifecycleTransition, to)
	}
	if err := l.Transition(commitmentID, commitment.StatusExecuting, to, at, "executor"); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[commitmentID].Outcome = outcome
	return nil
}

// Get returns a commitment record by id.
func (l *CommitmentLedger) Get(commitmentID string) (*CommitmentRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[commitmentID]
	if !ok {
		return nil, fmt.Errorf("ledger: commitment %s not found", commitmentID)
	}
	cp := *rec
	return &cp, nil
}

// Filter narrows a List call: zero-value fields are ignored.
type Filter struct {
	Status commitment.Status
	Since  time.Time
	Until  time.Time
}

// List returns every commitment record matching the filter, in creation
// order.
func (l *CommitmentLedger) List(f Filter) []*CommitmentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*CommitmentRecord
	for _, rec := range l.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && rec.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, rec)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].CreatedAt.After(out[j].CreatedAt); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// VerifyAuditChain delegates to the backing audit store's chain
// verification, so a caller can confirm the ledger's history hasn't been
// tampered with independent of the in-memory record state.
func (l *CommitmentLedger) VerifyAuditChain() error {
	return l.audit.VerifyChain()
}

// MarshalRecord renders a commitment record as indented JSON for external
// inspection (e.g. the CLI's `inspect commitment` command).
func MarshalRecord(rec *CommitmentRecord) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}
