package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

// PipelineContext is the mutable working state a commitment accumulates as
// it passes through the seven stages. It is persisted between stages so an
// async suspension (awaiting co-signature or human review) can be resumed
// without re-running already-passed stages. All fields are exported and
// JSON-tagged because suspended contexts outlive the process: the Redis
// context store round-trips them through encoding/json.
type PipelineContext struct {
	CommitmentID    string                         `json:"commitment_id"`
	Declaration     *commitment.Declaration        `json:"declaration"`
	At              time.Time                      `json:"at"`
	NextStage       int                            `json:"next_stage"`
	RunningVerdict  Verdict                        `json:"running_verdict,omitempty"`
	DecisionCard    *governance.PolicyDecisionCard `json:"decision_card,omitempty"`
	RiskClass       governance.RiskLevel           `json:"risk_class,omitempty"`
	RequiredSigners []string                       `json:"required_signers,omitempty"`
	MissingSigners  []string                       `json:"missing_signers,omitempty"`
	HumanRationale  string                         `json:"human_rationale,omitempty"`
	Deadline        time.Time                      `json:"deadline,omitempty"`
	History         []StageOutcome                 `json:"history"`
}

// requireSigners merges signers into the context's required-signer set,
// preserving first-seen order.
func (p *PipelineContext) requireSigners(signers []string) {
	for _, s := range signers {
		seen := false
		for _, have := range p.RequiredSigners {
			if have == s {
				seen = true
				break
			}
		}
		if !seen {
			p.RequiredSigners = append(p.RequiredSigners, s)
		}
	}
}

// ContextStore persists suspended pipeline contexts so a commitment
// awaiting co-signature or human review survives process restarts. The
// production backing is Redis; InMemoryContextStore suffices for tests and
// single-process deployments.
type ContextStore interface {
	Save(pctx *PipelineContext) error
	Load(commitmentID string) (*PipelineContext, error)
	Delete(commitmentID string) error
	All() ([]*PipelineContext, error)
}

// InMemoryContextStore is a ContextStore backed by a map.
type InMemoryContextStore struct {
	mu    sync.Mutex
	items map[string]*PipelineContext
}

// NewInMemoryContextStore creates an empty context store.
func NewInMemoryContextStore() *InMemoryContextStore {
	return &InMemoryContextStore{items: make(map[string]*PipelineContext)}
}

func (s *InMemoryContextStore) Save(pctx *PipelineContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pctx
	s.items[pctx.CommitmentID] = &cp
	return nil
}

func (s *InMemoryContextStore) Load(commitmentID string) (*PipelineContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pctx, ok := s.items[commitmentID]
	if !ok {
		return nil, fmt.Errorf("gate: no suspended context for commitment %s", commitmentID)
	}
	cp := *pctx
	return &cp, nil
}

func (s *InMemoryContextStore) Delete(commitmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, commitmentID)
	return nil
}

func (s *InMemoryContextStore) All() ([]*PipelineContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PipelineContext, 0, len(s.items))
	for _, pctx := range s.items {
		cp := *pctx
		out = append(out, &cp)
	}
	return out, nil
}
