// Package evidence implements the observation feedback surface:
// terminal consequences are converted into Meaning-level evidence records,
// linked into the provenance DAG, and held for downstream meaning
// formation to query. Evidence informs; it never authorizes.
package evidence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapleaiorg/substrate/pkg/contracts"
	"github.com/mapleaiorg/substrate/pkg/crypto"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
)

// Surface ingests consequences and stores the resulting evidence.
type Surface struct {
	mu    sync.RWMutex
	items map[string]*contracts.Evidence
	order []string
	graph *proofgraph.Graph
	clock func() time.Time
}

// NewSurface creates an observation surface. graph may be nil, in which
// case no provenance edges are published (tests only).
func NewSurface(graph *proofgraph.Graph) *Surface {
	return &Surface{
		items: make(map[string]*contracts.Evidence),
		graph: graph,
		clock: time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *Surface) WithClock(clock func() time.Time) *Surface {
	s.clock = clock
	return s
}

// IngestConsequence converts a consequence into a stored evidence record
// and returns its id. The evidence node descends from the execution node
// that produced the receipt, so every observation remains causally
// traceable to the obligation that authorized it.
func (s *Surface) IngestConsequence(ctx context.Context, c *contracts.Consequence) (string, error) {
	_ = ctx
	if c == nil {
		return "", fmt.Errorf("evidence: nil consequence")
	}
	if c.CommitmentID == "" || c.ReceiptID == "" {
		return "", fmt.Errorf("evidence: consequence must carry commitment_id and receipt_id")
	}

	payload, err := proofgraph.EncodePayload(c)
	if err != nil {
		return "", fmt.Errorf("evidence: consequence not serializable: %w", err)
	}
	contentHash, err := crypto.HashJCS(c)
	if err != nil {
		return "", fmt.Errorf("evidence: hashing failed: %w", err)
	}

	ev := &contracts.Evidence{
		EvidenceID:      "ev-" + uuid.New().String(),
		Kind:            contracts.EvidenceKindConsequence,
		SourceReceiptID: c.ReceiptID,
		CommitmentID:    c.CommitmentID,
		WorldLine:       c.WorldLine,
		Payload:         payload,
		ContentHash:     contentHash,
		IngestedAt:      s.clock(),
	}

	s.mu.Lock()
	s.items[ev.EvidenceID] = ev
	s.order = append(s.order, ev.EvidenceID)
	s.mu.Unlock()

	if s.graph != nil {
		var parents []string
		if exec, ok := s.graph.ByEvent("exec:" + c.CommitmentID); ok {
			parents = append(parents, exec.NodeHash)
		} else if decision, ok := s.graph.ByEvent("decide:" + c.CommitmentID); ok {
			parents = append(parents, decision.NodeHash)
		}
		_, err := s.graph.Insert(&proofgraph.Node{
			Kind:         proofgraph.NodeTypeConsequence,
			Parents:      parents,
			Payload:      payload,
			Principal:    c.ExecutorID,
			Timestamp:    s.clock().UnixMilli(),
			EventID:      "ev:" + ev.EvidenceID,
			WorldLine:    c.WorldLine,
			CommitmentID: c.CommitmentID,
			StageClass:   "observation",
		})
		if err != nil {
			return "", fmt.Errorf("evidence: provenance insert failed: %w", err)
		}
	}

	return ev.EvidenceID, nil
}

// Get returns an evidence record by id.
func (s *Surface) Get(evidenceID string) (*contracts.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.items[evidenceID]
	if !ok {
		return nil, fmt.Errorf("evidence: %s not found", evidenceID)
	}
	cp := *ev
	return &cp, nil
}

// ForCommitment returns every evidence record derived from a commitment,
// in ingestion order.
func (s *Surface) ForCommitment(commitmentID string) []*contracts.Evidence {
	return s.filter(func(ev *contracts.Evidence) bool { return ev.CommitmentID == commitmentID })
}

// ForWorldline returns every evidence record observed about a worldline,
// in ingestion order.
func (s *Surface) ForWorldline(worldline string) []*contracts.Evidence {
	return s.filter(func(ev *contracts.Evidence) bool { return ev.WorldLine == worldline })
}

// All returns every evidence record in ingestion order.
func (s *Surface) All() []*contracts.Evidence {
	return s.filter(func(*contracts.Evidence) bool { return true })
}

func (s *Surface) filter(pred func(*contracts.Evidence) bool) []*contracts.Evidence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*contracts.Evidence
	for _, id := range s.order {
		if ev := s.items[id]; pred(ev) {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out
}
