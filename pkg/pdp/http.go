package pdp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mapleaiorg/substrate/pkg/util/resiliency"
)

// HTTPDecisionPoint talks to an out-of-process policy engine (an OPA or
// Cedar agent) over its decision API. Fail-closed: transport errors,
// non-200 responses, and undecodable bodies all surface as errors, which
// the gate's policy stage converts to a deny.
type HTTPDecisionPoint struct {
	endpoint   string
	backend    Backend
	policyHash string
	client     *resiliency.EnhancedClient
}

// NewHTTPDecisionPoint points at an engine's evaluate endpoint. policyHash
// is the content-addressed hash of the policy set the engine is serving,
// supplied by the operator who deployed it.
func NewHTTPDecisionPoint(endpoint string, backend Backend, policyHash string) *HTTPDecisionPoint {
	return &HTTPDecisionPoint{
		endpoint:   endpoint,
		backend:    backend,
		policyHash: policyHash,
		client:     resiliency.NewEnhancedClient(),
	}
}

// Evaluate implements PolicyDecisionPoint.
func (h *HTTPDecisionPoint) Evaluate(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("pdp: marshal decision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pdp: build decision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pdp: %s engine unreachable: %w", h.backend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdp: %s engine returned %d", h.backend, resp.StatusCode)
	}

	var decision DecisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, fmt.Errorf("pdp: decode decision: %w", err)
	}
	if decision.DecisionHash == "" {
		hash, err := ComputeDecisionHash(&decision)
		if err != nil {
			return nil, err
		}
		decision.DecisionHash = hash
	}
	return &decision, nil
}

// Backend implements PolicyDecisionPoint.
func (h *HTTPDecisionPoint) Backend() Backend { return h.backend }

// PolicyHash implements PolicyDecisionPoint.
func (h *HTTPDecisionPoint) PolicyHash() string { return h.policyHash }
