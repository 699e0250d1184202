package governance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/util/resiliency"
)

// RemotePolicyProvider evaluates declarations against an out-of-process
// policy service over HTTP. Fail-closed: any transport or decode error
// surfaces as an error, which the policy stage converts to a deny. The
// resilient client handles retries and circuit breaking; the service is
// expected to be deterministic for a given declaration, so retried calls
// are safe.
type RemotePolicyProvider struct {
	endpoint string
	client   *resiliency.EnhancedClient
}

// NewRemotePolicyProvider points a provider at the policy service's
// evaluate endpoint.
func NewRemotePolicyProvider(endpoint string) *RemotePolicyProvider {
	return &RemotePolicyProvider{
		endpoint: endpoint,
		client:   resiliency.NewEnhancedClient(),
	}
}

// evaluateRequest is the wire form of a policy evaluation call.
type evaluateRequest struct {
	Declaration *commitment.Declaration `json:"declaration"`
	Anchor      time.Time               `json:"anchor"`
}

// Evaluate implements PolicyProvider.
func (p *RemotePolicyProvider) Evaluate(d *commitment.Declaration, at time.Time) (*PolicyDecisionCard, error) {
	body, err := json.Marshal(evaluateRequest{Declaration: d, Anchor: at})
	if err != nil {
		return nil, fmt.Errorf("governance: marshal evaluate request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("governance: build evaluate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("governance: policy service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("governance: policy service returned %d", resp.StatusCode)
	}

	var card PolicyDecisionCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("governance: decode decision card: %w", err)
	}
	switch card.Decision {
	case DecisionApprove, DecisionDeny, DecisionRequireCoSignature, DecisionRequireHumanReview:
	default:
		return nil, fmt.Errorf("governance: policy service returned unknown decision %q", card.Decision)
	}
	return &card, nil
}
