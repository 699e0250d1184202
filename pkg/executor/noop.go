package executor

import "context"

// NoopEffectExecutor acknowledges execution without producing any external
// effect — the in-process default for deployments that drive effects out of
// band, and the standard test double.
type NoopEffectExecutor struct {
	Summary string
}

// Execute implements EffectExecutor.
func (n NoopEffectExecutor) Execute(ctx context.Context, commitmentID string, declaration any) (ExecutionPayload, error) {
	summary := n.Summary
	if summary == "" {
		summary = "acknowledged " + commitmentID
	}
	return ExecutionPayload{Summary: summary}, nil
}
