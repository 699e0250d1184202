package executor

import (
	"context"
	"fmt"

	"github.com/mapleaiorg/substrate/pkg/capabilities"
	"github.com/mapleaiorg/substrate/pkg/commitment"
)

// CatalogEffectExecutor dispatches approved commitments to registered
// tools: the first tool in the declaration's effect domain handles the
// effect. No tool for the domain is an execution failure, never a silent
// no-op.
type CatalogEffectExecutor struct {
	catalog *capabilities.ToolCatalog
}

// NewCatalogEffectExecutor wraps a tool catalog.
func NewCatalogEffectExecutor(catalog *capabilities.ToolCatalog) *CatalogEffectExecutor {
	return &CatalogEffectExecutor{catalog: catalog}
}

// Execute implements EffectExecutor.
func (c *CatalogEffectExecutor) Execute(ctx context.Context, commitmentID string, declaration any) (ExecutionPayload, error) {
	d, ok := declaration.(*commitment.Declaration)
	if !ok || d == nil {
		return ExecutionPayload{}, fmt.Errorf("executor: catalog dispatch needs the declaration")
	}

	tools := c.catalog.ForDomain(d.Scope.EffectDomain)
	if len(tools) == 0 {
		return ExecutionPayload{}, fmt.Errorf("executor: no tool registered for domain %s", d.Scope.EffectDomain)
	}
	tool := tools[0]
	if tool.Handler == nil {
		return ExecutionPayload{}, fmt.Errorf("executor: tool %s has no handler", tool.ID)
	}

	out, err := tool.Handler(ctx, map[string]interface{}{
		"commitment_id": commitmentID,
		"targets":       d.Scope.Targets,
		"constraints":   d.Scope.Constraints,
	})
	if err != nil {
		return ExecutionPayload{}, fmt.Errorf("executor: tool %s failed: %w", tool.ID, err)
	}

	summary, _ := out["summary"].(string)
	if summary == "" {
		summary = fmt.Sprintf("%s handled %s", tool.ID, commitmentID)
	}
	var tests uint64
	if n, ok := out["tests_passed"].(int); ok {
		tests = uint64(n)
	}
	return ExecutionPayload{Summary: summary, TestsPassed: tests, Detail: out}, nil
}
