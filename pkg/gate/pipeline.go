package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/governance"
)

// AdjudicationResult is what a caller gets back from Adjudicate or Resume:
// either a terminal verdict, or a suspension that must be resolved (via
// co-signature or human review) before the pipeline can complete.
type AdjudicationResult struct {
	CommitmentID   string
	Verdict        Verdict
	Reason         string
	Suspended      bool
	MissingSigners []string
	DecisionCard   *governance.PolicyDecisionCard
	RiskClass      governance.RiskLevel
	History        []StageOutcome
}

// Pipeline orchestrates the seven gate stages in their canonical order. It
// must be constructed from exactly the seven expected stages, in order —
// anything else refuses to build, since an incomplete or reordered pipeline
// would silently change the fail-closed guarantee.
type Pipeline struct {
	stages []Stage
	store  ContextStore
}

// NewPipeline validates that stages is exactly the seven canonical stages
// in order and builds a Pipeline over them.
func NewPipeline(stages []Stage, store ContextStore) (*Pipeline, error) {
	if len(stages) != len(CanonicalOrder) {
		return nil, fmt.Errorf("gate: pipeline requires exactly %d stages, got %d", len(CanonicalOrder), len(stages))
	}
	for i, s := range stages {
		if s.Name() != CanonicalOrder[i] {
			return nil, fmt.Errorf("gate: stage %d must be %q, got %q", i, CanonicalOrder[i], s.Name())
		}
	}
	if store == nil {
		store = NewInMemoryContextStore()
	}
	return &Pipeline{stages: stages, store: store}, nil
}

// Store exposes the pipeline's suspension store so the adjudicator can
// inspect and amend persisted contexts during resumption.
func (p *Pipeline) Store() ContextStore { return p.store }

// Adjudicate runs a fresh declaration through every stage from the start.
func (p *Pipeline) Adjudicate(ctx context.Context, d *commitment.Declaration, at time.Time, deadline time.Time) (*AdjudicationResult, error) {
	pctx := &PipelineContext{
		CommitmentID: d.DeclarationID,
		Declaration:  d,
		At:           at,
		Deadline:     deadline,
	}
	return p.run(ctx, pctx)
}

// Resume continues a suspended commitment from wherever it left off —
// after a co-signature or human-review resolution — without re-running
// stages that already passed.
func (p *Pipeline) Resume(ctx context.Context, commitmentID string) (*AdjudicationResult, error) {
	pctx, err := p.store.Load(commitmentID)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, pctx)
}

func (p *Pipeline) run(ctx context.Context, pctx *PipelineContext) (result *AdjudicationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = &AdjudicationResult{
				CommitmentID: pctx.CommitmentID,
				Verdict:      VerdictDeny,
				Reason:       fmt.Sprintf("%s: stage panicked: %v", commitment.ErrStageFailed, r),
				History:      pctx.History,
			}
			err = nil
		}
	}()

	for i := pctx.NextStage; i < len(p.stages); i++ {
		stage := p.stages[i]
		outcome, stageErr := stage.Evaluate(ctx, pctx)
		if stageErr != nil {
			outcome = fail(stage.Name(), stageErr)
		}
		pctx.History = append(pctx.History, outcome)

		switch outcome.Verdict {
		case VerdictDeny:
			_ = p.store.Delete(pctx.CommitmentID)
			return &AdjudicationResult{
				CommitmentID: pctx.CommitmentID,
				Verdict:      VerdictDeny,
				Reason:       outcome.Reason,
				DecisionCard: pctx.DecisionCard,
				RiskClass:    pctx.RiskClass,
				History:      pctx.History,
			}, nil

		case VerdictRequireCoSignature:
			// A co-signature requirement raised by policy or risk does not
			// suspend here; it accumulates signers for stage 6 to collect.
			pctx.requireSigners(outcome.MissingSigners)
			if MoreRestrictive(pctx.RunningVerdict, VerdictRequireCoSignature) {
				pctx.RunningVerdict = VerdictRequireCoSignature
			}
			if stage.Name() == StageCoSignature {
				// The collection stage itself found the quorum unmet:
				// suspend, and re-run this stage on resume.
				pctx.MissingSigners = outcome.MissingSigners
				pctx.NextStage = i
				if err := p.store.Save(pctx); err != nil {
					return nil, fmt.Errorf("gate: failed to persist suspended context: %w", err)
				}
				return &AdjudicationResult{
					CommitmentID:   pctx.CommitmentID,
					Verdict:        VerdictRequireCoSignature,
					Reason:         outcome.Reason,
					Suspended:      true,
					MissingSigners: outcome.MissingSigners,
					DecisionCard:   pctx.DecisionCard,
					RiskClass:      pctx.RiskClass,
					History:        pctx.History,
				}, nil
			}

		case VerdictRequireHumanReview:
			// Human review suspends immediately. The resolution is applied
			// by the adjudicator (approval clears the verdict, denial is
			// terminal), so resumption continues at the next stage rather
			// than re-running this one.
			pctx.HumanRationale = outcome.Reason
			pctx.RunningVerdict = VerdictRequireHumanReview
			pctx.NextStage = i + 1
			if err := p.store.Save(pctx); err != nil {
				return nil, fmt.Errorf("gate: failed to persist suspended context: %w", err)
			}
			return &AdjudicationResult{
				CommitmentID: pctx.CommitmentID,
				Verdict:      VerdictRequireHumanReview,
				Reason:       outcome.Reason,
				Suspended:    true,
				DecisionCard: pctx.DecisionCard,
				RiskClass:    pctx.RiskClass,
				History:      pctx.History,
			}, nil

		case VerdictPass:
			if stage.Name() == StageCoSignature && pctx.RunningVerdict == VerdictRequireCoSignature {
				// Quorum met: the outstanding co-signature requirement is
				// discharged, not downgraded.
				pctx.RunningVerdict = VerdictPass
				pctx.MissingSigners = nil
			}
		}

		pctx.NextStage = i + 1
		if err := p.store.Save(pctx); err != nil {
			return nil, fmt.Errorf("gate: failed to persist pipeline context: %w", err)
		}
	}

	verdict := pctx.RunningVerdict
	if verdict == "" {
		verdict = VerdictPass
	}
	_ = p.store.Delete(pctx.CommitmentID)
	return &AdjudicationResult{
		CommitmentID: pctx.CommitmentID,
		Verdict:      verdict,
		DecisionCard: pctx.DecisionCard,
		RiskClass:    pctx.RiskClass,
		History:      pctx.History,
	}, nil
}
