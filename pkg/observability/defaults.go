package observability

import "time"

// The substrate's canonical operations, as they appear in SLI/SLO
// definitions and span names.
const (
	OpAdjudicate = "adjudicate"
	OpExecute    = "execute"
	OpResume     = "resume"
	OpVerify     = "audit_verify"
	OpCompact    = "provenance_compact"
)

// DefaultSLIs registers the substrate's stock indicators: adjudication
// latency and stage-failure rate, execution success, suspension
// resolution, and audit-chain health.
func DefaultSLIs(r *SLIRegistry) error {
	slis := []*SLI{
		{
			SLIID:             "sli-adjudication-latency",
			Name:              "Adjudication Latency",
			Operation:         OpAdjudicate,
			EssentialVariable: "gate.responsiveness",
			Source:            SLISourceMetric,
			Unit:              "ms",
			GoodEventQuery:    `substrate.operation.duration{span="gate.adjudicate"} < 0.25s`,
			TotalEventQuery:   `substrate.gate.adjudications.total`,
		},
		{
			SLIID:             "sli-adjudication-errors",
			Name:              "Adjudication Stage Failures",
			Operation:         OpAdjudicate,
			EssentialVariable: "gate.fail-closed-health",
			Source:            SLISourceMetric,
			Unit:              "count",
			GoodEventQuery:    `substrate.gate.adjudications.total - substrate.errors.total{span="gate.adjudicate"}`,
			TotalEventQuery:   `substrate.gate.adjudications.total`,
		},
		{
			SLIID:             "sli-execution-success",
			Name:              "Execution Success Rate",
			Operation:         OpExecute,
			EssentialVariable: "executor.reliability",
			Source:            SLISourceMetric,
			Unit:              "%",
			GoodEventQuery:    `substrate.executor.executions.total{substrate.executor.outcome="success"}`,
			TotalEventQuery:   `substrate.executor.executions.total`,
		},
		{
			SLIID:             "sli-suspension-resolution",
			Name:              "Suspension Resolution",
			Operation:         OpResume,
			EssentialVariable: "gate.human-loop-latency",
			Source:            SLISourceMetric,
			Unit:              "count",
			GoodEventQuery:    `delta(substrate.gate.suspensions.active) <= 0`,
			TotalEventQuery:   `substrate.gate.suspensions.active`,
		},
		{
			SLIID:             "sli-audit-chain-intact",
			Name:              "Audit Chain Integrity",
			Operation:         OpVerify,
			EssentialVariable: "ledger.tamper-evidence",
			Source:            SLISourceProbe,
			Unit:              "%",
			GoodEventQuery:    `audit_verify exit 0`,
			TotalEventQuery:   `audit_verify runs`,
		},
	}
	for _, sli := range slis {
		if err := r.Register(sli); err != nil {
			return err
		}
	}
	return nil
}

// DefaultSLOs sets the substrate's stock objectives over those indicators.
func DefaultSLOs(t *SLOTracker) {
	targets := []*SLOTarget{
		{SLOID: "slo-adjudicate", Name: "Adjudication", Operation: OpAdjudicate, LatencyP99: 250 * time.Millisecond, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-execute", Name: "Execution", Operation: OpExecute, LatencyP99: 2 * time.Second, SuccessRate: 0.99, WindowHours: 24},
		{SLOID: "slo-resume", Name: "Suspension Resolution", Operation: OpResume, LatencyP99: time.Second, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-audit-verify", Name: "Audit Verification", Operation: OpVerify, LatencyP99: 5 * time.Second, SuccessRate: 1.0, WindowHours: 168},
	}
	for _, target := range targets {
		t.SetTarget(target)
	}
}
