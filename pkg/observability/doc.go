// Package observability provides OpenTelemetry tracing and metrics for
// the substrate services, plus the SLI/SLO definitions tracked over gate
// operations.
//
// Initialize a provider at application startup:
//
//	provider, err := observability.New(ctx, observability.DefaultConfig())
//	defer provider.Shutdown(ctx)
//
// Track an operation end to end (span + RED metrics + active-operation
// gauge):
//
//	ctx, done := provider.TrackOperation(ctx, "gate.adjudicate",
//		observability.CommitmentOperation(worldline, commitmentID, stage, verdict)...)
//	defer done(err)
//
// Create spans manually:
//
//	ctx, span := provider.StartSpan(ctx, "ledger.transition")
//	defer span.End()
//
// SLIs and SLOs over those operations live in the registry and tracker:
//
//	registry := observability.NewSLIRegistry()
//	tracker := observability.NewSLOTracker()
package observability
