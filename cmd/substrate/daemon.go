package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mapleaiorg/substrate/pkg/capabilities"
	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/config"
	"github.com/mapleaiorg/substrate/pkg/envelope"
	"github.com/mapleaiorg/substrate/pkg/evidence"
	"github.com/mapleaiorg/substrate/pkg/executor"
	"github.com/mapleaiorg/substrate/pkg/gate"
	"github.com/mapleaiorg/substrate/pkg/governance"
	"github.com/mapleaiorg/substrate/pkg/identity"
	"github.com/mapleaiorg/substrate/pkg/kernel"
	"github.com/mapleaiorg/substrate/pkg/ledger"
	"github.com/mapleaiorg/substrate/pkg/observability"
	"github.com/mapleaiorg/substrate/pkg/pdp"
	"github.com/mapleaiorg/substrate/pkg/policyloader"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
	"github.com/mapleaiorg/substrate/pkg/store"
)

// substrateKernel is the fully wired substrate a daemon process runs:
// router, gate, executor, observation surface, and the stores behind them.
type substrateKernel struct {
	registry *identity.Registry
	caps     *capabilities.InMemoryProvider
	audit    *store.AuditStore
	ledger   *ledger.CommitmentLedger
	graph    *proofgraph.Graph
	gate     *gate.Gate
	executor *executor.CommitmentExecutor
	surface  *evidence.Surface
	router   *envelope.Router
	obs      *observability.Provider
	slis     *observability.SLIRegistry
	slos     *observability.SLOTracker
}

// newPolicyProvider composes the gate's policy provider from config: an
// external decision point when one is configured, otherwise the CEL
// bundles on disk. A missing bundle directory is an empty (ungoverned)
// rule set, not a boot failure.
func newPolicyProvider(cfg *config.Config) (governance.PolicyProvider, error) {
	if cfg.PolicyPDPEndpoint != "" {
		backend := pdp.Backend(cfg.PolicyPDPBackend)
		point := pdp.NewHTTPDecisionPoint(cfg.PolicyPDPEndpoint, backend, cfg.PolicyPDPHash)
		return pdp.NewProvider(point), nil
	}

	loader := policyloader.NewLoader(cfg.PolicyBundleDir)
	if _, err := os.Stat(cfg.PolicyBundleDir); err == nil {
		if err := loader.LoadAll(); err != nil {
			return nil, fmt.Errorf("load policy bundles: %w", err)
		}
	}
	return governance.NewCELPolicyProvider(loader.Rules(), loader.Version())
}

// newObservability builds the telemetry provider; export is enabled only
// when an OTLP endpoint is configured.
func newObservability(ctx context.Context, cfg *config.Config) (*observability.Provider, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.NodeID = cfg.NodeID
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	if cfg.OTLPEndpoint != "" {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	return observability.New(ctx, obsCfg)
}

// buildKernel constructs every component from config. It is the only place
// the substrate is assembled; the core packages never read config.
func buildKernel(ctx context.Context, cfg *config.Config) (*substrateKernel, error) {
	obs, err := newObservability(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	policy, err := newPolicyProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy provider: %w", err)
	}

	audit := store.NewAuditStore()
	led := ledger.NewCommitmentLedger(audit).WithObservability(obs)
	graph := proofgraph.NewGraph()
	registry := identity.NewRegistry()
	caps := capabilities.NewInMemoryProvider()
	collector := gate.NewCoSignCollector([]byte(cfg.NodeID))

	var contexts gate.ContextStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		contexts = gate.NewRedisContextStore(client, cfg.SuspensionDeadline)
	}

	stages := gate.CanonicalStages(registry, caps, policy,
		gate.NewRiskClassifier(gate.DefaultRiskThresholds()), nil, collector, nil)
	pipeline, err := gate.NewPipeline(stages, contexts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	g := gate.NewGate(pipeline, led, graph, collector, gate.NewHumanReviewQueue(), cfg.SuspensionDeadline).
		WithObservability(obs)

	receipts := store.NewMemoryReceiptStore()
	exec := executor.NewCommitmentExecutor("wl:executor:"+cfg.NodeID, led,
		executor.NoopEffectExecutor{}, receipts).
		WithGraph(graph).
		WithObservability(obs)

	admission := envelope.NewRateAdmission(cfg.GateAdmitPerSecond, int(cfg.GateHighWater), cfg.GateHighWater)
	router := envelope.NewRouter(envelope.NewValidator(), exec, audit, admission).
		WithEventLog(kernel.NewInMemoryTotalOrderLog())

	slis := observability.NewSLIRegistry()
	if err := observability.DefaultSLIs(slis); err != nil {
		return nil, fmt.Errorf("sli registry: %w", err)
	}
	slos := observability.NewSLOTracker()
	observability.DefaultSLOs(slos)

	return &substrateKernel{
		registry: registry,
		caps:     caps,
		audit:    audit,
		ledger:   led,
		graph:    graph,
		gate:     g,
		executor: exec,
		surface:  evidence.NewSurface(graph),
		router:   router,
		obs:      obs,
		slis:     slis,
		slos:     slos,
	}, nil
}

// persist flushes the kernel's append-only state under the state layout.
func (k *substrateKernel) persist(cfg *config.Config) error {
	if err := k.audit.SaveTo(auditChainFile(cfg)); err != nil {
		return err
	}
	return saveGraph(k.graph, filepath.Join(cfg.StateDir, "provenance", "nodes.json"))
}

// runDaemonCmd boots the kernel and runs until signalled, sweeping
// suspension deadlines on a timer and flushing state on shutdown.
func runDaemonCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	_ = args
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	k, err := buildKernel(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "daemon: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "substrate daemon up (node %s, policy via %s)\n",
		cfg.NodeID, policySource(cfg))

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	for {
		select {
		case <-sweep.C:
			denied, err := k.gate.ExpireDeadlines(time.Now())
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "daemon: deadline sweep: %v\n", err)
			}
			for _, id := range denied {
				_, _ = fmt.Fprintf(stdout, "daemon: commitment %s denied on timeout\n", id)
			}
			// Periodic self-check: re-verify the audit chain and feed the
			// result into the tamper-evidence objective.
			start := time.Now()
			verifyErr := k.audit.VerifyChain()
			k.slos.Record(observability.SLOObservation{
				Operation: observability.OpVerify,
				Latency:   time.Since(start),
				Success:   verifyErr == nil,
				Timestamp: time.Now(),
			})
			if verifyErr != nil {
				_, _ = fmt.Fprintf(stderr, "daemon: AUDIT CHAIN BROKEN: %v\n", verifyErr)
			}
		case <-ctx.Done():
			if err := k.persist(cfg); err != nil {
				_, _ = fmt.Fprintf(stderr, "daemon: persist on shutdown: %v\n", err)
				return 1
			}
			if k.obs != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = k.obs.Shutdown(shutdownCtx)
				cancel()
			}
			_, _ = fmt.Fprintln(stdout, "substrate daemon stopped")
			return 0
		}
	}
}

func policySource(cfg *config.Config) string {
	if cfg.PolicyPDPEndpoint != "" {
		return cfg.PolicyPDPBackend + " pdp at " + cfg.PolicyPDPEndpoint
	}
	return "cel bundles in " + cfg.PolicyBundleDir
}

// Declare is exposed so an embedding process can drive adjudications
// directly; the daemon's own intake is the router.
func (k *substrateKernel) Declare(ctx context.Context, d *commitment.Declaration) (*gate.AdjudicationResult, error) {
	return k.gate.Adjudicate(ctx, d)
}
