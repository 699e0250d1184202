package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/capabilities"
	"github.com/mapleaiorg/substrate/pkg/commitment"
	"github.com/mapleaiorg/substrate/pkg/config"
	"github.com/mapleaiorg/substrate/pkg/gate"
	"github.com/mapleaiorg/substrate/pkg/identity"
	"github.com/mapleaiorg/substrate/pkg/observability"
)

func daemonConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "POLICY_PDP_ENDPOINT", "OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}
	stateDir := t.TempDir()
	t.Setenv("STATE_DIR", stateDir)
	t.Setenv("POLICY_BUNDLE_DIR", filepath.Join(stateDir, "policies"))
	return config.Load()
}

// The bootstrap assembles a working kernel: a declaration adjudicated
// through it lands Approved in the ledger with provenance attached, and
// shutdown persistence writes a verifiable audit chain.
func TestBuildKernelAdjudicatesEndToEnd(t *testing.T) {
	cfg := daemonConfig(t)
	k, err := buildKernel(context.Background(), cfg)
	require.NoError(t, err)

	w := identity.Derive(identity.GenesisHash([]byte("daemon-seed")), nil)
	k.registry.Register(w)
	k.caps.Issue(w.ID(), capabilities.Grant{
		CapabilityID: "cap:CAP-COMM",
		EffectDomain: commitment.DomainCommunication,
		Issuer:       "bootstrap",
	})

	d := commitment.NewBuilder(w.ID()).
		WithScope(commitment.DomainCommunication, []string{w.ID()}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		Build(time.Now().UTC())

	result, err := k.Declare(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, gate.VerdictPass, result.Verdict)

	rec, err := k.ledger.Get(d.DeclarationID)
	require.NoError(t, err)
	assert.Equal(t, commitment.StatusApproved, rec.Status)
	assert.Equal(t, 2, k.graph.Len())

	// The stock SLIs/SLOs are live on the kernel.
	assert.Equal(t, 5, k.slis.Count())
	_, err = k.slos.Status(observability.OpAdjudicate)
	require.NoError(t, err)

	require.NoError(t, k.persist(cfg))
	code, stdout, _ := run(t, cfg.StateDir, "audit", "verify")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "intact")
}

// With no PDP endpoint the composition uses local CEL bundles.
func TestNewPolicyProviderDefaultsToCELBundles(t *testing.T) {
	cfg := daemonConfig(t)
	require.NoError(t, os.MkdirAll(cfg.PolicyBundleDir, 0o755))
	bundle := `{"version":"1.1.0","name":"comm","rules":[{"id":"C-1","domain":"communication","expression":"size(targets) > 0","priority":1,"enabled":true}]}`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.PolicyBundleDir, "comm.json"), []byte(bundle), 0o600))

	provider, err := newPolicyProvider(cfg)
	require.NoError(t, err)

	d := commitment.NewBuilder("wl:alpha").
		WithScope(commitment.DomainCommunication, []string{"wl:alpha"}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		Build(time.Unix(1_700_000_000, 0))
	card, err := provider.Evaluate(d, time.Unix(1_700_000_001, 0))
	require.NoError(t, err)
	assert.Equal(t, "APPROVE", string(card.Decision))
	assert.Equal(t, "1.1.0", card.Version)
}

// With a PDP endpoint configured, adjudication flows through the external
// decision point and its decision hash lands on the card.
func TestNewPolicyProviderUsesConfiguredPDP(t *testing.T) {
	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"allow":true,"reason_code":"ok","policy_ref":"opa://bundles/v9"}`))
	}))
	defer engine.Close()

	cfg := daemonConfig(t)
	t.Setenv("POLICY_PDP_ENDPOINT", engine.URL)
	t.Setenv("POLICY_PDP_BACKEND", "opa")
	t.Setenv("POLICY_PDP_HASH", "sha256:bundle-v9")
	cfg = config.Load()

	provider, err := newPolicyProvider(cfg)
	require.NoError(t, err)

	d := commitment.NewBuilder("wl:alpha").
		WithScope(commitment.DomainCommunication, []string{"wl:alpha"}, nil).
		WithCapabilityRefs("cap:CAP-COMM").
		Build(time.Unix(1_700_000_000, 0))
	card, err := provider.Evaluate(d, time.Unix(1_700_000_001, 0))
	require.NoError(t, err)
	assert.Equal(t, "APPROVE", string(card.Decision))
	assert.Equal(t, []string{"opa://bundles/v9"}, card.PolicyRefs)
	assert.Equal(t, "sha256:bundle-v9", card.Version)
}
