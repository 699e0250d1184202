package evidence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapleaiorg/substrate/pkg/contracts"
	"github.com/mapleaiorg/substrate/pkg/crypto"
	"github.com/mapleaiorg/substrate/pkg/proofgraph"
)

func sampleConsequence(commitmentID string) *contracts.Consequence {
	return &contracts.Consequence{
		ConsequenceID: "cq-1",
		CommitmentID:  commitmentID,
		ReceiptID:     "rcpt-1",
		ExecutorID:    "wl:exec",
		WorldLine:     "wl:alpha",
		Summary:       "message delivered",
		ObservedAt:    time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestIngestConsequenceStoresEvidence(t *testing.T) {
	s := NewSurface(nil).WithClock(func() time.Time { return time.Unix(1_700_000_001, 0).UTC() })

	id, err := s.IngestConsequence(context.Background(), sampleConsequence("cmt-1"))
	require.NoError(t, err)

	ev, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, contracts.EvidenceKindConsequence, ev.Kind)
	assert.Equal(t, "rcpt-1", ev.SourceReceiptID)
	assert.Equal(t, "cmt-1", ev.CommitmentID)
	assert.NotEmpty(t, ev.ContentHash)

	assert.Len(t, s.ForCommitment("cmt-1"), 1)
	assert.Len(t, s.ForWorldline("wl:alpha"), 1)
	assert.Empty(t, s.ForCommitment("cmt-other"))
}

func TestIngestConsequenceRejectsUnboundConsequence(t *testing.T) {
	s := NewSurface(nil)
	_, err := s.IngestConsequence(context.Background(), &contracts.Consequence{ConsequenceID: "cq-1"})
	assert.Error(t, err)
}

func TestIngestConsequencePublishesProvenanceEdge(t *testing.T) {
	g := proofgraph.NewGraph()
	decision, err := g.Insert(&proofgraph.Node{
		Kind:         proofgraph.NodeTypeDecision,
		Payload:      []byte(`{}`),
		Principal:    "gate",
		EventID:      "decide:cmt-1",
		CommitmentID: "cmt-1",
	})
	require.NoError(t, err)
	exec, err := g.Insert(&proofgraph.Node{
		Kind:         proofgraph.NodeTypeEffect,
		Parents:      []string{decision.NodeHash},
		Payload:      []byte(`{}`),
		Principal:    "wl:exec",
		EventID:      "exec:cmt-1",
		CommitmentID: "cmt-1",
	})
	require.NoError(t, err)

	s := NewSurface(g)
	id, err := s.IngestConsequence(context.Background(), sampleConsequence("cmt-1"))
	require.NoError(t, err)

	node, ok := g.ByEvent("ev:" + id)
	require.True(t, ok)
	assert.Equal(t, []string{exec.NodeHash}, node.Parents)
	assert.Equal(t, proofgraph.NodeTypeConsequence, node.Kind)

	// The evidence is causally reachable from the decision.
	path, err := g.CausalPath(decision.NodeHash, node.NodeHash)
	require.NoError(t, err)
	assert.Len(t, path, 3)
}

func TestExportAndVerifyBundle(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("export-key")
	require.NoError(t, err)

	s := NewSurface(nil)
	_, err = s.IngestConsequence(context.Background(), sampleConsequence("cmt-1"))
	require.NoError(t, err)

	exporter := NewExporter(signer, "export-key").WithClock(func() time.Time { return time.Unix(1_700_000_002, 0).UTC() })
	bundle, err := exporter.Export(context.Background(), "cmt-1", s.ForCommitment("cmt-1"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, bundle.ContentHash)
	require.NotEmpty(t, bundle.Signature)

	ok, err := VerifyBundle(bundle, signer.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)

	bundle.Items[0].WorldLine = "wl:forged"
	ok, err = VerifyBundle(bundle, signer.PublicKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExportEmptyFails(t *testing.T) {
	exporter := NewExporter(nil, "")
	_, err := exporter.Export(context.Background(), "cmt-1", nil, nil)
	assert.Error(t, err)
}
